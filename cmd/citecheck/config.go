// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/citecheck/internal/secrets"
	"github.com/pdiddy/citecheck/pkg/types"
)

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("citecheck")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "citecheck"))
		}
	}

	viper.SetEnvPrefix("CITECHECK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := setDefaults(types.DefaultConfig()); err != nil {
		fmt.Fprintln(os.Stderr, "warning:", err)
	}

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setDefaults registers every leaf of def with viper so that config files,
// environment variables, and flags override individual fields.
func setDefaults(def types.Config) error {
	data, err := yaml.Marshal(def)
	if err != nil {
		return fmt.Errorf("encoding default config: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("decoding default config: %w", err)
	}
	walkDefaults("", tree)
	return nil
}

func walkDefaults(prefix string, node map[string]any) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok {
			walkDefaults(key, child)
			continue
		}
		viper.SetDefault(key, v)
	}
}

// loadConfig resolves the effective configuration from defaults, the config
// file, CITECHECK_* variables, bound flags, and secrets.
func loadConfig() (types.Config, error) {
	data, err := yaml.Marshal(coerce(viper.AllSettings()))
	if err != nil {
		return types.Config{}, fmt.Errorf("encoding settings: %w", err)
	}
	var cfg types.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return types.Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.Sources == nil {
		cfg.Sources = types.DefaultSourceConfigs()
	}
	secrets.Apply(&cfg, loadedSecrets)
	return cfg, nil
}

// coerce turns string leaves that spell numbers or booleans, as
// environment variables do, into typed scalars.
func coerce(node map[string]any) map[string]any {
	for k, v := range node {
		switch t := v.(type) {
		case map[string]any:
			node[k] = coerce(t)
		case string:
			var typed any
			if err := yaml.Unmarshal([]byte(t), &typed); err != nil {
				continue
			}
			switch typed.(type) {
			case int, float64, bool:
				node[k] = typed
			}
		}
	}
	return node
}

// selectSources enables exactly the named sources when list is non-empty.
func selectSources(cfg *types.Config, list []string) error {
	if len(list) == 0 {
		return nil
	}
	want := make(map[types.SourceID]bool, len(list))
	for _, name := range list {
		id := types.SourceID(strings.TrimSpace(strings.ToLower(name)))
		if _, ok := cfg.Sources[id]; !ok {
			return fmt.Errorf("unknown source %q (known: %s)", name, knownSources())
		}
		want[id] = true
	}
	for id, sc := range cfg.Sources {
		sc.Enabled = want[id]
		cfg.Sources[id] = sc
	}
	return nil
}

func knownSources() string {
	names := make([]string, len(types.AllSources))
	for i, id := range types.AllSources {
		names[i] = string(id)
	}
	return strings.Join(names, ", ")
}

// newLogger builds the process logger; verbose lowers the level to Debug.
func newLogger(verbose bool) *slog.Logger {
	lvl := slog.LevelInfo
	if verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// bindFlags binds each viper key to the flag of the given name.
func bindFlags(flags *pflag.FlagSet, bindings map[string]string) error {
	for key, name := range bindings {
		f := flags.Lookup(name)
		if f == nil {
			return fmt.Errorf("binding %s: no flag named %q", key, name)
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding %s: %w", key, err)
		}
	}
	return nil
}
