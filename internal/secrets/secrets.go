// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys and contact addresses from a directory of
// plain-text files and from a dotenv file. Each file in the directory
// represents one secret: the filename is the key name and the file contents
// (trimmed) are the value.
//
// Supported keys: semantic-scholar-api-key, openalex-email, crossref-mailto.
package secrets

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/pdiddy/citecheck/pkg/types"
)

// Key names recognized by Apply.
const (
	SemanticScholarAPIKey = "semantic-scholar-api-key"
	OpenAlexEmail         = "openalex-email"
	CrossRefMailto        = "crossref-mailto"
)

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files are logged and skipped.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			slog.Warn("could not read secret", "name", name, "error", err)
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// LoadEnv reads a dotenv file and returns its recognized keys under their
// secret names: SEMANTIC_SCHOLAR_API_KEY becomes semantic-scholar-api-key.
// A missing file yields an empty map.
func LoadEnv(path string) (map[string]string, error) {
	env, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		name := strings.ToLower(strings.ReplaceAll(k, "_", "-"))
		if v = strings.TrimSpace(v); v != "" {
			out[name] = v
		}
	}
	return out, nil
}

// Merge overlays later maps on earlier ones.
func Merge(maps ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

// Apply copies recognized secrets into the per-source settings. Values
// already set in cfg win.
func Apply(cfg *types.Config, secrets map[string]string) {
	set := func(id types.SourceID, apply func(*types.SourceConfig)) {
		sc, ok := cfg.Sources[id]
		if !ok {
			return
		}
		apply(&sc)
		cfg.Sources[id] = sc
	}
	if v := secrets[SemanticScholarAPIKey]; v != "" {
		set(types.SourceSemanticScholar, func(sc *types.SourceConfig) {
			if sc.APIKey == "" {
				sc.APIKey = v
			}
		})
	}
	if v := secrets[OpenAlexEmail]; v != "" {
		set(types.SourceOpenAlex, func(sc *types.SourceConfig) {
			if sc.Mailto == "" {
				sc.Mailto = v
			}
		})
	}
	mailto := secrets[CrossRefMailto]
	if mailto == "" {
		mailto = secrets[OpenAlexEmail]
	}
	if mailto != "" {
		set(types.SourceCrossRef, func(sc *types.SourceConfig) {
			if sc.Mailto == "" {
				sc.Mailto = mailto
			}
		})
	}

	// Keyed Semantic Scholar clients get a dedicated 1 req / 0.5 s quota.
	set(types.SourceSemanticScholar, func(sc *types.SourceConfig) {
		def := types.DefaultSourceConfigs()[types.SourceSemanticScholar]
		if sc.APIKey != "" && sc.Requests == def.Requests && sc.Window == def.Window {
			sc.Requests, sc.Window = 1, 500*time.Millisecond
		}
	})
}
