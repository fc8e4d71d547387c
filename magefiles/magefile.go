// Package main contains Mage build targets for citecheck developer tooling.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// projectDirs lists the working directories the CLI writes to by default.
var projectDirs = []string{
	".cache/citecheck",
	".citecheck",
	".secrets",
}

// Init creates the cache, ledger, and secrets directories.
func Init() error {
	for _, dir := range projectDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		fmt.Println("  ", dir)
	}
	fmt.Println("Project directories initialized.")
	return nil
}

const (
	binDir  = "bin"
	binName = "citecheck"
	cmdPkg  = "./cmd/citecheck"
)

// Build compiles the CLI binary into bin/.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	out := filepath.Join(binDir, binName)
	version := os.Getenv("VERSION")
	if version == "" {
		version = "dev"
	}
	// go-sqlite3 needs cgo.
	env := map[string]string{"CGO_ENABLED": "1"}
	if err := sh.RunWithV(env, "go", "build", "-ldflags", "-X main.version="+version, "-o", out, cmdPkg); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s\n", out)
	return nil
}

// Test runs the unit tests with the race detector.
func Test() error {
	return sh.RunWithV(map[string]string{"CGO_ENABLED": "1"}, "go", "test", "-race", "./...")
}

// Verify builds the CLI and checks the bibliography named by $BIB.
func Verify() error {
	mg.Deps(Init, Build)
	bib := os.Getenv("BIB")
	if bib == "" {
		return fmt.Errorf("set BIB to a .bib or .yaml file")
	}
	return sh.RunV(filepath.Join(binDir, binName), "verify", bib)
}

// CacheStats prints cached entry counts per source.
func CacheStats() error {
	mg.Deps(Build)
	return sh.RunV(filepath.Join(binDir, binName), "cache", "stats")
}

// Clean removes the built binary.
func Clean() error {
	return sh.Rm(binDir)
}
