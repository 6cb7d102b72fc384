//go:build mage

// Package main contains Mage build targets for paperfetch developer tooling.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binDir  = "bin"
	binName = "paperfetch"
	cmdPkg  = "./cmd/paperfetch"
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
	if err := sh.RunV("go", "build", "-ldflags", "-X main.version="+version, "-o", out, cmdPkg); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s\n", out)
	return nil
}

// Test runs the unit tests.
func Test() error {
	return sh.RunV("go", "test", "./...")
}

// Integration runs the browser-backed tests. They skip when no Chrome
// binary can be found.
func Integration() error {
	mg.Deps(Test)
	return sh.RunV("go", "test", "-tags", "integration", "-count=1", "./internal/browser/...")
}

// Clean removes build output.
func Clean() error {
	return sh.Rm(binDir)
}

const sampleSubjects = `COMP1511:Programming Fundamentals
MATH1131:Mathematics 1A
`

const sampleConfig = `# paperfetch configuration. Every key can also be set with a
# PAPERFETCH_ environment variable, e.g. PAPERFETCH_TIMING_PACE_DELAY=3s.
search_url: ""
subjects_file: subjects.txt
output_dir: papers
ledger_path: .paperfetch/ledger.db
sink: directory
convert_office: false

browser:
  headless: true
  stealth: true

selectors:
  search_frame: search
  results_frame: results
  result_row: tr[bgcolor]
  link_pattern: '(?i)(download|\.pdf)'

timing:
  warmup_settle: 15s
  settle: 3s
  download_wait: 10s
  pace_delay: 2s
  download_retries: 1
`

// Init writes a sample subjects.txt and paperfetch.yaml, leaving existing
// files alone.
func Init() error {
	files := []struct {
		path    string
		content string
	}{
		{"subjects.txt", sampleSubjects},
		{"paperfetch.yaml", sampleConfig},
	}
	for _, f := range files {
		if _, err := os.Stat(f.path); err == nil {
			fmt.Println("  exists:", f.path)
			continue
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("checking %s: %w", f.path, err)
		}
		if err := os.WriteFile(f.path, []byte(f.content), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", f.path, err)
		}
		fmt.Println("  created:", f.path)
	}
	fmt.Println("Set search_url in paperfetch.yaml before running paperfetch fetch.")
	return nil
}
