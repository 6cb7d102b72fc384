// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package merge consolidates the PDFs staged for a subject into one
// document, ordered by year (newest first) and then file name.
package merge

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Backend is the PDF engine used by Engine.
type Backend interface {
	// PageCount loads and parses the PDF at path and returns its page
	// count. An error means the file cannot be merged.
	PageCount(path string) (int, error)

	// Concat writes all pages of inputs, in input order and in each
	// document's own page order, to a new PDF at out.
	Concat(inputs []string, out string) error
}

// SkippedFile is an input that failed to load and was left out.
type SkippedFile struct {
	Name string
	Err  error
}

// Result describes one merge.
type Result struct {
	// Output is the written file, or empty when nothing was written.
	Output string

	// Files are the merged input names in output order.
	Files []string

	Pages   int
	Skipped []SkippedFile
}

// Engine merges a directory of PDFs.
type Engine struct {
	backend Backend
	w       io.Writer
	logger  *zap.Logger
}

// NewEngine returns an Engine that reports progress to w.
func NewEngine(backend Backend, w io.Writer, logger *zap.Logger) *Engine {
	if w == nil {
		w = io.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{backend: backend, w: w, logger: logger}
}

// ListPDFs returns the names of regular files in dir with a
// case-insensitive .pdf suffix, in merge order.
func ListPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			names = append(names, e.Name())
		}
	}
	SortNames(names)
	return names, nil
}

// MergeDir merges every PDF in srcDir into outPath. A directory with no
// PDFs, or with only unreadable PDFs, produces no output and no error.
// Unreadable inputs are reported in Result.Skipped. The output is written
// to a temporary file beside outPath and renamed into place.
func (e *Engine) MergeDir(srcDir, outPath string) (Result, error) {
	names, err := ListPDFs(srcDir)
	if err != nil {
		return Result{}, err
	}
	if len(names) == 0 {
		fmt.Fprintf(e.w, "  no PDFs in %s, nothing to merge\n", srcDir)
		return Result{}, nil
	}

	var res Result
	var inputs []string
	for _, name := range names {
		path := filepath.Join(srcDir, name)
		pages, err := e.backend.PageCount(path)
		if err != nil {
			fmt.Fprintf(e.w, "  skipped: %s (%v)\n", name, err)
			e.logger.Warn("skipping unreadable PDF", zap.String("file", path), zap.Error(err))
			res.Skipped = append(res.Skipped, SkippedFile{Name: name, Err: err})
			continue
		}
		inputs = append(inputs, path)
		res.Files = append(res.Files, name)
		res.Pages += pages
	}

	if len(inputs) == 0 {
		fmt.Fprintf(e.w, "  no readable PDFs in %s, nothing to merge\n", srcDir)
		return res, nil
	}

	if err := e.writeAtomic(inputs, outPath); err != nil {
		return res, err
	}
	res.Output = outPath

	fmt.Fprintf(e.w, "  merged: %s (%d pages from %d files)\n", outPath, res.Pages, len(inputs))
	e.logger.Info("merged PDFs",
		zap.String("file", outPath),
		zap.Int("pages", res.Pages),
		zap.Int("inputs", len(inputs)),
		zap.Int("skipped", len(res.Skipped)))
	return res, nil
}

func (e *Engine) writeAtomic(inputs []string, outPath string) error {
	outDir := filepath.Dir(outPath)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", outDir, err)
	}

	tmp, err := os.CreateTemp(outDir, ".merge-*.pdf")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := e.backend.Concat(inputs, tmpPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("concatenating PDFs: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
