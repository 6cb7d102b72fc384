// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package convert turns Office documents staged for a subject into PDFs
// so they can be merged alongside the downloaded papers.
package convert

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Suffixes are the Office document types that can be converted.
var Suffixes = []string{".doc", ".docx", ".ppt", ".pptx"}

// Backend converts one document into a PDF written to outDir under the
// input's stem.
type Backend interface {
	Convert(ctx context.Context, input, outDir string) error
}

// FailedFile is a document that could not be converted.
type FailedFile struct {
	Name string
	Err  error
}

// Result holds the outcome of converting one directory.
type Result struct {
	Converted []string
	Skipped   []string
	Failed    []FailedFile
}

// Total returns the number of documents considered.
func (r Result) Total() int {
	return len(r.Converted) + len(r.Skipped) + len(r.Failed)
}

// Converter converts every Office document in a directory in place.
type Converter struct {
	backend Backend
	w       io.Writer
	logger  *zap.Logger
}

// New returns a Converter that reports progress to w.
func New(backend Backend, w io.Writer, logger *zap.Logger) *Converter {
	if w == nil {
		w = io.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Converter{backend: backend, w: w, logger: logger}
}

// ConvertDir converts each Office document in dir to a PDF beside it.
// A document whose PDF already exists and is newer is skipped. A failed
// conversion is reported in Result.Failed; only an unreadable dir is an
// error.
func (c *Converter) ConvertDir(ctx context.Context, dir string) (Result, error) {
	var res Result
	names, err := documents(dir)
	if err != nil {
		return res, err
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		src := filepath.Join(dir, name)
		out := filepath.Join(dir, strings.TrimSuffix(name, filepath.Ext(name))+".pdf")

		if upToDate(src, out) {
			fmt.Fprintf(c.w, "  skipped: %s (PDF up to date)\n", name)
			res.Skipped = append(res.Skipped, name)
			continue
		}

		err := c.backend.Convert(ctx, src, dir)
		if err == nil {
			if _, statErr := os.Stat(out); statErr != nil {
				err = fmt.Errorf("no output produced: %w", statErr)
			}
		}
		if err != nil {
			c.logger.Warn("conversion failed", zap.String("file", src), zap.Error(err))
			res.Failed = append(res.Failed, FailedFile{Name: name, Err: err})
			continue
		}
		fmt.Fprintf(c.w, "  converted: %s\n", name)
		res.Converted = append(res.Converted, name)
	}
	return res, nil
}

func documents(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		for _, s := range Suffixes {
			if strings.EqualFold(ext, s) {
				names = append(names, e.Name())
				break
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

func upToDate(src, out string) bool {
	si, err := os.Stat(src)
	if err != nil {
		return false
	}
	oi, err := os.Stat(out)
	if err != nil {
		return false
	}
	return oi.ModTime().After(si.ModTime())
}
