// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package merge

import (
	"path/filepath"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paperfetch/internal/pdftest"
)

func pageWidths(t *testing.T, path string) []int {
	t.Helper()
	dims, err := api.PageDimsFile(path)
	require.NoError(t, err)
	widths := make([]int, len(dims))
	for i, d := range dims {
		widths[i] = int(d.Width)
	}
	return widths
}

func TestPDFCPU_PageCount(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.pdf")
	bad := filepath.Join(dir, "bad.pdf")
	pdftest.Write(t, good, 100, 101, 102)
	pdftest.WriteCorrupt(t, bad)

	b := NewPDFCPU()
	n, err := b.PageCount(good)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = b.PageCount(bad)
	assert.Error(t, err)
}

func TestPDFCPU_MergeOrder(t *testing.T) {
	src := t.TempDir()
	pdftest.Write(t, filepath.Join(src, "2023_a.pdf"), 231)
	pdftest.Write(t, filepath.Join(src, "2024_a.pdf"), 241, 242)
	pdftest.Write(t, filepath.Join(src, "2023_b.pdf"), 232)
	out := filepath.Join(t.TempDir(), "Subject.pdf")

	res, err := NewEngine(NewPDFCPU(), nil, nil).MergeDir(src, out)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Pages)
	assert.Equal(t, []int{241, 242, 231, 232}, pageWidths(t, out))
}

func TestPDFCPU_MergeSkipsCorrupt(t *testing.T) {
	src := t.TempDir()
	pdftest.Write(t, filepath.Join(src, "2020_a.pdf"), 201)
	pdftest.WriteCorrupt(t, filepath.Join(src, "2021_broken.pdf"))
	pdftest.Write(t, filepath.Join(src, "2022_a.pdf"), 221, 222)
	pdftest.Write(t, filepath.Join(src, "misc.pdf"), 900)
	out := filepath.Join(t.TempDir(), "Subject.pdf")

	res, err := NewEngine(NewPDFCPU(), nil, nil).MergeDir(src, out)
	require.NoError(t, err)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "2021_broken.pdf", res.Skipped[0].Name)
	assert.Equal(t, []int{221, 222, 201, 900}, pageWidths(t, out))
}
