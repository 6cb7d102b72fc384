// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pdftest builds small, structurally valid PDF files for tests.
// Each page gets its own MediaBox width so tests can identify pages after
// a merge by reading page dimensions back.
package pdftest

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"testing"
)

// Bytes returns a PDF with one page per width. Page heights are fixed at 200.
func Bytes(widths ...int) []byte {
	if len(widths) == 0 {
		widths = []int{100}
	}

	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")

	kids := make([]string, len(widths))
	for i := range widths {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(widths)))

	for _, w := range widths {
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d 200] /Resources << >> >>", w))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

// Write writes Bytes(widths...) to path, failing the test on error.
func Write(t testing.TB, path string, widths ...int) {
	t.Helper()
	if err := os.WriteFile(path, Bytes(widths...), 0o644); err != nil {
		t.Fatalf("writing test PDF %s: %v", path, err)
	}
}

// WriteCorrupt writes bytes that carry a .pdf name but are not a PDF.
func WriteCorrupt(t testing.TB, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("this is not a pdf\n"), 0o644); err != nil {
		t.Fatalf("writing corrupt PDF %s: %v", path, err)
	}
}
