// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package subjects

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paperfetch/pkg/types"
)

func TestParse(t *testing.T) {
	input := "COMP1511:Programming Fundamentals\n\n  MATH1131 : Mathematics 1A  \n\nPHYS1121:Physics: Mechanics\n"
	got, err := Parse(strings.NewReader(input))
	require.NoError(t, err)

	want := []types.Subject{
		{Code: "COMP1511", Name: "Programming Fundamentals"},
		{Code: "MATH1131", Name: "Mathematics 1A"},
		{Code: "PHYS1121", Name: "Physics: Mechanics"},
	}
	assert.Equal(t, want, got)
}

func TestParse_CountMatchesNonBlankLines(t *testing.T) {
	inputs := []string{
		"",
		"A:a",
		"A:a\nB:b\nC:c",
		"\n\n A:a \n\t\nB:b\n\n",
		"A:a\r\nB:b\r\n",
	}
	for _, in := range inputs {
		nonBlank := 0
		for _, l := range strings.Split(in, "\n") {
			if strings.TrimSpace(l) != "" {
				nonBlank++
			}
		}
		got, err := Parse(strings.NewReader(in))
		require.NoError(t, err, "input %q", in)
		assert.Len(t, got, nonBlank, "input %q", in)
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantLine int
	}{
		{"no colon", "A:a\nnocolon\n", 2},
		{"empty code", "\n:Name\n", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			var pe *ParseError
			require.True(t, errors.As(err, &pe), "got %v", err)
			assert.Equal(t, tt.wantLine, pe.Line)
		})
	}
}

func TestParse_EmptyNameFallsBackToCode(t *testing.T) {
	got, err := Parse(strings.NewReader("COMP1511:\n"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "COMP1511", got[0].Name)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subjects.txt")
	require.NoError(t, os.WriteFile(path, []byte("A:Alpha\nB:Beta\n"), 0o644))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestFilter(t *testing.T) {
	all := []types.Subject{{Code: "A", Name: "a"}, {Code: "B", Name: "b"}, {Code: "C", Name: "c"}}

	assert.Equal(t, all, Filter(all, nil))
	assert.Equal(t, []types.Subject{{Code: "A", Name: "a"}, {Code: "C", Name: "c"}}, Filter(all, []string{"c", " a "}))
	assert.Empty(t, Filter(all, []string{"Z"}))
}
