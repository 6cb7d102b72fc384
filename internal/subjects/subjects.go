// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package subjects parses the line-oriented subject list. Each non-blank
// line has the form CODE:Name; the name may itself contain colons.
package subjects

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pdiddy/paperfetch/pkg/types"
)

// ParseError reports a malformed subject line.
type ParseError struct {
	Line int
	Text string
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("subject list line %d: %s: %q", e.Line, e.Msg, e.Text)
}

// Parse reads subjects from r in order. Blank lines are ignored.
func Parse(r io.Reader) ([]types.Subject, error) {
	var out []types.Subject
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		code, name, ok := strings.Cut(line, ":")
		if !ok {
			return nil, &ParseError{Line: lineNo, Text: line, Msg: "missing ':' separator"}
		}
		code = strings.TrimSpace(code)
		name = strings.TrimSpace(name)
		if code == "" {
			return nil, &ParseError{Line: lineNo, Text: line, Msg: "empty code"}
		}
		if name == "" {
			name = code
		}
		out = append(out, types.Subject{Code: code, Name: name})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading subject list: %w", err)
	}
	return out, nil
}

// Load parses the subject list file at path.
func Load(path string) ([]types.Subject, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening subject list: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Filter keeps only subjects whose code is in codes, preserving list order.
// An empty codes slice returns all subjects.
func Filter(all []types.Subject, codes []string) []types.Subject {
	if len(codes) == 0 {
		return all
	}
	want := make(map[string]bool, len(codes))
	for _, c := range codes {
		want[strings.ToUpper(strings.TrimSpace(c))] = true
	}
	var out []types.Subject
	for _, s := range all {
		if want[strings.ToUpper(s.Code)] {
			out = append(out, s)
		}
	}
	return out
}
