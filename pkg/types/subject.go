// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"strings"
	"time"
)

// Subject is one exam-paper category: the module code used as the search
// key and the display name used for the staging directory and output file.
type Subject struct {
	// Code is the module code typed into the search form (e.g. "COMP1511").
	Code string `json:"code" yaml:"code"`

	// Name is the display name (e.g. "Programming Fundamentals").
	Name string `json:"name" yaml:"name"`
}

// SafeName returns Name in a form usable as a single path component.
// Path separators and NUL bytes become "-". When Name is empty, "." or
// "..", Code is cleaned the same way and used instead. If neither yields a
// usable component SafeName returns "".
func (s Subject) SafeName() string {
	if name := pathComponent(s.Name); name != "" {
		return name
	}
	return pathComponent(s.Code)
}

func pathComponent(v string) string {
	c := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '-'
		}
		return r
	}, strings.TrimSpace(v))
	if c == "." || c == ".." {
		return ""
	}
	return c
}

func (s Subject) String() string {
	return s.Code + ":" + s.Name
}

// CandidateLink is a URL discovered in a search result row that is
// believed to trigger a PDF download.
type CandidateLink struct {
	URL string `json:"url" yaml:"url"`
}

// SubjectStatus is the terminal state of one subject's pipeline run.
type SubjectStatus string

const (
	// SubjectDone means the pipeline reached merge and cleanup.
	SubjectDone SubjectStatus = "done"
	// SubjectFailed means a subject-level error stopped the pipeline.
	SubjectFailed SubjectStatus = "failed"
)

// FailureKind classifies a subject-level failure for reporting.
type FailureKind string

const (
	FailureNone       FailureKind = ""
	FailureStructural FailureKind = "structural"
	FailureNavigation FailureKind = "navigation"
	FailureIO         FailureKind = "io"
	FailureMerge      FailureKind = "merge"
	FailureOther      FailureKind = "other"
)

// SubjectResult records what happened to one subject during a run.
type SubjectResult struct {
	Subject Subject       `json:"subject" yaml:"subject"`
	Status  SubjectStatus `json:"status" yaml:"status"`

	// State is the last pipeline state reached before Done or Failed.
	State string `json:"state" yaml:"state"`

	Failure FailureKind `json:"failure,omitempty" yaml:"failure,omitempty"`
	Error   string      `json:"error,omitempty" yaml:"error,omitempty"`

	LinksFound      int `json:"links_found" yaml:"links_found"`
	Downloaded      int `json:"downloaded" yaml:"downloaded"`
	DownloadsFailed int `json:"downloads_failed" yaml:"downloads_failed"`

	// MergedPath is empty when no output was produced (no PDFs or failure).
	MergedPath  string   `json:"merged_path,omitempty" yaml:"merged_path,omitempty"`
	MergedPages int      `json:"merged_pages" yaml:"merged_pages"`
	Skipped     []string `json:"skipped,omitempty" yaml:"skipped,omitempty"`

	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
}

// Merged reports whether the subject produced a consolidated PDF.
func (r SubjectResult) Merged() bool {
	return r.MergedPath != ""
}

// RunSummary holds the outcome of one fetch run over a subject list.
type RunSummary struct {
	RunID      string          `json:"run_id" yaml:"run_id"`
	StartedAt  time.Time       `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time       `json:"finished_at" yaml:"finished_at"`
	Results    []SubjectResult `json:"results" yaml:"results"`
}

// Succeeded returns the number of subjects that produced a merged PDF.
func (s RunSummary) Succeeded() int {
	n := 0
	for _, r := range s.Results {
		if r.Merged() {
			n++
		}
	}
	return n
}

// Failed returns the number of subjects whose pipeline failed.
func (s RunSummary) Failed() int {
	n := 0
	for _, r := range s.Results {
		if r.Status == SubjectFailed {
			n++
		}
	}
	return n
}
