// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search drives the two-frame search interface: it submits a
// subject's module code in the search frame and reads candidate download
// links back from the results frame.
package search

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/paperfetch/internal/poll"
	"github.com/pdiddy/paperfetch/pkg/types"
)

// Frame is a named sub-frame of the hosting page.
type Frame interface {
	// Input types text into the element matched by selector.
	Input(ctx context.Context, selector, text string) error
	Click(ctx context.Context, selector string) error

	// HTML returns the frame's current document markup.
	HTML(ctx context.Context) (string, error)

	// URL returns the frame's current document URL.
	URL(ctx context.Context) (string, error)
}

// Page is a browser page hosting named frames.
type Page interface {
	// Frame returns the frame called name, waiting up to wait for it.
	Frame(ctx context.Context, name string, wait time.Duration) (Frame, error)
}

// FrameNotFoundError means a required named frame was absent.
type FrameNotFoundError struct {
	Frame string
	Err   error
}

func (e *FrameNotFoundError) Error() string {
	return fmt.Sprintf("frame %q not found: %v", e.Frame, e.Err)
}

func (e *FrameNotFoundError) Unwrap() error { return e.Err }

// SelectorError means a required element was absent or unusable.
type SelectorError struct {
	Selector string
	Err      error
}

func (e *SelectorError) Error() string {
	return fmt.Sprintf("element %q: %v", e.Selector, e.Err)
}

func (e *SelectorError) Unwrap() error { return e.Err }

// IsStructural reports whether err is a missing frame or element.
func IsStructural(err error) bool {
	var fe *FrameNotFoundError
	var se *SelectorError
	return errors.As(err, &fe) || errors.As(err, &se)
}

// Navigator runs searches against the configured frames and selectors.
type Navigator struct {
	sel     types.SelectorConfig
	timing  types.TimingConfig
	pattern *regexp.Regexp
	logger  *zap.Logger
}

// NewNavigator compiles the link pattern and returns a Navigator.
func NewNavigator(sel types.SelectorConfig, timing types.TimingConfig, logger *zap.Logger) (*Navigator, error) {
	pattern, err := regexp.Compile(sel.LinkPattern)
	if err != nil {
		return nil, fmt.Errorf("compiling link pattern %q: %w", sel.LinkPattern, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Navigator{sel: sel, timing: timing, pattern: pattern, logger: logger}, nil
}

// Search submits subj.Code and returns the candidate links in result
// order. firstRun selects the longer warm-up settle interval.
func (n *Navigator) Search(ctx context.Context, page Page, subj types.Subject, firstRun bool) ([]types.CandidateLink, error) {
	searchFrame, err := n.frame(ctx, page, n.sel.SearchFrame)
	if err != nil {
		return nil, err
	}
	if _, err := n.frame(ctx, page, n.sel.ResultsFrame); err != nil {
		return nil, err
	}

	if err := searchFrame.Input(ctx, n.sel.QueryInput, subj.Code); err != nil {
		return nil, n.selectorErr(ctx, n.sel.QueryInput, err)
	}
	if err := searchFrame.Click(ctx, n.sel.Submit); err != nil {
		return nil, n.selectorErr(ctx, n.sel.Submit, err)
	}

	// The results frame gives no completion signal; wait a fixed interval.
	settle := n.timing.Settle
	if firstRun {
		settle = n.timing.WarmupSettle
	}
	n.logger.Debug("waiting for results",
		zap.String("code", subj.Code),
		zap.Duration("settle", settle),
		zap.Bool("warmup", firstRun))
	if err := poll.Sleep(ctx, settle); err != nil {
		return nil, err
	}

	// Re-resolve the results frame: its document was replaced by the search.
	results, err := n.frame(ctx, page, n.sel.ResultsFrame)
	if err != nil {
		return nil, err
	}
	html, err := results.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading results frame: %w", err)
	}
	base, err := results.URL(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading results frame URL: %w", err)
	}

	links, err := ExtractLinks(html, base, n.sel.ResultRow, n.sel.RowLink, n.pattern)
	if err != nil {
		return nil, err
	}
	n.logger.Info("search complete", zap.String("code", subj.Code), zap.Int("links", len(links)))
	return links, nil
}

func (n *Navigator) frame(ctx context.Context, page Page, name string) (Frame, error) {
	f, err := page.Frame(ctx, name, n.timing.FrameWait)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &FrameNotFoundError{Frame: name, Err: err}
	}
	return f, nil
}

func (n *Navigator) selectorErr(ctx context.Context, selector string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &SelectorError{Selector: selector, Err: err}
}
