// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline runs the per-subject fetch pipeline: search, download
// each candidate link into a staging directory, merge the staged PDFs into
// one document, and remove the staging directory. Subjects are processed
// strictly in order over one shared browser; a failure in one subject is
// recorded and the run moves on to the next.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/paperfetch/internal/convert"
	"github.com/pdiddy/paperfetch/internal/download"
	"github.com/pdiddy/paperfetch/internal/merge"
	"github.com/pdiddy/paperfetch/internal/search"
	"github.com/pdiddy/paperfetch/pkg/types"
)

// State is a step of the per-subject state machine.
type State string

const (
	StateInit            State = "init"
	StateSearchNavigated State = "search_navigated"
	StateLinksExtracted  State = "links_extracted"
	StateDownloading     State = "downloading"
	StateMerging         State = "merging"
	StateCleanup         State = "cleanup"
	StateDone            State = "done"
	StateFailed          State = "failed"
)

// Page is one subject's browser page.
type Page interface {
	search.Page
	download.TabOpener
	Navigate(ctx context.Context, url string) error
	Close() error
}

// Browser is the shared browser that hands out one fresh page per subject.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
}

// Navigator runs a subject search on a page and returns candidate links.
type Navigator interface {
	Search(ctx context.Context, page search.Page, subj types.Subject, firstRun bool) ([]types.CandidateLink, error)
}

// Downloader materializes one link as a PDF in dir.
type Downloader interface {
	Download(ctx context.Context, opener download.TabOpener, url, dir string) (bool, error)
}

// Merger consolidates the PDFs in a directory.
type Merger interface {
	MergeDir(srcDir, outPath string) (merge.Result, error)
}

// Converter turns non-PDF documents in a directory into PDFs.
type Converter interface {
	ConvertDir(ctx context.Context, dir string) (convert.Result, error)
}

// Components are the collaborators an Orchestrator drives. Converter is
// optional.
type Components struct {
	Browser    Browser
	Navigator  Navigator
	Downloader Downloader
	Merger     Merger
	Converter  Converter
}

// Config holds run settings.
type Config struct {
	// SearchURL is loaded into each subject's page before searching.
	SearchURL string

	// OutputDir receives the staging directories and merged PDFs.
	OutputDir string
}

// SubjectError is a subject-level failure and the state it occurred in.
type SubjectError struct {
	State State
	Kind  types.FailureKind
	Err   error
}

func (e *SubjectError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.State, e.Kind, e.Err)
}

func (e *SubjectError) Unwrap() error { return e.Err }

// Orchestrator runs subjects one at a time over a shared browser.
type Orchestrator struct {
	c      Components
	cfg    Config
	w      io.Writer
	logger *zap.Logger
	now    func() time.Time

	// warmedUp is set once, when the first search starts, so only that
	// search waits out the site's first-load delay.
	warmedUp bool
}

// New returns an Orchestrator. Progress lines go to w.
func New(c Components, cfg Config, w io.Writer, logger *zap.Logger) (*Orchestrator, error) {
	switch {
	case c.Browser == nil:
		return nil, errors.New("pipeline: browser is required")
	case c.Navigator == nil:
		return nil, errors.New("pipeline: navigator is required")
	case c.Downloader == nil:
		return nil, errors.New("pipeline: downloader is required")
	case c.Merger == nil:
		return nil, errors.New("pipeline: merger is required")
	}
	if cfg.SearchURL == "" {
		return nil, errors.New("pipeline: search URL is required")
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
	if w == nil {
		w = io.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{c: c, cfg: cfg, w: w, logger: logger, now: time.Now}, nil
}

// StagingDir returns the per-subject staging directory.
func (o *Orchestrator) StagingDir(subj types.Subject) string {
	return filepath.Join(o.cfg.OutputDir, subj.SafeName())
}

// stagingDir returns StagingDir, or an error unless it names a directory
// directly inside OutputDir. The staging directory is removed recursively,
// so it must never resolve to OutputDir or anything above it.
func (o *Orchestrator) stagingDir(subj types.Subject) (string, error) {
	out := filepath.Clean(o.cfg.OutputDir)
	dir := o.StagingDir(subj)
	if subj.SafeName() == "" || filepath.Dir(dir) != out || dir == out {
		return "", fmt.Errorf("subject %q has no usable directory name under %s", subj.String(), out)
	}
	return dir, nil
}

// OutputPath returns the merged PDF path for subj.
func (o *Orchestrator) OutputPath(subj types.Subject) string {
	return filepath.Join(o.cfg.OutputDir, subj.SafeName()+".pdf")
}

// Run processes subjects in order and returns one result per subject
// attempted. Subject failures are recorded in the summary and never
// returned. The only error is ctx cancellation, in which case the summary
// covers the subjects reached so far.
func (o *Orchestrator) Run(ctx context.Context, subjects []types.Subject) (types.RunSummary, error) {
	summary := types.RunSummary{
		RunID:     uuid.New().String(),
		StartedAt: o.now(),
	}
	o.logger.Info("run started", zap.String("run_id", summary.RunID), zap.Int("subjects", len(subjects)))

	var runErr error
	for _, subj := range subjects {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		summary.Results = append(summary.Results, o.RunSubject(ctx, subj))
	}
	summary.FinishedAt = o.now()

	merged := summary.Succeeded()
	failed := summary.Failed()
	fmt.Fprintf(o.w, "\nBatch summary: %d merged, %d without output, %d failed (total: %d)\n",
		merged, len(summary.Results)-merged-failed, failed, len(summary.Results))
	o.logger.Info("run finished",
		zap.String("run_id", summary.RunID),
		zap.Int("merged", merged),
		zap.Int("failed", failed),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)))
	return summary, runErr
}

// RunSubject drives one subject from Init to Done or Failed. The page is
// always closed and the staging directory is always removed before it
// returns.
func (o *Orchestrator) RunSubject(ctx context.Context, subj types.Subject) types.SubjectResult {
	res := types.SubjectResult{Subject: subj, StartedAt: o.now()}
	log := o.logger.With(zap.String("code", subj.Code), zap.String("subject", subj.Name))
	fmt.Fprintf(o.w, "subject: %s (%s)\n", subj.Code, subj.Name)

	err := o.runSubject(ctx, subj, &res, log)
	res.FinishedAt = o.now()

	if err != nil {
		var se *SubjectError
		if !errors.As(err, &se) {
			se = &SubjectError{State: State(res.State), Kind: classify(err), Err: err}
		}
		res.Status = types.SubjectFailed
		res.Failure = se.Kind
		res.Error = se.Err.Error()
		fmt.Fprintf(o.w, "failed:  %s (%s: %v)\n", subj.Code, se.Kind, se.Err)
		log.Error("subject failed",
			zap.String("state", string(se.State)),
			zap.String("kind", string(se.Kind)),
			zap.Error(se.Err))
		return res
	}

	res.Status = types.SubjectDone
	log.Info("subject done",
		zap.Int("links", res.LinksFound),
		zap.Int("downloaded", res.Downloaded),
		zap.String("file", res.MergedPath))
	return res
}

func (o *Orchestrator) runSubject(ctx context.Context, subj types.Subject, res *types.SubjectResult, log *zap.Logger) (err error) {
	state := StateInit
	enter := func(s State) {
		state = s
		res.State = string(s)
		log.Debug("state", zap.String("state", string(s)))
	}
	fail := func(kind types.FailureKind, err error) error {
		return &SubjectError{State: state, Kind: kind, Err: err}
	}
	enter(StateInit)

	staging, err := o.stagingDir(subj)
	if err != nil {
		return fail(types.FailureIO, err)
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return fail(types.FailureIO, fmt.Errorf("creating staging directory: %w", err))
	}
	defer func() {
		if rmErr := os.RemoveAll(staging); rmErr != nil {
			log.Warn("removing staging directory", zap.String("dir", staging), zap.Error(rmErr))
			if err == nil {
				err = &SubjectError{State: StateCleanup, Kind: types.FailureIO,
					Err: fmt.Errorf("removing staging directory: %w", rmErr)}
			}
		}
	}()

	page, err := o.c.Browser.NewPage(ctx)
	if err != nil {
		return fail(classify(err), fmt.Errorf("opening page: %w", err))
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			log.Warn("closing page", zap.Error(cerr))
		}
	}()

	if err := page.Navigate(ctx, o.cfg.SearchURL); err != nil {
		kind := classify(err)
		if kind == types.FailureOther && ctx.Err() == nil {
			kind = types.FailureNavigation
		}
		return fail(kind, err)
	}
	enter(StateSearchNavigated)

	firstRun := !o.warmedUp
	if !o.warmedUp {
		o.warmedUp = true
	}
	links, err := o.c.Navigator.Search(ctx, page, subj, firstRun)
	if err != nil {
		return fail(classify(err), err)
	}
	res.LinksFound = len(links)
	enter(StateLinksExtracted)
	fmt.Fprintf(o.w, "  found %d links\n", len(links))

	enter(StateDownloading)
	for _, link := range links {
		fmt.Fprintf(o.w, "  downloading: %s\n", link.URL)
		ok, err := o.c.Downloader.Download(ctx, page, link.URL, staging)
		if err != nil {
			return fail(classify(err), err)
		}
		if ok {
			res.Downloaded++
			continue
		}
		res.DownloadsFailed++
		fmt.Fprintf(o.w, "  failed:  %s (no PDF observed)\n", link.URL)
	}
	fmt.Fprintf(o.w, "  downloaded %d/%d\n", res.Downloaded, len(links))

	enter(StateMerging)
	if o.c.Converter != nil {
		conv, err := o.c.Converter.ConvertDir(ctx, staging)
		if err != nil {
			return fail(classify(err), err)
		}
		for _, f := range conv.Failed {
			fmt.Fprintf(o.w, "  failed:  %s (conversion: %v)\n", f.Name, f.Err)
		}
	}

	merged, err := o.c.Merger.MergeDir(staging, o.OutputPath(subj))
	for _, s := range merged.Skipped {
		res.Skipped = append(res.Skipped, s.Name)
	}
	if err != nil {
		return fail(types.FailureMerge, err)
	}
	res.MergedPath = merged.Output
	res.MergedPages = merged.Pages

	enter(StateCleanup)
	return nil
}

// classify maps an error to the failure kind recorded for its subject.
func classify(err error) types.FailureKind {
	var se *SubjectError
	var navErr *download.NavigationError
	var pathErr *fs.PathError
	var linkErr *os.LinkError
	switch {
	case errors.As(err, &se):
		return se.Kind
	case search.IsStructural(err):
		return types.FailureStructural
	case errors.As(err, &navErr):
		return types.FailureNavigation
	case errors.As(err, &pathErr), errors.As(err, &linkErr):
		return types.FailureIO
	default:
		return types.FailureOther
	}
}
