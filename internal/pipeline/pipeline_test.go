// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pdiddy/paperfetch/internal/convert"
	"github.com/pdiddy/paperfetch/internal/download"
	"github.com/pdiddy/paperfetch/internal/merge"
	"github.com/pdiddy/paperfetch/internal/pdftest"
	"github.com/pdiddy/paperfetch/internal/search"
	"github.com/pdiddy/paperfetch/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const searchURL = "https://exams.example.edu/search"

// fakePage records navigation and close calls.
type fakePage struct {
	navErr    error
	navigated []string
	closed    bool
}

func (p *fakePage) Frame(context.Context, string, time.Duration) (search.Frame, error) {
	return nil, errors.New("fake page has no frames")
}

func (p *fakePage) NewTab(context.Context) (download.Tab, error) {
	return nil, errors.New("fake page has no tabs")
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.navigated = append(p.navigated, url)
	return p.navErr
}

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

type fakeBrowser struct {
	pages   []*fakePage
	navErr  error
	openErr error
}

func (b *fakeBrowser) NewPage(context.Context) (Page, error) {
	if b.openErr != nil {
		return nil, b.openErr
	}
	p := &fakePage{navErr: b.navErr}
	b.pages = append(b.pages, p)
	return p, nil
}

// fakeNavigator returns canned links per subject code.
type fakeNavigator struct {
	links    map[string][]string
	errs     map[string]error
	firstRun []bool
}

func (n *fakeNavigator) Search(_ context.Context, _ search.Page, subj types.Subject, firstRun bool) ([]types.CandidateLink, error) {
	n.firstRun = append(n.firstRun, firstRun)
	if err := n.errs[subj.Code]; err != nil {
		return nil, err
	}
	var out []types.CandidateLink
	for _, u := range n.links[subj.Code] {
		out = append(out, types.CandidateLink{URL: u})
	}
	return out, nil
}

// fakeDownloader writes a one-page PDF named after the URL's last path
// element, unless the URL is listed as missing or failing.
type fakeDownloader struct {
	missing map[string]bool
	errs    map[string]error
	urls    []string
}

func (d *fakeDownloader) Download(_ context.Context, _ download.TabOpener, url, dir string) (bool, error) {
	d.urls = append(d.urls, url)
	if err := d.errs[url]; err != nil {
		return false, err
	}
	if d.missing[url] {
		return false, nil
	}
	if err := os.WriteFile(filepath.Join(dir, path.Base(url)), pdftest.Bytes(100), 0o644); err != nil {
		return false, err
	}
	return true, nil
}

type fakeConverter struct {
	dirs []string
}

func (c *fakeConverter) ConvertDir(_ context.Context, dir string) (convert.Result, error) {
	c.dirs = append(c.dirs, dir)
	return convert.Result{Failed: []convert.FailedFile{{Name: "slides.pptx", Err: errors.New("exit status 1")}}}, nil
}

var (
	subjA = types.Subject{Code: "COMP1511", Name: "Programming Fundamentals"}
	subjB = types.Subject{Code: "MATH1131", Name: "Mathematics 1A"}
)

type harness struct {
	browser *fakeBrowser
	nav     *fakeNavigator
	dl      *fakeDownloader
	out     bytes.Buffer
	dir     string
	orch    *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		browser: &fakeBrowser{},
		nav: &fakeNavigator{links: map[string][]string{
			subjA.Code: {"https://exams.example.edu/dl/2023_comp.pdf", "https://exams.example.edu/dl/2024_comp.pdf"},
			subjB.Code: {"https://exams.example.edu/dl/2022_math.pdf", "https://exams.example.edu/dl/2024_math.pdf"},
		}},
		dl:  &fakeDownloader{},
		dir: t.TempDir(),
	}
	h.build(t, nil)
	return h
}

func (h *harness) build(t *testing.T, conv Converter) {
	t.Helper()
	h.out.Reset()
	c := Components{
		Browser:    h.browser,
		Navigator:  h.nav,
		Downloader: h.dl,
		Merger:     merge.NewEngine(merge.NewPDFCPU(), &h.out, nil),
	}
	if conv != nil {
		c.Converter = conv
	}
	orch, err := New(c, Config{SearchURL: searchURL, OutputDir: h.dir}, &h.out, nil)
	require.NoError(t, err)
	h.orch = orch
}

func (h *harness) assertNoStaging(t *testing.T, subjects ...types.Subject) {
	t.Helper()
	for _, s := range subjects {
		assert.NoDirExists(t, filepath.Join(h.dir, s.SafeName()))
	}
}

func TestRun_TwoSubjectsProduceTwoMergedPDFs(t *testing.T) {
	h := newHarness(t)

	summary, err := h.orch.Run(context.Background(), []types.Subject{subjA, subjB})
	require.NoError(t, err)
	require.Len(t, summary.Results, 2)
	assert.Equal(t, 2, summary.Succeeded())
	assert.Equal(t, 0, summary.Failed())

	for i, s := range []types.Subject{subjA, subjB} {
		r := summary.Results[i]
		assert.Equal(t, types.SubjectDone, r.Status)
		assert.Equal(t, 2, r.LinksFound)
		assert.Equal(t, 2, r.Downloaded)
		assert.Equal(t, 2, r.MergedPages)
		assert.Equal(t, filepath.Join(h.dir, s.Name+".pdf"), r.MergedPath)
		assert.FileExists(t, r.MergedPath)
	}
	h.assertNoStaging(t, subjA, subjB)

	assert.Equal(t, 2, strings.Count(h.out.String(), "downloaded 2/2"))
	assert.Contains(t, h.out.String(), "Batch summary: 2 merged, 0 without output, 0 failed (total: 2)")

	require.Len(t, h.browser.pages, 2, "one fresh page per subject")
	for _, p := range h.browser.pages {
		assert.True(t, p.closed)
		assert.Equal(t, []string{searchURL}, p.navigated)
	}
	assert.Equal(t, []bool{true, false}, h.nav.firstRun, "only the first search warms up")
}

func TestRun_StructuralFailureDoesNotBlockNextSubject(t *testing.T) {
	h := newHarness(t)
	h.nav.errs = map[string]error{
		subjA.Code: &search.FrameNotFoundError{Frame: "search", Err: errors.New("context deadline exceeded")},
	}

	summary, err := h.orch.Run(context.Background(), []types.Subject{subjA, subjB})
	require.NoError(t, err)

	a, b := summary.Results[0], summary.Results[1]
	assert.Equal(t, types.SubjectFailed, a.Status)
	assert.Equal(t, types.FailureStructural, a.Failure)
	assert.Equal(t, string(StateSearchNavigated), a.State)
	assert.Empty(t, a.MergedPath)
	assert.Equal(t, types.SubjectDone, b.Status)
	assert.FileExists(t, b.MergedPath)

	h.assertNoStaging(t, subjA, subjB)
	assert.True(t, h.browser.pages[0].closed)
	assert.Contains(t, h.out.String(), "failed:  COMP1511 (structural:")
	assert.Equal(t, []bool{true, false}, h.nav.firstRun, "only the first search warms up, even when it fails")
}

func TestRun_WarmUpFlagIsNotReappliedAfterLaterSuccess(t *testing.T) {
	h := newHarness(t)
	h.nav.errs = map[string]error{subjB.Code: &search.SelectorError{Selector: "tr[bgcolor]"}}

	subjC := types.Subject{Code: "PHYS1121", Name: "Physics 1A"}
	_, err := h.orch.Run(context.Background(), []types.Subject{subjA, subjB, subjC})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, false}, h.nav.firstRun)
}

func TestRun_UnsafeSubjectNamesNeverLeaveOutputDir(t *testing.T) {
	h := newHarness(t)
	root := h.dir
	h.dir = filepath.Join(root, "out")
	require.NoError(t, os.MkdirAll(h.dir, 0o755))
	h.build(t, nil)

	sentinel := filepath.Join(root, "my-thesis.docx")
	require.NoError(t, os.WriteFile(sentinel, []byte("keep"), 0o644))

	dot := types.Subject{Code: ".", Name: "."}
	dotDot := types.Subject{Code: "..", Name: "."}
	traversing := types.Subject{Code: "a/../..", Name: "."}

	summary, err := h.orch.Run(context.Background(), []types.Subject{subjA, dotDot, dot, traversing})
	require.NoError(t, err)
	require.Len(t, summary.Results, 4)

	assert.Equal(t, types.SubjectDone, summary.Results[0].Status)
	for _, r := range summary.Results[1:3] {
		assert.Equal(t, types.SubjectFailed, r.Status, r.Subject.String())
		assert.Equal(t, types.FailureIO, r.Failure, r.Subject.String())
		assert.Contains(t, r.Error, "no usable directory name")
	}
	assert.Equal(t, types.SubjectDone, summary.Results[3].Status)

	assert.FileExists(t, sentinel)
	assert.FileExists(t, summary.Results[0].MergedPath, "earlier subject output survives")
	assert.DirExists(t, h.dir)
	assert.NoDirExists(t, filepath.Join(h.dir, "a-..-.."))
	assert.Len(t, h.browser.pages, 2, "rejected subjects never open a page")
}

func TestRun_MissingDownloadIsCountedAndSubjectContinues(t *testing.T) {
	h := newHarness(t)
	h.dl.missing = map[string]bool{"https://exams.example.edu/dl/2023_comp.pdf": true}

	summary, err := h.orch.Run(context.Background(), []types.Subject{subjA})
	require.NoError(t, err)

	r := summary.Results[0]
	assert.Equal(t, types.SubjectDone, r.Status)
	assert.Equal(t, 1, r.Downloaded)
	assert.Equal(t, 1, r.DownloadsFailed)
	assert.Equal(t, 1, r.MergedPages)
	assert.Contains(t, h.out.String(), "downloaded 1/2")
	assert.Contains(t, h.out.String(), "failed:  https://exams.example.edu/dl/2023_comp.pdf (no PDF observed)")
	h.assertNoStaging(t, subjA)
}

func TestRun_NavigationErrorFailsSubject(t *testing.T) {
	h := newHarness(t)
	first := "https://exams.example.edu/dl/2023_comp.pdf"
	h.dl.errs = map[string]error{first: &download.NavigationError{URL: first, Err: errors.New("net::ERR_CONNECTION_RESET")}}

	summary, err := h.orch.Run(context.Background(), []types.Subject{subjA, subjB})
	require.NoError(t, err)

	a := summary.Results[0]
	assert.Equal(t, types.SubjectFailed, a.Status)
	assert.Equal(t, types.FailureNavigation, a.Failure)
	assert.Equal(t, string(StateDownloading), a.State)
	assert.NotContains(t, h.dl.urls, "https://exams.example.edu/dl/2024_comp.pdf")
	assert.Equal(t, types.SubjectDone, summary.Results[1].Status)
	h.assertNoStaging(t, subjA, subjB)
}

func TestRun_SearchPageNavigationFailure(t *testing.T) {
	h := newHarness(t)
	h.browser.navErr = errors.New("net::ERR_NAME_NOT_RESOLVED")

	summary, err := h.orch.Run(context.Background(), []types.Subject{subjA})
	require.NoError(t, err)

	r := summary.Results[0]
	assert.Equal(t, types.FailureNavigation, r.Failure)
	assert.Equal(t, string(StateInit), r.State)
	assert.Empty(t, h.nav.firstRun)
	assert.True(t, h.browser.pages[0].closed)
	h.assertNoStaging(t, subjA)
}

func TestRun_PageOpenFailure(t *testing.T) {
	h := newHarness(t)
	h.browser.openErr = errors.New("browser disconnected")

	summary, err := h.orch.Run(context.Background(), []types.Subject{subjA, subjB})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Failed())
	assert.Equal(t, types.FailureOther, summary.Results[0].Failure)
	h.assertNoStaging(t, subjA, subjB)
}

func TestRun_NoLinksProducesNoOutput(t *testing.T) {
	h := newHarness(t)
	h.nav.links = nil

	summary, err := h.orch.Run(context.Background(), []types.Subject{subjA})
	require.NoError(t, err)

	r := summary.Results[0]
	assert.Equal(t, types.SubjectDone, r.Status)
	assert.False(t, r.Merged())
	assert.NoFileExists(t, filepath.Join(h.dir, subjA.Name+".pdf"))
	assert.Contains(t, h.out.String(), "downloaded 0/0")
	assert.Contains(t, h.out.String(), "Batch summary: 0 merged, 1 without output, 0 failed (total: 1)")
	h.assertNoStaging(t, subjA)
}

func TestRun_CorruptDownloadIsSkippedInMerge(t *testing.T) {
	h := newHarness(t)
	h.dl.errs = nil
	h.nav.links = map[string][]string{subjA.Code: {"https://exams.example.edu/dl/2024_comp.pdf"}}

	// Pre-existing staging content is reused, and removed with the rest.
	staging := h.orch.StagingDir(subjA)
	require.NoError(t, os.MkdirAll(staging, 0o755))
	pdftest.WriteCorrupt(t, filepath.Join(staging, "2020_bad.pdf"))

	summary, err := h.orch.Run(context.Background(), []types.Subject{subjA})
	require.NoError(t, err)

	r := summary.Results[0]
	assert.Equal(t, types.SubjectDone, r.Status)
	assert.Equal(t, []string{"2020_bad.pdf"}, r.Skipped)
	assert.Equal(t, 1, r.MergedPages)
	h.assertNoStaging(t, subjA)
}

func TestRun_ConverterRunsBeforeMerge(t *testing.T) {
	h := newHarness(t)
	conv := &fakeConverter{}
	h.build(t, conv)

	_, err := h.orch.Run(context.Background(), []types.Subject{subjA})
	require.NoError(t, err)
	assert.Equal(t, []string{h.orch.StagingDir(subjA)}, conv.dirs)
	assert.Contains(t, h.out.String(), "failed:  slides.pptx (conversion: exit status 1)")
}

func TestRun_CancelledContext(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := h.orch.Run(ctx, []types.Subject{subjA, subjB})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, summary.Results)
	assert.Empty(t, h.browser.pages)
}

func TestNew_Validation(t *testing.T) {
	full := Components{
		Browser:    &fakeBrowser{},
		Navigator:  &fakeNavigator{},
		Downloader: &fakeDownloader{},
		Merger:     merge.NewEngine(merge.NewPDFCPU(), nil, nil),
	}
	tests := []struct {
		name    string
		mutate  func(*Components, *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Components, *Config) {}},
		{name: "no browser", mutate: func(c *Components, _ *Config) { c.Browser = nil }, wantErr: "browser"},
		{name: "no navigator", mutate: func(c *Components, _ *Config) { c.Navigator = nil }, wantErr: "navigator"},
		{name: "no downloader", mutate: func(c *Components, _ *Config) { c.Downloader = nil }, wantErr: "downloader"},
		{name: "no merger", mutate: func(c *Components, _ *Config) { c.Merger = nil }, wantErr: "merger"},
		{name: "no search URL", mutate: func(_ *Components, cfg *Config) { cfg.SearchURL = "" }, wantErr: "search URL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := full
			cfg := Config{SearchURL: searchURL}
			tt.mutate(&c, &cfg)
			o, err := New(c, cfg, nil, nil)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, filepath.Join(".", "X.pdf"), o.OutputPath(types.Subject{Code: "X"}))
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want types.FailureKind
	}{
		{"frame", &search.FrameNotFoundError{Frame: "results"}, types.FailureStructural},
		{"selector", &search.SelectorError{Selector: "tr[bgcolor]"}, types.FailureStructural},
		{"navigation", &download.NavigationError{URL: "u", Err: errors.New("x")}, types.FailureNavigation},
		{"path", &os.PathError{Op: "mkdir", Path: "/x", Err: os.ErrPermission}, types.FailureIO},
		{"subject error", &SubjectError{Kind: types.FailureMerge, Err: errors.New("x")}, types.FailureMerge},
		{"other", errors.New("boom"), types.FailureOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}

func TestRun_AssignsRunID(t *testing.T) {
	h := newHarness(t)
	first, err := h.orch.Run(context.Background(), nil)
	require.NoError(t, err)
	second, err := h.orch.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Len(t, first.RunID, 36)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Empty(t, first.Results)
}
