//go:build integration

package browser_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paperfetch/internal/browser"
	"github.com/pdiddy/paperfetch/internal/download"
	"github.com/pdiddy/paperfetch/internal/pdftest"
	"github.com/pdiddy/paperfetch/internal/poll"
	"github.com/pdiddy/paperfetch/internal/search"
	"github.com/pdiddy/paperfetch/pkg/types"
)

// newExamSite serves a frameset search interface: the search frame posts
// its form into the results frame, which lists highlighted rows linking to
// attachment downloads.
func newExamSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><frameset rows="30%,70%">
<frame name="search" src="/search">
<frame name="results" src="/blank">
</frameset></html>`)
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><form action="/results" target="results">
<input type="text" name="q"><input type="submit" value="Search">
</form></body></html>`)
	})
	mux.HandleFunc("/blank", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body></body></html>`)
	})
	mux.HandleFunc("/results", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		fmt.Fprintf(w, `<html><body><table>
<tr bgcolor="#EEEEEE"><td><a href="/download/2024_%[1]s.pdf">2024</a></td></tr>
<tr><td><a href="/download/ignored.pdf">plain row</a></td></tr>
<tr bgcolor="#EEEEEE"><td><a href="/download/2023_%[1]s.pdf">2023</a></td></tr>
</table></body></html>`, q)
	})
	mux.HandleFunc("/download/", func(w http.ResponseWriter, r *http.Request) {
		name := filepath.Base(r.URL.Path)
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, name))
		w.Write(pdftest.Bytes(100))
	})
	return httptest.NewServer(mux)
}

func launch(t *testing.T) *browser.Session {
	t.Helper()
	if _, ok := launcher.LookPath(); !ok {
		t.Skip("no Chrome binary available")
	}
	cfg := types.DefaultFetchConfig().Browser
	cfg.Headless = true
	cfg.NavigationTimeout = 20 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s, err := browser.Launch(ctx, cfg, nil)
	require.NoError(t, err, "launching browser")
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Logf("closing browser: %v", err)
		}
	})
	return s
}

func TestSearchAndDownload_Integration(t *testing.T) {
	site := newExamSite(t)
	defer site.Close()
	s := launch(t)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	page, err := s.NewPage(ctx)
	require.NoError(t, err)
	defer page.Close()
	require.NoError(t, page.Navigate(ctx, site.URL))

	cfg := types.DefaultFetchConfig()
	cfg.Timing.FrameWait = 10 * time.Second
	cfg.Timing.Settle = 2 * time.Second
	cfg.Selectors.LinkPattern = `/download/`

	nav, err := search.NewNavigator(cfg.Selectors, cfg.Timing, nil)
	require.NoError(t, err)
	links, err := nav.Search(ctx, page, types.Subject{Code: "COMP1511", Name: "Programming"}, false)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, site.URL+"/download/2024_COMP1511.pdf", links[0].URL)

	sinks := map[string]download.Sink{
		"directory": download.NewDirectorySink(poll.Options{Initial: 100 * time.Millisecond, Timeout: 10 * time.Second}),
		"event":     browser.NewEventSink(s, 10*time.Second),
	}
	for name, sink := range sinks {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			det := download.NewDetector(sink, download.Config{}, nil)
			ok, err := det.Download(ctx, page, links[0].URL, dir)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.FileExists(t, filepath.Join(dir, "2024_COMP1511.pdf"))
		})
	}
}

func TestFrameNotFound_Integration(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>no frames</body></html>`)
	}))
	defer ts.Close()
	s := launch(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	page, err := s.NewPage(ctx)
	require.NoError(t, err)
	defer page.Close()
	require.NoError(t, page.Navigate(ctx, ts.URL))

	cfg := types.DefaultFetchConfig()
	cfg.Timing.FrameWait = 500 * time.Millisecond
	nav, err := search.NewNavigator(cfg.Selectors, cfg.Timing, nil)
	require.NoError(t, err)

	_, err = nav.Search(ctx, page, types.Subject{Code: "X"}, false)
	assert.True(t, search.IsStructural(err), "got %v", err)
}
