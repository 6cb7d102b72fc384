// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package download causes a PDF download in a dedicated browser tab and
// reports whether a file materialized in the target directory.
package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/paperfetch/internal/poll"
)

// Tab is a browser tab dedicated to one download attempt.
type Tab interface {
	// AllowDownloads saves downloads into dir without prompting.
	AllowDownloads(dir string) error
	Navigate(ctx context.Context, url string) error
	Close() error
}

// TabOpener opens a new tab in an existing browser session.
type TabOpener interface {
	NewTab(ctx context.Context) (Tab, error)
}

// NavigationError is an unexpected navigation failure. Navigation aborts
// caused by the URL turning into a download are not NavigationErrors.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigating to %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// DefaultExpectedAborts are navigation error fragments produced when a
// direct-download URL replaces the page load with a file download.
var DefaultExpectedAborts = []string{"net::ERR_ABORTED"}

// Config holds detector settings.
type Config struct {
	// ExpectedAborts are error message fragments that mark a navigation
	// error as the normal result of a download. Defaults to
	// DefaultExpectedAborts.
	ExpectedAborts []string

	// PaceDelay is slept after every attempt, successful or not.
	PaceDelay time.Duration

	// Retries is the number of extra attempts after ErrDownloadTimeout.
	Retries int
}

// Detector drives one download at a time through a Sink.
type Detector struct {
	sink   Sink
	cfg    Config
	logger *zap.Logger
}

// NewDetector returns a Detector that observes downloads through sink.
func NewDetector(sink Sink, cfg Config, logger *zap.Logger) *Detector {
	if len(cfg.ExpectedAborts) == 0 {
		cfg.ExpectedAborts = DefaultExpectedAborts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{sink: sink, cfg: cfg, logger: logger}
}

// Download opens a tab from opener, navigates it to url, and reports
// whether a new PDF appeared in dir. A download that never completes is
// reported as false with a nil error. Errors are returned only for an
// invalid url or dir, a browser that cannot open or configure a tab, an
// unexpected NavigationError, or a cancelled ctx.
func (d *Detector) Download(ctx context.Context, opener TabOpener, url, dir string) (bool, error) {
	if strings.TrimSpace(url) == "" {
		return false, errors.New("download: empty URL")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return false, fmt.Errorf("download: target directory: %w", err)
	}
	if !info.IsDir() {
		return false, fmt.Errorf("download: %s is not a directory", dir)
	}

	for attempt := 0; attempt <= d.cfg.Retries; attempt++ {
		path, err := d.attempt(ctx, opener, url, dir)
		paceErr := poll.Sleep(ctx, d.cfg.PaceDelay)

		switch {
		case err == nil:
			d.logger.Debug("download completed", zap.String("url", url), zap.String("file", path))
			return true, nil
		case errors.Is(err, ErrDownloadTimeout):
			d.logger.Info("download not observed",
				zap.String("url", url),
				zap.Int("attempt", attempt+1),
				zap.Int("attempts", d.cfg.Retries+1))
			if paceErr != nil {
				return false, paceErr
			}
		case errors.Is(err, ErrNotPDF):
			return false, nil
		default:
			return false, err
		}
	}
	return false, nil
}

func (d *Detector) attempt(ctx context.Context, opener TabOpener, url, dir string) (string, error) {
	tab, err := opener.NewTab(ctx)
	if err != nil {
		return "", fmt.Errorf("opening download tab: %w", err)
	}
	defer func() {
		if err := tab.Close(); err != nil {
			d.logger.Warn("closing download tab", zap.Error(err))
		}
	}()

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", dir, err)
	}
	if err := tab.AllowDownloads(abs); err != nil {
		return "", fmt.Errorf("configuring downloads: %w", err)
	}

	pending, err := d.sink.Arm(ctx, abs)
	if err != nil {
		return "", err
	}
	defer pending.Close()

	if err := tab.Navigate(ctx, url); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !d.expectedAbort(err) {
			return "", &NavigationError{URL: url, Err: err}
		}
		d.logger.Debug("navigation aborted by download", zap.String("url", url))
	}

	return pending.Wait()
}

func (d *Detector) expectedAbort(err error) bool {
	msg := err.Error()
	for _, frag := range d.cfg.ExpectedAborts {
		if frag != "" && strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}
