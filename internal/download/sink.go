// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/paperfetch/internal/poll"
)

// ErrDownloadTimeout means no completed download was observed within the
// wait window. It is retryable.
var ErrDownloadTimeout = errors.New("download: no completed PDF observed before timeout")

// ErrNotPDF means a download completed but its type is not accepted by
// the sink. It is not retried.
var ErrNotPDF = errors.New("download: completed file is not a PDF")

// DefaultSuffixes are the file types a sink accepts when none are given.
var DefaultSuffixes = []string{".pdf"}

// PartialSuffixes mark a download the browser is still writing.
var PartialSuffixes = []string{".crdownload", ".part", ".download"}

// HasSuffix reports whether name ends in one of suffixes, ignoring case.
// An empty suffixes means DefaultSuffixes.
func HasSuffix(name string, suffixes []string) bool {
	if len(suffixes) == 0 {
		suffixes = DefaultSuffixes
	}
	ext := filepath.Ext(name)
	for _, s := range suffixes {
		if strings.EqualFold(ext, s) {
			return true
		}
	}
	return false
}

// Sink observes a download side effect. Arm is called before the
// triggering navigation; the returned Pending's Wait reports the completed
// file's path, or ErrDownloadTimeout.
type Sink interface {
	Arm(ctx context.Context, dir string) (Pending, error)
}

// Pending is one armed download observation. Close releases any resources
// held while waiting and is safe to call after Wait.
type Pending interface {
	Wait() (string, error)
	Close()
}

// DirectorySink detects a download by re-listing the target directory for
// a PDF name that was not present when the sink was armed. Browsers keep
// an in-progress download under a temporary suffix, so a .pdf name only
// appears once the file is complete.
//
// When the wait window closes while a partial file that appeared after
// Arm is still present, the sink waits one more window for it to finish.
// A file that completes in that window is the attempt's result. A partial
// that is still unfinished is removed, so a retry never picks up a late
// file from the attempt before it.
type DirectorySink struct {
	Poll poll.Options

	// Suffixes are the accepted file types; empty means DefaultSuffixes.
	Suffixes []string
}

// NewDirectorySink returns a DirectorySink that polls with opts and
// accepts files ending in suffixes.
func NewDirectorySink(opts poll.Options, suffixes ...string) *DirectorySink {
	return &DirectorySink{Poll: opts, Suffixes: suffixes}
}

// Arm snapshots the accepted and partial files currently in dir.
func (s *DirectorySink) Arm(ctx context.Context, dir string) (Pending, error) {
	names, err := listNames(dir, s.Suffixes)
	if err != nil {
		return nil, err
	}
	partials, err := listNames(dir, PartialSuffixes)
	if err != nil {
		return nil, err
	}
	return &dirPending{
		ctx:            ctx,
		dir:            dir,
		before:         nameSet(names),
		beforePartials: nameSet(partials),
		opts:           s.Poll,
		suffixes:       s.Suffixes,
	}, nil
}

type dirPending struct {
	ctx            context.Context
	dir            string
	before         map[string]bool
	beforePartials map[string]bool
	opts           poll.Options
	suffixes       []string
}

func (p *dirPending) Wait() (string, error) {
	found, err := p.waitNew()
	if !errors.Is(err, ErrDownloadTimeout) {
		return found, err
	}

	partials, err := p.newPartials()
	if err != nil || len(partials) == 0 {
		return "", ErrDownloadTimeout
	}

	// A download is still being written. Give it one more window.
	err = poll.Until(p.ctx, p.opts, func() (bool, error) {
		names, err := p.newAccepted()
		if err != nil || len(names) > 0 {
			return true, err
		}
		partials, err := p.newPartials()
		return len(partials) == 0, err
	})
	if err != nil && !errors.Is(err, poll.ErrTimeout) {
		return "", err
	}
	if names, lerr := p.newAccepted(); lerr == nil && len(names) > 0 {
		return filepath.Join(p.dir, names[0]), nil
	}

	partials, _ = p.newPartials()
	for _, n := range partials {
		os.Remove(filepath.Join(p.dir, n))
	}
	return "", ErrDownloadTimeout
}

func (p *dirPending) waitNew() (string, error) {
	var found string
	err := poll.Until(p.ctx, p.opts, func() (bool, error) {
		names, err := p.newAccepted()
		if err != nil || len(names) == 0 {
			return false, err
		}
		found = names[0]
		return true, nil
	})
	if errors.Is(err, poll.ErrTimeout) {
		return "", ErrDownloadTimeout
	}
	if err != nil {
		return "", err
	}
	return filepath.Join(p.dir, found), nil
}

func (p *dirPending) newAccepted() ([]string, error) {
	return newNames(p.dir, p.suffixes, p.before)
}

func (p *dirPending) newPartials() ([]string, error) {
	return newNames(p.dir, PartialSuffixes, p.beforePartials)
}

func (p *dirPending) Close() {}

func nameSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

func newNames(dir string, suffixes []string, before map[string]bool) ([]string, error) {
	names, err := listNames(dir, suffixes)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, n := range names {
		if !before[n] {
			out = append(out, n)
		}
	}
	return out, nil
}

func listNames(dir string, suffixes []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && HasSuffix(e.Name(), suffixes) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
