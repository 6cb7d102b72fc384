// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/pdiddy/paperfetch/internal/download"
)

// downloadEvents delivers browser download events for downloads saved into
// dir. Listen must subscribe before it returns; the returned wait blocks
// until onProgress returns true or ctx ends.
type downloadEvents interface {
	Listen(ctx context.Context, dir string,
		onBegin func(*proto.BrowserDownloadWillBegin),
		onProgress func(*proto.BrowserDownloadProgress) bool) (wait func(), err error)
}

// rodEvents subscribes to download events on the session's browser.
type rodEvents struct {
	session *Session
}

func (r rodEvents) Listen(ctx context.Context, dir string,
	onBegin func(*proto.BrowserDownloadWillBegin),
	onProgress func(*proto.BrowserDownloadProgress) bool) (func(), error) {
	b := r.session.browser.Context(ctx)
	err := proto.BrowserSetDownloadBehavior{
		Behavior:      proto.BrowserSetDownloadBehaviorBehaviorAllowAndName,
		DownloadPath:  dir,
		EventsEnabled: true,
	}.Call(b)
	if err != nil {
		return nil, fmt.Errorf("enabling download events: %w", err)
	}
	return b.EachEvent(onBegin, onProgress), nil
}

// EventSink detects downloads from the browser's download progress events
// instead of watching the directory. Chrome saves the file under its GUID;
// once the completed event arrives the file is renamed to the suggested
// name.
type EventSink struct {
	events   downloadEvents
	timeout  time.Duration
	suffixes []string
	logger   *zap.Logger
}

// NewEventSink returns a sink that waits up to timeout per download and
// keeps files ending in suffixes (PDF only when none are given).
func NewEventSink(s *Session, timeout time.Duration, suffixes ...string) *EventSink {
	return &EventSink{events: rodEvents{session: s}, timeout: timeout, suffixes: suffixes, logger: s.logger}
}

// Arm enables download events and starts listening before the triggering
// navigation.
func (s *EventSink) Arm(ctx context.Context, dir string) (download.Pending, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.timeout)
	p := &eventPending{parent: ctx, dir: dir, cancel: cancel, suffixes: s.suffixes, logger: s.logger}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}

	wait, err := s.events.Listen(waitCtx, dir, p.onBegin, p.onProgress)
	if err != nil {
		cancel()
		return nil, err
	}
	p.wait = wait
	return p, nil
}

type eventPending struct {
	parent    context.Context
	dir       string
	wait      func()
	cancel    context.CancelFunc
	begin     *proto.BrowserDownloadWillBegin
	completed bool
	suffixes  []string
	logger    *zap.Logger
}

// onBegin remembers the first download; later ones belong to someone else.
func (p *eventPending) onBegin(e *proto.BrowserDownloadWillBegin) {
	if p.begin == nil {
		p.begin = e
	}
}

func (p *eventPending) onProgress(e *proto.BrowserDownloadProgress) bool {
	if p.begin == nil || e.GUID != p.begin.GUID {
		return false
	}
	switch e.State {
	case proto.BrowserDownloadProgressStateCompleted:
		p.completed = true
		return true
	case proto.BrowserDownloadProgressStateCanceled:
		return true
	}
	return false
}

func (p *eventPending) Wait() (string, error) {
	p.wait()
	p.cancel()

	if !p.completed {
		if err := p.parent.Err(); err != nil {
			return "", err
		}
		return "", download.ErrDownloadTimeout
	}

	name := filepath.Base(p.begin.SuggestedFilename)
	if !download.HasSuffix(name, p.suffixes) {
		os.Remove(filepath.Join(p.dir, p.begin.GUID))
		p.logger.Info("download type not accepted", zap.String("url", p.begin.URL), zap.String("file", name))
		return "", download.ErrNotPDF
	}

	dest := uniquePath(p.dir, name)
	if err := os.Rename(filepath.Join(p.dir, p.begin.GUID), dest); err != nil {
		return "", fmt.Errorf("renaming completed download: %w", err)
	}
	return dest, nil
}

func (p *eventPending) Close() {
	p.cancel()
}

// uniquePath returns dir/name, or dir/"stem (n).ext" if that already exists.
func uniquePath(dir, name string) string {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		path = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
	}
}
