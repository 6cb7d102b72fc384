// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package browser adapts a go-rod controlled Chrome instance to the page,
// frame, tab, and download interfaces used by the fetch pipeline.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"

	"github.com/pdiddy/paperfetch/internal/download"
	"github.com/pdiddy/paperfetch/internal/search"
	"github.com/pdiddy/paperfetch/pkg/types"
)

// Session owns the single browser instance shared by every subject.
type Session struct {
	cfg      types.BrowserConfig
	browser  *rod.Browser
	launcher *launcher.Launcher
	logger   *zap.Logger
}

// Launch connects to cfg.DebuggerURL, or starts a new browser when it is
// empty. The session outlives ctx and stays open until Close.
func Launch(ctx context.Context, cfg types.BrowserConfig, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &Session{cfg: cfg, logger: logger}

	controlURL := cfg.DebuggerURL
	if controlURL == "" {
		l := launcher.New().Headless(cfg.Headless)
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}
		if cfg.UserDataDir != "" {
			l = l.UserDataDir(cfg.UserDataDir)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = u
		s.launcher = l
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		if s.launcher != nil {
			s.launcher.Kill()
		}
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	s.browser = b
	logger.Info("browser connected", zap.String("control_url", controlURL), zap.Bool("launched", s.launcher != nil))
	return s, nil
}

// Close closes the browser and, when this session launched it, waits for
// the process to exit and removes its temporary profile.
func (s *Session) Close() error {
	if s.browser == nil {
		return nil
	}
	err := s.browser.Close()
	s.browser = nil
	if s.launcher != nil {
		s.launcher.Cleanup()
		s.launcher = nil
	}
	return err
}

// Rod exposes the underlying browser.
func (s *Session) Rod() *rod.Browser {
	return s.browser
}

// NewPage opens a fresh page in the default browser context.
func (s *Session) NewPage(ctx context.Context) (*Page, error) {
	if s.browser == nil {
		return nil, errors.New("browser not connected")
	}
	p, err := s.openTarget(ctx, proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, err
	}
	return &Page{session: s, page: p}, nil
}

// openTarget creates a page and applies session-wide policy to it.
func (s *Session) openTarget(ctx context.Context, opts proto.TargetCreateTarget) (*rod.Page, error) {
	p, err := s.browser.Context(ctx).Page(opts)
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	if s.cfg.Stealth {
		if _, err := p.EvalOnNewDocument(stealth.JS); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("inject stealth script: %w", err)
		}
	}
	if len(s.cfg.BlockedURLs) > 0 {
		if err := (proto.NetworkEnable{}).Call(p); err != nil {
			s.logger.Warn("network enable failed; URL blocking disabled", zap.Error(err))
		} else if err := (proto.NetworkSetBlockedURLs{Urls: s.cfg.BlockedURLs}).Call(p); err != nil {
			s.logger.Warn("setting blocked URLs", zap.Error(err))
		}
	}
	return p, nil
}

// Page is one subject's page. It implements search.Page and
// download.TabOpener.
type Page struct {
	session *Session
	page    *rod.Page
}

// Navigate loads url and waits for the load event.
func (p *Page) Navigate(ctx context.Context, url string) error {
	pg := p.page.Context(ctx).Timeout(p.session.cfg.NavigationTimeout)
	defer pg.CancelTimeout()
	if err := pg.Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := pg.WaitLoad(); err != nil {
		return fmt.Errorf("wait for load of %s: %w", url, err)
	}
	return nil
}

// Frame finds the frame or iframe element with the given name and returns
// its document.
func (p *Page) Frame(ctx context.Context, name string, wait time.Duration) (search.Frame, error) {
	sel := fmt.Sprintf(`frame[name=%q], iframe[name=%q]`, name, name)
	pg := p.page.Context(ctx).Timeout(wait)
	el, err := pg.Element(sel)
	if err != nil {
		pg.CancelTimeout()
		return nil, err
	}
	fr, err := el.CancelTimeout().Frame()
	if err != nil {
		return nil, fmt.Errorf("entering frame %q: %w", name, err)
	}
	return &frame{page: fr, wait: wait}, nil
}

// NewTab opens a tab in the same browser context as the page.
func (p *Page) NewTab(ctx context.Context) (download.Tab, error) {
	t, err := p.session.openTarget(ctx, proto.TargetCreateTarget{
		URL:              "about:blank",
		BrowserContextID: p.page.Browser().BrowserContextID,
	})
	if err != nil {
		return nil, err
	}
	return &Tab{session: p.session, page: t}, nil
}

// Close closes the page.
func (p *Page) Close() error {
	return p.page.Close()
}

type frame struct {
	page *rod.Page
	wait time.Duration
}

func (f *frame) element(ctx context.Context, selector string) (*rod.Element, error) {
	pg := f.page.Context(ctx).Timeout(f.wait)
	el, err := pg.Element(selector)
	if err != nil {
		pg.CancelTimeout()
		return nil, err
	}
	return el.CancelTimeout(), nil
}

func (f *frame) Input(ctx context.Context, selector, text string) error {
	el, err := f.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("select existing text: %w", err)
	}
	return el.Input(text)
}

func (f *frame) Click(ctx context.Context, selector string) error {
	el, err := f.element(ctx, selector)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (f *frame) HTML(ctx context.Context) (string, error) {
	return f.page.Context(ctx).HTML()
}

func (f *frame) URL(ctx context.Context) (string, error) {
	res, err := f.page.Context(ctx).Eval(`() => location.href`)
	if err != nil {
		return "", err
	}
	return res.Value.String(), nil
}

// Tab is a dedicated download tab. It implements download.Tab.
type Tab struct {
	session *Session
	page    *rod.Page
}

// AllowDownloads saves downloads for the tab's browser context into dir.
func (t *Tab) AllowDownloads(dir string) error {
	return proto.BrowserSetDownloadBehavior{
		Behavior:         proto.BrowserSetDownloadBehaviorBehaviorAllow,
		BrowserContextID: t.page.Browser().BrowserContextID,
		DownloadPath:     dir,
	}.Call(t.session.browser)
}

// Navigate points the tab at url. A URL that turns into a download aborts
// the navigation with net::ERR_ABORTED.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	pg := t.page.Context(ctx).Timeout(t.session.cfg.NavigationTimeout)
	defer pg.CancelTimeout()
	return pg.Navigate(url)
}

// Close closes the tab.
func (t *Tab) Close() error {
	return t.page.Close()
}
