// internal/browser/rod.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/formfill"
)

// RodFactory launches a browser per session through go-rod.
type RodFactory struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
}

// NewRodFactory creates a go-rod backed SessionFactory.
func NewRodFactory(cfg config.BrowserConfig, logger *zap.Logger) *RodFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RodFactory{cfg: cfg, logger: logger.Named("rod")}
}

func (f *RodFactory) launcher() *launcher.Launcher {
	l := launcher.New().Headless(f.cfg.Headless).Leakless(true)
	if f.cfg.ExecPath != "" {
		l = l.Bin(f.cfg.ExecPath)
	}

	switches := chromeFlags(f.cfg)
	delete(switches, "headless")
	names := make([]string, 0, len(switches))
	for name := range switches {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		switch v := switches[name].(type) {
		case bool:
			if v {
				l = l.Set(flags.Flag(name))
			} else {
				l = l.Delete(flags.Flag(name))
			}
		case string:
			l = l.Set(flags.Flag(name), v)
		}
	}
	return l
}

// NewSession launches a browser and opens one page in an incognito context.
func (f *RodFactory) NewSession(ctx context.Context) (formfill.BrowserSession, error) {
	id := uuid.NewString()
	log := f.logger.With(zap.String("session_id", id))

	l := f.launcher().Context(context.WithoutCancel(ctx))
	controlURL, err := l.Launch()
	if err != nil {
		l.Kill()
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(context.WithoutCancel(ctx))
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	target := browser
	if f.cfg.Incognito {
		if target, err = browser.Incognito(); err != nil {
			_ = browser.Close()
			l.Cleanup()
			return nil, fmt.Errorf("incognito context: %w", err)
		}
	}

	page, err := target.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		l.Cleanup()
		return nil, fmt.Errorf("create page: %w", err)
	}

	log.Debug("Browser session started.", zap.String("control_url", controlURL))
	return &RodSession{id: id, cfg: f.cfg, logger: log, launcher: l, browser: browser, page: page}, nil
}

// RodSession is one browser process driven through go-rod.
type RodSession struct {
	id       string
	cfg      config.BrowserConfig
	logger   *zap.Logger
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page

	closeOnce sync.Once
	closeErr  error
}

func (s *RodSession) ID() string { return s.id }

// pageFor binds the page to ctx, bounded by timeout when positive. The
// returned cancel releases the timer and must be called once the action is done.
func (s *RodSession) pageFor(ctx context.Context, timeout time.Duration) (*rod.Page, context.CancelFunc) {
	ctx, cancel := withTimeout(ctx, timeout)
	return s.page.Context(ctx), cancel
}

func (s *RodSession) Open(ctx context.Context, url string) error {
	p, cancel := s.pageFor(ctx, s.cfg.NavigationTimeout)
	defer cancel()
	if err := p.Navigate(url); err != nil {
		return err
	}
	return p.WaitLoad()
}

func (s *RodSession) WaitVisible(ctx context.Context, locator formfill.Locator, timeout time.Duration) error {
	p, cancel := s.pageFor(ctx, timeout)
	defer cancel()
	el, err := s.element(p, locator)
	if err != nil {
		return err
	}
	return el.WaitVisible()
}

func (s *RodSession) element(p *rod.Page, locator formfill.Locator) (*rod.Element, error) {
	if locator.Kind == formfill.LocatorCSS {
		return p.Element(locator.Value)
	}
	return p.ElementX(locator.Value)
}

func (s *RodSession) FindAll(ctx context.Context, locator formfill.Locator) ([]formfill.Element, error) {
	p, cancel := s.pageFor(ctx, s.cfg.ActionTimeout)
	defer cancel()
	var (
		found rod.Elements
		err   error
	)
	if locator.Kind == formfill.LocatorCSS {
		found, err = p.Elements(locator.Value)
	} else {
		found, err = p.ElementsX(locator.Value)
	}
	if err != nil {
		return nil, err
	}
	elems := make([]formfill.Element, 0, len(found))
	for _, el := range found {
		elems = append(elems, &rodElement{el: el, timeout: s.cfg.ActionTimeout})
	}
	return elems, nil
}

func (s *RodSession) Find(ctx context.Context, locator formfill.Locator) (formfill.Element, error) {
	p, cancel := s.pageFor(ctx, s.cfg.ActionTimeout)
	defer cancel()
	el, err := s.element(p, locator)
	if err != nil {
		return nil, err
	}
	return &rodElement{el: el, timeout: s.cfg.ActionTimeout}, nil
}

func (s *RodSession) PageText(ctx context.Context) (string, error) {
	p, cancel := s.pageFor(ctx, s.cfg.ActionTimeout)
	defer cancel()
	html, err := p.HTML()
	if err != nil {
		return "", err
	}
	return VisibleText(html)
}

// Close closes the page and browser, then kills the process and removes its
// profile directory. Safe to call repeatedly.
func (s *RodSession) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		done := make(chan error, 1)
		go func() {
			var errs []error
			if err := s.page.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close page: %w", err))
			}
			if err := s.browser.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close browser: %w", err))
			}
			s.launcher.Kill()
			s.launcher.Cleanup()
			done <- errors.Join(errs...)
		}()

		select {
		case s.closeErr = <-done:
		case <-ctx.Done():
			s.closeErr = fmt.Errorf("close chrome: %w", ctx.Err())
		}
		s.logger.Debug("Browser session closed.", zap.Error(s.closeErr))
	})
	return s.closeErr
}

type rodElement struct {
	el      *rod.Element
	timeout time.Duration
}

// bound rebinds the element to ctx. Elements found earlier still hold the
// finder's context, which is canceled by the time an action runs.
func (e *rodElement) bound(ctx context.Context) (*rod.Element, context.CancelFunc) {
	ctx, cancel := withTimeout(ctx, e.timeout)
	return e.el.Context(ctx), cancel
}

func (e *rodElement) SetText(ctx context.Context, value string) error {
	el, cancel := e.bound(ctx)
	defer cancel()
	return el.Input(value)
}

func (e *rodElement) Click(ctx context.Context) error {
	el, cancel := e.bound(ctx)
	defer cancel()
	return el.Click(proto.InputMouseButtonLeft, 1)
}
