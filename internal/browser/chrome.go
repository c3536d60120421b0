// internal/browser/chrome.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/formfill"
)

// ChromeFactory starts a dedicated Chrome process per session through chromedp.
type ChromeFactory struct {
	cfg       config.BrowserConfig
	logger    *zap.Logger
	allocOpts []chromedp.ExecAllocatorOption
}

// NewChromeFactory creates a chromedp backed SessionFactory.
func NewChromeFactory(cfg config.BrowserConfig, logger *zap.Logger) *ChromeFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChromeFactory{
		cfg:       cfg,
		logger:    logger.Named("chromedp"),
		allocOpts: DefaultAllocatorOptions(cfg),
	}
}

// NewSession launches a fresh browser with its own temporary profile. Nothing
// is shared with earlier sessions.
func (f *ChromeFactory) NewSession(ctx context.Context) (formfill.BrowserSession, error) {
	id := uuid.NewString()
	log := f.logger.With(zap.String("session_id", id))

	// The browser lives until Close, not until ctx is canceled; operations
	// still observe ctx through CombineContext.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), f.allocOpts...)

	var ctxOpts []chromedp.ContextOption
	if f.cfg.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithDebugf(log.Sugar().Debugf))
	}
	ctxOpts = append(ctxOpts, chromedp.WithErrorf(log.Sugar().Debugf))
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, ctxOpts...)

	s := &ChromeSession{
		id:          id,
		cfg:         f.cfg,
		logger:      log,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
	}

	// An empty Run starts the browser process.
	startCtx, cancel := CombineContext(tabCtx, ctx)
	defer cancel()
	if err := chromedp.Run(startCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("launch chrome: %w", err)
	}
	log.Debug("Browser session started.")
	return s, nil
}

// ChromeSession is one browser process with a single tab.
type ChromeSession struct {
	id          string
	cfg         config.BrowserConfig
	logger      *zap.Logger
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

func (s *ChromeSession) ID() string { return s.id }

// run executes actions on the tab, bounded by ctx and the given timeout.
func (s *ChromeSession) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx, cancelOp := withTimeout(ctx, timeout)
	defer cancelOp()
	runCtx, cancel := CombineContext(s.tabCtx, opCtx)
	defer cancel()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && opCtx.Err() != nil && s.tabCtx.Err() == nil {
		// Report the caller's timeout or cancellation rather than chromedp's
		// generic canceled error.
		return fmt.Errorf("%w: %v", opCtx.Err(), err)
	}
	return err
}

func (s *ChromeSession) Open(ctx context.Context, url string) error {
	return s.run(ctx, s.cfg.NavigationTimeout, chromedp.Navigate(url))
}

func (s *ChromeSession) WaitVisible(ctx context.Context, locator formfill.Locator, timeout time.Duration) error {
	return s.run(ctx, timeout, chromedp.WaitVisible(locator.Value, queryOption(locator, false)))
}

func (s *ChromeSession) FindAll(ctx context.Context, locator formfill.Locator) ([]formfill.Element, error) {
	var nodes []*cdp.Node
	err := s.run(ctx, s.cfg.ActionTimeout,
		chromedp.Nodes(locator.Value, &nodes, queryOption(locator, true), chromedp.AtLeast(0)))
	if err != nil {
		return nil, err
	}
	elems := make([]formfill.Element, 0, len(nodes))
	for _, n := range nodes {
		elems = append(elems, &chromeElement{session: s, node: n})
	}
	return elems, nil
}

// Find waits, bounded by the action timeout, for the first match.
func (s *ChromeSession) Find(ctx context.Context, locator formfill.Locator) (formfill.Element, error) {
	var nodes []*cdp.Node
	err := s.run(ctx, s.cfg.ActionTimeout,
		chromedp.Nodes(locator.Value, &nodes, queryOption(locator, false), chromedp.NodeVisible))
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, errNoElement
	}
	return &chromeElement{session: s, node: nodes[0]}, nil
}

func (s *ChromeSession) PageText(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return VisibleText(html)
}

// Close shuts the tab and then the browser process. Safe to call repeatedly.
func (s *ChromeSession) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		done := make(chan error, 1)
		go func() {
			err := chromedp.Cancel(s.tabCtx)
			s.tabCancel()
			// Waits for the process to exit and removes the temp profile.
			s.allocCancel()
			done <- err
		}()

		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				s.closeErr = fmt.Errorf("close chrome: %w", err)
			}
		case <-ctx.Done():
			s.closeErr = fmt.Errorf("close chrome: %w", ctx.Err())
		}
		s.logger.Debug("Browser session closed.", zap.Error(s.closeErr))
	})
	return s.closeErr
}

var errNoElement = errors.New("no matching element")

// queryOption picks the chromedp selector strategy for a locator. XPath goes
// through BySearch, which evaluates XPath expressions.
func queryOption(l formfill.Locator, all bool) chromedp.QueryOption {
	if l.Kind == formfill.LocatorCSS {
		if all {
			return chromedp.ByQueryAll
		}
		return chromedp.ByQuery
	}
	return chromedp.BySearch
}

type chromeElement struct {
	session *ChromeSession
	node    *cdp.Node
}

func (e *chromeElement) SetText(ctx context.Context, value string) error {
	return e.session.run(ctx, e.session.cfg.ActionTimeout,
		chromedp.SendKeys([]cdp.NodeID{e.node.NodeID}, value, chromedp.ByNodeID))
}

func (e *chromeElement) Click(ctx context.Context) error {
	return e.session.run(ctx, e.session.cfg.ActionTimeout,
		chromedp.Click([]cdp.NodeID{e.node.NodeID}, chromedp.ByNodeID))
}
