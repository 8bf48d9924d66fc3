// internal/browser/session/session.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/browser/emulation"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/engine"
)

const (
	defaultNavigationTimeout = 90 * time.Second
	stabilizeTimeout         = 30 * time.Second
)

// ErrSessionClosed is returned by operations on a closed session.
var ErrSessionClosed = errors.New("browser session is closed")

// Session is one browser tab driven over CDP.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	cfg    config.Interface

	monitor *NetworkMonitor
	driver  *Driver

	onClose func()

	mu       sync.Mutex
	isClosed bool
}

var _ ActionExecutor = (*Session)(nil)

// NewSession wraps a chromedp tab context. ctx must come from chromedp.NewContext;
// cancel closes the tab.
func NewSession(ctx context.Context, cancel context.CancelFunc, cfg config.Interface, logger *zap.Logger, onClose func()) *Session {
	sessionID := uuid.New().String()
	s := &Session{
		id:      sessionID,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.With(zap.String("session_id", sessionID)),
		cfg:     cfg,
		onClose: onClose,
	}
	s.monitor = NewNetworkMonitor(ctx, s.logger)
	s.driver = NewDriver(s, s.monitor, s.logger)
	return s
}

// Initialize attaches to the tab and applies emulation and header settings.
func (s *Session) Initialize(ctx context.Context) error {
	// The first Run allocates the tab. It must use the session context: a
	// shorter-lived context would tear the tab down with it.
	if err := chromedp.Run(s.ctx); err != nil {
		return fmt.Errorf("failed to initialize browser context/target connection: %w", err)
	}
	s.monitor.Start(s.ctx)

	tasks := chromedp.Tasks{network.Enable()}
	tasks = append(tasks, emulation.Apply(s.cfg.Browser().Emulation, s.logger)...)

	headers := make(network.Headers)
	for k, v := range emulation.Headers(s.cfg.Browser().Emulation) {
		headers[k] = v
	}
	// Explicit headers win over derived ones.
	for k, v := range s.cfg.Network().Headers {
		headers[k] = v
	}
	if len(headers) > 0 {
		tasks = append(tasks, network.SetExtraHTTPHeaders(headers))
	}

	if err := s.RunActions(ctx, tasks); err != nil {
		return fmt.Errorf("failed to run session initialization tasks: %w", err)
	}
	s.logger.Debug("Browser session initialized.")
	return nil
}

// ID returns the unique identifier for the session.
func (s *Session) ID() string {
	return s.id
}

// Driver returns the engine.Driver bound to this tab.
func (s *Session) Driver() engine.Driver {
	return s.driver
}

// Monitor exposes the session's request tracker.
func (s *Session) Monitor() *NetworkMonitor {
	return s.monitor
}

// RunActions executes actions bounded by both the session lifetime and ctx.
func (s *Session) RunActions(ctx context.Context, actions ...chromedp.Action) error {
	if s.closed() {
		return ErrSessionClosed
	}
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// RunBackgroundActions executes actions bounded only by the session lifetime.
func (s *Session) RunBackgroundActions(ctx context.Context, actions ...chromedp.Action) error {
	return s.RunActions(Detach(ctx), actions...)
}

// Navigate loads url and waits for the page to settle.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating to URL", zap.String("url", url))

	navTimeout := s.cfg.Network().NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = defaultNavigationTimeout
	}
	navCtx, navCancel := context.WithTimeout(ctx, navTimeout)
	defer navCancel()

	if err := s.RunActions(navCtx, chromedp.Navigate(url)); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("navigation canceled: %w", ctx.Err())
		}
		if navCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("navigation timed out after %s: %w", navTimeout, err)
		}
		return fmt.Errorf("navigation failed: %w", err)
	}
	return s.Stabilize(ctx, s.cfg.Network().PostLoadWait)
}

// Stabilize waits for the body to be ready and the network to go quiet.
// Failures short of caller cancellation are logged and ignored: a page
// with a long-poll never idles but is still usable.
func (s *Session) Stabilize(ctx context.Context, quiet time.Duration) error {
	stabCtx, cancel := context.WithTimeout(ctx, stabilizeTimeout)
	defer cancel()

	if err := s.RunActions(stabCtx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Debug("WaitReady failed during stabilization.", zap.Error(err))
	}
	if quiet <= 0 {
		return nil
	}
	if err := s.monitor.WaitNetworkIdle(stabCtx, quiet); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Debug("Network idle wait failed during stabilization.", zap.Error(err))
	}
	return nil
}

// Screenshot captures the visible viewport as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := s.RunActions(ctx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().WithFormat(page.CaptureScreenshotFormatPng).Do(c)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

// Close terminates the session. It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.")
	s.monitor.Stop()
	if s.cancel != nil {
		s.cancel()
	}
	if s.onClose != nil {
		s.onClose()
	}
	return nil
}

func (s *Session) closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isClosed
}
