// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/browser/session"
	"github.com/xkilldash9x/formpilot/internal/config"
)

const (
	browserStartTimeout = 60 * time.Second
	shutdownGracePeriod = 15 * time.Second
)

// Manager owns the browser process and hands out sessions (tabs) on it.
type Manager struct {
	logger *zap.Logger
	cfg    config.Interface

	allocCtx     context.Context
	allocCancel  context.CancelFunc
	browserCtx   context.Context
	browserClose context.CancelFunc

	sessions map[string]*session.Session
	mu       sync.RWMutex
	wg       sync.WaitGroup

	initOnce sync.Once
	initErr  error
}

// NewManager creates a browser manager. The browser is started lazily, on the first session.
// ctx bounds the lifetime of the browser process.
func NewManager(ctx context.Context, cfg config.Interface, logger *zap.Logger) *Manager {
	m := &Manager{
		logger:   logger.Named("browser_manager"),
		cfg:      cfg,
		sessions: make(map[string]*session.Session),
	}
	if remote := cfg.Browser().RemoteURL; remote != "" {
		m.allocCtx, m.allocCancel = chromedp.NewRemoteAllocator(ctx, remote)
	} else {
		m.allocCtx, m.allocCancel = chromedp.NewExecAllocator(ctx, DefaultAllocatorOptions(cfg.Browser())...)
	}
	m.logger.Debug("Browser manager created (initialization deferred).")
	return m
}

// initialize starts the browser with an initial blank tab, once.
func (m *Manager) initialize(ctx context.Context) error {
	m.initOnce.Do(func() {
		m.logger.Info("Launching browser...")
		m.browserCtx, m.browserClose = chromedp.NewContext(m.allocCtx,
			chromedp.WithLogf(m.logger.Sugar().Debugf),
			chromedp.WithErrorf(m.logger.Sugar().Debugf),
		)

		started := make(chan error, 1)
		go func() { started <- chromedp.Run(m.browserCtx) }()

		startCtx, cancel := context.WithTimeout(ctx, browserStartTimeout)
		defer cancel()
		select {
		case err := <-started:
			if err != nil {
				m.initErr = fmt.Errorf("failed to launch browser instance: %w", err)
			}
		case <-startCtx.Done():
			m.initErr = fmt.Errorf("timeout waiting for browser to start: %w", startCtx.Err())
		}
		if m.initErr != nil {
			m.browserClose()
			return
		}
		m.logger.Info("Browser manager initialized successfully.")
	})
	return m.initErr
}

// NewSession opens a new tab and initializes it.
func (m *Manager) NewSession(ctx context.Context) (*session.Session, error) {
	if err := m.initialize(ctx); err != nil {
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(m.browserCtx)
	m.wg.Add(1)

	var s *session.Session
	s = session.NewSession(tabCtx, tabCancel, m.cfg, m.logger, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.sessions, s.ID())
		m.wg.Done()
		m.logger.Debug("Session removed from manager.", zap.String("session_id", s.ID()))
	})

	if err := s.Initialize(ctx); err != nil {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Close(cleanupCtx)
		return nil, fmt.Errorf("failed to initialize session: %w", err)
	}

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	m.logger.Info("New session created.", zap.String("session_id", s.ID()))
	return s, nil
}

// ActiveSessions returns the number of open sessions.
func (m *Manager) ActiveSessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown closes every session and then the browser.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down browser manager.")

	m.mu.RLock()
	open := make([]*session.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.RUnlock()

	for _, s := range open {
		go func(s *session.Session) {
			if err := s.Close(ctx); err != nil {
				m.logger.Warn("Error during session close in shutdown.", zap.String("session_id", s.ID()), zap.Error(err))
			}
		}(s)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.logger.Debug("All sessions closed gracefully.")
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for sessions to close. Proceeding with forceful shutdown.", zap.Error(ctx.Err()))
	}

	var shutdownErr error
	if m.browserCtx != nil && m.initErr == nil {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		// chromedp.Cancel closes the browser gracefully and waits for it.
		closed := make(chan error, 1)
		go func() { closed <- chromedp.Cancel(m.browserCtx) }()
		select {
		case err := <-closed:
			if err != nil {
				shutdownErr = fmt.Errorf("failed to close browser: %w", err)
			}
		case <-cleanupCtx.Done():
			shutdownErr = fmt.Errorf("timeout closing browser: %w", cleanupCtx.Err())
		}
	}
	m.allocCancel()

	m.logger.Info("Browser manager shutdown complete.")
	return shutdownErr
}
