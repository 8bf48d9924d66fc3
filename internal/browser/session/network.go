// internal/browser/session/network.go
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const idleCheckInterval = 25 * time.Millisecond

// NetworkMonitor tracks in-flight requests of a page so callers can wait for
// the network to go quiet. Requests are keyed by ID, so a redirect chain
// counts once.
type NetworkMonitor struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	mu       sync.RWMutex
	inflight map[network.RequestID]string
}

// NewNetworkMonitor creates a monitor bound to ctx; it stops tracking when ctx ends or Stop is called.
func NewNetworkMonitor(ctx context.Context, logger *zap.Logger) *NetworkMonitor {
	mCtx, cancel := context.WithCancel(ctx)
	return &NetworkMonitor{
		ctx:      mCtx,
		cancel:   cancel,
		logger:   logger.Named("network_monitor"),
		inflight: make(map[network.RequestID]string),
	}
}

// Start subscribes to the target's events. ctx must carry the chromedp target.
// The network domain has to be enabled separately.
func (m *NetworkMonitor) Start(ctx context.Context) {
	chromedp.ListenTarget(ctx, m.handle)
}

// Stop detaches the monitor; pending waits return.
func (m *NetworkMonitor) Stop() {
	m.cancel()
}

func (m *NetworkMonitor) handle(ev interface{}) {
	select {
	case <-m.ctx.Done():
		return
	default:
	}

	switch ev := ev.(type) {
	case *network.EventRequestWillBeSent:
		if ev.Request == nil || strings.HasPrefix(ev.Request.URL, "data:") {
			return
		}
		m.mu.Lock()
		m.inflight[ev.RequestID] = ev.Request.URL
		m.mu.Unlock()
	case *network.EventLoadingFinished:
		m.done(ev.RequestID)
	case *network.EventLoadingFailed:
		if !ev.Canceled {
			m.logger.Debug("Request failed.", zap.String("request_id", string(ev.RequestID)), zap.String("error", ev.ErrorText))
		}
		m.done(ev.RequestID)
	case *runtime.EventExceptionThrown:
		if ev.ExceptionDetails != nil {
			m.logger.Warn("Uncaught exception in page.", zap.String("text", ev.ExceptionDetails.Text))
		}
	}
}

func (m *NetworkMonitor) done(id network.RequestID) {
	m.mu.Lock()
	delete(m.inflight, id)
	m.mu.Unlock()
}

// InFlight returns the number of requests that have started but not finished.
func (m *NetworkMonitor) InFlight() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.inflight)
}

// WaitNetworkIdle blocks until no request has been in flight for quiet.
func (m *NetworkMonitor) WaitNetworkIdle(ctx context.Context, quiet time.Duration) error {
	timer := time.NewTimer(quiet)
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	defer timer.Stop()
	idle := false

	ticker := time.NewTicker(idleCheckInterval)
	defer ticker.Stop()

	check := func() {
		active := m.InFlight()
		switch {
		case active > 0 && idle:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			idle = false
		case active == 0 && !idle:
			timer.Reset(quiet)
			idle = true
		}
	}
	check()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%d requests still in flight: %w", m.InFlight(), ctx.Err())
		case <-m.ctx.Done():
			return m.ctx.Err()
		case <-ticker.C:
			check()
		case <-timer.C:
			return nil
		}
	}
}
