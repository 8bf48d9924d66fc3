// internal/browser/session/interfaces.go
package session

import (
	"context"

	"github.com/chromedp/chromedp"
)

// ActionExecutor runs chromedp actions against a page. The Driver and the
// NetworkMonitor depend on it rather than on Session, which keeps them
// testable without a browser.
type ActionExecutor interface {
	// RunActions executes actions bounded by the operational ctx. The
	// implementation combines ctx with the long-lived session context, which
	// carries the CDP target.
	RunActions(ctx context.Context, actions ...chromedp.Action) error

	// RunBackgroundActions executes actions on a context that outlives ctx,
	// for cleanup that must run after the caller has given up.
	RunBackgroundActions(ctx context.Context, actions ...chromedp.Action) error
}
