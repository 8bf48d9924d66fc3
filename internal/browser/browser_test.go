// internal/browser/browser_test.go
package browser_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/formpilot/internal/browser"
	"github.com/xkilldash9x/formpilot/internal/browser/session"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/engine"
)

const (
	maxTestConcurrency      = 2
	browserTestTimeout      = 2 * time.Minute
	semaphoreAcquireTimeout = 30 * time.Second
)

var (
	processSemaphore     *semaphore.Weighted
	processSemaphoreOnce sync.Once
)

// getProcessSemaphore limits the number of browsers the package starts at once.
func getProcessSemaphore() *semaphore.Weighted {
	processSemaphoreOnce.Do(func() {
		processSemaphore = semaphore.NewWeighted(maxTestConcurrency)
	})
	return processSemaphore
}

const formPage = `<!DOCTYPE html>
<html><head><title>Application</title>
<style>
  #shield { position: absolute; left: 0; top: 0; width: 400px; height: 60px; }
  #covered-wrap { position: relative; }
</style></head>
<body>
<form>
  <label for="email">Email address</label>
  <input id="email" name="email" type="email">

  <label for="country">Country</label>
  <select id="country" name="country">
    <option>Please select</option><option>France</option><option>United Kingdom</option>
  </select>

  <div id="covered-wrap">
    <label for="nationality">Nationality</label>
    <select id="nationality" data-changes="0">
      <option>Please select</option><option>British</option><option>Irish</option>
    </select>
    <div id="shield"></div>
  </div>

  <fieldset>
    <legend>Are you a UK resident?</legend>
    <label><input type="radio" name="resident" value="Yes"> Yes</label>
    <label><input type="radio" name="resident" value="No"> No</label>
  </fieldset>

  <label><input type="checkbox" id="terms"> I accept the terms</label>

  <button type="button" id="title">Title</button>
  <ul role="listbox" id="title-menu" hidden>
    <li role="option">Mr</li><li role="option">Ms</li><li role="option">Doctor</li>
  </ul>
</form>
<script>
  const nat = document.getElementById('nationality');
  nat.addEventListener('change', () => {
    nat.dataset.changes = String(Number(nat.dataset.changes) + 1);
  });
  const title = document.getElementById('title');
  const menu = document.getElementById('title-menu');
  title.addEventListener('click', () => { menu.hidden = false; });
  menu.addEventListener('click', (ev) => {
    const item = ev.target.closest('[role=option]');
    if (!item) return;
    title.textContent = item.textContent;
    menu.hidden = true;
  });
</script>
</body></html>`

// -- Test Helper Functions --

func requireChrome(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if _, err := exec.LookPath(name); err == nil {
			return
		}
	}
	t.Skip("no Chrome or Chromium executable found in PATH")
}

// newBrowserFixture starts a browser on a fresh manager and opens the form page.
func newBrowserFixture(t *testing.T) (*engine.Engine, *session.Session) {
	t.Helper()
	requireChrome(t)

	ctx, cancel := context.WithTimeout(context.Background(), browserTestTimeout)
	t.Cleanup(cancel)

	acquireCtx, acquireCancel := context.WithTimeout(ctx, semaphoreAcquireTimeout)
	defer acquireCancel()
	sem := getProcessSemaphore()
	require.NoError(t, sem.Acquire(acquireCtx, 1), "timed out waiting for a browser slot")
	t.Cleanup(func() { sem.Release(1) })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(formPage))
	}))
	t.Cleanup(srv.Close)

	cfg := config.NewDefaultConfig()
	cfg.NetworkCfg.PostLoadWait = 50 * time.Millisecond
	cfg.EngineCfg.DefaultTimeout = 10 * time.Second
	cfg.EngineCfg.SettleDelay = 20 * time.Millisecond
	// CDP chatter arrives on background goroutines that can outlive the test; keep it below the threshold.
	logger := zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))

	mgr := browser.NewManager(ctx, cfg, logger)
	t.Cleanup(func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		assert.NoError(t, mgr.Shutdown(shutdownCtx))
	})

	s, err := mgr.NewSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, mgr.ActiveSessions())
	require.NoError(t, s.Navigate(ctx, srv.URL))

	eng, err := engine.New(s.Driver(), cfg.Engine(), logger)
	require.NoError(t, err)
	return eng, s
}

// -- Tests --

func TestBrowser_FormInteraction(t *testing.T) {
	eng, s := newBrowserFixture(t)
	ctx := context.Background()

	t.Run("fill by label", func(t *testing.T) {
		el, err := eng.Fill(ctx, "Email address", "jo@example.com")
		require.NoError(t, err)
		value, err := el.Value(ctx)
		require.NoError(t, err)
		assert.Equal(t, "jo@example.com", value)
	})

	t.Run("native select", func(t *testing.T) {
		got, err := eng.SelectOption(ctx, engine.CSS("#country"), "United Kingdom")
		require.NoError(t, err)
		assert.Equal(t, "United Kingdom", got)
	})

	t.Run("covered select falls back to direct mutation", func(t *testing.T) {
		loc := engine.Label("Nationality", true)
		got, err := eng.SelectOption(ctx, loc, "Irish")
		require.NoError(t, err)
		assert.Equal(t, "Irish", got)

		changes, ok, err := eng.Locate(loc).Attribute(ctx, "data-changes")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "1", changes, "exactly one change notification")
	})

	t.Run("radio by legend", func(t *testing.T) {
		got, err := eng.CheckRadio(ctx, "Are you a UK resident?", "No")
		require.NoError(t, err)
		assert.Equal(t, "No", got)
	})

	t.Run("checkbox", func(t *testing.T) {
		terms := eng.Locate(engine.Label("I accept the terms", false))
		require.NoError(t, terms.Check(ctx))
		checked, err := terms.IsChecked(ctx)
		require.NoError(t, err)
		assert.True(t, checked)
	})

	t.Run("popup menu", func(t *testing.T) {
		got, err := eng.PopupMenu(engine.DefaultMenuLocators(engine.CSS("#title"))).Choose(ctx, "doc")
		require.NoError(t, err)
		assert.Equal(t, "Doctor", got)

		text, err := eng.Locate(engine.CSS("#title")).Text(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Doctor", text)
	})

	t.Run("network idle", func(t *testing.T) {
		assert.NoError(t, eng.Await(ctx, engine.NetworkIdle(50*time.Millisecond)))
		assert.Equal(t, 0, s.Monitor().InFlight())
	})

	t.Run("screenshot", func(t *testing.T) {
		png, err := s.Screenshot(ctx)
		require.NoError(t, err)
		assert.Greater(t, len(png), 8)
	})
}
