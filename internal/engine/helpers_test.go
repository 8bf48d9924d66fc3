// internal/engine/helpers_test.go
package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/engine"
)

// -- Test Helper Functions --

// testEngineConfig returns engine settings tuned for in-memory drivers: short
// timeouts, fast polling and no settle delay.
func testEngineConfig() config.EngineConfig {
	cfg := config.NewDefaultConfig().Engine()
	cfg.DefaultTimeout = 250 * time.Millisecond
	cfg.PollInterval = time.Millisecond
	cfg.SettleDelay = 0
	cfg.SlowMo = 0
	cfg.PostConditionTimeout = 50 * time.Millisecond
	return cfg
}

func newEngine(t *testing.T, drv engine.Driver, opts ...engine.EngineOption) *engine.Engine {
	t.Helper()
	return newEngineWithLogger(t, drv, zaptest.NewLogger(t), opts...)
}

func newEngineWithLogger(t *testing.T, drv engine.Driver, logger *zap.Logger, opts ...engine.EngineOption) *engine.Engine {
	t.Helper()
	eng, err := engine.New(drv, testEngineConfig(), logger, opts...)
	require.NoError(t, err)
	return eng
}
