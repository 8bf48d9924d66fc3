// File: cmd/fill.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/browser"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/engine"
	"github.com/xkilldash9x/formpilot/internal/observability"
	"github.com/xkilldash9x/formpilot/internal/plan"
)

const (
	browserShutdownTimeout = 15 * time.Second
	screenshotTimeout      = 10 * time.Second
)

// page is the part of a browser tab the fill command drives.
type page interface {
	Navigate(ctx context.Context, url string) error
	Driver() engine.Driver
	Screenshot(ctx context.Context) ([]byte, error)
}

// sessionProvider opens a page to run a plan against. The returned cleanup
// function releases the browser and is always safe to call.
type sessionProvider interface {
	Open(ctx context.Context, cfg config.Interface, logger *zap.Logger) (page, func(), error)
}

// browserProvider opens tabs in a locally launched or remote Chrome.
type browserProvider struct{}

func newSessionProvider() sessionProvider {
	return &browserProvider{}
}

func (p *browserProvider) Open(ctx context.Context, cfg config.Interface, logger *zap.Logger) (page, func(), error) {
	mgr := browser.NewManager(ctx, cfg, logger)
	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), browserShutdownTimeout)
		defer cancel()
		if err := mgr.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Browser did not shut down cleanly.", zap.Error(err))
		}
	}

	s, err := mgr.NewSession(ctx)
	if err != nil {
		cleanup()
		return nil, func() {}, fmt.Errorf("failed to open browser session: %w", err)
	}
	return s, cleanup, nil
}

type fillOptions struct {
	PlanPath       string
	URL            string
	ScreenshotPath string
	JSON           bool
}

func newFillCmd(provider sessionProvider) *cobra.Command {
	var opts fillOptions
	var headless bool
	var slowMo, timeout time.Duration

	fillCmd := &cobra.Command{
		Use:   "fill",
		Short: "Open a page and run a form plan against it",
		Long: `Loads a YAML plan, opens its URL in the browser and performs each step in
order. The run stops at the first failing step unless that step is optional.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			// Flags override file and environment values only when given.
			if cmd.Flags().Changed("headless") {
				cfg.SetBrowserHeadless(headless)
			}
			if cmd.Flags().Changed("slow-mo") {
				cfg.SetEngineSlowMo(slowMo)
			}
			if cmd.Flags().Changed("timeout") {
				cfg.SetEngineDefaultTimeout(timeout)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid flags: %w", err)
			}

			return runFill(ctx, logger, cfg, opts, provider, cmd.OutOrStdout())
		},
	}

	fillCmd.Flags().StringVarP(&opts.PlanPath, "plan", "p", "", "Path to the YAML plan (required)")
	_ = fillCmd.MarkFlagRequired("plan")
	fillCmd.Flags().StringVarP(&opts.URL, "url", "u", "", "Page to open. Overrides the plan's url.")
	fillCmd.Flags().BoolVar(&headless, "headless", true, "Run the browser without a window")
	fillCmd.Flags().DurationVar(&slowMo, "slow-mo", 0, "Pause between interactions")
	fillCmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Default timeout for each step")
	fillCmd.Flags().StringVar(&opts.ScreenshotPath, "screenshot-on-failure", "", "Write a PNG of the page here when the plan fails")
	fillCmd.Flags().BoolVar(&opts.JSON, "json", false, "Print step results as JSON")

	return fillCmd
}

// runFill holds the testable body of the fill command.
func runFill(
	ctx context.Context,
	logger *zap.Logger,
	cfg config.Interface,
	opts fillOptions,
	provider sessionProvider,
	out io.Writer,
) error {
	p, err := plan.Load(opts.PlanPath)
	if err != nil {
		return err
	}
	target := p.URL
	if opts.URL != "" {
		target = opts.URL
	}
	if target == "" {
		return errors.New("no page to open: set url in the plan or pass --url")
	}

	pg, cleanup, err := provider.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	logger.Info("Opening page.", zap.String("url", target), zap.Int("steps", len(p.Steps)))
	if err := pg.Navigate(ctx, target); err != nil {
		return fmt.Errorf("failed to open %s: %w", target, err)
	}

	eng, err := engine.New(pg.Driver(), cfg.Engine(), logger)
	if err != nil {
		return err
	}

	results, runErr := plan.NewRunner(eng, logger).Run(ctx, p)
	if runErr != nil && opts.ScreenshotPath != "" {
		saveScreenshot(pg, opts.ScreenshotPath, logger)
	}

	if err := writeResults(out, results, opts.JSON); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	if runErr != nil {
		return runErr
	}
	logger.Info("Plan completed.", zap.Int("steps", len(results)))
	return nil
}

// saveScreenshot captures the page after a failure. The run's context may
// already be canceled, so the capture gets its own deadline.
func saveScreenshot(pg page, path string, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), screenshotTimeout)
	defer cancel()

	png, err := pg.Screenshot(ctx)
	if err != nil {
		logger.Warn("Could not capture failure screenshot.", zap.Error(err))
		return
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		logger.Warn("Could not expand screenshot path.", zap.String("path", path), zap.Error(err))
		return
	}
	if err := os.WriteFile(expanded, png, 0o644); err != nil {
		logger.Warn("Could not write failure screenshot.", zap.String("path", expanded), zap.Error(err))
		return
	}
	logger.Info("Failure screenshot saved.", zap.String("path", expanded))
}

func writeResults(out io.Writer, results []plan.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tACTION\tTARGET\tRESULT\tELAPSED")
	for _, r := range results {
		outcome := r.Committed
		if r.Error != "" {
			outcome = "FAILED: " + r.Error
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", r.Step, r.Action, r.Target, outcome, r.Elapsed.Round(time.Millisecond))
	}
	return w.Flush()
}
