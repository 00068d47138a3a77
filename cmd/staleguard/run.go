// cmd/staleguard/run.go
package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/valpere/staleguard/internal/browser"
	"github.com/valpere/staleguard/internal/config"
	"github.com/valpere/staleguard/internal/errors"
	"github.com/valpere/staleguard/internal/fixture"
	"github.com/valpere/staleguard/internal/monitoring"
	"github.com/valpere/staleguard/internal/report"
	"github.com/valpere/staleguard/internal/scenario"
)

func getCmdRun(gs *globalState) *cobra.Command {
	var (
		watch     bool
		scenarios []string
	)

	runCmd := &cobra.Command{
		Use:   "run <config.yaml>",
		Short: "Run the scenario suite described by a configuration file",
		Example: `  staleguard run suite.yaml
  staleguard run suite.yaml --scenario retry-loop --scenario bounded-attempts
  staleguard run suite.yaml --watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromFile(args[0])
			if err != nil {
				return err
			}
			if err := selectScenarios(cfg, scenarios); err != nil {
				return err
			}
			if watch {
				return watchSuite(cmd.Context(), gs, args[0], cfg, scenarios)
			}
			return runSuite(cmd.Context(), gs, cfg)
		},
	}

	runCmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-run the suite whenever the configuration file changes")
	runCmd.Flags().StringSliceVarP(&scenarios, "scenario", "s", nil, "run only the named scenarios (repeatable)")
	return runCmd
}

// selectScenarios overrides the configured scenario list from the command line.
func selectScenarios(cfg *config.SuiteConfig, names []string) error {
	if len(names) == 0 {
		return nil
	}
	cfg.Scenarios = names
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid --scenario selection: %w", err)
	}
	return nil
}

func runSuite(ctx context.Context, gs *globalState, cfg *config.SuiteConfig) error {
	logger := gs.logger(cfg.LogLevel).WithField("suite", cfg.Name)

	creds, err := browser.LoadCredentials(gs.lookupEnv)
	if err != nil {
		return err
	}
	if cfg.Browser.Driver == browser.DriverRemote {
		if err := creds.Validate(); err != nil {
			return errors.New(errors.KindSession, "credentials", "", err)
		}
	}

	var wg sync.WaitGroup
	defer wg.Wait()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Fixture != nil {
		ln, err := net.Listen("tcp", cfg.Fixture.Addr)
		if err != nil {
			return fmt.Errorf("failed to start fixture server: %w", err)
		}
		// An ephemeral port is only known once listening.
		if cfg.BaseURL == "http://"+cfg.Fixture.Addr+fixture.HomePath {
			cfg.BaseURL = "http://" + ln.Addr().String() + fixture.HomePath
		}
		server := fixture.New(*cfg.Fixture, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Serve(runCtx, ln); err != nil {
				logger.Errorf("fixture server stopped: %v", err)
			}
		}()

		health := monitoring.NewHealthManager(2 * time.Second)
		health.Register(monitoring.HTTPProbe("fixture", "http://"+ln.Addr().String()+fixture.HealthPath, true))
		if report := health.Check(runCtx); report.Status != monitoring.HealthStatusHealthy {
			return fmt.Errorf("fixture server is not healthy: %s", report.Failed()[0].Error)
		}
	}

	var metrics *monitoring.MetricsManager
	if cfg.Metrics.Enabled {
		metrics = monitoring.NewMetricsManager(cfg.Metrics.MetricsConfig)
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Infof("serving metrics on %s%s", cfg.Metrics.ListenAddress, cfg.Metrics.MetricsPath)
			if err := metrics.StartMetricsServer(runCtx, cfg.Metrics.ListenAddress, cfg.Metrics.MetricsPath); err != nil {
				logger.Errorf("metrics server stopped: %v", err)
			}
		}()
	}

	opener := gs.newOpener(&cfg.Browser, creds, logger)
	runner := scenario.NewRunner(opener, cfg.RunnerOptions(), logger).WithMetrics(metrics)

	results, runErr := runner.Run(runCtx)

	summaryOut := gs.stdout
	if len(results) > 0 {
		toStdout := cfg.Output.Format == report.FormatJSON && cfg.Output.File == ""
		if toStdout {
			summaryOut = gs.stderr
		}
		if err := writeReport(ctx, gs, cfg.Output, results); err != nil {
			return fmt.Errorf("failed to write results: %w", err)
		}
	}
	printSummary(summaryOut, results)

	if runErr != nil {
		return runErr
	}
	if s := report.Summarize(results); s.Failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed: %w", s.Failed, s.Total, errors.ErrScenarioFailed)
	}
	return nil
}

func writeReport(ctx context.Context, gs *globalState, output report.OutputConfig, results []report.Result) error {
	var writer report.Writer
	if output.Format == report.FormatJSON && output.File == "" {
		writer = report.NewJSONStreamWriter(gs.stdout)
	} else {
		w, err := report.NewWriter(ctx, output)
		if err != nil {
			return err
		}
		writer = w
	}

	if err := writer.Write(ctx, results); err != nil {
		writer.Close()
		return err
	}
	return writer.Close()
}

func printSummary(w io.Writer, results []report.Result) {
	for _, r := range results {
		fmt.Fprintf(w, "%s  %-20s %8s", r.Status(), r.Scenario, r.Duration.Round(time.Millisecond))
		if !r.Passed {
			fmt.Fprintf(w, "  %s", r.Fault)
			if r.Locator != "" {
				fmt.Fprintf(w, " at %s", r.Locator)
			}
		}
		fmt.Fprintln(w)
	}
	s := report.Summarize(results)
	fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", s.Passed, s.Failed, s.Total)
}

// watchSuite re-runs the suite on every valid edit of path until ctx ends.
func watchSuite(ctx context.Context, gs *globalState, path string, cfg *config.SuiteConfig, scenarios []string) error {
	watcher, err := config.NewConfigWatcher(path, gs.logger(cfg.LogLevel))
	if err != nil {
		return err
	}
	defer watcher.Close()

	reloads := make(chan *config.SuiteConfig, 1)
	watcher.OnChange(func(c *config.SuiteConfig) {
		select {
		case <-reloads:
		default:
		}
		reloads <- c
	})

	errorService := errors.NewService().WithVerbose(gs.verbose)
	for {
		if err := runSuite(ctx, gs, cfg); err != nil && ctx.Err() == nil {
			fmt.Fprint(gs.stderr, errorService.FormatErrorForCLI(err))
		}
		fmt.Fprintf(gs.stderr, "watching %s for changes (Ctrl+C to stop)\n", path)

		next, ok := nextConfig(ctx, reloads, scenarios, func(err error) {
			fmt.Fprint(gs.stderr, errorService.FormatErrorForCLI(err))
		})
		if !ok {
			return nil
		}
		cfg = next
	}
}

// nextConfig waits for a reload that still accepts the --scenario selection.
func nextConfig(ctx context.Context, reloads <-chan *config.SuiteConfig, scenarios []string, reject func(error)) (*config.SuiteConfig, bool) {
	for {
		select {
		case <-ctx.Done():
			return nil, false
		case next := <-reloads:
			if err := selectScenarios(next, scenarios); err != nil {
				reject(err)
				continue
			}
			return next, true
		}
	}
}
