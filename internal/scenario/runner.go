// internal/scenario/runner.go
package scenario

import (
	"context"
	"fmt"
	"time"

	"github.com/valpere/staleguard/internal/browser"
	"github.com/valpere/staleguard/internal/errors"
	"github.com/valpere/staleguard/internal/monitoring"
	"github.com/valpere/staleguard/internal/report"
	"github.com/valpere/staleguard/internal/utils"
	"github.com/valpere/staleguard/internal/wait"
)

// Options configures a run.
type Options struct {
	BaseURL   string
	Driver    string
	Wait      wait.Options
	PageWaits PageWaits
	// Scenarios to run, in order. Empty runs all of them.
	Scenarios []string
}

// Runner runs scenarios, each in its own session.
type Runner struct {
	open    browser.Opener
	options Options
	logger  utils.Logger
	metrics *monitoring.MetricsManager
}

// NewRunner creates a runner that opens sessions with open.
func NewRunner(open browser.Opener, options Options, logger utils.Logger) *Runner {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Runner{open: open, options: options, logger: logger}
}

// WithMetrics records waits, scenarios and sessions on m.
func (r *Runner) WithMetrics(m *monitoring.MetricsManager) *Runner {
	r.metrics = m
	return r
}

// Selected returns the scenarios the options name, or all of them.
func (r *Runner) Selected() ([]Scenario, error) {
	if len(r.options.Scenarios) == 0 {
		return All(), nil
	}
	selected := make([]Scenario, 0, len(r.options.Scenarios))
	for _, name := range r.options.Scenarios {
		s, ok := Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown scenario %q", name)
		}
		selected = append(selected, s)
	}
	return selected, nil
}

// Run runs the selected scenarios in order. A failing scenario does not stop
// the run; a cancelled context does, returning the results so far.
func (r *Runner) Run(ctx context.Context) ([]report.Result, error) {
	selected, err := r.Selected()
	if err != nil {
		return nil, err
	}
	results := make([]report.Result, 0, len(selected))
	for _, s := range selected {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, r.RunScenario(ctx, s))
	}
	return results, nil
}

// RunScenario runs s in a fresh session and reports its outcome. The session
// is closed whether the scenario passes, fails or panics.
func (r *Runner) RunScenario(ctx context.Context, s Scenario) report.Result {
	logger := r.logger.WithFields(map[string]interface{}{
		"scenario": s.Name,
		"driver":   r.options.Driver,
	})
	counter := &attemptCounter{}
	start := time.Now()

	logger.Infof("running %s", s)
	err := r.execute(ctx, s, logger, counter)

	result := report.Result{
		Scenario:  s.Name,
		Driver:    r.options.Driver,
		Passed:    err == nil,
		Attempts:  counter.attempts,
		Duration:  time.Since(start),
		StartedAt: start,
	}
	if err != nil {
		result.Fault = errors.KindOf(err).String()
		result.Locator = errors.LocatorOf(err)
		result.Message = err.Error()
		logger.WithField("fault", result.Fault).Errorf("scenario failed: %v", err)
	} else {
		logger.WithField("attempts", result.Attempts).Infof("scenario passed in %s", result.Duration.Round(time.Millisecond))
	}
	if r.metrics != nil {
		r.metrics.RecordScenario(s.Name, r.options.Driver, result.Passed, err, result.Duration)
	}
	return result
}

func (r *Runner) execute(ctx context.Context, s Scenario, logger utils.Logger, counter *attemptCounter) (err error) {
	session, err := r.open(ctx)
	if err != nil {
		return err
	}
	if r.metrics != nil {
		r.metrics.SessionOpened()
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("scenario %s panicked: %v", s.Name, p)
		}
		if closeErr := session.Close(); closeErr != nil {
			logger.Warnf("failed to close session: %v", closeErr)
		}
		if r.metrics != nil {
			r.metrics.SessionClosed()
		}
	}()

	opts := r.options.Wait
	observers := []wait.Observer{wait.LogObserver(logger), counter, opts.Observer}
	if r.metrics != nil {
		observers = append(observers, r.metrics)
	}
	opts.Observer = wait.Observers(observers...)

	env := &Env{
		Page:   NewPlayground(session, r.options.BaseURL, r.options.PageWaits, opts),
		Wait:   opts,
		Logger: logger,
	}
	return s.Run(ctx, env)
}

// attemptCounter totals wait attempts across one scenario.
type attemptCounter struct {
	attempts int
}

func (c *attemptCounter) Attempt(string, int, error) { c.attempts++ }

func (c *attemptCounter) Done(string, int, time.Duration, error) {}
