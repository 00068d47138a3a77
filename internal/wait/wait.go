// internal/wait/wait.go

// Package wait polls a browser until a locator resolves to a live element.
//
// A handle obtained before a navigation must never be used after it. Resolve
// re-finds the element and proves it is attached (by reading its tag name)
// inside one bounded time budget, retrying only the two faults a page
// transition produces: the element is not there yet, or the handle was
// invalidated between find and use.
package wait

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/valpere/staleguard/internal/browser"
	"github.com/valpere/staleguard/internal/errors"
	"github.com/valpere/staleguard/internal/locator"
)

const (
	DefaultTimeout  = 30 * time.Second
	DefaultInterval = 500 * time.Millisecond
)

// Options bound a wait. Not-found and stale faults share the same budget.
type Options struct {
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
	Interval time.Duration `yaml:"interval" json:"interval"`

	// MaxAttempts caps the number of attempts within Timeout; 0 means no cap.
	MaxAttempts int `yaml:"max_attempts,omitempty" json:"max_attempts,omitempty"`

	Observer Observer `yaml:"-" json:"-"`
}

// DefaultOptions returns a 30s budget polled every 500ms.
func DefaultOptions() Options {
	return Options{Timeout: DefaultTimeout, Interval: DefaultInterval}
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.MaxAttempts < 0 {
		o.MaxAttempts = 0
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	return o
}

// Driver is the part of browser.Session the conditions need.
type Driver interface {
	FindElement(ctx context.Context, loc locator.Locator) (browser.Element, error)
	Evaluate(ctx context.Context, expression string) (interface{}, error)
}

var _ Driver = (browser.Session)(nil)

// errPending is returned by conditions that ran cleanly but are not satisfied yet.
var errPending = stderrors.New("condition not satisfied yet")

func retryable(err error) bool {
	return errors.IsTransient(err) || stderrors.Is(err, errPending)
}

// Resolve waits until loc resolves to an element that passes a proof-of-life
// check and returns it. Unrelated faults are returned immediately; running out
// of budget returns an errors.ErrTimeout fault wrapping the last transient one.
func Resolve(ctx context.Context, d Driver, loc locator.Locator, opts Options) (browser.Element, error) {
	return Until(ctx, d, Refreshed(PresenceOf(loc)), opts)
}

// ResolveNow re-resolves loc once, with the proof-of-life check but no retry.
func ResolveNow(ctx context.Context, d Driver, loc locator.Locator) (browser.Element, error) {
	return Refreshed(PresenceOf(loc)).Check(ctx, d)
}

// Until polls cond until it succeeds, fails with a non-transient error, or the
// budget runs out.
func Until[T any](ctx context.Context, d Driver, cond Condition[T], opts Options) (T, error) {
	var zero T
	opts = opts.withDefaults()
	name := cond.String()

	start := time.Now()
	deadline := start.Add(opts.Timeout)
	waitCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	var last error
	attempts := 0

	timedOut := func(cause error) (T, error) {
		if last == nil {
			last = cause
		}
		err := &errors.Fault{
			Kind:     errors.KindTimeout,
			Op:       name,
			Locator:  errors.LocatorOf(last),
			Attempts: attempts,
			Elapsed:  time.Since(start),
			Err:      last,
		}
		opts.Observer.Done(name, attempts, err.Elapsed, err)
		return zero, err
	}

	// A caller deadline is a budget too; only cancellation is reported as is.
	stopped := func(cause, ctxErr error) (T, error) {
		if stderrors.Is(ctxErr, context.DeadlineExceeded) {
			return timedOut(cause)
		}
		opts.Observer.Done(name, attempts, time.Since(start), ctxErr)
		return zero, ctxErr
	}

	for {
		attempts++
		value, err := cond.Check(waitCtx, d)
		opts.Observer.Attempt(name, attempts, err)
		if err == nil {
			opts.Observer.Done(name, attempts, time.Since(start), nil)
			return value, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return stopped(err, ctxErr)
		}
		if waitCtx.Err() != nil {
			// our own deadline interrupted the driver call
			return timedOut(err)
		}
		if !retryable(err) {
			opts.Observer.Done(name, attempts, time.Since(start), err)
			return zero, err
		}
		last = err

		if opts.MaxAttempts > 0 && attempts >= opts.MaxAttempts {
			return timedOut(err)
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return timedOut(err)
		}

		sleep := opts.Interval
		if remaining < sleep {
			sleep = remaining
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return stopped(err, ctx.Err())
		case <-timer.C:
		}

		if !time.Now().Before(deadline) {
			return timedOut(err)
		}
	}
}
