// internal/scenario/scenarios.go
package scenario

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/valpere/staleguard/internal/browser"
	"github.com/valpere/staleguard/internal/errors"
	"github.com/valpere/staleguard/internal/locator"
	"github.com/valpere/staleguard/internal/utils"
	"github.com/valpere/staleguard/internal/wait"
)

// Scenario names.
const (
	ProvokeStale      = "provoke-stale"
	Reinitialize      = "reinitialize"
	RetryLoop         = "retry-loop"
	BoundedAttempts   = "bounded-attempts"
	ChainedConditions = "chained-conditions"
)

// Filter texts typed before and after navigating back.
const (
	FirstFilter  = "in progress"
	SecondFilter = "completed"
)

const (
	// DefaultMaxAttempts caps bounded-attempts when wait.max_attempts is unset.
	DefaultMaxAttempts = 10
	// ChainedTimeout is the budget of the chained-conditions wait.
	ChainedTimeout = 5 * time.Second
)

// ErrStaleNotRaised means a handle from before a navigation still worked.
var ErrStaleNotRaised = stderrors.New("pre-navigation handle was not rejected")

// Env is what a scenario runs against.
type Env struct {
	Page   *Playground
	Wait   wait.Options
	Logger utils.Logger
}

// Func runs one scenario. A nil error means it passed.
type Func func(ctx context.Context, env *Env) error

// Scenario is a named strategy for surviving the navigation.
type Scenario struct {
	Name        string
	Description string
	Run         Func
}

var registry = []Scenario{
	{
		Name:        ProvokeStale,
		Description: "reuses a pre-navigation handle and expects a stale reference fault",
		Run:         provokeStale,
	},
	{
		Name:        Reinitialize,
		Description: "re-finds every element once after each navigation",
		Run:         reinitialize,
	},
	{
		Name:        RetryLoop,
		Description: "resolves elements with the retry helper",
		Run:         retryLoop,
	},
	{
		Name:        BoundedAttempts,
		Description: "resolves elements with the retry helper capped at a number of attempts",
		Run:         boundedAttempts,
	},
	{
		Name:        ChainedConditions,
		Description: "waits for refreshed(presence of) with a 5s budget",
		Run:         chainedConditions,
	},
}

// All returns every scenario in run order.
func All() []Scenario {
	out := make([]Scenario, len(registry))
	copy(out, registry)
	return out
}

// Names returns every scenario name in run order.
func Names() []string {
	names := make([]string, len(registry))
	for i, s := range registry {
		names[i] = s.Name
	}
	return names
}

// Lookup finds a scenario by name.
func Lookup(name string) (Scenario, bool) {
	for _, s := range registry {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}

type finder func(ctx context.Context, loc locator.Locator) (browser.Element, error)

// roundTrip opens the playground, filters the table, goes back and filters
// again. Every element is obtained through find after the navigation that
// precedes its use.
func roundTrip(ctx context.Context, env *Env, find finder) error {
	p := env.Page
	if err := p.Open(ctx); err != nil {
		return err
	}
	for i, text := range []string{FirstFilter, SecondFilter} {
		if i > 0 {
			if err := p.Back(ctx); err != nil {
				return err
			}
		}
		link, err := find(ctx, FilterLink)
		if err != nil {
			return err
		}
		if err := p.Follow(ctx, link); err != nil {
			return err
		}
		input, err := find(ctx, FilterInput)
		if err != nil {
			return err
		}
		if err := p.Filter(ctx, input, text); err != nil {
			return err
		}
		env.Logger.Debugf("filtered tasks by %q", text)
	}
	return nil
}

func provokeStale(ctx context.Context, env *Env) error {
	p := env.Page
	s := p.Session()
	if err := p.Open(ctx); err != nil {
		return err
	}
	link, err := wait.Resolve(ctx, s, FilterLink, env.Wait)
	if err != nil {
		return err
	}
	if err := p.Follow(ctx, link); err != nil {
		return err
	}
	input, err := wait.Resolve(ctx, s, FilterInput, env.Wait)
	if err != nil {
		return err
	}
	if err := p.Filter(ctx, input, FirstFilter); err != nil {
		return err
	}
	if err := p.Back(ctx); err != nil {
		return err
	}

	err = link.Click(ctx)
	switch {
	case errors.Is(err, errors.ErrStale):
		env.Logger.Infof("pre-navigation handle rejected: %v", err)
		return nil
	case err != nil:
		return err
	}
	return errors.New(errors.KindUnknown, "click", FilterLink.String(), ErrStaleNotRaised)
}

func reinitialize(ctx context.Context, env *Env) error {
	s := env.Page.Session()
	return roundTrip(ctx, env, func(ctx context.Context, loc locator.Locator) (browser.Element, error) {
		return wait.ResolveNow(ctx, s, loc)
	})
}

func retryLoop(ctx context.Context, env *Env) error {
	s := env.Page.Session()
	return roundTrip(ctx, env, func(ctx context.Context, loc locator.Locator) (browser.Element, error) {
		return wait.Resolve(ctx, s, loc, env.Wait)
	})
}

func boundedAttempts(ctx context.Context, env *Env) error {
	s := env.Page.Session()
	opts := env.Wait
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	return roundTrip(ctx, env, func(ctx context.Context, loc locator.Locator) (browser.Element, error) {
		return wait.Resolve(ctx, s, loc, opts)
	})
}

func chainedConditions(ctx context.Context, env *Env) error {
	s := env.Page.Session()
	opts := env.Wait
	opts.Timeout = ChainedTimeout
	return roundTrip(ctx, env, func(ctx context.Context, loc locator.Locator) (browser.Element, error) {
		return wait.Until(ctx, s, wait.Refreshed(wait.PresenceOf(loc)), opts)
	})
}

func (s Scenario) String() string {
	return fmt.Sprintf("%s: %s", s.Name, s.Description)
}
