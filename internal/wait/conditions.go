// internal/wait/conditions.go
package wait

import (
	"context"
	"fmt"

	"github.com/valpere/staleguard/internal/browser"
	"github.com/valpere/staleguard/internal/errors"
	"github.com/valpere/staleguard/internal/locator"
)

// Condition is one attempt at something Until polls for. Check returns a
// transient fault or a pending error to ask for another attempt.
type Condition[T any] interface {
	Check(ctx context.Context, d Driver) (T, error)
	String() string
}

type conditionFunc[T any] struct {
	name  string
	check func(ctx context.Context, d Driver) (T, error)
}

func (c conditionFunc[T]) Check(ctx context.Context, d Driver) (T, error) {
	return c.check(ctx, d)
}

func (c conditionFunc[T]) String() string {
	return c.name
}

// Func adapts a function to a Condition.
func Func[T any](name string, check func(ctx context.Context, d Driver) (T, error)) Condition[T] {
	return conditionFunc[T]{name: name, check: check}
}

// Pending reports that a condition is not met yet. Until retries it like a
// transient fault.
func Pending(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errPending, fmt.Sprintf(format, args...))
}

// IsPending reports whether err came from Pending.
func IsPending(err error) bool {
	return errors.Is(err, errPending)
}

type presence struct {
	loc locator.Locator
}

// PresenceOf finds the element for loc. It does not check the handle.
func PresenceOf(loc locator.Locator) Condition[browser.Element] {
	return presence{loc: loc}
}

func (p presence) Check(ctx context.Context, d Driver) (browser.Element, error) {
	if err := p.loc.Validate(); err != nil {
		return nil, err
	}
	return d.FindElement(ctx, p.loc)
}

func (p presence) String() string {
	return "presence of " + p.loc.String()
}

type refreshed struct {
	inner Condition[browser.Element]
}

// Refreshed runs inner and then reads the tag name of the element it returned,
// so a handle that went stale in between is retried instead of returned.
func Refreshed(inner Condition[browser.Element]) Condition[browser.Element] {
	return refreshed{inner: inner}
}

func (r refreshed) Check(ctx context.Context, d Driver) (browser.Element, error) {
	el, err := r.inner.Check(ctx, d)
	if err != nil {
		return nil, err
	}
	if _, err := el.TagName(ctx); err != nil {
		return nil, err
	}
	return el, nil
}

func (r refreshed) String() string {
	return "refreshed " + r.inner.String()
}

// DocumentReady waits for document.readyState to be "complete".
func DocumentReady() Condition[bool] {
	return Func("document ready", func(ctx context.Context, d Driver) (bool, error) {
		state, err := d.Evaluate(ctx, "document.readyState")
		if err != nil {
			return false, err
		}
		if state != "complete" {
			return false, Pending("document.readyState is %v", state)
		}
		return true, nil
	})
}

// AjaxIdle waits until jQuery is loaded and has no requests in flight.
func AjaxIdle() Condition[bool] {
	return Func("ajax idle", func(ctx context.Context, d Driver) (bool, error) {
		idle, err := d.Evaluate(ctx, "window.jQuery != undefined && jQuery.active == 0")
		if err != nil {
			return false, err
		}
		if ok, _ := idle.(bool); !ok {
			return false, Pending("jQuery requests still active")
		}
		return true, nil
	})
}
