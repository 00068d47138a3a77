// internal/errors/fault.go

// Package errors defines the fault taxonomy shared by the browser drivers, the
// wait helpers and the CLI.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies a browser fault.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindStale
	KindTimeout
	KindSession
	KindInvalidLocator
)

var kindNames = map[Kind]string{
	KindUnknown:        "unknown",
	KindNotFound:       "not_found",
	KindStale:          "stale_reference",
	KindTimeout:        "timeout",
	KindSession:        "session",
	KindInvalidLocator: "invalid_locator",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels matched by errors.Is against any *Fault of the same kind.
var (
	ErrNotFound       = stderrors.New("no such element")
	ErrStale          = stderrors.New("stale element reference")
	ErrTimeout        = stderrors.New("wait timed out")
	ErrSession        = stderrors.New("session fault")
	ErrInvalidLocator = stderrors.New("invalid locator")
)

var sentinels = map[Kind]error{
	KindNotFound:       ErrNotFound,
	KindStale:          ErrStale,
	KindTimeout:        ErrTimeout,
	KindSession:        ErrSession,
	KindInvalidLocator: ErrInvalidLocator,
}

// kindPrecedence orders the sentinel fallback in KindOf, most final first, so
// a joined error is only transient when nothing worse is in it.
var kindPrecedence = []Kind{KindTimeout, KindSession, KindInvalidLocator, KindStale, KindNotFound}

// Fault is a classified browser error. Op names the operation that failed
// ("find", "click", "resolve" ...) and Locator the element descriptor in play.
type Fault struct {
	Kind     Kind
	Op       string
	Locator  string
	Attempts int
	Elapsed  time.Duration
	Err      error
}

// New builds a fault of the given kind.
func New(kind Kind, op, locator string, err error) *Fault {
	return &Fault{Kind: kind, Op: op, Locator: locator, Err: err}
}

func (f *Fault) Error() string {
	var b strings.Builder
	if sentinel, ok := sentinels[f.Kind]; ok {
		b.WriteString(sentinel.Error())
	} else {
		b.WriteString("browser fault")
	}
	if f.Op != "" {
		b.WriteString(": ")
		b.WriteString(f.Op)
	}
	if f.Locator != "" {
		fmt.Fprintf(&b, " [%s]", f.Locator)
	}
	if f.Attempts > 0 {
		fmt.Fprintf(&b, " after %d attempts in %s", f.Attempts, f.Elapsed.Round(time.Millisecond))
	}
	if f.Err != nil {
		b.WriteString(": ")
		b.WriteString(f.Err.Error())
	}
	return b.String()
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// Is reports whether target is the sentinel for the fault's kind.
func (f *Fault) Is(target error) bool {
	sentinel, ok := sentinels[f.Kind]
	return ok && target == sentinel
}

// KindOf returns the kind of the outermost fault in err's chain.
func KindOf(err error) Kind {
	var f *Fault
	if stderrors.As(err, &f) {
		return f.Kind
	}
	for _, kind := range kindPrecedence {
		if stderrors.Is(err, sentinels[kind]) {
			return kind
		}
	}
	return KindUnknown
}

// IsTransient reports whether err is one of the two faults the wait helpers
// absorb: the element does not exist yet, or it was replaced under us.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindNotFound, KindStale:
		return true
	default:
		return false
	}
}

// LocatorOf returns the locator recorded on the outermost fault, if any.
func LocatorOf(err error) string {
	var f *Fault
	if stderrors.As(err, &f) {
		return f.Locator
	}
	return ""
}

// Is and As are re-exported so callers importing this package under the
// name "errors" do not also need the standard library package.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }
