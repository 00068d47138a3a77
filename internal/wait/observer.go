// internal/wait/observer.go
package wait

import (
	"time"

	"github.com/valpere/staleguard/internal/errors"
	"github.com/valpere/staleguard/internal/utils"
)

// Observer is told about every attempt and the outcome of each wait.
// err is nil for a successful attempt or wait.
type Observer interface {
	Attempt(condition string, attempt int, err error)
	Done(condition string, attempts int, elapsed time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) Attempt(string, int, error)             {}
func (nopObserver) Done(string, int, time.Duration, error) {}

type multiObserver []Observer

func (m multiObserver) Attempt(condition string, attempt int, err error) {
	for _, o := range m {
		o.Attempt(condition, attempt, err)
	}
}

func (m multiObserver) Done(condition string, attempts int, elapsed time.Duration, err error) {
	for _, o := range m {
		o.Done(condition, attempts, elapsed, err)
	}
}

// Observers fans out to every non-nil observer.
func Observers(observers ...Observer) Observer {
	var m multiObserver
	for _, o := range observers {
		if o != nil {
			m = append(m, o)
		}
	}
	return m
}

type logObserver struct {
	logger utils.Logger
}

// LogObserver logs retried attempts at debug level and failed waits as warnings.
func LogObserver(logger utils.Logger) Observer {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return logObserver{logger: logger}
}

func (l logObserver) Attempt(condition string, attempt int, err error) {
	if err == nil {
		return
	}
	l.logger.WithFields(map[string]interface{}{
		"condition": condition,
		"attempt":   attempt,
		"fault":     errors.KindOf(err).String(),
	}).Debugf("attempt failed: %v", err)
}

func (l logObserver) Done(condition string, attempts int, elapsed time.Duration, err error) {
	entry := l.logger.WithFields(map[string]interface{}{
		"condition": condition,
		"attempts":  attempts,
		"elapsed":   elapsed.Round(time.Millisecond).String(),
	})
	if err != nil {
		entry.WithField("fault", errors.KindOf(err).String()).Warnf("wait failed: %v", err)
		return
	}
	if attempts > 1 {
		entry.Info("resolved after retry")
		return
	}
	entry.Debug("resolved")
}
