// internal/browser/open.go
package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/valpere/staleguard/internal/errors"
	"github.com/valpere/staleguard/internal/utils"
)

// Opener creates one session. Scenario runners take an Opener so tests can
// substitute an in-memory browser.
type Opener func(ctx context.Context) (Session, error)

// Open starts a session with the configured driver. Credentials are only
// required by the remote driver.
func Open(ctx context.Context, config *Config, creds Credentials, logger utils.Logger) (Session, error) {
	if config == nil {
		config = DefaultConfig()
	}
	switch strings.ToLower(config.Driver) {
	case "", DriverRemote:
		return NewRemoteSession(ctx, config, creds, logger)
	case DriverChromedp:
		return NewChromeSession(ctx, config, logger)
	case DriverPlaywright:
		return NewPlaywrightSession(ctx, config, logger)
	default:
		return nil, errors.New(errors.KindSession, "open", "", fmt.Errorf("unknown driver %q", config.Driver))
	}
}

// NewOpener binds Open to a configuration.
func NewOpener(config *Config, creds Credentials, logger utils.Logger) Opener {
	return func(ctx context.Context) (Session, error) {
		return Open(ctx, config, creds, logger)
	}
}
