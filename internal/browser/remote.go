// internal/browser/remote.go
package browser

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/tebeka/selenium"

	"github.com/valpere/staleguard/internal/errors"
	"github.com/valpere/staleguard/internal/locator"
	"github.com/valpere/staleguard/internal/utils"
)

// newRemote is swapped in tests.
var newRemote = selenium.NewRemote

// tebeka/selenium routes every command through the package-level HTTPClient.
var httpClientMu sync.Mutex

// RemoteSession implements Session over the W3C WebDriver protocol.
type RemoteSession struct {
	statsRecorder

	wd      selenium.WebDriver
	config  *Config
	limiter *utils.RateLimiter
	logger  utils.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewRemoteSession opens a session on the remote grid and maximises its window.
func NewRemoteSession(ctx context.Context, config *Config, creds Credentials, logger utils.Logger) (*RemoteSession, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	if err := creds.Validate(); err != nil {
		return nil, errors.New(errors.KindSession, "open", "", err)
	}
	hub, err := hubEndpoint(config.HubURL)
	if err != nil {
		return nil, errors.New(errors.KindSession, "open", "", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	caps := Capabilities(config, creds)

	httpClientMu.Lock()
	client := newAuthClient(creds, nil)
	client.Timeout = config.Timeout
	selenium.HTTPClient = client
	httpClientMu.Unlock()

	logger.WithFields(map[string]interface{}{
		"hub":     hub,
		"browser": config.BrowserName,
		"version": config.BrowserVersion,
		"user":    creds.Username,
	}).Info("opening remote session")

	wd, err := newRemote(caps, hub)
	if err != nil {
		return nil, classifyRemote("open", "", err)
	}

	s := &RemoteSession{
		wd:      wd,
		config:  config,
		limiter: utils.NewRateLimiter(config.CommandsPerSecond, 1),
		logger:  logger.WithField("session", wd.SessionID()),
	}

	if err := s.MaximizeWindow(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize browser: %w", err)
	}
	return s, nil
}

// command waits for the throttle and the caller's context before a round trip.
func (s *RemoteSession) command(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.limiter.Wait(ctx)
}

// Navigate navigates to a URL
func (s *RemoteSession) Navigate(ctx context.Context, url string) error {
	if err := s.command(ctx); err != nil {
		return err
	}
	start := time.Now()
	if err := s.wd.Get(url); err != nil {
		return s.recordFault(classifyRemote("navigate", "", err))
	}
	s.recordLoad(time.Since(start))
	s.logger.Debugf("navigated to %s", url)
	return nil
}

// Back goes back in history
func (s *RemoteSession) Back(ctx context.Context) error {
	if err := s.command(ctx); err != nil {
		return err
	}
	if err := s.wd.Back(); err != nil {
		return s.recordFault(classifyRemote("back", "", err))
	}
	return nil
}

// Refresh reloads the page
func (s *RemoteSession) Refresh(ctx context.Context) error {
	if err := s.command(ctx); err != nil {
		return err
	}
	if err := s.wd.Refresh(); err != nil {
		return s.recordFault(classifyRemote("refresh", "", err))
	}
	return nil
}

// FindElement resolves loc on the current page
func (s *RemoteSession) FindElement(ctx context.Context, loc locator.Locator) (Element, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	if err := s.command(ctx); err != nil {
		return nil, err
	}
	s.recordFind()
	we, err := s.wd.FindElement(string(loc.Strategy), loc.Value)
	if err != nil {
		return nil, s.recordFault(classifyRemote("find", loc.String(), err))
	}
	return &remoteElement{session: s, we: we, loc: loc.String()}, nil
}

// Evaluate runs a JavaScript expression
func (s *RemoteSession) Evaluate(ctx context.Context, expression string) (interface{}, error) {
	if err := s.command(ctx); err != nil {
		return nil, err
	}
	res, err := s.wd.ExecuteScript("return ("+expression+");", nil)
	if err != nil {
		s.recordScriptError()
		return nil, s.recordFault(classifyRemote("evaluate", "", err))
	}
	return res, nil
}

// PageSource returns the current page source
func (s *RemoteSession) PageSource(ctx context.Context) (string, error) {
	if err := s.command(ctx); err != nil {
		return "", err
	}
	src, err := s.wd.PageSource()
	if err != nil {
		return "", s.recordFault(classifyRemote("page source", "", err))
	}
	return src, nil
}

// MaximizeWindow maximizes the current window
func (s *RemoteSession) MaximizeWindow(ctx context.Context) error {
	if err := s.command(ctx); err != nil {
		return err
	}
	if err := s.wd.MaximizeWindow(""); err != nil {
		return s.recordFault(classifyRemote("maximize", "", err))
	}
	return nil
}

// Close quits the remote session. Calling it again is a no-op.
func (s *RemoteSession) Close() error {
	s.closeOnce.Do(func() {
		if err := s.wd.Quit(); err != nil {
			s.closeErr = classifyRemote("quit", "", err)
			s.logger.Warnf("remote quit failed: %v", err)
			return
		}
		s.logger.Info("remote session closed")
	})
	return s.closeErr
}

type remoteElement struct {
	session *RemoteSession
	we      selenium.WebElement
	loc     string
}

func (e *remoteElement) Click(ctx context.Context) error {
	if err := e.session.command(ctx); err != nil {
		return err
	}
	return e.session.recordFault(classifyRemote("click", e.loc, e.we.Click()))
}

func (e *remoteElement) SendKeys(ctx context.Context, text string) error {
	if err := e.session.command(ctx); err != nil {
		return err
	}
	return e.session.recordFault(classifyRemote("send keys", e.loc, e.we.SendKeys(text)))
}

func (e *remoteElement) Text(ctx context.Context) (string, error) {
	if err := e.session.command(ctx); err != nil {
		return "", err
	}
	text, err := e.we.Text()
	return text, e.session.recordFault(classifyRemote("text", e.loc, err))
}

func (e *remoteElement) TagName(ctx context.Context) (string, error) {
	if err := e.session.command(ctx); err != nil {
		return "", err
	}
	name, err := e.we.TagName()
	return strings.ToLower(name), e.session.recordFault(classifyRemote("tag name", e.loc, err))
}

// classifyRemote maps WebDriver error codes onto fault kinds.
func classifyRemote(op, loc string, err error) error {
	if err == nil {
		return nil
	}

	code := ""
	httpCode := 0
	var werr *selenium.Error
	if stderrors.As(err, &werr) {
		code = strings.ToLower(werr.Err)
		httpCode = werr.HTTPCode
	}
	if code == "" {
		code = strings.ToLower(err.Error())
	}

	var netErr net.Error
	switch {
	case strings.Contains(code, "stale element reference"):
		return errors.New(errors.KindStale, op, loc, err)
	case strings.Contains(code, "no such element"):
		return errors.New(errors.KindNotFound, op, loc, err)
	case strings.Contains(code, "invalid selector"), strings.Contains(code, "invalid argument"):
		return errors.New(errors.KindInvalidLocator, op, loc, err)
	case strings.Contains(code, "invalid session id"),
		strings.Contains(code, "session not created"),
		strings.Contains(code, "no such window"),
		strings.Contains(code, "unauthorized"),
		httpCode == 401, httpCode == 403:
		return errors.New(errors.KindSession, op, loc, err)
	case stderrors.As(err, &netErr), strings.Contains(code, "connection refused"):
		return errors.New(errors.KindSession, op, loc, err)
	default:
		return errors.New(errors.KindUnknown, op, loc, err)
	}
}
