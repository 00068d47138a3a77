// internal/browser/playwright.go
package browser

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/valpere/staleguard/internal/errors"
	"github.com/valpere/staleguard/internal/locator"
	"github.com/valpere/staleguard/internal/utils"
)

// PlaywrightSession implements Session on a single Playwright page.
type PlaywrightSession struct {
	statsRecorder

	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	config  *Config
	logger  utils.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewPlaywrightSession installs the Playwright driver if needed, then launches
// Chromium or connects to config.CDPURL.
func NewPlaywrightSession(ctx context.Context, config *Config, logger utils.Logger) (*PlaywrightSession, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	if err := playwright.Install(opts); err != nil {
		return nil, errors.New(errors.KindSession, "open", "", fmt.Errorf("failed to install playwright: %w", err))
	}
	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, errors.New(errors.KindSession, "open", "", fmt.Errorf("failed to start playwright: %w", err))
	}

	s := &PlaywrightSession{pw: pw, config: config, logger: logger.WithField("driver", DriverPlaywright)}

	if config.CDPURL != "" {
		s.browser, err = pw.Chromium.ConnectOverCDP(config.CDPURL)
	} else {
		s.browser, err = pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: &config.Headless,
		})
	}
	if err != nil {
		s.Close()
		return nil, errors.New(errors.KindSession, "open", "", fmt.Errorf("failed to launch browser: %w", err))
	}

	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  config.ViewportWidth,
			Height: config.ViewportHeight,
		},
	}
	if config.UserAgent != "" {
		contextOpts.UserAgent = &config.UserAgent
	}
	s.context, err = s.browser.NewContext(contextOpts)
	if err != nil {
		s.Close()
		return nil, errors.New(errors.KindSession, "open", "", fmt.Errorf("failed to create context: %w", err))
	}

	s.page, err = s.context.NewPage()
	if err != nil {
		s.Close()
		return nil, errors.New(errors.KindSession, "open", "", fmt.Errorf("failed to create page: %w", err))
	}
	if config.Timeout > 0 {
		s.page.SetDefaultTimeout(float64(config.Timeout / time.Millisecond))
	}
	return s, nil
}

// Navigate loads url and waits for the load event
func (s *PlaywrightSession) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	if _, err := s.page.Goto(url, playwright.PageGotoOptions{WaitUntil: playwright.WaitUntilStateLoad}); err != nil {
		return s.recordFault(classifyPlaywright("navigate", "", err))
	}
	s.recordLoad(time.Since(start))
	return nil
}

// Back navigates back in history
func (s *PlaywrightSession) Back(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.page.GoBack()
	return s.recordFault(classifyPlaywright("back", "", err))
}

// Refresh reloads the page
func (s *PlaywrightSession) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.page.Reload()
	return s.recordFault(classifyPlaywright("refresh", "", err))
}

// FindElement queries the page once; Playwright's own auto-waiting is not used.
func (s *PlaywrightSession) FindElement(ctx context.Context, loc locator.Locator) (Element, error) {
	selector, isXPath, err := loc.Selector()
	if err != nil {
		return nil, err
	}
	if isXPath {
		selector = "xpath=" + selector
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.recordFind()
	handle, err := s.page.QuerySelector(selector)
	if err != nil {
		return nil, s.recordFault(classifyPlaywright("find", loc.String(), err))
	}
	if handle == nil {
		return nil, s.recordFault(errors.New(errors.KindNotFound, "find", loc.String(), nil))
	}
	return &playwrightElement{session: s, handle: handle, loc: loc.String()}, nil
}

// Evaluate runs a JavaScript expression
func (s *PlaywrightSession) Evaluate(ctx context.Context, expression string) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := s.page.Evaluate(expression)
	if err != nil {
		s.recordScriptError()
		return nil, s.recordFault(classifyPlaywright("evaluate", "", err))
	}
	return res, nil
}

// PageSource returns the page HTML
func (s *PlaywrightSession) PageSource(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	html, err := s.page.Content()
	return html, s.recordFault(classifyPlaywright("page source", "", err))
}

// MaximizeWindow resizes the viewport to the configured size
func (s *PlaywrightSession) MaximizeWindow(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.page.SetViewportSize(s.config.ViewportWidth, s.config.ViewportHeight)
	return s.recordFault(classifyPlaywright("maximize", "", err))
}

// Close closes page, context and browser, then stops the driver.
func (s *PlaywrightSession) Close() error {
	s.closeOnce.Do(func() {
		if s.page != nil {
			s.page.Close()
		}
		if s.context != nil {
			s.context.Close()
		}
		if s.browser != nil {
			s.browser.Close()
		}
		if s.pw != nil {
			if err := s.pw.Stop(); err != nil {
				s.closeErr = fmt.Errorf("failed to stop playwright: %w", err)
			}
		}
	})
	return s.closeErr
}

type playwrightElement struct {
	session *PlaywrightSession
	handle  playwright.ElementHandle
	loc     string
}

func (e *playwrightElement) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.session.recordFault(classifyPlaywright("click", e.loc, e.handle.Click()))
}

func (e *playwrightElement) SendKeys(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.session.recordFault(classifyPlaywright("send keys", e.loc, e.handle.Type(text)))
}

func (e *playwrightElement) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := e.handle.TextContent()
	return strings.TrimSpace(text), e.session.recordFault(classifyPlaywright("text", e.loc, err))
}

func (e *playwrightElement) TagName(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	// A handle to a removed node still evaluates until the page navigates, so
	// detachment has to be checked in the page.
	res, err := e.handle.Evaluate(tagNameScript)
	if err != nil {
		return "", e.session.recordFault(classifyPlaywright("tag name", e.loc, err))
	}
	name, _ := res.(string)
	return name, nil
}

const tagNameScript = `el => {
	if (!el.isConnected) throw new Error("Element is not attached to the DOM");
	return el.tagName.toLowerCase();
}`

// classifyPlaywright maps Playwright error messages onto fault kinds.
func classifyPlaywright(op, loc string, err error) error {
	if err == nil {
		return nil
	}
	var f *errors.Fault
	if stderrors.As(err, &f) {
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "not attached to the dom"),
		strings.Contains(msg, "execution context was destroyed"),
		strings.Contains(msg, "handle is disposed"),
		strings.Contains(msg, "cannot find context with specified id"):
		return errors.New(errors.KindStale, op, loc, err)
	case strings.Contains(msg, "is not a valid selector"),
		strings.Contains(msg, "unexpected token"),
		strings.Contains(msg, "unknown engine"):
		return errors.New(errors.KindInvalidLocator, op, loc, err)
	case strings.Contains(msg, "has been closed"),
		strings.Contains(msg, "target closed"),
		strings.Contains(msg, "browser closed"):
		return errors.New(errors.KindSession, op, loc, err)
	}
	return errors.New(errors.KindUnknown, op, loc, err)
}
