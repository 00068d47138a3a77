// internal/browser/types.go
package browser

import (
	"context"
	"sync"
	"time"

	"github.com/valpere/staleguard/internal/errors"
	"github.com/valpere/staleguard/internal/locator"
)

// Supported drivers.
const (
	DriverRemote     = "remote"
	DriverChromedp   = "chromedp"
	DriverPlaywright = "playwright"
)

// DefaultHubURL is the LambdaTest Selenium grid endpoint. Credentials are
// never embedded in it.
const DefaultHubURL = "https://hub.lambdatest.com/wd/hub"

// Config defines browser session configuration
type Config struct {
	Driver string `yaml:"driver" json:"driver"`

	// Remote grid settings
	HubURL          string `yaml:"hub_url,omitempty" json:"hub_url,omitempty"`
	BrowserName     string `yaml:"browser_name" json:"browser_name"`
	BrowserVersion  string `yaml:"browser_version" json:"browser_version"`
	Platform        string `yaml:"platform" json:"platform"`
	Build           string `yaml:"build,omitempty" json:"build,omitempty"`
	SessionName     string `yaml:"session_name,omitempty" json:"session_name,omitempty"`
	SeleniumVersion string `yaml:"selenium_version,omitempty" json:"selenium_version,omitempty"`

	// CDP toggles seCdp on the grid. Unset means enabled.
	CDP *bool `yaml:"cdp,omitempty" json:"cdp,omitempty"`

	// CDPURL attaches chromedp or playwright to an already running browser.
	CDPURL string `yaml:"cdp_url,omitempty" json:"cdp_url,omitempty"`

	Headless       bool          `yaml:"headless" json:"headless"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
	ViewportWidth  int           `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight int           `yaml:"viewport_height" json:"viewport_height"`
	UserAgent      string        `yaml:"user_agent,omitempty" json:"user_agent,omitempty"`
	DisableImages  bool          `yaml:"disable_images" json:"disable_images"`

	// CommandsPerSecond throttles remote WebDriver commands; 0 disables it.
	CommandsPerSecond float64 `yaml:"commands_per_second,omitempty" json:"commands_per_second,omitempty"`
}

// DefaultConfig returns the LambdaTest Chrome configuration the suite was
// written against.
func DefaultConfig() *Config {
	return &Config{
		Driver:          DriverRemote,
		HubURL:          DefaultHubURL,
		BrowserName:     "Chrome",
		BrowserVersion:  "latest",
		Platform:        "Windows 10",
		Build:           "Selenium 4",
		SessionName:     "StaleElementExceptionsTests",
		SeleniumVersion: "4.0.0",
		CDP:             enabled(),
		Timeout:         30 * time.Second,
		ViewportWidth:   1920,
		ViewportHeight:  1080,
	}
}

// CDPEnabled reports whether the grid should expose CDP to the session.
func (c *Config) CDPEnabled() bool {
	return c.CDP == nil || *c.CDP
}

func enabled() *bool {
	b := true
	return &b
}

// Session is a live browser connection. It owns every Element it returns.
// Sessions carry one command at a time and are not safe for concurrent use.
type Session interface {
	// Navigate loads url and waits for the document body.
	Navigate(ctx context.Context, url string) error

	// Back goes one step back in history.
	Back(ctx context.Context) error

	// Refresh reloads the current page.
	Refresh(ctx context.Context) error

	// FindElement resolves loc against the current page. A missing element is
	// reported as a not-found fault, never as a nil Element.
	FindElement(ctx context.Context, loc locator.Locator) (Element, error)

	// Evaluate runs a JavaScript expression and returns its value.
	Evaluate(ctx context.Context, expression string) (interface{}, error)

	// PageSource returns the serialised DOM of the current page.
	PageSource(ctx context.Context) (string, error)

	// MaximizeWindow grows the window (or viewport) to its configured maximum.
	MaximizeWindow(ctx context.Context) error

	// Close ends the session and releases every handle it produced.
	Close() error
}

// Element is a handle to one DOM node in one page-load generation. Once the
// page navigates every method fails with a stale-reference fault.
type Element interface {
	Click(ctx context.Context) error
	SendKeys(ctx context.Context, text string) error
	Text(ctx context.Context) (string, error)
	TagName(ctx context.Context) (string, error)
}

// Stats contains session statistics
type Stats struct {
	PagesLoaded      int           `json:"pages_loaded"`
	AverageLoadTime  time.Duration `json:"average_load_time"`
	Finds            int           `json:"finds"`
	NotFoundFaults   int           `json:"not_found_faults"`
	StaleFaults      int           `json:"stale_faults"`
	SessionFaults    int           `json:"session_faults"`
	JavaScriptErrors int           `json:"javascript_errors"`
}

// statsRecorder is embedded by every driver.
type statsRecorder struct {
	mu    sync.Mutex
	stats Stats
}

func (r *statsRecorder) recordLoad(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.PagesLoaded++
	if r.stats.PagesLoaded == 1 {
		r.stats.AverageLoadTime = d
	} else {
		r.stats.AverageLoadTime = (r.stats.AverageLoadTime + d) / 2
	}
}

func (r *statsRecorder) recordFind() {
	r.mu.Lock()
	r.stats.Finds++
	r.mu.Unlock()
}

func (r *statsRecorder) recordScriptError() {
	r.mu.Lock()
	r.stats.JavaScriptErrors++
	r.mu.Unlock()
}

// recordFault counts err by kind and returns it unchanged.
func (r *statsRecorder) recordFault(err error) error {
	if err == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	switch errors.KindOf(err) {
	case errors.KindNotFound:
		r.stats.NotFoundFaults++
	case errors.KindStale:
		r.stats.StaleFaults++
	case errors.KindSession:
		r.stats.SessionFaults++
	}
	return err
}

// Stats returns a snapshot of the session statistics.
func (r *statsRecorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
