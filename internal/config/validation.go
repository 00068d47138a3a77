// internal/config/validation.go - validation with detailed error messages
package config

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"

	"github.com/valpere/staleguard/internal/browser"
	"github.com/valpere/staleguard/internal/scenario"
)

// ValidationError represents a detailed validation error
type ValidationError struct {
	Field   string `json:"field"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ve.Field, ve.Message)
}

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Errors   []ValidationError `json:"errors"`
	Warnings []string          `json:"warnings"`
}

func (r *ValidationResult) add(field, value, format string, args ...interface{}) {
	r.Errors = append(r.Errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf(format, args...),
	})
}

func (r *ValidationResult) warn(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validate returns every problem with the configuration in one error.
func (c *SuiteConfig) Validate() error {
	result := c.ValidateWithDetails()
	if !result.Valid {
		return formatValidationError(result)
	}
	return nil
}

// ValidateWithDetails provides detailed validation results
func (c *SuiteConfig) ValidateWithDetails() *ValidationResult {
	result := &ValidationResult{
		Errors:   make([]ValidationError, 0),
		Warnings: make([]string, 0),
	}

	c.validateBasicFields(result)
	c.validateBrowser(result)
	c.validateWait(result)
	c.validateScenarios(result)
	c.validateOutput(result)
	c.validateMetrics(result)
	c.validateFixture(result)

	result.Valid = len(result.Errors) == 0
	return result
}

func (c *SuiteConfig) validateBasicFields(result *ValidationResult) {
	if c.Name == "" {
		result.add("name", "", "Suite name is required")
	}

	if c.BaseURL == "" {
		result.add("base_url", "", "Base URL is required")
	} else if err := checkURL(c.BaseURL, "http", "https"); err != nil {
		result.add("base_url", c.BaseURL, "%s", err)
	} else if strings.HasPrefix(c.BaseURL, "http://") && c.Fixture == nil {
		result.warn("base_url uses plain HTTP")
	}

	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		result.add("log_level", c.LogLevel, "Log level must be one of debug, info, warn, error")
	}
}

func (c *SuiteConfig) validateBrowser(result *ValidationResult) {
	b := c.Browser
	switch b.Driver {
	case browser.DriverRemote:
		if err := checkURL(b.HubURL, "http", "https"); err != nil {
			result.add("browser.hub_url", redact(b.HubURL), "%s", err)
		} else if u, _ := url.Parse(b.HubURL); u.User != nil {
			result.add("browser.hub_url", redact(b.HubURL),
				"Hub URL must not embed credentials; set LT_USERNAME and LT_ACCESSKEY instead")
		}
		if b.CDPURL != "" {
			result.warn("browser.cdp_url is ignored by the remote driver")
		}
	case browser.DriverChromedp, browser.DriverPlaywright:
		if b.CDPURL != "" {
			if err := checkURL(b.CDPURL, "ws", "wss", "http", "https"); err != nil {
				result.add("browser.cdp_url", b.CDPURL, "%s", err)
			}
		}
		if b.CommandsPerSecond > 0 {
			result.warn("browser.commands_per_second only throttles the remote driver")
		}
	default:
		result.add("browser.driver", b.Driver, "Driver must be one of %s, %s, %s",
			browser.DriverRemote, browser.DriverChromedp, browser.DriverPlaywright)
	}

	if b.Timeout < 0 {
		result.add("browser.timeout", b.Timeout.String(), "Timeout cannot be negative")
	}
	if b.ViewportWidth < 0 || b.ViewportHeight < 0 {
		result.add("browser.viewport", fmt.Sprintf("%dx%d", b.ViewportWidth, b.ViewportHeight),
			"Viewport dimensions cannot be negative")
	}
	if b.CommandsPerSecond < 0 {
		result.add("browser.commands_per_second", fmt.Sprintf("%g", b.CommandsPerSecond),
			"Commands per second cannot be negative")
	}
}

func (c *SuiteConfig) validateWait(result *ValidationResult) {
	w := c.Wait
	if w.Timeout <= 0 {
		result.add("wait.timeout", w.Timeout.String(), "Wait timeout must be positive")
	}
	if w.Interval <= 0 {
		result.add("wait.interval", w.Interval.String(), "Wait interval must be positive")
	}
	if w.Timeout > 0 && w.Interval > w.Timeout {
		result.add("wait.interval", w.Interval.String(),
			"Wait interval must not exceed the timeout (%s)", w.Timeout)
	}
	if w.MaxAttempts < 0 {
		result.add("wait.max_attempts", fmt.Sprintf("%d", w.MaxAttempts), "Max attempts cannot be negative")
	}
}

func (c *SuiteConfig) validateScenarios(result *ValidationResult) {
	seen := make(map[string]bool, len(c.Scenarios))
	for i, name := range c.Scenarios {
		field := fmt.Sprintf("scenarios[%d]", i)
		if _, ok := scenario.Lookup(name); !ok {
			result.add(field, name, "Unknown scenario; valid scenarios: %s", strings.Join(scenario.Names(), ", "))
			continue
		}
		if seen[name] {
			result.add(field, name, "Scenario is listed more than once")
		}
		seen[name] = true
	}
}

func (c *SuiteConfig) validateOutput(result *ValidationResult) {
	if err := c.Output.Validate(); err != nil {
		result.add("output", string(c.Output.Format), "%s", err)
	}
}

func (c *SuiteConfig) validateMetrics(result *ValidationResult) {
	if !c.Metrics.Enabled {
		return
	}
	if _, _, err := net.SplitHostPort(c.Metrics.ListenAddress); err != nil {
		result.add("metrics.listen_address", c.Metrics.ListenAddress, "Invalid listen address: %s", err)
	}
	if !strings.HasPrefix(c.Metrics.MetricsPath, "/") {
		result.add("metrics.metrics_path", c.Metrics.MetricsPath, "Metrics path must start with /")
	}
}

func (c *SuiteConfig) validateFixture(result *ValidationResult) {
	f := c.Fixture
	if f == nil {
		return
	}
	if _, _, err := net.SplitHostPort(f.Addr); err != nil {
		result.add("fixture.addr", f.Addr, "Invalid listen address: %s", err)
	}
	if f.FilterDelay < 0 {
		result.add("fixture.filter_delay", f.FilterDelay.String(), "Filter delay cannot be negative")
	}
	if f.RequestsPerSecond < 0 {
		result.add("fixture.requests_per_second", fmt.Sprintf("%g", f.RequestsPerSecond),
			"Requests per second cannot be negative")
	}
	if f.FilterDelay > 0 && f.FilterDelay >= c.Wait.Timeout {
		result.warn("fixture.filter_delay %s is not shorter than wait.timeout %s; retrying scenarios will time out",
			f.FilterDelay, c.Wait.Timeout)
	}
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("Invalid URL format: %v", err)
	}
	if u.Scheme == "" {
		return fmt.Errorf("URL must include protocol (%s)", strings.Join(schemes, ", "))
	}
	if !slices.Contains(schemes, strings.ToLower(u.Scheme)) {
		return fmt.Errorf("Unsupported URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must include hostname")
	}
	return nil
}

// redact hides userinfo so a bad hub URL never echoes an access key.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = url.User("****")
	return u.String()
}

// formatValidationError creates a comprehensive error message
func formatValidationError(result *ValidationResult) error {
	var errorMsg strings.Builder

	errorMsg.WriteString("configuration validation failed:\n")
	for i, err := range result.Errors {
		errorMsg.WriteString(fmt.Sprintf("  %d. %s", i+1, err.Message))
		if err.Field != "" {
			errorMsg.WriteString(fmt.Sprintf(" (field: %s)", err.Field))
		}
		if err.Value != "" {
			errorMsg.WriteString(fmt.Sprintf(" (value: %s)", err.Value))
		}
		errorMsg.WriteString("\n")
	}

	return fmt.Errorf("%s", strings.TrimRight(errorMsg.String(), "\n"))
}

// Suggestions returns actionable hints for the fields that failed.
func (r *ValidationResult) Suggestions() []string {
	var suggestions []string
	var hasURL, hasWait, hasScenario, hasOutput bool
	for _, err := range r.Errors {
		switch {
		case strings.Contains(err.Field, "url"):
			hasURL = true
		case strings.HasPrefix(err.Field, "wait"):
			hasWait = true
		case strings.HasPrefix(err.Field, "scenarios"):
			hasScenario = true
		case strings.HasPrefix(err.Field, "output"):
			hasOutput = true
		}
	}

	if hasURL {
		suggestions = append(suggestions, "Ensure URLs include protocol (http:// or https://)")
	}
	if hasWait {
		suggestions = append(suggestions, "Use Go durations such as 30s or 500ms for wait.timeout and wait.interval")
	}
	if hasScenario {
		suggestions = append(suggestions, "Remove the scenarios list to run all of them")
	}
	if hasOutput {
		suggestions = append(suggestions, "File formats (sqlite, excel) need output.file; databases (postgres, mysql) need output.dsn")
	}
	if len(suggestions) == 0 && !r.Valid {
		suggestions = append(suggestions, "Check YAML indentation and formatting")
	}
	return suggestions
}
