// internal/errors/service.go - user-facing error reporting for the CLI
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
)

// Service converts faults into CLI output and process exit codes.
type Service struct {
	messageHandler *MessageHandler
}

// MessageHandler converts technical errors to user-friendly messages
type MessageHandler struct {
	showTechnical bool
}

// Exit codes returned by GetExitCode.
const (
	ExitOK             = 0
	ExitGeneral        = 1
	ExitConfig         = 2
	ExitSession        = 3
	ExitTimeout        = 4
	ExitElement        = 5
	ExitInvalidLocator = 6
	ExitScenarioFailed = 7
)

// ErrScenarioFailed is returned by the runner when at least one scenario failed.
var ErrScenarioFailed = stderrors.New("one or more scenarios failed")

// NewService creates a new error reporting service
func NewService() *Service {
	return &Service{
		messageHandler: &MessageHandler{showTechnical: false},
	}
}

// WithVerbose enables technical error details
func (s *Service) WithVerbose(verbose bool) *Service {
	s.messageHandler.showTechnical = verbose
	return s
}

// GetUserFriendlyError converts technical errors to user-friendly messages
func (s *Service) GetUserFriendlyError(err error) (title, message string, suggestions []string) {
	if err == nil {
		return "", "", nil
	}

	locator := LocatorOf(err)
	where := ""
	if locator != "" {
		where = fmt.Sprintf(" (locator %s)", locator)
	}

	switch KindOf(err) {
	case KindTimeout:
		return "Wait Timed Out",
			"The element never resolved to a live node within the wait budget" + where + ".",
			[]string{
				"Increase wait.timeout in the configuration",
				"Check that the locator still matches the page",
				"Enable page waits (document ready, ajax idle) for slow pages",
			}
	case KindStale:
		return "Stale Element Reference",
			"An element handle was used after the page it belonged to was replaced" + where + ".",
			[]string{
				"Re-resolve the locator after every navigation",
				"Use the retry helper instead of holding element handles",
			}
	case KindNotFound:
		return "Element Not Found",
			"The locator matched no element on the current page" + where + ".",
			[]string{
				"Verify the element exists on the page",
				"The page structure might have changed",
			}
	case KindInvalidLocator:
		return "Invalid Locator",
			"The locator could not be evaluated by the browser" + where + ".",
			[]string{
				"Check the locator strategy and value for typos",
				"Link text locators cannot be expressed as CSS",
			}
	case KindSession:
		return "Browser Session Error",
			"The remote browser session could not be established or was lost.",
			[]string{
				"Check LT_USERNAME and LT_ACCESSKEY",
				"Verify the hub URL and your network connection",
				"The grid might be at its concurrency limit",
			}
	}

	if stderrors.Is(err, ErrScenarioFailed) {
		return "Scenario Failures",
			"At least one scenario did not pass.",
			[]string{"Re-run with --verbose to see the failing locator and fault"}
	}

	if stderrors.Is(err, context.Canceled) {
		return "Interrupted", "The run was cancelled.", nil
	}

	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "yaml") || strings.Contains(errStr, "config") {
		return "Configuration Error",
			"The configuration file is invalid.",
			[]string{
				"Check YAML indentation (use spaces, not tabs)",
				"Run 'staleguard validate <config.yaml>' for details",
				"Generate a fresh file with 'staleguard template'",
			}
	}

	return "Unexpected Error",
		"An unexpected error occurred during the operation.",
		[]string{
			"Try running the command again",
			"Check your configuration file",
		}
}

// GetExitCode returns appropriate exit code for error
func (s *Service) GetExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	switch KindOf(err) {
	case KindSession:
		return ExitSession
	case KindTimeout:
		return ExitTimeout
	case KindNotFound, KindStale:
		return ExitElement
	case KindInvalidLocator:
		return ExitInvalidLocator
	}

	if stderrors.Is(err, ErrScenarioFailed) {
		return ExitScenarioFailed
	}

	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "config") || strings.Contains(errStr, "yaml") {
		return ExitConfig
	}
	return ExitGeneral
}

// FormatErrorForCLI formats error for command-line display
func (s *Service) FormatErrorForCLI(err error) string {
	title, message, suggestions := s.GetUserFriendlyError(err)

	output := fmt.Sprintf("✗ %s\n%s\n", title, message)

	if s.messageHandler.showTechnical {
		output += fmt.Sprintf("\nTechnical details: %s\n", err.Error())
	}

	if len(suggestions) > 0 {
		output += "\nSuggestions:\n"
		for _, suggestion := range suggestions {
			output += fmt.Sprintf("  • %s\n", suggestion)
		}
	}

	return output
}
