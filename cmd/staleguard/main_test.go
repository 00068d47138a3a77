// cmd/staleguard/main_test.go
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/staleguard/internal/browser"
	"github.com/valpere/staleguard/internal/browser/browsertest"
	"github.com/valpere/staleguard/internal/config"
	"github.com/valpere/staleguard/internal/errors"
	"github.com/valpere/staleguard/internal/fixture"
	"github.com/valpere/staleguard/internal/locator"
	"github.com/valpere/staleguard/internal/report"
	"github.com/valpere/staleguard/internal/scenario"
	"github.com/valpere/staleguard/internal/utils"
)

const (
	homeURL   = "https://playground.test/"
	filterURL = "https://playground.test/table-search-filter-demo"
)

// syncBuffer is written by loggers on server goroutines and read by the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type cli struct {
	gs     *globalState
	stdout *syncBuffer
	stderr *syncBuffer
	opened int
}

func newCLI(inputDelay time.Duration) *cli {
	c := &cli{stdout: &syncBuffer{}, stderr: &syncBuffer{}}
	c.gs = newGlobalState(c.stdout, c.stderr)
	c.gs.lookupEnv = func(string) (string, bool) { return "", false }
	c.gs.newOpener = func(*browser.Config, browser.Credentials, utils.Logger) browser.Opener {
		return func(ctx context.Context) (browser.Session, error) {
			c.opened++
			return playground(inputDelay), nil
		}
	}
	return c
}

func (c *cli) run(t *testing.T, args ...string) int {
	t.Helper()
	return execute(context.Background(), c.gs, args)
}

func playground(inputDelay time.Duration) *browsertest.Session {
	s := browsertest.New(
		browsertest.Page{
			URL: homeURL,
			Nodes: []browsertest.Node{{
				Locators: []locator.Locator{scenario.FilterLink},
				Tag:      "a",
				Text:     scenario.FilterLinkText,
				Href:     filterURL,
			}},
		},
		browsertest.Page{
			URL: filterURL,
			Nodes: []browsertest.Node{{
				Locators: []locator.Locator{scenario.FilterInput},
				Tag:      "input",
				Delay:    inputDelay,
			}},
			Source: taskTable,
		},
	)
	s.Script("window.jQuery != undefined && jQuery.active == 0", true)
	return s
}

func taskTable(inputs map[string]string) string {
	needle := strings.ToLower(inputs[scenario.FilterInput.String()])
	var b strings.Builder
	b.WriteString(`<table id="task-table"><tbody>`)
	for _, task := range fixture.Tasks {
		text := fmt.Sprintf("%d %s %s %s", task.ID, task.Name, task.Assignee, task.Status)
		if needle != "" && !strings.Contains(strings.ToLower(text), needle) {
			fmt.Fprintf(&b, `<tr hidden><td>%s</td></tr>`, text)
			continue
		}
		fmt.Fprintf(&b, `<tr><td>%s</td></tr>`, text)
	}
	b.WriteString("</tbody></table>")
	return b.String()
}

func writeSuite(t *testing.T, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "suite.yaml")
	data := `name: cli-test
base_url: ` + homeURL + `
log_level: error
browser:
  driver: chromedp
wait:
  timeout: 2s
  interval: 25ms
page_waits:
  document_ready: true
  ajax_idle: true
` + extra
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

type jsonReport struct {
	Summary report.Summary  `json:"summary"`
	Results []report.Result `json:"results"`
}

func TestVersion(t *testing.T) {
	version, buildTime, gitCommit = "test-version", "2025-06-23", "abc123"
	defer func() { version, buildTime, gitCommit = "dev", "unknown", "unknown" }()

	c := newCLI(0)
	require.Equal(t, errors.ExitOK, c.run(t, "version"))

	out := c.stdout.String()
	assert.Contains(t, out, "staleguard test-version")
	assert.Contains(t, out, "2025-06-23")
	assert.Contains(t, out, "abc123")
}

func TestHelpListsCommands(t *testing.T) {
	c := newCLI(0)
	require.Equal(t, errors.ExitOK, c.run(t, "--help"))

	for _, cmd := range []string{"run", "validate", "template", "serve", "scenarios", "version"} {
		assert.Contains(t, c.stdout.String(), cmd)
	}
}

func TestScenarios(t *testing.T) {
	c := newCLI(0)
	require.Equal(t, errors.ExitOK, c.run(t, "scenarios"))

	lines := strings.Split(strings.TrimSpace(c.stdout.String()), "\n")
	require.Len(t, lines, len(scenario.Names()))
	for i, name := range scenario.Names() {
		assert.True(t, strings.HasPrefix(lines[i], name), lines[i])
	}
}

func TestTemplate(t *testing.T) {
	for _, kind := range []string{config.TemplateRemote, config.TemplateChromedp, config.TemplatePlaywright} {
		t.Run(kind, func(t *testing.T) {
			c := newCLI(0)
			require.Equal(t, errors.ExitOK, c.run(t, "template", "--type", kind))

			cfg, err := config.LoadFromBytes([]byte(c.stdout.String()))
			require.NoError(t, err)
			assert.Equal(t, kind, cfg.Browser.Driver)
		})
	}
}

func TestTemplate_ToFileThenValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "suite.yaml")

	c := newCLI(0)
	require.Equal(t, errors.ExitOK, c.run(t, "template", "--type", "chromedp", "--output", path))
	assert.Contains(t, c.stderr.String(), "Template written to "+path)

	c = newCLI(0)
	require.Equal(t, errors.ExitOK, c.run(t, "validate", "-v", path))
	assert.Contains(t, c.stdout.String(), "is valid")
	assert.Contains(t, c.stdout.String(), "driver:    chromedp")
}

func TestValidate_Invalid(t *testing.T) {
	path := writeSuite(t, "scenarios: [while-true]\noutput:\n  format: excel\n")

	c := newCLI(0)
	code := c.run(t, "validate", path)

	assert.Equal(t, errors.ExitConfig, code)
	stderr := c.stderr.String()
	assert.Contains(t, stderr, "Configuration Error")
	assert.Contains(t, stderr, "Remove the scenarios list to run all of them")
	assert.Contains(t, stderr, "output.file")
}

func TestValidate_MissingFile(t *testing.T) {
	c := newCLI(0)
	assert.Equal(t, errors.ExitConfig, c.run(t, "validate", filepath.Join(t.TempDir(), "absent.yaml")))
}

func TestRun_AllScenariosPass(t *testing.T) {
	results := filepath.Join(t.TempDir(), "results.json")
	path := writeSuite(t, "output:\n  format: json\n  file: "+results+"\n")

	c := newCLI(0)
	require.Equal(t, errors.ExitOK, c.run(t, "run", path), c.stderr.String())
	assert.Equal(t, len(scenario.Names()), c.opened)
	assert.Contains(t, c.stdout.String(), "5 passed, 0 failed, 5 total")

	data, err := os.ReadFile(results)
	require.NoError(t, err)
	var doc jsonReport
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, 5, doc.Summary.Passed)
	for _, r := range doc.Results {
		assert.True(t, r.Passed, r.Scenario)
		assert.Equal(t, "chromedp", r.Driver)
	}
}

func TestRun_FailingScenarioReportsToStdout(t *testing.T) {
	path := writeSuite(t, "")

	c := newCLI(300 * time.Millisecond)
	code := c.run(t, "run", path, "--scenario", scenario.Reinitialize, "--scenario", scenario.RetryLoop)

	assert.Equal(t, errors.ExitScenarioFailed, code)

	var doc jsonReport
	require.NoError(t, json.Unmarshal([]byte(c.stdout.String()), &doc))
	require.Len(t, doc.Results, 2)
	assert.False(t, doc.Results[0].Passed)
	assert.Equal(t, "not_found", doc.Results[0].Fault)
	assert.Equal(t, "id=task-table-filter", doc.Results[0].Locator)
	assert.True(t, doc.Results[1].Passed)

	stderr := c.stderr.String()
	assert.Contains(t, stderr, "1 passed, 1 failed, 2 total")
	assert.Contains(t, stderr, "Scenario Failures")
}

func TestRun_UnknownScenarioFlag(t *testing.T) {
	c := newCLI(0)
	assert.Equal(t, errors.ExitConfig, c.run(t, "run", writeSuite(t, ""), "--scenario", "while-true"))
	assert.Zero(t, c.opened)
}

func TestRun_RemoteNeedsCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remote.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: remote\nbase_url: "+homeURL+"\n"), 0o644))

	c := newCLI(0)
	assert.Equal(t, errors.ExitSession, c.run(t, "run", path))
	assert.Contains(t, c.stderr.String(), "Browser Session Error")
	assert.Zero(t, c.opened)
}

func TestRun_ServesFixture(t *testing.T) {
	path := writeSuite(t, "scenarios: [retry-loop]\nfixture:\n  addr: 127.0.0.1:0\n")
	// The fixture address only sets base_url when base_url is absent.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, bytes.Replace(data, []byte("base_url: "+homeURL+"\n"), nil, 1), 0o644))

	c := newCLI(0)
	var baseURL string
	c.gs.newOpener = func(*browser.Config, browser.Credentials, utils.Logger) browser.Opener {
		return func(ctx context.Context) (browser.Session, error) {
			return &recordingSession{Session: playground(0), navigated: &baseURL}, nil
		}
	}

	require.Equal(t, errors.ExitOK, c.run(t, "run", path), c.stderr.String())
	assert.True(t, strings.HasPrefix(baseURL, "http://127.0.0.1:"), baseURL)
	assert.NotEqual(t, "http://127.0.0.1:0/", baseURL)
}

// recordingSession remembers the first URL navigated to and serves the
// simulated playground in its place.
type recordingSession struct {
	*browsertest.Session
	navigated *string
}

func (s *recordingSession) Navigate(ctx context.Context, url string) error {
	if *s.navigated == "" {
		*s.navigated = url
	}
	return s.Session.Navigate(ctx, homeURL)
}
