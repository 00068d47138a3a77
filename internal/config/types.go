// internal/config/types.go
package config

import (
	"github.com/valpere/staleguard/internal/browser"
	"github.com/valpere/staleguard/internal/fixture"
	"github.com/valpere/staleguard/internal/monitoring"
	"github.com/valpere/staleguard/internal/report"
	"github.com/valpere/staleguard/internal/scenario"
	"github.com/valpere/staleguard/internal/wait"
)

// SuiteConfig is one scenario suite: where to browse, with which driver, how
// long to wait and where to put the results.
type SuiteConfig struct {
	Name     string `yaml:"name" json:"name"`
	BaseURL  string `yaml:"base_url" json:"base_url"`
	LogLevel string `yaml:"log_level,omitempty" json:"log_level,omitempty"`

	Browser   browser.Config     `yaml:"browser" json:"browser"`
	Wait      wait.Options       `yaml:"wait" json:"wait"`
	PageWaits scenario.PageWaits `yaml:"page_waits" json:"page_waits"`

	// Scenarios run in the listed order. Empty means all of them.
	Scenarios []string `yaml:"scenarios" json:"scenarios"`

	Output  report.OutputConfig `yaml:"output" json:"output"`
	Metrics MetricsConfig       `yaml:"metrics" json:"metrics"`

	// Fixture serves the playground pages locally for the duration of a run.
	// BaseURL defaults to the fixture address when it is set.
	Fixture *fixture.Config `yaml:"fixture,omitempty" json:"fixture,omitempty"`
}

// MetricsConfig enables the Prometheus endpoint for a run.
type MetricsConfig struct {
	Enabled                  bool `yaml:"enabled" json:"enabled"`
	monitoring.MetricsConfig `yaml:",inline" json:",inline"`
}

// RunnerOptions converts the suite into scenario runner options.
func (c *SuiteConfig) RunnerOptions() scenario.Options {
	return scenario.Options{
		BaseURL:   c.BaseURL,
		Driver:    c.Browser.Driver,
		Wait:      c.Wait,
		PageWaits: c.PageWaits,
		Scenarios: c.Scenarios,
	}
}
