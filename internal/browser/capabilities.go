// internal/browser/capabilities.go
package browser

import (
	"fmt"
	"net/url"

	"github.com/tebeka/selenium"
)

// Capabilities builds the W3C capability payload for the remote grid. The
// LambdaTest block carries the credentials, so the hub URL stays clean.
func Capabilities(cfg *Config, creds Credentials) selenium.Capabilities {
	ltOptions := map[string]interface{}{
		"user":         creds.Username,
		"accessKey":    creds.AccessKey,
		"platformName": cfg.Platform,
		"seCdp":        cfg.CDPEnabled(),
	}
	if cfg.Build != "" {
		ltOptions["build"] = cfg.Build
	}
	if cfg.SessionName != "" {
		ltOptions["name"] = cfg.SessionName
	}
	if cfg.SeleniumVersion != "" {
		ltOptions["selenium_version"] = cfg.SeleniumVersion
	}
	if cfg.Headless {
		ltOptions["headless"] = true
	}

	return selenium.Capabilities{
		"browserName":    cfg.BrowserName,
		"browserVersion": cfg.BrowserVersion,
		"LT:Options":     ltOptions,
	}
}

// hubEndpoint validates the hub URL and refuses embedded credentials.
func hubEndpoint(raw string) (string, error) {
	if raw == "" {
		raw = DefaultHubURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid hub_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid hub_url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("hub_url has no host")
	}
	if u.User != nil {
		return "", fmt.Errorf("hub_url must not embed credentials; use LT_USERNAME and LT_ACCESSKEY")
	}
	return u.String(), nil
}
