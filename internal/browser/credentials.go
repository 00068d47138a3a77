// internal/browser/credentials.go
package browser

import (
	"fmt"
	"net/http"
	"os"

	"github.com/mstoykov/envconfig"
)

// Credentials authenticate against the remote grid.
type Credentials struct {
	Username  string `envconfig:"LT_USERNAME"`
	AccessKey string `envconfig:"LT_ACCESSKEY"`
}

// LoadCredentials reads LT_USERNAME and LT_ACCESSKEY. A nil lookup reads the
// process environment.
func LoadCredentials(lookup func(string) (string, bool)) (Credentials, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	var creds Credentials
	if err := envconfig.Process("", &creds, lookup); err != nil {
		return Credentials{}, fmt.Errorf("failed to read credentials from environment: %w", err)
	}
	return creds, nil
}

// Validate reports missing credential values.
func (c Credentials) Validate() error {
	switch {
	case c.Username == "" && c.AccessKey == "":
		return fmt.Errorf("LT_USERNAME and LT_ACCESSKEY are not set")
	case c.Username == "":
		return fmt.Errorf("LT_USERNAME is not set")
	case c.AccessKey == "":
		return fmt.Errorf("LT_ACCESSKEY is not set")
	}
	return nil
}

// String masks the access key.
func (c Credentials) String() string {
	if c.AccessKey == "" {
		return fmt.Sprintf("%s:<none>", c.Username)
	}
	return fmt.Sprintf("%s:****", c.Username)
}

// basicAuthTransport authenticates every WebDriver request.
type basicAuthTransport struct {
	creds Credentials
	base  http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.SetBasicAuth(t.creds.Username, t.creds.AccessKey)
	return t.base.RoundTrip(clone)
}

func newAuthClient(creds Credentials, base http.RoundTripper) *http.Client {
	if base == nil {
		base = http.DefaultTransport
	}
	return &http.Client{Transport: &basicAuthTransport{creds: creds, base: base}}
}
