// internal/browser/playwright_test.go
package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/staleguard/internal/errors"
	"github.com/valpere/staleguard/internal/locator"
)

func newPlaywrightForTest(t *testing.T) *PlaywrightSession {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	config := DefaultConfig()
	config.Driver = DriverPlaywright
	config.Headless = true
	config.Timeout = 10 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	session, err := NewPlaywrightSession(ctx, config, nil)
	if err != nil {
		t.Skipf("Skipping browser test - Playwright may not be available: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func TestPlaywrightSession_ReplacedNodeIsStale(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><input id="task-table-filter"></body></html>`)
	}))
	defer server.Close()

	session := newPlaywrightForTest(t)
	ctx := context.Background()

	require.NoError(t, session.Navigate(ctx, server.URL+"/"))

	input, err := session.FindElement(ctx, locator.ByID("task-table-filter"))
	require.NoError(t, err)
	tag, err := input.TagName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "input", tag)

	// Swap the node in place; the page never navigates.
	_, err = session.Evaluate(ctx, `(() => {
		const old = document.getElementById("task-table-filter");
		const fresh = document.createElement("input");
		fresh.id = old.id;
		old.replaceWith(fresh);
		return true;
	})()`)
	require.NoError(t, err)

	_, err = input.TagName(ctx)
	assert.ErrorIs(t, err, errors.ErrStale)

	fresh, err := session.FindElement(ctx, locator.ByID("task-table-filter"))
	require.NoError(t, err)
	tag, err = fresh.TagName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "input", tag)

	assert.GreaterOrEqual(t, session.Stats().StaleFaults, 1)
}
