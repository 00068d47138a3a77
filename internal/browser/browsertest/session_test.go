// internal/browser/browsertest/session_test.go
package browsertest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/staleguard/internal/errors"
	"github.com/valpere/staleguard/internal/locator"
)

var (
	link   = locator.ByLinkText("Next")
	filter = locator.ByID("filter")
)

func newSession() *Session {
	return New(
		Page{URL: "/", Nodes: []Node{{Locators: []locator.Locator{link}, Tag: "a", Text: "Next", Href: "/next"}}},
		Page{URL: "/next", Nodes: []Node{{Locators: []locator.Locator{filter}, Tag: "input", Delay: 50 * time.Millisecond}}},
	)
}

func TestSession_HandlesGoStaleOnNavigation(t *testing.T) {
	ctx := context.Background()
	s := newSession()
	require.NoError(t, s.Navigate(ctx, "/"))

	el, err := s.FindElement(ctx, link)
	require.NoError(t, err)
	tag, err := el.TagName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", tag)

	require.NoError(t, el.Click(ctx))
	assert.Equal(t, "/next", s.CurrentURL())

	_, err = el.Text(ctx)
	assert.ErrorIs(t, err, errors.ErrStale)

	require.NoError(t, s.Back(ctx))
	assert.Equal(t, "/", s.CurrentURL())
	_, err = el.TagName(ctx)
	assert.ErrorIs(t, err, errors.ErrStale, "a handle from an earlier load of the same URL is still stale")
}

func TestSession_DelayedNode(t *testing.T) {
	ctx := context.Background()
	s := newSession()
	require.NoError(t, s.Navigate(ctx, "/next"))

	_, err := s.FindElement(ctx, filter)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	time.Sleep(60 * time.Millisecond)
	el, err := s.FindElement(ctx, filter)
	require.NoError(t, err)
	require.NoError(t, el.SendKeys(ctx, "abc"))
	assert.Equal(t, "abc", s.Input(filter))
	assert.Equal(t, 2, s.Finds())
}

func TestSession_InjectedFaults(t *testing.T) {
	ctx := context.Background()
	s := newSession()
	require.NoError(t, s.Navigate(ctx, "/"))

	s.FailFind(link, errors.New(errors.KindStale, "find", link.String(), nil), 1)
	_, err := s.FindElement(ctx, link)
	assert.ErrorIs(t, err, errors.ErrStale)

	el, err := s.FindElement(ctx, link)
	require.NoError(t, err)

	s.Replace(link)
	_, err = el.TagName(ctx)
	assert.ErrorIs(t, err, errors.ErrStale)
}

func TestSession_Close(t *testing.T) {
	ctx := context.Background()
	s := newSession()
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 2, s.CloseCalls())

	err := s.Navigate(ctx, "/")
	assert.ErrorIs(t, err, errors.ErrSession)
}

func TestSession_EvaluateAndSource(t *testing.T) {
	ctx := context.Background()
	s := newSession()
	require.NoError(t, s.Navigate(ctx, "/"))

	state, err := s.Evaluate(ctx, "document.readyState")
	require.NoError(t, err)
	assert.Equal(t, "complete", state)

	_, err = s.Evaluate(ctx, "window.missing")
	assert.Error(t, err)

	src, err := s.PageSource(ctx)
	require.NoError(t, err)
	assert.Contains(t, src, `<a href="/next">Next</a>`)
}
