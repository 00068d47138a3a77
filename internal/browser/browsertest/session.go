// internal/browser/browsertest/session.go

// Package browsertest provides an in-memory browser.Session for tests. Pages
// are declared up front; every navigation starts a new page-load generation
// and invalidates the handles of the previous one, the way a real browser does.
package browsertest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/valpere/staleguard/internal/browser"
	"github.com/valpere/staleguard/internal/errors"
	"github.com/valpere/staleguard/internal/locator"
)

// Node is one element on a simulated page.
type Node struct {
	// Locators that resolve to this node.
	Locators []locator.Locator
	Tag      string
	Text     string
	// Href makes a click navigate to another page.
	Href string
	// Delay is how long after the page load the node is inserted.
	Delay time.Duration
}

// Page is a simulated document.
type Page struct {
	URL   string
	Title string
	Nodes []Node
	// Source renders the page for PageSource. inputs maps a locator string to
	// the text typed into that node during the current generation.
	Source func(inputs map[string]string) string
}

type injected struct {
	op    string
	loc   string
	err   error
	times int
}

// Session implements browser.Session in memory. It is safe for concurrent use
// so tests can mutate the DOM while a wait is polling.
type Session struct {
	mu sync.Mutex

	pages      map[string]*Page
	scripts    map[string]func() (interface{}, error)
	history    []string
	current    *Page
	generation int
	loadedAt   time.Time
	epochs     map[string]int
	inputs     map[string]string
	faults     []*injected

	finds       int
	navigations int
	closeCalls  int
	closed      bool
}

var _ browser.Session = (*Session)(nil)

// New returns a session on an empty page.
func New(pages ...Page) *Session {
	s := &Session{
		pages:   make(map[string]*Page),
		scripts: make(map[string]func() (interface{}, error)),
		epochs:  make(map[string]int),
		inputs:  make(map[string]string),
	}
	for _, p := range pages {
		s.AddPage(p)
	}
	s.current = &Page{URL: "about:blank"}
	s.loadedAt = time.Now()
	s.Script("document.readyState", "complete")
	return s
}

// AddPage registers a page for its URL, replacing any previous one.
func (s *Session) AddPage(p Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	page := p
	s.pages[p.URL] = &page
}

// Script fixes the result of a JavaScript expression.
func (s *Session) Script(expression string, value interface{}) {
	s.ScriptFunc(expression, func() (interface{}, error) { return value, nil })
}

// ScriptFunc computes the result of a JavaScript expression on every call.
func (s *Session) ScriptFunc(expression string, fn func() (interface{}, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[expression] = fn
}

// FailFind makes the next times FindElement calls for loc return err.
func (s *Session) FailFind(loc locator.Locator, err error, times int) {
	s.inject("find", loc, err, times)
}

// FailTagName makes the next times TagName calls on handles for loc return err.
func (s *Session) FailTagName(loc locator.Locator, err error, times int) {
	s.inject("tag name", loc, err, times)
}

func (s *Session) inject(op string, loc locator.Locator, err error, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, &injected{op: op, loc: loc.String(), err: err, times: times})
}

// Replace swaps the node behind loc for a new one without navigating, so
// existing handles to it go stale.
func (s *Session) Replace(loc locator.Locator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epochs[loc.String()]++
}

// Finds returns the number of FindElement calls.
func (s *Session) Finds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finds
}

// Navigations returns the number of page loads, including refreshes and history moves.
func (s *Session) Navigations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.navigations
}

// CloseCalls returns how many times Close was called.
func (s *Session) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

// CurrentURL returns the URL of the loaded page.
func (s *Session) CurrentURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.URL
}

// Input returns the text typed into loc during the current generation.
func (s *Session) Input(loc locator.Locator) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inputs[loc.String()]
}

// load must be called with mu held.
func (s *Session) load(url string) {
	page, ok := s.pages[url]
	if !ok {
		page = &Page{URL: url, Title: "404 Not Found"}
	}
	s.current = page
	s.generation++
	s.navigations++
	s.loadedAt = time.Now()
	s.inputs = make(map[string]string)
}

func (s *Session) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed {
		return errors.New(errors.KindSession, op, "", fmt.Errorf("invalid session id"))
	}
	return nil
}

// takeFault must be called with mu held.
func (s *Session) takeFault(op, loc string) error {
	for _, f := range s.faults {
		if f.op == op && f.loc == loc && f.times > 0 {
			f.times--
			return f.err
		}
	}
	return nil
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "navigate"); err != nil {
		return err
	}
	if s.current.URL != "about:blank" {
		s.history = append(s.history, s.current.URL)
	}
	s.load(url)
	return nil
}

func (s *Session) Back(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "back"); err != nil {
		return err
	}
	if len(s.history) == 0 {
		return nil
	}
	prev := s.history[len(s.history)-1]
	s.history = s.history[:len(s.history)-1]
	s.load(prev)
	return nil
}

func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "refresh"); err != nil {
		return err
	}
	s.load(s.current.URL)
	return nil
}

func (s *Session) FindElement(ctx context.Context, loc locator.Locator) (browser.Element, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "find"); err != nil {
		return nil, err
	}
	s.finds++
	key := loc.String()
	if err := s.takeFault("find", key); err != nil {
		return nil, err
	}

	age := time.Since(s.loadedAt)
	for i := range s.current.Nodes {
		node := &s.current.Nodes[i]
		if node.Delay > age || !matches(node, loc) {
			continue
		}
		return &element{
			session:    s,
			node:       node,
			loc:        key,
			generation: s.generation,
			epoch:      s.epochs[key],
		}, nil
	}
	return nil, errors.New(errors.KindNotFound, "find", key, nil)
}

func matches(node *Node, loc locator.Locator) bool {
	for _, l := range node.Locators {
		if l == loc {
			return true
		}
	}
	return false
}

func (s *Session) Evaluate(ctx context.Context, expression string) (interface{}, error) {
	s.mu.Lock()
	if err := s.check(ctx, "evaluate"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	fn, ok := s.scripts[expression]
	s.mu.Unlock()
	if !ok {
		return nil, errors.New(errors.KindUnknown, "evaluate", "", fmt.Errorf("javascript error: no result for %q", expression))
	}
	return fn()
}

func (s *Session) PageSource(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "page source"); err != nil {
		return "", err
	}
	if s.current.Source != nil {
		inputs := make(map[string]string, len(s.inputs))
		for k, v := range s.inputs {
			inputs[k] = v
		}
		return s.current.Source(inputs), nil
	}
	return s.render(), nil
}

// render must be called with mu held.
func (s *Session) render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>%s</title></head><body>", s.current.Title)
	age := time.Since(s.loadedAt)
	for _, node := range s.current.Nodes {
		if node.Delay > age {
			continue
		}
		attrs := make([]string, 0, len(node.Locators))
		for _, l := range node.Locators {
			switch l.Strategy {
			case locator.ID:
				attrs = append(attrs, fmt.Sprintf(`id=%q`, l.Value))
			case locator.Name:
				attrs = append(attrs, fmt.Sprintf(`name=%q`, l.Value))
			case locator.ClassName:
				attrs = append(attrs, fmt.Sprintf(`class=%q`, l.Value))
			}
		}
		if node.Href != "" {
			attrs = append(attrs, fmt.Sprintf(`href=%q`, node.Href))
		}
		sort.Strings(attrs)
		tag := node.Tag
		if tag == "" {
			tag = "div"
		}
		fmt.Fprintf(&b, "<%s %s>%s</%s>", tag, strings.Join(attrs, " "), node.Text, tag)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func (s *Session) MaximizeWindow(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.check(ctx, "maximize")
}

// Close marks the session ended. Later calls are no-ops.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	s.closed = true
	return nil
}

type element struct {
	session    *Session
	node       *Node
	loc        string
	generation int
	epoch      int
}

// live must be called with the session lock held.
func (e *element) live(ctx context.Context, op string) error {
	if err := e.session.check(ctx, op); err != nil {
		return err
	}
	if e.generation != e.session.generation || e.epoch != e.session.epochs[e.loc] {
		return errors.New(errors.KindStale, op, e.loc,
			fmt.Errorf("element is not attached to the page document"))
	}
	return nil
}

func (e *element) Click(ctx context.Context) error {
	e.session.mu.Lock()
	defer e.session.mu.Unlock()
	if err := e.live(ctx, "click"); err != nil {
		return err
	}
	if e.node.Href != "" {
		e.session.history = append(e.session.history, e.session.current.URL)
		e.session.load(e.node.Href)
	}
	return nil
}

func (e *element) SendKeys(ctx context.Context, text string) error {
	e.session.mu.Lock()
	defer e.session.mu.Unlock()
	if err := e.live(ctx, "send keys"); err != nil {
		return err
	}
	for _, l := range e.node.Locators {
		e.session.inputs[l.String()] += text
	}
	return nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	e.session.mu.Lock()
	defer e.session.mu.Unlock()
	if err := e.live(ctx, "text"); err != nil {
		return "", err
	}
	return e.node.Text, nil
}

func (e *element) TagName(ctx context.Context) (string, error) {
	e.session.mu.Lock()
	defer e.session.mu.Unlock()
	if err := e.live(ctx, "tag name"); err != nil {
		return "", err
	}
	if err := e.session.takeFault("tag name", e.loc); err != nil {
		return "", err
	}
	if e.node.Tag == "" {
		return "div", nil
	}
	return e.node.Tag, nil
}
