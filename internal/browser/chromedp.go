// internal/browser/chromedp.go
package browser

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/device"

	"github.com/valpere/staleguard/internal/errors"
	"github.com/valpere/staleguard/internal/locator"
	"github.com/valpere/staleguard/internal/utils"
)

// ChromeSession implements Session using chromedp
type ChromeSession struct {
	statsRecorder

	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	config      *Config
	logger      utils.Logger

	closeOnce sync.Once
}

// NewChromeSession starts (or attaches to) a Chrome browser
func NewChromeSession(ctx context.Context, config *Config, logger utils.Logger) (*ChromeSession, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if config.CDPURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), config.CDPURL)
	} else {
		// Set up Chrome options
		opts := []chromedp.ExecAllocatorOption{
			chromedp.NoFirstRun,
			chromedp.NoDefaultBrowserCheck,
			chromedp.DisableGPU,
			chromedp.NoSandbox, // Required for Docker environments
		}
		if config.Headless {
			opts = append(opts, chromedp.Headless)
		}
		if config.UserAgent != "" {
			opts = append(opts, chromedp.UserAgent(config.UserAgent))
		}
		if config.DisableImages {
			opts = append(opts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	}

	browserCtx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(logger.Debugf))

	s := &ChromeSession{
		ctx:         browserCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
		config:      config,
		logger:      logger.WithField("driver", DriverChromedp),
	}

	// The browser is bound to the context of the first Run, so allocate it on
	// the session context rather than on a per-command timeout.
	stop := context.AfterFunc(ctx, func() { s.Close() })
	err := chromedp.Run(browserCtx)
	stop()
	if err != nil {
		s.Close()
		return nil, errors.New(errors.KindSession, "open", "", fmt.Errorf("failed to start browser: %w", err))
	}

	if err := s.MaximizeWindow(ctx); err != nil {
		s.Close()
		return nil, errors.New(errors.KindSession, "open", "", fmt.Errorf("failed to initialize browser: %w", err))
	}
	return s, nil
}

// run executes actions on the browser tab, bounded by the command timeout and
// the caller's context.
func (s *ChromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	timeout := s.config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

// Navigate navigates to a URL and waits for page load
func (s *ChromeSession) Navigate(ctx context.Context, url string) error {
	start := time.Now()
	err := s.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return s.recordFault(classifyCDP("navigate", "", err))
	}
	s.recordLoad(time.Since(start))
	return nil
}

// Back navigates back in history
func (s *ChromeSession) Back(ctx context.Context) error {
	return s.recordFault(classifyCDP("back", "", s.run(ctx, chromedp.NavigateBack())))
}

// Refresh reloads the current page
func (s *ChromeSession) Refresh(ctx context.Context) error {
	return s.recordFault(classifyCDP("refresh", "", s.run(ctx, chromedp.Reload())))
}

// FindElement runs a non-blocking query; the wait helpers own the polling.
func (s *ChromeSession) FindElement(ctx context.Context, loc locator.Locator) (Element, error) {
	selector, isXPath, err := loc.Selector()
	if err != nil {
		return nil, err
	}
	by := chromedp.ByQuery
	if isXPath {
		by = chromedp.BySearch
	}

	s.recordFind()
	var nodes []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes(selector, &nodes, by, chromedp.AtLeast(0))); err != nil {
		return nil, s.recordFault(classifyCDP("find", loc.String(), err))
	}
	if len(nodes) == 0 {
		return nil, s.recordFault(errors.New(errors.KindNotFound, "find", loc.String(), nil))
	}
	return &chromeElement{session: s, node: nodes[0], loc: loc.String()}, nil
}

// Evaluate runs a JavaScript expression
func (s *ChromeSession) Evaluate(ctx context.Context, expression string) (interface{}, error) {
	var result interface{}
	if err := s.run(ctx, chromedp.Evaluate(expression, &result)); err != nil {
		s.recordScriptError()
		return nil, s.recordFault(classifyCDP("evaluate", "", err))
	}
	return result, nil
}

// PageSource returns the current page HTML
func (s *ChromeSession) PageSource(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", s.recordFault(classifyCDP("page source", "", err))
	}
	return html, nil
}

// MaximizeWindow sets the viewport to the configured size
func (s *ChromeSession) MaximizeWindow(ctx context.Context) error {
	tasks := []chromedp.Action{
		chromedp.EmulateViewport(int64(s.config.ViewportWidth), int64(s.config.ViewportHeight)),
	}
	if s.config.ViewportWidth > 0 && s.config.ViewportWidth < 768 {
		tasks = []chromedp.Action{chromedp.Emulate(device.IPhone8)}
	}
	return s.recordFault(classifyCDP("maximize", "", s.run(ctx, tasks...)))
}

// Close closes the browser
func (s *ChromeSession) Close() error {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.allocCancel != nil {
			s.allocCancel()
		}
	})
	return nil
}

type chromeElement struct {
	session *ChromeSession
	node    *cdp.Node
	loc     string
}

func (e *chromeElement) TagName(ctx context.Context) (string, error) {
	var name string
	err := e.session.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		n, err := dom.DescribeNode().WithNodeID(e.node.NodeID).Do(ctx)
		if err != nil {
			return err
		}
		name = strings.ToLower(n.NodeName)
		return nil
	}))
	return name, e.session.recordFault(classifyCDP("tag name", e.loc, err))
}

func (e *chromeElement) Click(ctx context.Context) error {
	err := e.session.run(ctx, chromedp.MouseClickNode(e.node))
	return e.session.recordFault(classifyCDP("click", e.loc, err))
}

func (e *chromeElement) SendKeys(ctx context.Context, text string) error {
	err := e.session.run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			return dom.Focus().WithNodeID(e.node.NodeID).Do(ctx)
		}),
		chromedp.KeyEvent(text),
	)
	return e.session.recordFault(classifyCDP("send keys", e.loc, err))
}

func (e *chromeElement) Text(ctx context.Context) (string, error) {
	var html string
	err := e.session.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		html, err = dom.GetOuterHTML().WithNodeID(e.node.NodeID).Do(ctx)
		return err
	}))
	if err != nil {
		return "", e.session.recordFault(classifyCDP("text", e.loc, err))
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse element HTML: %w", err)
	}
	return strings.TrimSpace(doc.Text()), nil
}

// CDP reports a node id from a replaced document with one of these messages.
var staleCDPMessages = []string{
	"could not find node with given id",
	"no node with given id found",
	"node with given id does not belong to the document",
	"node is detached from document",
	"cannot find context with specified id",
}

// classifyCDP maps DevTools protocol errors onto fault kinds.
func classifyCDP(op, loc string, err error) error {
	if err == nil {
		return nil
	}
	var f *errors.Fault
	if stderrors.As(err, &f) {
		return err
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}

	msg := err.Error()
	var cdpErr *cdproto.Error
	if stderrors.As(err, &cdpErr) {
		msg = cdpErr.Message
	}
	msg = strings.ToLower(msg)

	for _, stale := range staleCDPMessages {
		if strings.Contains(msg, stale) {
			return errors.New(errors.KindStale, op, loc, err)
		}
	}
	switch {
	case strings.Contains(msg, "dom error while querying"),
		strings.Contains(msg, "not a valid selector"),
		strings.Contains(msg, "not a valid xpath"):
		return errors.New(errors.KindInvalidLocator, op, loc, err)
	case stderrors.Is(err, chromedp.ErrInvalidContext),
		strings.Contains(msg, "websocket"),
		strings.Contains(msg, "target closed"),
		strings.Contains(msg, "exec: "):
		return errors.New(errors.KindSession, op, loc, err)
	}
	return errors.New(errors.KindUnknown, op, loc, err)
}
