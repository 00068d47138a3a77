// internal/scenario/playground.go

// Package scenario drives the selenium playground through the navigation that
// invalidates element handles, once per handling strategy.
package scenario

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/cases"

	"github.com/valpere/staleguard/internal/browser"
	"github.com/valpere/staleguard/internal/errors"
	"github.com/valpere/staleguard/internal/locator"
	"github.com/valpere/staleguard/internal/wait"
)

// Playground page structure.
const (
	FilterLinkText = "Table Data Search"
	FilterInputID  = "task-table-filter"
	TaskRowsCSS    = "#task-table tbody tr"
)

var (
	FilterLink  = locator.ByLinkText(FilterLinkText)
	FilterInput = locator.ByID(FilterInputID)
)

// PageWaits are page-state conditions checked after every navigation.
type PageWaits struct {
	DocumentReady bool `yaml:"document_ready" json:"document_ready"`
	AjaxIdle      bool `yaml:"ajax_idle" json:"ajax_idle"`
}

// Playground is the page object for the two playground pages.
type Playground struct {
	session browser.Session
	baseURL string
	waits   PageWaits
	opts    wait.Options
}

// NewPlayground binds the page object to a session.
func NewPlayground(session browser.Session, baseURL string, waits PageWaits, opts wait.Options) *Playground {
	return &Playground{session: session, baseURL: baseURL, waits: waits, opts: opts}
}

// Session returns the underlying session.
func (p *Playground) Session() browser.Session {
	return p.session
}

// Open loads the playground home page.
func (p *Playground) Open(ctx context.Context) error {
	if err := p.session.Navigate(ctx, p.baseURL); err != nil {
		return fmt.Errorf("failed to open %s: %w", p.baseURL, err)
	}
	return p.Settle(ctx)
}

// Back returns to the previous page.
func (p *Playground) Back(ctx context.Context) error {
	if err := p.session.Back(ctx); err != nil {
		return fmt.Errorf("failed to navigate back: %w", err)
	}
	return p.Settle(ctx)
}

// Settle runs the enabled page waits.
func (p *Playground) Settle(ctx context.Context) error {
	if p.waits.DocumentReady {
		if _, err := wait.Until(ctx, p.session, wait.DocumentReady(), p.opts); err != nil {
			return err
		}
	}
	if p.waits.AjaxIdle {
		if _, err := wait.Until(ctx, p.session, wait.AjaxIdle(), p.opts); err != nil {
			return err
		}
	}
	return nil
}

// Follow clicks link and settles the page it leads to.
func (p *Playground) Follow(ctx context.Context, link browser.Element) error {
	if err := link.Click(ctx); err != nil {
		return err
	}
	return p.Settle(ctx)
}

// Filter types text into input and checks that only matching rows remain.
func (p *Playground) Filter(ctx context.Context, input browser.Element, text string) error {
	if err := input.SendKeys(ctx, text); err != nil {
		return err
	}
	return p.VerifyFilter(ctx, text)
}

// VisibleRows returns the text of every task row not hidden by the filter.
func (p *Playground) VisibleRows(ctx context.Context) ([]string, error) {
	source, err := p.session.PageSource(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(source))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page source: %w", err)
	}

	var rows []string
	doc.Find(TaskRowsCSS).Each(func(_ int, row *goquery.Selection) {
		if hidden(row) {
			return
		}
		cells := row.Find("td").Map(func(_ int, cell *goquery.Selection) string {
			return strings.TrimSpace(cell.Text())
		})
		if len(cells) == 0 {
			cells = []string{row.Text()}
		}
		rows = append(rows, strings.Join(strings.Fields(strings.Join(cells, " ")), " "))
	})
	return rows, nil
}

func hidden(row *goquery.Selection) bool {
	if _, ok := row.Attr("hidden"); ok {
		return true
	}
	style, _ := row.Attr("style")
	style = strings.ReplaceAll(strings.ToLower(style), " ", "")
	return strings.Contains(style, "display:none")
}

// VerifyFilter fails unless at least one row is visible and every visible row
// contains text, compared case-insensitively.
func (p *Playground) VerifyFilter(ctx context.Context, text string) error {
	rows, err := p.VisibleRows(ctx)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return errors.New(errors.KindNotFound, "verify filter", locator.ByCSS(TaskRowsCSS).String(),
			fmt.Errorf("no visible rows for %q", text))
	}
	fold := cases.Fold()
	needle := fold.String(text)
	for _, row := range rows {
		if !strings.Contains(fold.String(row), needle) {
			return fmt.Errorf("filter %q left non-matching row %q visible", text, row)
		}
	}
	return nil
}
