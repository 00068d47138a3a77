// internal/locator/locator.go

// Package locator describes how to find an element on a page. A Locator holds
// no page state, so it stays valid across navigations; element handles do not.
package locator

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/valpere/staleguard/internal/errors"
)

// Strategy names follow the W3C WebDriver "using" values.
type Strategy string

const (
	ID              Strategy = "id"
	Name            Strategy = "name"
	ClassName       Strategy = "class name"
	TagName         Strategy = "tag name"
	CSS             Strategy = "css selector"
	XPath           Strategy = "xpath"
	LinkText        Strategy = "link text"
	PartialLinkText Strategy = "partial link text"
)

var strategies = map[Strategy]bool{
	ID: true, Name: true, ClassName: true, TagName: true,
	CSS: true, XPath: true, LinkText: true, PartialLinkText: true,
}

// Locator is an immutable strategy + value pair.
type Locator struct {
	Strategy Strategy `yaml:"strategy" json:"strategy"`
	Value    string   `yaml:"value" json:"value"`
}

// New builds a locator, normalising the value to Unicode NFC.
func New(strategy Strategy, value string) Locator {
	return Locator{Strategy: strategy, Value: norm.NFC.String(value)}
}

func ByID(id string) Locator { return New(ID, id) }
func ByName(name string) Locator { return New(Name, name) }
func ByClassName(class string) Locator { return New(ClassName, class) }
func ByTagName(tag string) Locator { return New(TagName, tag) }
func ByCSS(selector string) Locator { return New(CSS, selector) }
func ByXPath(expr string) Locator { return New(XPath, expr) }
func ByLinkText(text string) Locator { return New(LinkText, text) }
func ByPartialLinkText(text string) Locator { return New(PartialLinkText, text) }

// String renders the locator as "strategy=value".
func (l Locator) String() string {
	return fmt.Sprintf("%s=%s", l.Strategy, l.Value)
}

// Validate rejects locators no driver could evaluate.
func (l Locator) Validate() error {
	if !strategies[l.Strategy] {
		return errors.New(errors.KindInvalidLocator, "validate", l.String(),
			fmt.Errorf("unknown strategy %q", string(l.Strategy)))
	}
	if strings.TrimSpace(l.Value) == "" {
		return errors.New(errors.KindInvalidLocator, "validate", l.String(),
			fmt.Errorf("empty value"))
	}
	if l.Strategy == ClassName && strings.ContainsAny(strings.TrimSpace(l.Value), " \t\n") {
		return errors.New(errors.KindInvalidLocator, "validate", l.String(),
			fmt.Errorf("compound class names are not permitted"))
	}
	return nil
}

// CSS returns an equivalent CSS selector. Link text strategies have none.
func (l Locator) CSS() (string, error) {
	if err := l.Validate(); err != nil {
		return "", err
	}
	switch l.Strategy {
	case CSS:
		return l.Value, nil
	case ID:
		return "#" + cssEscape(l.Value), nil
	case Name:
		return fmt.Sprintf("[name=%s]", cssString(l.Value)), nil
	case ClassName:
		return "." + cssEscape(strings.TrimSpace(l.Value)), nil
	case TagName:
		return l.Value, nil
	default:
		return "", errors.New(errors.KindInvalidLocator, "css", l.String(),
			fmt.Errorf("strategy %q has no CSS form", string(l.Strategy)))
	}
}

// XPath returns an equivalent XPath expression. Every strategy except raw CSS
// has one.
func (l Locator) XPath() (string, error) {
	if err := l.Validate(); err != nil {
		return "", err
	}
	switch l.Strategy {
	case XPath:
		return l.Value, nil
	case ID:
		return fmt.Sprintf("//*[@id=%s]", xpathString(l.Value)), nil
	case Name:
		return fmt.Sprintf("//*[@name=%s]", xpathString(l.Value)), nil
	case ClassName:
		return fmt.Sprintf("//*[contains(concat(' ', normalize-space(@class), ' '), %s)]",
			xpathString(" "+strings.TrimSpace(l.Value)+" ")), nil
	case TagName:
		return "//" + l.Value, nil
	case LinkText:
		return fmt.Sprintf("//a[normalize-space(.)=%s]", xpathString(strings.TrimSpace(l.Value))), nil
	case PartialLinkText:
		return fmt.Sprintf("//a[contains(normalize-space(.), %s)]", xpathString(strings.TrimSpace(l.Value))), nil
	default:
		return "", errors.New(errors.KindInvalidLocator, "xpath", l.String(),
			fmt.Errorf("strategy %q has no XPath form", string(l.Strategy)))
	}
}

// Selector returns the CSS form when there is one and the XPath form otherwise.
// isXPath tells the caller which it got.
func (l Locator) Selector() (selector string, isXPath bool, err error) {
	if l.Strategy == LinkText || l.Strategy == PartialLinkText || l.Strategy == XPath {
		s, err := l.XPath()
		return s, true, err
	}
	s, err := l.CSS()
	return s, false, err
}
