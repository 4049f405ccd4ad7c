// Package dom defines the small browser surface the extraction engine talks
// to: selectors, scopes, elements and tabs. The rod-backed implementation
// lives in internal/browser; an in-memory one for tests lives in domtest.
package dom

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when a lookup finds nothing before its deadline.
	ErrNotFound = errors.New("dom: element not found")
	// ErrUnsupported is returned by scopes that cannot evaluate a selector kind.
	ErrUnsupported = errors.New("dom: selector kind not supported")
)

// Kind is the expression language of a Selector.
type Kind string

const (
	KindCSS   Kind = "css"
	KindXPath Kind = "xpath"
)

// Selector is one locator strategy.
type Selector struct {
	Kind Kind
	Expr string
}

// CSS builds a CSS selector.
func CSS(expr string) Selector { return Selector{Kind: KindCSS, Expr: expr} }

// XPath builds an XPath selector.
func XPath(expr string) Selector { return Selector{Kind: KindXPath, Expr: expr} }

// ParseSelector infers the kind from the expression. An explicit "css:" or
// "xpath:" prefix wins; otherwise anything starting with "/", "./" or "(" is
// XPath and everything else CSS.
func ParseSelector(expr string) Selector {
	expr = strings.TrimSpace(expr)
	switch {
	case strings.HasPrefix(expr, "xpath:"):
		return XPath(strings.TrimSpace(strings.TrimPrefix(expr, "xpath:")))
	case strings.HasPrefix(expr, "css:"):
		return CSS(strings.TrimSpace(strings.TrimPrefix(expr, "css:")))
	case strings.HasPrefix(expr, "/"), strings.HasPrefix(expr, "./"), strings.HasPrefix(expr, "("):
		return XPath(expr)
	}
	return CSS(expr)
}

// ParseSelectors converts a list of raw expressions, skipping blanks.
func ParseSelectors(exprs []string) []Selector {
	out := make([]Selector, 0, len(exprs))
	for _, e := range exprs {
		if strings.TrimSpace(e) == "" {
			continue
		}
		out = append(out, ParseSelector(e))
	}
	return out
}

func (s Selector) String() string {
	return string(s.Kind) + ":" + s.Expr
}

// Scope is something elements can be looked up in: a whole document or a
// sub-element. Element waits until ctx is done; Elements waits for the first
// match and then returns every match in document order.
type Scope interface {
	Element(ctx context.Context, sel Selector) (Element, error)
	Elements(ctx context.Context, sel Selector) ([]Element, error)
}

// Element is a located node.
type Element interface {
	Scope
	Text() (string, error)
	// Attribute returns the attribute value and whether it exists.
	Attribute(name string) (string, bool, error)
	Visible() (bool, error)
	ScrollIntoView() error
	Click() error
}

// Tab is one browser tab.
type Tab interface {
	Scope
	ID() string
	URL() (string, error)
	Navigate(ctx context.Context, url string) error
	// ScrollBy scrolls the viewport vertically by dy pixels.
	ScrollBy(dy int) error
	// OpenFrom activates el and returns the tab it opens. It fails if no new
	// tab appears before ctx is done.
	OpenFrom(ctx context.Context, el Element) (Tab, error)
	Activate() error
	Close() error
}
