// Package domtest is an in-memory implementation of the dom contracts backed
// by goquery. It understands CSS selectors only; XPath lookups fail with
// dom.ErrUnsupported, which exercises fallback chains the same way a missing
// element does in a real browser.
//
// A Site holds static HTML keyed by URL. Activating an element whose href
// (or whose first descendant a[href]) names a registered page opens a new tab
// on that page; anything else fails like a browser that never opened a tab.
package domtest

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/juanlucasumali/webscraper/internal/dom"
)

// Site is a fake browser session.
type Site struct {
	pages     map[string]string
	urlErrors map[string]error
	panics    map[string]bool
	tabs      []*Tab
	active    *Tab
	nextID    int

	// Clicks lists the text of every clicked element, in order.
	Clicks []string
}

// NewSite returns an empty fake session.
func NewSite() *Site {
	return &Site{
		pages:     make(map[string]string),
		urlErrors: make(map[string]error),
		panics:    make(map[string]bool),
	}
}

// AddPage registers the HTML served at url.
func (s *Site) AddPage(url, html string) {
	s.pages[url] = html
}

// FailURL makes Tab.URL return err for tabs showing url.
func (s *Site) FailURL(url string, err error) {
	s.urlErrors[url] = err
}

// PanicOn makes text reads in tabs showing url panic, like a driver crash.
func (s *Site) PanicOn(url string) {
	s.panics[url] = true
}

// Open creates a tab, navigates it to url and makes it active.
func (s *Site) Open(url string) (*Tab, error) {
	t := s.newTab()
	if err := t.Navigate(context.Background(), url); err != nil {
		t.closed = true
		return nil, err
	}
	s.active = t
	return t, nil
}

// Active returns the active tab, nil when none is.
func (s *Site) Active() *Tab { return s.active }

// OpenTabs returns every tab not yet closed.
func (s *Site) OpenTabs() []*Tab {
	var out []*Tab
	for _, t := range s.tabs {
		if !t.closed {
			out = append(out, t)
		}
	}
	return out
}

func (s *Site) newTab() *Tab {
	s.nextID++
	t := &Tab{site: s, id: fmt.Sprintf("tab-%d", s.nextID)}
	s.tabs = append(s.tabs, t)
	return t
}

// Tab is a fake browser tab.
type Tab struct {
	site   *Site
	id     string
	url    string
	doc    *goquery.Document
	closed bool

	// Queries lists every selector looked up through this tab or its elements.
	Queries []dom.Selector
	// Scrolled accumulates ScrollBy offsets.
	Scrolled int
}

func (t *Tab) ID() string { return t.id }

// Closed reports whether Close was called.
func (t *Tab) Closed() bool { return t.closed }

func (t *Tab) URL() (string, error) {
	if err := t.site.urlErrors[t.url]; err != nil {
		return "", err
	}
	return t.url, nil
}

func (t *Tab) Navigate(_ context.Context, url string) error {
	html, ok := t.site.pages[url]
	if !ok {
		return fmt.Errorf("domtest: no page at %s", url)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("domtest: parse %s: %w", url, err)
	}
	t.url = url
	t.doc = doc
	return nil
}

func (t *Tab) Element(ctx context.Context, sel dom.Selector) (dom.Element, error) {
	if t.closed {
		return nil, fmt.Errorf("domtest: tab %s is closed", t.id)
	}
	return t.find(t.doc.Selection, sel)
}

func (t *Tab) Elements(ctx context.Context, sel dom.Selector) ([]dom.Element, error) {
	if t.closed {
		return nil, fmt.Errorf("domtest: tab %s is closed", t.id)
	}
	return t.findAll(t.doc.Selection, sel)
}

func (t *Tab) ScrollBy(dy int) error {
	t.Scrolled += dy
	return nil
}

func (t *Tab) OpenFrom(ctx context.Context, el dom.Element) (dom.Tab, error) {
	e, ok := el.(*Element)
	if !ok {
		return nil, fmt.Errorf("domtest: foreign element %T", el)
	}
	if err := e.Click(); err != nil {
		return nil, err
	}
	href, ok := e.sel.Attr("href")
	if !ok {
		href, _ = e.sel.Find("a[href]").First().Attr("href")
	}
	if _, ok := t.site.pages[href]; href == "" || !ok {
		return nil, fmt.Errorf("domtest: no tab opened for %q: %w", href, context.DeadlineExceeded)
	}
	nt := t.site.newTab()
	if err := nt.Navigate(ctx, href); err != nil {
		nt.closed = true
		return nil, err
	}
	t.site.active = nt
	return nt, nil
}

func (t *Tab) Activate() error {
	if t.closed {
		return fmt.Errorf("domtest: tab %s is closed", t.id)
	}
	t.site.active = t
	return nil
}

func (t *Tab) Close() error {
	t.closed = true
	if t.site.active == t {
		t.site.active = nil
	}
	return nil
}

func (t *Tab) find(root *goquery.Selection, sel dom.Selector) (dom.Element, error) {
	t.Queries = append(t.Queries, sel)
	if sel.Kind != dom.KindCSS {
		return nil, fmt.Errorf("%s: %w", sel, dom.ErrUnsupported)
	}
	found := root.Find(sel.Expr).First()
	if found.Length() == 0 {
		return nil, fmt.Errorf("%s: %w", sel, dom.ErrNotFound)
	}
	return &Element{tab: t, sel: found}, nil
}

func (t *Tab) findAll(root *goquery.Selection, sel dom.Selector) ([]dom.Element, error) {
	t.Queries = append(t.Queries, sel)
	if sel.Kind != dom.KindCSS {
		return nil, fmt.Errorf("%s: %w", sel, dom.ErrUnsupported)
	}
	found := root.Find(sel.Expr)
	if found.Length() == 0 {
		return nil, fmt.Errorf("%s: %w", sel, dom.ErrNotFound)
	}
	out := make([]dom.Element, 0, found.Length())
	found.Each(func(_ int, s *goquery.Selection) {
		out = append(out, &Element{tab: t, sel: s})
	})
	return out, nil
}

// Element is a fake located node.
type Element struct {
	tab *Tab
	sel *goquery.Selection

	// ScrollCount counts ScrollIntoView calls.
	ScrollCount int
}

func (e *Element) Element(ctx context.Context, sel dom.Selector) (dom.Element, error) {
	return e.tab.find(e.sel, sel)
}

func (e *Element) Elements(ctx context.Context, sel dom.Selector) ([]dom.Element, error) {
	return e.tab.findAll(e.sel, sel)
}

// Text returns the node text with whitespace runs collapsed, the way
// innerText reads for inline content.
func (e *Element) Text() (string, error) {
	if e.tab.site.panics[e.tab.url] {
		panic("domtest: driver crashed reading " + e.tab.url)
	}
	return strings.Join(strings.Fields(e.sel.Text()), " "), nil
}

func (e *Element) Attribute(name string) (string, bool, error) {
	v, ok := e.sel.Attr(name)
	return v, ok, nil
}

// Visible is false for nodes carrying the hidden attribute or display:none.
func (e *Element) Visible() (bool, error) {
	if _, hidden := e.sel.Attr("hidden"); hidden {
		return false, nil
	}
	style, _ := e.sel.Attr("style")
	if strings.Contains(strings.ReplaceAll(style, " ", ""), "display:none") {
		return false, nil
	}
	return true, nil
}

func (e *Element) ScrollIntoView() error {
	e.ScrollCount++
	return nil
}

// Click fails for nodes marked data-click-error.
func (e *Element) Click() error {
	if msg, ok := e.sel.Attr("data-click-error"); ok {
		return fmt.Errorf("domtest: click intercepted: %s", msg)
	}
	e.tab.site.Clicks = append(e.tab.site.Clicks, strings.Join(strings.Fields(e.sel.Text()), " "))
	return nil
}
