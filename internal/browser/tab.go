package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/juanlucasumali/webscraper/internal/dom"
)

// Tab adapts a rod page to dom.Tab. Lookups are bound to the ctx passed to
// them; the elements they return are rebound to the tab's own context so
// they stay usable after the lookup deadline. Every interaction with a found
// element is bounded by the session's action timeout.
type Tab struct {
	page *rod.Page
	base context.Context
	sess *session
}

var _ dom.Tab = (*Tab)(nil)

func newTab(ctx context.Context, page *rod.Page, sess *session) *Tab {
	return &Tab{page: page.Context(ctx), base: ctx, sess: sess}
}

// Page exposes the underlying rod page.
func (t *Tab) Page() *rod.Page { return t.page }

func (t *Tab) ID() string { return string(t.page.TargetID) }

func (t *Tab) binding() binding { return binding{base: t.base, action: t.sess.action} }

// bounded runs fn on a clone of the page limited to the action timeout.
func (t *Tab) bounded(fn func(*rod.Page) error) error {
	p := t.page.Timeout(t.sess.action)
	defer p.CancelTimeout()
	return fn(p)
}

func (t *Tab) URL() (string, error) {
	var url string
	err := t.bounded(func(p *rod.Page) error {
		info, err := p.Info()
		if err != nil {
			return err
		}
		url = info.URL
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("browser: tab info: %w", err)
	}
	return url, nil
}

func (t *Tab) Navigate(ctx context.Context, url string) error {
	p := t.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("browser: wait load %s: %w", url, err)
	}
	return nil
}

func (t *Tab) Element(ctx context.Context, sel dom.Selector) (dom.Element, error) {
	p := t.page.Context(ctx)
	return findOne(ctx, t.binding(), sel, p.Element, p.ElementX)
}

func (t *Tab) Elements(ctx context.Context, sel dom.Selector) ([]dom.Element, error) {
	p := t.page.Context(ctx)
	return findAll(ctx, t.binding(), sel, p.Element, p.ElementX, p.Elements, p.ElementsX)
}

func (t *Tab) ScrollBy(dy int) error {
	err := t.bounded(func(p *rod.Page) error {
		_, err := p.Eval(`(dy) => window.scrollBy(0, dy)`, dy)
		return err
	})
	if err != nil {
		return fmt.Errorf("browser: scroll: %w", err)
	}
	return nil
}

// OpenFrom clicks el and waits for the tab the click opens. Tabs left over
// from an earlier click whose tab opened too late are closed first.
func (t *Tab) OpenFrom(ctx context.Context, el dom.Element) (dom.Tab, error) {
	t.sess.closeStrays()

	wait := t.page.Context(ctx).WaitOpen()
	if err := el.Click(); err != nil {
		return nil, err
	}
	opened, err := wait()
	if err != nil {
		t.sess.closeStrays()
		return nil, fmt.Errorf("browser: wait for new tab: %w", err)
	}
	t.sess.pages.add(opened.TargetID)

	if err := opened.Context(ctx).WaitLoad(); err != nil {
		t.sess.logger.Warn("browser: new tab did not finish loading", "error", err)
	}
	return newTab(t.base, opened, t.sess), nil
}

func (t *Tab) Activate() error {
	err := t.bounded(func(p *rod.Page) error {
		_, err := p.Activate()
		return err
	})
	if err != nil {
		return fmt.Errorf("browser: activate tab: %w", err)
	}
	return nil
}

// Close closes the tab. The tab is forgotten even if closing fails, so a
// later sweep retries it.
func (t *Tab) Close() error {
	defer t.sess.pages.remove(t.page.TargetID)
	if err := t.bounded(func(p *rod.Page) error { return p.Close() }); err != nil {
		return fmt.Errorf("browser: close tab: %w", err)
	}
	return nil
}

// binding is what found elements are rebound to: the tab's context and the
// per-interaction deadline.
type binding struct {
	base   context.Context
	action time.Duration
}

func (b binding) wrap(el *rod.Element) *Element {
	return &Element{el: el.Context(b.base), b: b}
}

// Element adapts a rod element to dom.Element.
type Element struct {
	el *rod.Element
	b  binding
}

var _ dom.Element = (*Element)(nil)

func (e *Element) Element(ctx context.Context, sel dom.Selector) (dom.Element, error) {
	el := e.el.Context(ctx)
	return findOne(ctx, e.b, sel, el.Element, el.ElementX)
}

func (e *Element) Elements(ctx context.Context, sel dom.Selector) ([]dom.Element, error) {
	el := e.el.Context(ctx)
	return findAll(ctx, e.b, sel, el.Element, el.ElementX, el.Elements, el.ElementsX)
}

// bounded runs fn on a clone of the element limited to the action timeout.
func (e *Element) bounded(fn func(*rod.Element) error) error {
	el := e.el.Timeout(e.b.action)
	defer el.CancelTimeout()
	return fn(el)
}

func (e *Element) Text() (string, error) {
	var text string
	err := e.bounded(func(el *rod.Element) (err error) {
		text, err = el.Text()
		return err
	})
	return text, err
}

func (e *Element) Attribute(name string) (string, bool, error) {
	var v *string
	err := e.bounded(func(el *rod.Element) (err error) {
		v, err = el.Attribute(name)
		return err
	})
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *Element) Visible() (bool, error) {
	var visible bool
	err := e.bounded(func(el *rod.Element) (err error) {
		visible, err = el.Visible()
		return err
	})
	return visible, err
}

func (e *Element) ScrollIntoView() error {
	return e.bounded(func(el *rod.Element) error { return el.ScrollIntoView() })
}

// Click dispatches a mouse click and falls back to a script click when the
// element is covered, not interactable, or the mouse click runs out of time.
func (e *Element) Click() error {
	return clickWithFallback(
		func() error {
			return e.bounded(func(el *rod.Element) error {
				return el.Click(proto.InputMouseButtonLeft, 1)
			})
		},
		func() error {
			return e.bounded(func(el *rod.Element) error {
				_, err := el.Eval(`() => this.click()`)
				return err
			})
		},
	)
}

// clickWithFallback runs script only when native fails. The native error is
// kept in the chain when both fail.
func clickWithFallback(native, script func() error) error {
	err := native()
	if err == nil {
		return nil
	}
	if jsErr := script(); jsErr != nil {
		return fmt.Errorf("browser: click: %w (script click: %v)", err, jsErr)
	}
	return nil
}

type (
	oneFunc  func(string) (*rod.Element, error)
	manyFunc func(string) (rod.Elements, error)
)

func findOne(ctx context.Context, b binding, sel dom.Selector, css, xpath oneFunc) (dom.Element, error) {
	find := css
	if sel.Kind == dom.KindXPath {
		find = xpath
	}
	el, err := find(sel.Expr)
	if err != nil {
		return nil, lookupError(ctx, sel, err)
	}
	return b.wrap(el), nil
}

// findAll waits for the first match, then lists every match without waiting.
func findAll(ctx context.Context, b binding, sel dom.Selector, css, xpath oneFunc, cssAll, xpathAll manyFunc) ([]dom.Element, error) {
	if _, err := findOne(ctx, b, sel, css, xpath); err != nil {
		return nil, err
	}
	list := cssAll
	if sel.Kind == dom.KindXPath {
		list = xpathAll
	}
	els, err := list(sel.Expr)
	if err != nil {
		return nil, lookupError(ctx, sel, err)
	}
	out := make([]dom.Element, len(els))
	for i, el := range els {
		out[i] = b.wrap(el)
	}
	return out, nil
}

// lookupError reports a timed-out lookup as dom.ErrNotFound.
func lookupError(ctx context.Context, sel dom.Selector, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %s", dom.ErrNotFound, sel)
	}
	return fmt.Errorf("browser: %s: %w", sel, err)
}
