// Package browser launches Chrome through rod and adapts its pages to the
// dom contracts the scraper core is written against.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Config configures a Browser.
type Config struct {
	// Headless hides the window. The CLI's --showui flag clears it.
	Headless bool

	// ProxyURL routes all traffic through a proxy. Empty means direct.
	ProxyURL string

	// UserAgent overrides the agent string of every tab opened by NewTab.
	UserAgent string

	// Stealth injects the stealth evasions into tabs opened by NewTab.
	Stealth bool

	// ActionTimeout bounds each click, scroll and element read. A covered
	// element makes rod retry a native click until this expires.
	ActionTimeout time.Duration

	Logger *slog.Logger
}

// DefaultActionTimeout is used when Config.ActionTimeout is not positive.
const DefaultActionTimeout = 5 * time.Second

func (c *Config) defaults() {
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = DefaultActionTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Browser owns one launched Chrome process.
type Browser struct {
	cfg      Config
	browser  *rod.Browser
	launcher *launcher.Launcher
	session  *session
}

// session is shared by every tab of one browser.
type session struct {
	browser *rod.Browser
	pages   *pageSet
	action  time.Duration
	logger  *slog.Logger
}

// pageIDs lists the page targets currently open in the browser.
func (s *session) pageIDs() ([]proto.TargetTargetID, error) {
	b := s.browser.Timeout(s.action)
	defer b.CancelTimeout()
	res, err := proto.TargetGetTargets{}.Call(b)
	if err != nil {
		return nil, fmt.Errorf("browser: list tabs: %w", err)
	}
	return pageTargets(res.TargetInfos), nil
}

// closeStrays closes every page target no Tab owns, such as a listing tab
// that opened after OpenFrom stopped waiting for it.
func (s *session) closeStrays() {
	ids, err := s.pageIDs()
	if err != nil {
		s.logger.Warn("browser: stray tab sweep failed", "error", err)
		return
	}
	for _, id := range s.pages.strays(ids) {
		if err := s.closeTarget(id); err != nil {
			s.logger.Warn("browser: close stray tab failed", "target", id, "error", err)
			continue
		}
		s.logger.Warn("browser: closed stray tab", "target", id)
	}
}

func (s *session) closeTarget(id proto.TargetTargetID) error {
	b := s.browser.Timeout(s.action)
	defer b.CancelTimeout()
	_, err := proto.TargetCloseTarget{TargetID: id}.Call(b)
	return err
}

func pageTargets(infos []*proto.TargetTargetInfo) []proto.TargetTargetID {
	var ids []proto.TargetTargetID
	for _, info := range infos {
		if info.Type == proto.TargetTargetInfoTypePage {
			ids = append(ids, info.TargetID)
		}
	}
	return ids
}

// pageSet records the page targets owned by the scraper.
type pageSet struct {
	mu    sync.Mutex
	known map[proto.TargetTargetID]struct{}
}

func newPageSet(ids ...proto.TargetTargetID) *pageSet {
	s := &pageSet{known: make(map[proto.TargetTargetID]struct{}, len(ids))}
	for _, id := range ids {
		s.known[id] = struct{}{}
	}
	return s
}

func (s *pageSet) add(id proto.TargetTargetID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.known[id] = struct{}{}
}

func (s *pageSet) remove(id proto.TargetTargetID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.known, id)
}

// strays returns the ids that are not in the set, in order.
func (s *pageSet) strays(ids []proto.TargetTargetID) []proto.TargetTargetID {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []proto.TargetTargetID
	for _, id := range ids {
		if _, ok := s.known[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// New launches Chrome and connects to it.
func New(cfg Config) (*Browser, error) {
	cfg.defaults()

	l := launcher.New().
		Headless(cfg.Headless).
		Set("disable-blink-features", "AutomationControlled")
	if cfg.ProxyURL != "" {
		l = l.Proxy(cfg.ProxyURL)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("browser: launch chrome: %w", err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	sess := &session{browser: b, pages: newPageSet(), action: cfg.ActionTimeout, logger: cfg.Logger}
	// Pages Chrome opened on its own at launch are not strays.
	initial, err := sess.pageIDs()
	if err != nil {
		cfg.Logger.Warn("browser: list startup tabs failed", "error", err)
	}
	for _, id := range initial {
		sess.pages.add(id)
	}

	cfg.Logger.Info("browser: launched local chrome",
		"headless", cfg.Headless, "proxy", cfg.ProxyURL != "")

	return &Browser{cfg: cfg, browser: b, launcher: l, session: sess}, nil
}

// NewTab opens a blank tab.
func (b *Browser) NewTab(ctx context.Context) (*Tab, error) {
	var (
		page *rod.Page
		err  error
	)
	if b.cfg.Stealth {
		page, err = stealth.Page(b.browser)
	} else {
		page, err = b.browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	b.session.pages.add(page.TargetID)

	if b.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: b.cfg.UserAgent}); err != nil {
			b.cfg.Logger.Warn("browser: set user agent failed", "error", err)
		}
	}
	return newTab(ctx, page, b.session), nil
}

// Close shuts Chrome down. Both the connection and the process are released
// even when one of them fails.
func (b *Browser) Close() error {
	var err error
	if b.browser != nil {
		err = b.browser.Close()
	}
	if b.launcher != nil {
		b.launcher.Kill()
	}
	if err != nil {
		return fmt.Errorf("browser: close: %w", err)
	}
	return nil
}
