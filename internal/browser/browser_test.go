package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/juanlucasumali/webscraper/internal/dom"
)

// Launching Chrome is slow and needs a local install, so these tests only
// run when WEBSCRAPER_BROWSER_TEST is set.
func newTestBrowser(t *testing.T, cfg Config) *Browser {
	t.Helper()
	if os.Getenv("WEBSCRAPER_BROWSER_TEST") == "" {
		t.Skip("set WEBSCRAPER_BROWSER_TEST=1 to run against a local Chrome")
	}
	cfg.Headless, cfg.Stealth = true, true
	b, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func testServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/results", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
<div class="card"><a href="/rooms/1" target="_blank"><span class="price">$450</span></a></div>
<div class="card"><a href="/rooms/2" target="_blank"><span class="price">$300</span></a></div>
</body></html>`)
	})
	mux.HandleFunc("/rooms/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><h1>Room %s</h1></body></html>`, r.URL.Path)
	})
	mux.HandleFunc("/covered", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
<button id="go" onclick="document.body.insertAdjacentHTML('beforeend', '<p id=clicked>ok</p>')">Go</button>
<div style="position:fixed;top:0;left:0;width:100%;height:100%;z-index:10;background:rgba(0,0,0,0.2)"></div>
</body></html>`)
	})
	mux.HandleFunc("/late", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
<a id="late" href="#" onclick="setTimeout(function() { window.open('/rooms/9') }, 1000); return false">late</a>
</body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestTab_LookupsAndOpenFrom(t *testing.T) {
	b := newTestBrowser(t, Config{})
	srv := testServer(t)
	ctx := context.Background()

	tab, err := b.NewTab(ctx)
	if err != nil {
		t.Fatalf("NewTab: %v", err)
	}
	defer tab.Close()

	navCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := tab.Navigate(navCtx, srv.URL+"/results"); err != nil {
		t.Fatalf("Navigate: %v", err)
	}

	lookCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	cards, err := tab.Elements(lookCtx, dom.CSS("div.card"))
	if err != nil || len(cards) != 2 {
		t.Fatalf("cards: got %d, %v", len(cards), err)
	}

	price, err := cards[1].Element(lookCtx, dom.XPath(".//span[@class='price']"))
	if err != nil {
		t.Fatalf("relative xpath: %v", err)
	}
	if txt, _ := price.Text(); txt != "$300" {
		t.Errorf("price: got %q", txt)
	}

	missCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	if _, err := tab.Element(missCtx, dom.CSS("div.absent")); err == nil {
		t.Error("missing element: want error")
	}

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	link, err := cards[0].Element(openCtx, dom.CSS("a"))
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	detail, err := tab.OpenFrom(openCtx, link)
	if err != nil {
		t.Fatalf("OpenFrom: %v", err)
	}
	defer detail.Close()

	h1, err := detail.Element(openCtx, dom.CSS("h1"))
	if err != nil {
		t.Fatalf("detail h1: %v", err)
	}
	if txt, _ := h1.Text(); txt != "Room /rooms/1" {
		t.Errorf("detail: got %q", txt)
	}
	if err := tab.Activate(); err != nil {
		t.Errorf("Activate: %v", err)
	}
}

func navigate(t *testing.T, b *Browser, url string) *Tab {
	t.Helper()
	tab, err := b.NewTab(context.Background())
	if err != nil {
		t.Fatalf("NewTab: %v", err)
	}
	t.Cleanup(func() { tab.Close() })
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := tab.Navigate(ctx, url); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	return tab
}

func TestElement_ClickCoveredReturnsWithinBound(t *testing.T) {
	b := newTestBrowser(t, Config{ActionTimeout: 500 * time.Millisecond})
	tab := navigate(t, b, testServer(t).URL+"/covered")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	btn, err := tab.Element(ctx, dom.CSS("#go"))
	if err != nil {
		t.Fatalf("button: %v", err)
	}

	start := time.Now()
	if err := btn.Click(); err != nil {
		t.Fatalf("Click: %v", err)
	}
	// Native click until the bound, then one script click.
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Click took %v with a 500ms action bound", elapsed)
	}
	if _, err := tab.Element(ctx, dom.CSS("#clicked")); err != nil {
		t.Errorf("script fallback did not click the button: %v", err)
	}
}

func TestTab_OpenFromClosesLateTab(t *testing.T) {
	b := newTestBrowser(t, Config{})
	srv := testServer(t)
	tab := navigate(t, b, srv.URL+"/late")

	before, err := b.session.pageIDs()
	if err != nil {
		t.Fatalf("pageIDs: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	link, err := tab.Element(ctx, dom.CSS("#late"))
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if _, err := tab.OpenFrom(ctx, link); err == nil {
		t.Fatal("OpenFrom: want error when the tab opens after the deadline")
	}

	time.Sleep(2 * time.Second)
	mid, err := b.session.pageIDs()
	if err != nil {
		t.Fatalf("pageIDs: %v", err)
	}
	if len(mid) != len(before)+1 {
		t.Skipf("late tab did not open (%d tabs before, %d after)", len(before), len(mid))
	}

	b.session.closeStrays()
	after, err := b.session.pageIDs()
	if err != nil {
		t.Fatalf("pageIDs: %v", err)
	}
	if len(after) != len(before) {
		t.Errorf("stray tab survived: %d tabs before, %d after", len(before), len(after))
	}
	if _, err := tab.URL(); err != nil {
		t.Errorf("owned tab was closed: %v", err)
	}
}

func TestClickWithFallback(t *testing.T) {
	var scripted int
	script := func() error { scripted++; return nil }

	if err := clickWithFallback(func() error { return nil }, script); err != nil || scripted != 0 {
		t.Errorf("native success: err %v, script clicks %d", err, scripted)
	}

	timedOut := func() error { return context.DeadlineExceeded }
	if err := clickWithFallback(timedOut, script); err != nil || scripted != 1 {
		t.Errorf("native deadline: err %v, script clicks %d", err, scripted)
	}

	err := clickWithFallback(timedOut, func() error { return errors.New("detached") })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("both failed: got %v", err)
	}
}

func TestPageSet_Strays(t *testing.T) {
	set := newPageSet("results")
	set.add("detail")

	got := set.strays([]proto.TargetTargetID{"results", "late", "detail", "other"})
	if len(got) != 2 || got[0] != "late" || got[1] != "other" {
		t.Errorf("strays: got %v", got)
	}

	set.remove("detail")
	if got := set.strays([]proto.TargetTargetID{"results", "detail"}); len(got) != 1 || got[0] != "detail" {
		t.Errorf("closed tab should be a stray: got %v", got)
	}
	if got := newPageSet().strays(nil); len(got) != 0 {
		t.Errorf("empty: got %v", got)
	}
}

func TestPageTargets(t *testing.T) {
	got := pageTargets([]*proto.TargetTargetInfo{
		{TargetID: "a", Type: proto.TargetTargetInfoTypePage},
		{TargetID: "w", Type: proto.TargetTargetInfoTypeServiceWorker},
		{TargetID: "b", Type: proto.TargetTargetInfoTypePage},
	})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("got %v", got)
	}
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.defaults()
	if c.ActionTimeout != DefaultActionTimeout || c.Logger == nil {
		t.Errorf("defaults: %+v", c)
	}
	c = Config{ActionTimeout: time.Second}
	c.defaults()
	if c.ActionTimeout != time.Second {
		t.Errorf("explicit action timeout: got %v", c.ActionTimeout)
	}
}
