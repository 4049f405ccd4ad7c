package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/juanlucasumali/webscraper/internal/classify"
	"github.com/juanlucasumali/webscraper/internal/dom"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDefault(t *testing.T) {
	c := Default()
	if c.DefaultNights != 2 {
		t.Errorf("default nights: got %d, want 2", c.DefaultNights)
	}
	if len(c.Chains.AmenitiesButton) != 5 || len(c.Chains.AmenitiesPanel) != 4 {
		t.Errorf("amenity chains: got %d buttons, %d panels", len(c.Chains.AmenitiesButton), len(c.Chains.AmenitiesPanel))
	}
	if len(c.Lexicon) != 8 {
		t.Errorf("lexicon: got %d attributes, want 8", len(c.Lexicon))
	}
	if c.Limiter() != nil {
		t.Error("limiter: want nil when rate is zero")
	}
	if c.Timeouts.Action != 5*time.Second {
		t.Errorf("action timeout: got %v", c.Timeouts.Action)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestDefaultChainsParse(t *testing.T) {
	d := DefaultChains()
	all := [][]string{
		d.Overlay, d.Items, d.Next, d.DateRange, d.Rating, d.Price,
		d.Name, d.Guests, d.Bedrooms, d.Beds, d.Baths, d.Location,
		d.GuestFavorite, d.Content, d.Description,
		d.AmenitiesButton, d.AmenitiesPanel, d.AmenitiesSection,
	}
	for _, chain := range all {
		if len(chain) == 0 {
			t.Fatal("empty default chain")
		}
		for _, expr := range chain {
			if sel := dom.ParseSelector(expr); sel.Expr == "" {
				t.Errorf("%q parsed to an empty selector", expr)
			}
		}
	}
	// Card fields are looked up inside a card, so their XPath must be relative.
	for _, expr := range []string{d.Rating[0], d.Price[0], d.Price[1]} {
		if sel := dom.ParseSelector(expr); sel.Kind != dom.KindXPath || !strings.HasPrefix(expr, "./") {
			t.Errorf("card-scoped %q: want relative XPath, got %+v", expr, sel)
		}
	}
}

func TestLoadFile_OverridesAndDefaults(t *testing.T) {
	path := writeFile(t, "scraper.yaml", `
chains:
  name: ["h1.title", "h1"]
lexicon:
  - name: Sauna
    synonyms: [sauna, steam room]
timeouts:
  load: 45s
  action: 1500ms
default_nights: 3
rate: 0.5
`)
	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got := c.Chains.Name; len(got) != 2 || got[0] != "h1.title" {
		t.Errorf("name chain: got %v", got)
	}
	if len(c.Chains.Next) != len(DefaultChains().Next) {
		t.Errorf("next chain should keep its default, got %v", c.Chains.Next)
	}
	if len(c.Lexicon) != 1 || c.Lexicon[0].Name != "Sauna" {
		t.Errorf("lexicon: got %+v", c.Lexicon)
	}
	if c.Timeouts.Load != 45*time.Second {
		t.Errorf("load timeout: got %v", c.Timeouts.Load)
	}
	if c.Timeouts.Location != 10*time.Second {
		t.Errorf("location timeout default: got %v", c.Timeouts.Location)
	}
	if c.Timeouts.Action != 1500*time.Millisecond {
		t.Errorf("action timeout: got %v", c.Timeouts.Action)
	}
	if c.DefaultNights != 3 {
		t.Errorf("nights: got %d", c.DefaultNights)
	}
	if l := c.Limiter(); l == nil || l.Limit() != 0.5 {
		t.Errorf("limiter: got %v", l)
	}
	if len(c.HistoricalTerms) != len(classify.DefaultHistoricalTerms()) {
		t.Errorf("historical terms: got %v", c.HistoricalTerms)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file: want error")
	}
	bad := writeFile(t, "bad.yaml", "chains: [unterminated")
	if _, err := LoadFile(bad); err == nil {
		t.Error("malformed yaml: want error")
	}
}

func TestValidate(t *testing.T) {
	c := Default()
	c.Rate = -1
	if err := c.Validate(); err == nil {
		t.Error("negative rate: want error")
	}
	c = Default()
	c.Lexicon = append(c.Lexicon, classify.Attribute{Synonyms: []string{"x"}})
	if err := c.Validate(); err == nil {
		t.Error("unnamed attribute: want error")
	}
}

func TestSelectors(t *testing.T) {
	c := Default()
	x := c.ExtractorSelectors()
	if !x.Location.Scroll || x.Location.Timeout != c.Timeouts.Location {
		t.Errorf("location spec: got %+v", x.Location)
	}
	if x.Name.Scroll {
		t.Error("name spec should not scroll")
	}
	if len(x.AmenitiesPanel.Strategies) != 4 {
		t.Errorf("panel strategies: got %d", len(x.AmenitiesPanel.Strategies))
	}
	w := c.WalkerSelectors()
	if w.Overlay.Timeout != c.Timeouts.Overlay || len(w.Items.Strategies) != len(c.Chains.Items) {
		t.Errorf("walker selectors: got %+v", w)
	}
}

func TestEnv(t *testing.T) {
	t.Setenv(EnvProxy, "http://proxy.test:8080")
	t.Setenv(EnvRate, "nope")
	if got := Env(EnvProxy, ""); got != "http://proxy.test:8080" {
		t.Errorf("Env: got %q", got)
	}
	if got := Env("WEBSCRAPER_UNSET_FOR_TEST", "fallback"); got != "fallback" {
		t.Errorf("Env fallback: got %q", got)
	}
	if got := EnvFloat(EnvRate, 1.5); got != 1.5 {
		t.Errorf("EnvFloat invalid: got %v", got)
	}
	t.Setenv(EnvRate, "0.5")
	if got := EnvFloat(EnvRate, 1.5); got != 0.5 {
		t.Errorf("EnvFloat: got %v", got)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "WEBSCRAPER_DOTENV_TEST=loaded\n")
	t.Setenv("WEBSCRAPER_DOTENV_TEST", "")
	os.Unsetenv("WEBSCRAPER_DOTENV_TEST")

	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("WEBSCRAPER_DOTENV_TEST"); got != "loaded" {
		t.Errorf("env: got %q, want loaded", got)
	}
}
