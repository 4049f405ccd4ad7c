// Package config holds the scraper's tunable data: locator chains for every
// field, the amenity lexicon, historical terms and timeouts. Defaults are
// built in; a YAML file may override any part of them.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/juanlucasumali/webscraper/internal/classify"
	"github.com/juanlucasumali/webscraper/internal/extractor"
	"github.com/juanlucasumali/webscraper/internal/locator"
	"github.com/juanlucasumali/webscraper/internal/walker"
)

// Environment variables read by the CLI.
const (
	EnvProxy       = "WEBSCRAPER_PROXY"
	EnvPostgresDSN = "WEBSCRAPER_POSTGRES_DSN"
	EnvRate        = "WEBSCRAPER_RATE"
)

// Config is the full scraper configuration.
type Config struct {
	Chains          Chains           `yaml:"chains"`
	Lexicon         classify.Lexicon `yaml:"lexicon"`
	HistoricalTerms []string         `yaml:"historical_terms"`
	Timeouts        Timeouts         `yaml:"timeouts"`
	DefaultNights   int              `yaml:"default_nights"`
	AmenityScroll   int              `yaml:"amenity_scroll"`
	UserAgent       string           `yaml:"user_agent"`
	// Rate limits detail-tab opens per second. Zero disables throttling.
	Rate float64 `yaml:"rate"`
}

// Chains lists the locator strategies of every field, tried in order.
// Expressions starting with "/", "./" or "(" are XPath, others CSS.
type Chains struct {
	Overlay   []string `yaml:"overlay"`
	Items     []string `yaml:"items"`
	Next      []string `yaml:"next"`
	DateRange []string `yaml:"date_range"`

	Rating []string `yaml:"rating"`
	Price  []string `yaml:"price"`

	Name          []string `yaml:"name"`
	Guests        []string `yaml:"guests"`
	Bedrooms      []string `yaml:"bedrooms"`
	Beds          []string `yaml:"beds"`
	Baths         []string `yaml:"baths"`
	Location      []string `yaml:"location"`
	GuestFavorite []string `yaml:"guest_favorite"`
	Content       []string `yaml:"content"`
	Description   []string `yaml:"description"`

	AmenitiesButton  []string `yaml:"amenities_button"`
	AmenitiesPanel   []string `yaml:"amenities_panel"`
	AmenitiesSection []string `yaml:"amenities_section"`
}

// Timeouts bound every wait.
type Timeouts struct {
	Attempt  time.Duration `yaml:"attempt"`
	Detail   time.Duration `yaml:"detail"`
	Location time.Duration `yaml:"location"`
	Overlay  time.Duration `yaml:"overlay"`
	Items    time.Duration `yaml:"items"`
	Open     time.Duration `yaml:"open"`
	Load     time.Duration `yaml:"load"`

	// Action bounds a single browser interaction such as a click or scroll.
	Action time.Duration `yaml:"action"`
}

const (
	detailRoot   = `//*[@id="site-content"]/div/div[1]`
	overviewList = detailRoot + `/div[3]/div/div[1]/div/div[1]/div/div/div/section/div[2]/ol`
	cardBody     = `./div/div[2]/div/div/div/div/div/div[2]`
)

// DefaultChains returns the built-in locator chains.
func DefaultChains() Chains {
	return Chains{
		Overlay: []string{`//button[contains(text(), 'Got it')]`},
		Items: []string{
			`//*[@id="site-content"]/div/div[2]/div/div/div/div/div/div`,
			`div[itemprop='itemListElement']`,
		},
		Next: []string{
			`//*[@id="site-content"]/div/div[3]/div/div/div/nav/div/a[last()]`,
			`nav[aria-label*='pagination'] a:last-of-type`,
			`a[aria-label='Next']`,
		},
		DateRange: []string{
			`/html/body/div[5]/div/div/div[1]/div/div[3]/header/div[1]/div/div/div/div/div[2]/div[1]/div/span[2]/button[2]/div`,
			`button[data-testid='little-search-date'] div`,
			`button[data-testid='little-search-date']`,
		},

		Rating: []string{
			cardBody + `/div[5]/span/span[3]`,
			`span[class*='r1dxllyb']`,
		},
		Price: []string{
			cardBody + `/div[4]/div[2]/div/div/span/div[1]/div/span/div/button/span[1]`,
			`.//span[@class='_hb913q']`,
			`span._tyxjp1`,
		},

		Name: []string{
			detailRoot + `/div[1]/div[1]/div/div/div/div/div/section/div/div[1]/div/h1`,
			`div[data-section-id='TITLE_DEFAULT'] h1`,
			`h1`,
		},
		Guests: []string{
			overviewList + `/li[1]`,
			`div[data-section-id='OVERVIEW_DEFAULT_V2'] ol li:nth-child(1)`,
		},
		Bedrooms: []string{
			overviewList + `/li[2]`,
			`div[data-section-id='OVERVIEW_DEFAULT_V2'] ol li:nth-child(2)`,
		},
		Beds: []string{
			overviewList + `/li[3]`,
			`div[data-section-id='OVERVIEW_DEFAULT_V2'] ol li:nth-child(3)`,
		},
		Baths: []string{
			overviewList + `/li[4]`,
			`div[data-section-id='OVERVIEW_DEFAULT_V2'] ol li:nth-child(4)`,
		},
		Location: []string{
			detailRoot + `/div[4]/div/div/div/div[2]/div/section/div[2]/div/div/div[3]/div/div/div/div/div[6]/div/div/div[2]/div[2]`,
			`div[data-testid='location-rating']`,
		},
		GuestFavorite: []string{
			detailRoot + `/div[4]/div/div/div/div[2]/div/section/div[1]/div[2]`,
			`div[data-section-id='GUEST_FAVORITE_BANNER']`,
		},
		Content: []string{
			detailRoot,
			`#site-content`,
			`body`,
		},
		Description: []string{
			detailRoot + `/div[3]/div/div[1]/div/div[5]/div/div[2]/div[1]`,
			`div[data-section-id='DESCRIPTION_DEFAULT']`,
		},

		AmenitiesButton: []string{
			detailRoot + `/div[3]/div/div[1]/div/div[7]/div/div[2]/section/div[3]/button`,
			`//button[contains(., 'Show all amenities')]`,
			`//button[contains(@aria-label, 'amenities')]`,
			`//div[contains(@data-section-id, 'AMENITIES')]//button`,
			`//button[.//span[contains(text(), 'Show all')]]`,
		},
		AmenitiesPanel: []string{
			`/html/body/div[9]/div/div/section/div/div/div[2]/div/div[3]/div/div/div/section/section`,
			`div[role='dialog'] section`,
			`//div[@role='dialog']//div[@role='group']`,
			`//div[contains(@aria-label, 'amenities')]`,
		},
		AmenitiesSection: []string{
			detailRoot + `/div[3]/div/div[1]/div/div[7]/div/div[2]/section`,
			`div[data-section-id='AMENITIES_DEFAULT'] section`,
		},
	}
}

// DefaultUserAgent is sent by every tab unless overridden.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Default returns the built-in configuration.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// LoadFile reads a YAML configuration file. Anything the file leaves out
// keeps its default.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	d := DefaultChains()
	fill := func(dst *[]string, def []string) {
		if len(*dst) == 0 {
			*dst = def
		}
	}
	fill(&c.Chains.Overlay, d.Overlay)
	fill(&c.Chains.Items, d.Items)
	fill(&c.Chains.Next, d.Next)
	fill(&c.Chains.DateRange, d.DateRange)
	fill(&c.Chains.Rating, d.Rating)
	fill(&c.Chains.Price, d.Price)
	fill(&c.Chains.Name, d.Name)
	fill(&c.Chains.Guests, d.Guests)
	fill(&c.Chains.Bedrooms, d.Bedrooms)
	fill(&c.Chains.Beds, d.Beds)
	fill(&c.Chains.Baths, d.Baths)
	fill(&c.Chains.Location, d.Location)
	fill(&c.Chains.GuestFavorite, d.GuestFavorite)
	fill(&c.Chains.Content, d.Content)
	fill(&c.Chains.Description, d.Description)
	fill(&c.Chains.AmenitiesButton, d.AmenitiesButton)
	fill(&c.Chains.AmenitiesPanel, d.AmenitiesPanel)
	fill(&c.Chains.AmenitiesSection, d.AmenitiesSection)

	if len(c.Lexicon) == 0 {
		c.Lexicon = classify.DefaultLexicon()
	}
	if len(c.HistoricalTerms) == 0 {
		c.HistoricalTerms = classify.DefaultHistoricalTerms()
	}

	t := &c.Timeouts
	if t.Attempt <= 0 {
		t.Attempt = locator.DefaultAttemptTimeout
	}
	if t.Detail <= 0 {
		t.Detail = 5 * time.Second
	}
	if t.Location <= 0 {
		t.Location = 10 * time.Second
	}
	if t.Overlay <= 0 {
		t.Overlay = 2 * time.Second
	}
	if t.Items <= 0 {
		t.Items = 5 * time.Second
	}
	if t.Open <= 0 {
		t.Open = extractor.DefaultOpenTimeout
	}
	if t.Load <= 0 {
		t.Load = walker.DefaultLoadTimeout
	}
	if t.Action <= 0 {
		t.Action = 5 * time.Second
	}

	if c.DefaultNights <= 0 {
		c.DefaultNights = extractor.DefaultNights
	}
	if c.AmenityScroll == 0 {
		c.AmenityScroll = extractor.DefaultAmenityScroll
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
}

// Validate reports configuration that cannot work.
func (c *Config) Validate() error {
	if c.Rate < 0 {
		return fmt.Errorf("config: rate must not be negative, got %v", c.Rate)
	}
	for _, a := range c.Lexicon {
		if a.Name == "" {
			return errors.New("config: lexicon entry without a name")
		}
	}
	return nil
}

func spec(name string, chain []string, timeout time.Duration) locator.FieldSpec {
	s := locator.Spec(name, chain...)
	s.Timeout = timeout
	return s
}

// ExtractorSelectors builds the extractor's field specs.
func (c *Config) ExtractorSelectors() extractor.Selectors {
	ch, t := c.Chains, c.Timeouts
	location := spec("location rating", ch.Location, t.Location)
	location.Scroll = true
	return extractor.Selectors{
		Rating:           spec("rating", ch.Rating, t.Attempt),
		Price:            spec("price", ch.Price, t.Attempt),
		DateRange:        spec("date range", ch.DateRange, t.Detail),
		Name:             spec("name", ch.Name, t.Detail),
		Guests:           spec("guests", ch.Guests, t.Detail),
		Bedrooms:         spec("bedrooms", ch.Bedrooms, t.Detail),
		Beds:             spec("beds", ch.Beds, t.Detail),
		Baths:            spec("baths", ch.Baths, t.Detail),
		Location:         location,
		GuestFavorite:    spec("guest favorite", ch.GuestFavorite, t.Attempt),
		Content:          spec("content", ch.Content, t.Attempt),
		Description:      spec("description", ch.Description, t.Attempt),
		AmenitiesButton:  spec("amenities button", ch.AmenitiesButton, t.Attempt),
		AmenitiesPanel:   spec("amenities panel", ch.AmenitiesPanel, t.Attempt),
		AmenitiesSection: spec("amenities section", ch.AmenitiesSection, t.Attempt),
	}
}

// WalkerSelectors builds the walker's page-level specs.
func (c *Config) WalkerSelectors() walker.Selectors {
	ch, t := c.Chains, c.Timeouts
	return walker.Selectors{
		Overlay: spec("overlay", ch.Overlay, t.Overlay),
		Items:   spec("items", ch.Items, t.Items),
		Next:    spec("next", ch.Next, t.Detail),
	}
}

// Limiter returns the detail-open throttle, or nil when Rate is zero.
func (c *Config) Limiter() *rate.Limiter {
	if c.Rate <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(c.Rate), 1)
}

// LoadDotEnv loads .env files into the process environment. Missing files
// are not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Env returns the variable's value or fallback when unset or empty.
func Env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// EnvFloat parses a float variable, returning fallback when unset or invalid.
func EnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
