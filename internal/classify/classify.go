// Package classify infers boolean listing attributes from free text by
// case-insensitive synonym matching, keeping a short context window around
// each match as evidence.
package classify

import (
	"strings"
	"unicode/utf8"
)

// Canonical amenity names.
const (
	TV        = "TV"
	Pool      = "Pool"
	Jacuzzi   = "Jacuzzi"
	Billiards = "Billiards/Pool Table"
	LargeYard = "Large Yard"
	Balcony   = "Balcony"
	Laundry   = "Laundry"
	HomeGym   = "Home Gym"
)

// Context window sizes, in bytes either side of a match.
const (
	AmenityContext    = 50
	HistoricalContext = 100
)

// NoHistoricalEvidence is the evidence text when no term matched.
const NoHistoricalEvidence = "No historical evidence found"

// Attribute is one canonical name and the phrases that imply it.
type Attribute struct {
	Name     string   `yaml:"name"`
	Synonyms []string `yaml:"synonyms"`
}

// Lexicon is static configuration; it is never derived from page content.
type Lexicon []Attribute

// Names returns the canonical names in lexicon order.
func (l Lexicon) Names() []string {
	names := make([]string, len(l))
	for i, a := range l {
		names[i] = a.Name
	}
	return names
}

// DefaultLexicon returns a fresh copy of the built-in amenity lexicon.
func DefaultLexicon() Lexicon {
	return Lexicon{
		{TV, []string{"tv", "television", "smart tv", "cable tv", "hdtv", "roku", "netflix", "streaming", "apple tv", "flat screen"}},
		{Pool, []string{"pool", "swimming pool", "outdoor pool", "indoor pool", "heated pool", "lap pool", "plunge pool"}},
		{Jacuzzi, []string{"jacuzzi", "hot tub", "whirlpool", "jetted tub", "soaking tub", "spa tub"}},
		{Billiards, []string{"pool table", "billiards", "billiard table", "game table", "gaming table", "pool cue"}},
		{LargeYard, []string{"yard", "garden", "backyard", "outdoor space", "patio", "lawn", "courtyard", "grounds"}},
		{Balcony, []string{"balcony", "deck", "terrace", "porch", "veranda", "outdoor deck", "private balcony"}},
		{Laundry, []string{"laundry", "washer", "dryer", "washing machine", "laundromat", "clothes washer", "clothes dryer", "washer/dryer"}},
		{HomeGym, []string{"gym", "fitness", "exercise", "workout", "weight", "treadmill", "exercise equipment", "fitness room"}},
	}
}

// DefaultHistoricalTerms returns the built-in historical-house terms.
func DefaultHistoricalTerms() []string {
	return []string{"historic", "historical", "history"}
}

// Evidence is the synonym that matched and the text around it.
type Evidence struct {
	Term    string `json:"term"`
	Context string `json:"context"`
}

// Result is the classification of one attribute.
type Result struct {
	Present  bool      `json:"present"`
	Evidence *Evidence `json:"evidence,omitempty"`
}

// Classify tests every lexicon attribute against text. The first synonym (in
// lexicon order) found in the text decides the attribute; no other synonym of
// that attribute is searched for.
func Classify(text string, lex Lexicon) map[string]Result {
	lower, sameLayout := fold(text)
	out := make(map[string]Result, len(lex))
	for _, attr := range lex {
		res := Result{}
		for _, syn := range attr.Synonyms {
			needle := strings.ToLower(syn)
			if needle == "" {
				continue
			}
			idx := strings.Index(lower, needle)
			if idx < 0 {
				continue
			}
			src := text
			if !sameLayout {
				src = lower
			}
			res = Result{
				Present:  true,
				Evidence: &Evidence{Term: syn, Context: window(src, idx, len(needle), AmenityContext)},
			}
			break
		}
		out[attr.Name] = res
	}
	return out
}

// Historical is the outcome of historical-house detection.
type Historical struct {
	Present  bool   `json:"is_historical"`
	Evidence string `json:"evidence"`
}

// DetectHistorical looks for each term once and joins the context windows of
// every term found.
func DetectHistorical(text string, terms []string) Historical {
	lower, sameLayout := fold(text)
	src := text
	if !sameLayout {
		src = lower
	}

	var evidence []string
	for _, term := range terms {
		needle := strings.ToLower(term)
		if needle == "" {
			continue
		}
		idx := strings.Index(lower, needle)
		if idx < 0 {
			continue
		}
		evidence = append(evidence, window(src, idx, len(needle), HistoricalContext))
	}

	if len(evidence) == 0 {
		return Historical{Evidence: NoHistoricalEvidence}
	}
	return Historical{Present: true, Evidence: strings.Join(evidence, "; ")}
}

// fold lowercases text and reports whether byte offsets in the result still
// line up with the original.
func fold(text string) (string, bool) {
	lower := strings.ToLower(text)
	return lower, len(lower) == len(text)
}

// window returns the trimmed text from radius bytes before idx to radius
// bytes after idx+n, widened to rune boundaries.
func window(s string, idx, n, radius int) string {
	start := max(0, idx-radius)
	end := min(len(s), idx+n+radius)
	for start > 0 && !utf8.RuneStart(s[start]) {
		start--
	}
	for end < len(s) && !utf8.RuneStart(s[end]) {
		end++
	}
	return strings.TrimSpace(s[start:end])
}
