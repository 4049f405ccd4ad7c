package airbnb

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/microcosm-cc/bluemonday"

	"github.com/juanlucasumali/webscraper/internal/listing"
	"github.com/juanlucasumali/webscraper/internal/walker"
)

// Content is the outcome of one run and implements scraper.Content.
type Content struct {
	target string
	run    Run
	result walker.Result
}

// NewContent creates a Content for a finished walk.
func NewContent(target string, run Run, result walker.Result) *Content {
	return &Content{target: target, run: run, result: result}
}

// Result returns the walk result.
func (c *Content) Result() walker.Result { return c.result }

func (c *Content) rows() []listing.Row {
	rows := make([]listing.Row, len(c.result.Records))
	for i, r := range c.result.Records {
		rows[i] = r.Row()
	}
	return rows
}

func (c *Content) summary() string {
	s := fmt.Sprintf("%d listings from %d pages, %d failed, outcome %s",
		len(c.result.Records), c.result.Pages, c.result.Failed, c.result.Outcome)
	if c.result.Err != nil {
		s += ": " + c.result.Err.Error()
	}
	return s
}

func (c *Content) ToCSV() (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(listing.Columns)
	for _, r := range c.rows() {
		_ = w.Write(r.Values())
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to write csv: %w", err)
	}
	return buf.String(), nil
}

func (c *Content) ToJSON() ([]byte, error) {
	type jsonOutput struct {
		Target   string        `json:"target"`
		Run      Run           `json:"run"`
		Outcome  string        `json:"outcome"`
		Pages    int           `json:"pages"`
		Failed   int           `json:"failed"`
		Error    string        `json:"error,omitempty"`
		Listings []listing.Row `json:"listings"`
	}
	out := jsonOutput{
		Target:   c.target,
		Run:      c.run,
		Outcome:  c.result.Outcome.String(),
		Pages:    c.result.Pages,
		Failed:   c.result.Failed,
		Listings: c.rows(),
	}
	if c.result.Err != nil {
		out.Error = c.result.Err.Error()
	}
	return json.MarshalIndent(out, "", "  ")
}

// ToHTML renders the listings as a table. Page text is untrusted, so the
// document is passed through a UGC sanitizer.
func (c *Content) ToHTML() (string, error) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("<h1>Airbnb listings: %s</h1>\n", html.EscapeString(c.target)))
	sb.WriteString("<p>" + html.EscapeString(c.summary()) + "</p>\n")
	sb.WriteString("<table>\n<thead><tr>")
	for _, col := range listing.Columns {
		sb.WriteString("<th>" + html.EscapeString(col) + "</th>")
	}
	sb.WriteString("</tr></thead>\n<tbody>\n")
	for _, r := range c.rows() {
		sb.WriteString("<tr>")
		for i, v := range r.Values() {
			cell := html.EscapeString(v)
			if i == 0 && v != listing.Unknown {
				cell = `<a href="` + cell + `">` + cell + "</a>"
			}
			sb.WriteString("<td>" + cell + "</td>")
		}
		sb.WriteString("</tr>\n")
	}
	sb.WriteString("</tbody>\n</table>\n")
	return bluemonday.UGCPolicy().Sanitize(sb.String()), nil
}

func (c *Content) ToMarkdown() (string, error) {
	doc, err := c.ToHTML()
	if err != nil {
		return "", err
	}
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.Table())
	markdown, err := converter.ConvertString(doc)
	if err != nil {
		return "", fmt.Errorf("failed to convert HTML to Markdown: %w", err)
	}
	return markdown, nil
}

func (c *Content) ToText() (string, error) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Airbnb listings: %s\n%s\n\n", c.target, c.summary()))
	for i, rec := range c.result.Records {
		sb.WriteString(fmt.Sprintf("%d. %s\n   %s\n", i+1, rec.Name, rec.URL))
		sb.WriteString(fmt.Sprintf("   %s stars (%s reviews), %s per night, %s guests, %s bedrooms\n",
			rec.Rating, rec.ReviewCount, rec.NightlyPrice, rec.GuestLimit, rec.Bedrooms))
		if names := amenityNames(rec.Amenities); len(names) > 0 {
			sb.WriteString("   amenities: " + strings.Join(names, ", ") + "\n")
		}
		if rec.Historical {
			sb.WriteString("   historical: " + rec.HistoricalEvidence + "\n")
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func amenityNames(a listing.Amenities) []string {
	var out []string
	for _, f := range []struct {
		name string
		on   bool
	}{
		{"TV", a.TV}, {"Pool", a.Pool}, {"Jacuzzi", a.Jacuzzi}, {"Billiards", a.Billiards},
		{"Large Yard", a.LargeYard}, {"Balcony", a.Balcony}, {"Laundry", a.Laundry}, {"Home Gym", a.HomeGym},
	} {
		if f.on {
			out = append(out, f.name)
		}
	}
	return out
}
