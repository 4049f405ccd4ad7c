// Package listing defines the normalized record every scraped listing turns
// into, and its fixed tabular shape.
package listing

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/juanlucasumali/webscraper/internal/classify"
)

// Unknown is the marker for any field whose resolution failed.
const Unknown = "N/A"

// Source is the fixed source label of every row.
const Source = "Airbnb"

// Number is a parsed numeric value or unknown.
type Number struct {
	Value float64
	Known bool
}

// Num returns a known Number.
func Num(v float64) Number { return Number{Value: v, Known: true} }

// String renders the value without trailing zeros, or Unknown.
func (n Number) String() string {
	if !n.Known {
		return Unknown
	}
	return strconv.FormatFloat(n.Value, 'f', -1, 64)
}

// Int truncates the value.
func (n Number) Int() (int64, bool) {
	return int64(n.Value), n.Known
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Known {
		return json.Marshal(Unknown)
	}
	return []byte(n.String()), nil
}

// Amenities holds the eight tracked amenity flags.
type Amenities struct {
	TV        bool `json:"tv"`
	Pool      bool `json:"pool"`
	Jacuzzi   bool `json:"jacuzzi"`
	Billiards bool `json:"billiards"`
	LargeYard bool `json:"large_yard"`
	Balcony   bool `json:"balcony"`
	Laundry   bool `json:"laundry"`
	HomeGym   bool `json:"home_gym"`
}

// Record is one scraped listing. Every field is always set; failed
// resolutions hold Unknown or an unknown Number.
type Record struct {
	URL  string `json:"url"`
	Name string `json:"name"`

	GuestLimit Number `json:"guest_limit"`
	Bedrooms   Number `json:"bedrooms"`
	Beds       Number `json:"beds"`
	Bathrooms  Number `json:"bathrooms"`

	Rating         Number `json:"stars"`
	ReviewCount    Number `json:"review_count"`
	LocationRating Number `json:"location_rating"`

	TotalPrice   Number `json:"total_price"`
	NightlyPrice Number `json:"price_per_night"`
	Nights       Number `json:"number_of_nights"`

	Amenities          Amenities                    `json:"amenities"`
	AmenityEvidence    map[string]classify.Evidence `json:"amenity_evidence"`
	Historical         bool                         `json:"is_historical"`
	HistoricalEvidence string                       `json:"historical_evidence"`
	GuestFavorite      bool                         `json:"is_guest_favorite"`

	Page      int       `json:"page"`
	Position  int       `json:"position"`
	ScrapedAt time.Time `json:"scraped_at"`
}

// New returns a record with every field set to its unknown value.
func New() Record {
	return Record{
		URL:                Unknown,
		Name:               Unknown,
		AmenityEvidence:    map[string]classify.Evidence{},
		HistoricalEvidence: classify.NoHistoricalEvidence,
	}
}

// SetAmenities copies a classification into the record. Attributes outside
// the eight tracked ones keep their evidence only.
func (r *Record) SetAmenities(res map[string]classify.Result) {
	if r.AmenityEvidence == nil {
		r.AmenityEvidence = map[string]classify.Evidence{}
	}
	for name, v := range res {
		if v.Present && v.Evidence != nil {
			r.AmenityEvidence[name] = *v.Evidence
		}
		switch name {
		case classify.TV:
			r.Amenities.TV = v.Present
		case classify.Pool:
			r.Amenities.Pool = v.Present
		case classify.Jacuzzi:
			r.Amenities.Jacuzzi = v.Present
		case classify.Billiards:
			r.Amenities.Billiards = v.Present
		case classify.LargeYard:
			r.Amenities.LargeYard = v.Present
		case classify.Balcony:
			r.Amenities.Balcony = v.Present
		case classify.Laundry:
			r.Amenities.Laundry = v.Present
		case classify.HomeGym:
			r.Amenities.HomeGym = v.Present
		}
	}
}

// SetHistorical copies historical-house detection into the record.
func (r *Record) SetHistorical(h classify.Historical) {
	r.Historical = h.Present
	r.HistoricalEvidence = h.Evidence
}

// Columns is the fixed tabular header.
var Columns = []string{
	"Link", "Name", "Bedrooms", "Beds", "Bathrooms", "Guest Limit",
	"Stars", "Price/Night in May", "AirBnB Location Rating", "Source",
	"Amenities", "TV", "Pool", "Jacuzzi", "Historical House",
	"Billiards Table", "Large Yard", "Balcony", "Laundry", "Home Gym",
	"Guest Favorite Status",
}

// Row is the tabular rendering of a Record. Field order matches Columns.
type Row struct {
	Link           string `json:"Link"`
	Name           string `json:"Name"`
	Bedrooms       string `json:"Bedrooms"`
	Beds           string `json:"Beds"`
	Bathrooms      string `json:"Bathrooms"`
	GuestLimit     string `json:"Guest Limit"`
	Stars          string `json:"Stars"`
	PricePerNight  string `json:"Price/Night in May"`
	LocationRating string `json:"AirBnB Location Rating"`
	Source         string `json:"Source"`
	Amenities      string `json:"Amenities"`
	TV             string `json:"TV"`
	Pool           string `json:"Pool"`
	Jacuzzi        string `json:"Jacuzzi"`
	Historical     string `json:"Historical House"`
	Billiards      string `json:"Billiards Table"`
	LargeYard      string `json:"Large Yard"`
	Balcony        string `json:"Balcony"`
	Laundry        string `json:"Laundry"`
	HomeGym        string `json:"Home Gym"`
	GuestFavorite  string `json:"Guest Favorite Status"`
}

// Row renders the record for tabular export.
func (r Record) Row() Row {
	return Row{
		Link:           r.URL,
		Name:           r.Name,
		Bedrooms:       r.Bedrooms.String(),
		Beds:           r.Beds.String(),
		Bathrooms:      r.Bathrooms.String(),
		GuestLimit:     r.GuestLimit.String(),
		Stars:          r.Rating.String(),
		PricePerNight:  r.NightlyPrice.String(),
		LocationRating: r.LocationRating.String(),
		Source:         Source,
		Amenities:      "",
		TV:             Bool(r.Amenities.TV),
		Pool:           Bool(r.Amenities.Pool),
		Jacuzzi:        Bool(r.Amenities.Jacuzzi),
		Historical:     Bool(r.Historical),
		Billiards:      Bool(r.Amenities.Billiards),
		LargeYard:      Bool(r.Amenities.LargeYard),
		Balcony:        Bool(r.Amenities.Balcony),
		Laundry:        Bool(r.Amenities.Laundry),
		HomeGym:        Bool(r.Amenities.HomeGym),
		GuestFavorite:  Bool(r.GuestFavorite),
	}
}

// Values returns the row cells in Columns order.
func (w Row) Values() []string {
	return []string{
		w.Link, w.Name, w.Bedrooms, w.Beds, w.Bathrooms, w.GuestLimit,
		w.Stars, w.PricePerNight, w.LocationRating, w.Source,
		w.Amenities, w.TV, w.Pool, w.Jacuzzi, w.Historical,
		w.Billiards, w.LargeYard, w.Balcony, w.Laundry, w.HomeGym,
		w.GuestFavorite,
	}
}

// Bool renders a flag as the literal TRUE or FALSE.
func Bool(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}
