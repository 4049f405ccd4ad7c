package listing

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/juanlucasumali/webscraper/internal/classify"
)

func TestNew_EveryFieldUnknown(t *testing.T) {
	row := New().Row()
	vals := row.Values()
	if len(vals) != len(Columns) {
		t.Fatalf("values: got %d, want %d", len(vals), len(Columns))
	}

	wantUnknown := []int{0, 1, 2, 3, 4, 5, 6, 7, 8}
	for _, i := range wantUnknown {
		if vals[i] != Unknown {
			t.Errorf("%s: got %q, want %q", Columns[i], vals[i], Unknown)
		}
	}
	if row.Source != Source {
		t.Errorf("Source: got %q, want %q", row.Source, Source)
	}
	if row.Amenities != "" {
		t.Errorf("Amenities placeholder: got %q, want blank", row.Amenities)
	}
	for i := 11; i < len(vals); i++ {
		if vals[i] != "FALSE" {
			t.Errorf("%s: got %q, want FALSE", Columns[i], vals[i])
		}
	}
}

func TestNumber_String(t *testing.T) {
	tests := []struct {
		n    Number
		want string
	}{
		{Num(3), "3"},
		{Num(3.5), "3.5"},
		{Num(4.86), "4.86"},
		{Number{}, Unknown},
	}
	for _, tt := range tests {
		if got := tt.n.String(); got != tt.want {
			t.Errorf("String(%+v): got %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestNumber_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		A Number `json:"a"`
		B Number `json:"b"`
	}{Num(2.5), Number{}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if got, want := string(b), `{"a":2.5,"b":"N/A"}`; got != want {
		t.Errorf("json: got %s, want %s", got, want)
	}
}

func TestRow_FlagsAndOrder(t *testing.T) {
	rec := New()
	rec.URL = "https://example.test/rooms/7"
	rec.Name = "Cottage"
	rec.NightlyPrice = Num(50)
	rec.GuestFavorite = true
	rec.SetHistorical(classify.Historical{Present: true, Evidence: "historic mill"})
	rec.SetAmenities(classify.Classify("Hot tub, pool table", classify.DefaultLexicon()))

	row := rec.Row()
	if row.Jacuzzi != "TRUE" || row.Billiards != "TRUE" || row.Pool != "TRUE" {
		t.Errorf("amenities: jacuzzi=%s billiards=%s pool=%s", row.Jacuzzi, row.Billiards, row.Pool)
	}
	if row.TV != "FALSE" {
		t.Errorf("TV: got %s, want FALSE", row.TV)
	}
	if row.Historical != "TRUE" || row.GuestFavorite != "TRUE" {
		t.Errorf("flags: historical=%s favorite=%s", row.Historical, row.GuestFavorite)
	}
	if row.PricePerNight != "50" {
		t.Errorf("Price/Night: got %q, want 50", row.PricePerNight)
	}
	if _, ok := rec.AmenityEvidence[classify.Jacuzzi]; !ok {
		t.Error("jacuzzi evidence should be kept")
	}

	b, err := json.Marshal(row)
	if err != nil {
		t.Fatalf("marshal row: %v", err)
	}
	// Keys appear in column order.
	last := -1
	for _, col := range Columns {
		idx := strings.Index(string(b), `"`+col+`"`)
		if idx < 0 {
			t.Fatalf("column %q missing from %s", col, b)
		}
		if idx < last {
			t.Errorf("column %q out of order", col)
		}
		last = idx
	}
}

func TestColumns_KeepExportHeaders(t *testing.T) {
	if len(Columns) != 21 {
		t.Fatalf("columns: got %d, want 21", len(Columns))
	}
	want := map[int]string{0: "Link", 6: "Stars", 7: "Price/Night in May", 8: "AirBnB Location Rating", 9: "Source", 20: "Guest Favorite Status"}
	for i, name := range want {
		if Columns[i] != name {
			t.Errorf("column %d: got %q, want %q", i, Columns[i], name)
		}
	}

	rec := New()
	rec.NightlyPrice = Num(150)
	rec.LocationRating = Num(4.9)
	b, err := json.Marshal(rec.Row())
	if err != nil {
		t.Fatalf("marshal row: %v", err)
	}
	for _, key := range []string{`"Price/Night in May":"150"`, `"AirBnB Location Rating":"4.9"`} {
		if !strings.Contains(string(b), key) {
			t.Errorf("row json missing %s: %s", key, b)
		}
	}
}
