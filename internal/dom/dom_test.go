package dom

import "testing"

func TestParseSelector(t *testing.T) {
	tests := []struct {
		in   string
		want Selector
	}{
		{"//button[contains(., 'Show all')]", XPath("//button[contains(., 'Show all')]")},
		{"/html/body/div[9]", XPath("/html/body/div[9]")},
		{"(//a)[last()]", XPath("(//a)[last()]")},
		{"div[role='dialog'] section", CSS("div[role='dialog'] section")},
		{"  h1  ", CSS("h1")},
		{".//span[@aria-hidden='true']", XPath(".//span[@aria-hidden='true']")},
		{".title", CSS(".title")},
		{"xpath: //h1", XPath("//h1")},
		{"css:a[href]", CSS("a[href]")},
	}
	for _, tt := range tests {
		if got := ParseSelector(tt.in); got != tt.want {
			t.Errorf("ParseSelector(%q): got %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseSelectors_SkipsBlanks(t *testing.T) {
	got := ParseSelectors([]string{"h1", "", "   ", "//h2"})
	if len(got) != 2 {
		t.Fatalf("ParseSelectors: got %d selectors, want 2", len(got))
	}
	if got[1].Kind != KindXPath {
		t.Errorf("second selector kind: got %s, want %s", got[1].Kind, KindXPath)
	}
}
