package scraper

import (
	"sort"
	"strings"
)

var registry = map[string]Scraper{}

func Register(s Scraper) {
	registry[strings.ToLower(s.Name())] = s
}

func Get(name string) (Scraper, bool) {
	s, ok := registry[strings.ToLower(name)]
	return s, ok
}

// Names lists the registered sites, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
