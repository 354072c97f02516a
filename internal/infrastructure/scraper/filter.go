package scraper

import (
	"net/url"
	"strings"
)

// Sample domains reserved for documentation; search providers and prompt
// templates sometimes leak them as result URLs.
var placeholderHosts = []string{"example.com", "example.org", "example.net"}

const placeholderPathMarker = "source/"

// FilterValidURLs keeps http(s) URLs that are not placeholders. Input order
// is preserved and applying it twice gives the same result.
func FilterValidURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		if isScrapableURL(raw) {
			out = append(out, raw)
		}
	}
	return out
}

func isScrapableURL(raw string) bool {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return false
	}
	if strings.Contains(raw, placeholderPathMarker) {
		return false
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Hostname() == "" {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	for _, placeholder := range placeholderHosts {
		if host == placeholder || strings.HasSuffix(host, "."+placeholder) {
			return false
		}
	}
	return true
}
