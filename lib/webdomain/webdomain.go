// Package webdomain holds the domain-name heuristics used to key tracking
// state: URL to normalized domain extraction and watchlist membership.
package webdomain

import (
	"net/url"
	"strings"

	"github.com/samber/lo"
)

// Domains whose localized subdomains (de-de.facebook.com, m.youtube.com, ...)
// should collapse onto the main domain.
var knownDomains = []string{
	"facebook.com", "twitter.com", "instagram.com", "youtube.com",
	"linkedin.com", "amazon.com", "google.com", "microsoft.com",
	"apple.com", "github.com", "reddit.com",
}

// Extract returns the normalized domain for a URL, or "" when the URL does
// not address a trackable website (browser-internal pages, files, etc.).
func Extract(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	for _, scheme := range []string{"chrome:", "about:", "file:", "edge:", "brave:"} {
		if strings.HasPrefix(rawURL, scheme) {
			return ""
		}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	hostname := strings.TrimSuffix(u.Hostname(), ".")
	if hostname == "" {
		return ""
	}
	hostname = strings.ToLower(hostname)
	hostname = strings.TrimPrefix(hostname, "www.")

	parts := strings.Split(hostname, ".")
	if len(parts) > 2 {
		mainDomain := strings.Join(parts[len(parts)-2:], ".")
		if lo.Contains(knownDomains, mainDomain) {
			return mainDomain
		}
		// Short leading labels are treated as language/country prefixes
		// (de-de.example.com -> example.com).
		if len(parts[0]) <= 5 {
			return mainDomain
		}
	}

	return hostname
}

// IsWatched reports whether domain matches an entry of the watchlist. Both
// sides are normalized first so "www.reddit.com" matches "reddit.com".
func IsWatched(domain string, watchlist []string) bool {
	if domain == "" {
		return false
	}
	normalized := Extract("https://" + domain)
	if normalized == "" {
		return false
	}
	return lo.SomeBy(watchlist, func(watched string) bool {
		return Extract("https://"+watched) == normalized
	})
}
