package webdomain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		url  string
		want string
	}{
		{"plain https", "https://reddit.com/r/golang", "reddit.com"},
		{"www stripped", "https://www.facebook.com/feed", "facebook.com"},
		{"localized subdomain of known domain", "https://de-de.facebook.com/", "facebook.com"},
		{"mobile subdomain of known domain", "https://m.youtube.com/watch?v=x", "youtube.com"},
		{"language prefix on unknown domain", "https://en-us.example.com/page", "example.com"},
		{"long subdomain kept", "https://dashboard.internal.example.com", "dashboard.internal.example.com"},
		{"chrome internal page", "chrome://settings", ""},
		{"about page", "about:blank", ""},
		{"file url", "file:///tmp/report.html", ""},
		{"empty", "", ""},
		{"no host", "https://", ""},
		{"mixed case host", "https://WWW.Reddit.COM/", "reddit.com"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Extract(tc.url))
		})
	}
}

func TestIsWatched(t *testing.T) {
	t.Parallel()

	watchlist := []string{"reddit.com", "www.facebook.com", "x.com"}

	assert.True(t, IsWatched("reddit.com", watchlist))
	assert.True(t, IsWatched("www.reddit.com", watchlist))
	assert.True(t, IsWatched("facebook.com", watchlist), "watchlist entries are normalized too")
	assert.False(t, IsWatched("example.com", watchlist))
	assert.False(t, IsWatched("", watchlist))
	assert.False(t, IsWatched("reddit.com", nil))
}
