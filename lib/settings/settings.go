// Package settings holds the user-facing configuration of the tracker: the
// watchlist, intention reason presets and the global behavior toggles. It is
// persisted as a YAML file so it can be edited both through the popup UI and
// by hand; see watcher.go for the change-notification side.
package settings

import (
	"github.com/samber/lo"
)

// StorageVersion is bumped on breaking schema changes. Version 2 changed how
// domain states are persisted; migrating from older versions wipes them.
const StorageVersion = 2

type Settings struct {
	Watchlist          []string `json:"watchlist"`
	DefaultReasons     []string `json:"defaultReasons"`
	UserReasons        []string `json:"userReasons"`
	PauseOnBlur        bool     `json:"pauseOnBlur"`
	IsExtensionEnabled bool     `json:"isExtensionEnabled"`
	StorageVersion     int      `json:"storageVersion"`
}

// Default returns the settings used on first run and as the fallback for
// fields missing from a stored file.
func Default() Settings {
	return Settings{
		Watchlist: []string{
			"facebook.com", "x.com", "twitter.com", "instagram.com", "youtube.com",
			"tiktok.com", "linkedin.com", "reddit.com", "yahoo.com", "cnn.com",
			"foxnews.com", "nbc.com", "cbs.com", "bbc.com", "amazon.com", "ebay.com",
		},
		DefaultReasons: []string{
			"Messaging", "Searching info", "Checking notifications", "Taking a break",
		},
		UserReasons:        []string{},
		PauseOnBlur:        true,
		IsExtensionEnabled: true,
		StorageVersion:     StorageVersion,
	}
}

// AllReasons returns the default and user-defined intention reasons combined,
// in the order they are offered by the prompt dialog.
func (s Settings) AllReasons() []string {
	return append(append([]string{}, s.DefaultReasons...), s.UserReasons...)
}

// Update is a partial settings change; nil fields are left untouched.
type Update struct {
	Watchlist          *[]string `json:"watchlist,omitempty"`
	DefaultReasons     *[]string `json:"defaultReasons,omitempty"`
	UserReasons        *[]string `json:"userReasons,omitempty"`
	PauseOnBlur        *bool     `json:"pauseOnBlur,omitempty"`
	IsExtensionEnabled *bool     `json:"isExtensionEnabled,omitempty"`
}

// Apply merges u into s and returns the result.
func (s Settings) Apply(u Update) Settings {
	if u.Watchlist != nil {
		s.Watchlist = *u.Watchlist
	}
	if u.DefaultReasons != nil {
		s.DefaultReasons = *u.DefaultReasons
	}
	if u.UserReasons != nil {
		s.UserReasons = *u.UserReasons
	}
	if u.PauseOnBlur != nil {
		s.PauseOnBlur = *u.PauseOnBlur
	}
	if u.IsExtensionEnabled != nil {
		s.IsExtensionEnabled = *u.IsExtensionEnabled
	}
	return s
}

// normalize backfills invalid slices with defaults so a partially corrupt
// file never yields nil watchlist or reason lists.
func normalize(s Settings) Settings {
	defaults := Default()
	s.Watchlist = lo.Ternary(s.Watchlist != nil, s.Watchlist, defaults.Watchlist)
	s.DefaultReasons = lo.Ternary(s.DefaultReasons != nil, s.DefaultReasons, defaults.DefaultReasons)
	s.UserReasons = lo.Ternary(s.UserReasons != nil, s.UserReasons, defaults.UserReasons)
	return s
}

// Equal reports whether two settings objects are equivalent.
func Equal(a, b Settings) bool {
	return a.PauseOnBlur == b.PauseOnBlur &&
		a.IsExtensionEnabled == b.IsExtensionEnabled &&
		a.StorageVersion == b.StorageVersion &&
		slicesEqual(a.Watchlist, b.Watchlist) &&
		slicesEqual(a.DefaultReasons, b.DefaultReasons) &&
		slicesEqual(a.UserReasons, b.UserReasons)
}

func slicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
