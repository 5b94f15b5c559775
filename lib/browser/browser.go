// Package browser is the gateway to the hosting browser. The server never
// talks to tab or window APIs directly: a thin shim inside the browser keeps
// one websocket control channel open, forwards tab/window events, and
// executes the commands the server issues back over the same channel.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Tab is the metadata projection of a browser tab the core consumes.
type Tab struct {
	ID       int    `json:"id"`
	URL      string `json:"url"`
	Active   bool   `json:"active"`
	WindowID int    `json:"windowId"`
}

// Commander issues commands to the browser shim.
type Commander interface {
	// GetTab fetches metadata for one tab.
	GetTab(ctx context.Context, tabID int) (Tab, error)
	// QueryTabs lists all open tabs.
	QueryTabs(ctx context.Context) ([]Tab, error)
	// ActiveTab returns the active tab of the current window, if any.
	ActiveTab(ctx context.Context) (Tab, bool, error)
	// CloseTab closes one tab.
	CloseTab(ctx context.Context, tabID int) error
	// EnsureWidget makes sure the widget/dialog script is running in the tab,
	// injecting it if the ping goes unanswered.
	EnsureWidget(ctx context.Context, tabID int) error
}

// EventSink receives the browser events the shim forwards. Implemented by the
// focus engine's activity tracker.
type EventSink interface {
	WindowFocusChanged(focused bool)
	TabUpdated(ctx context.Context, tabID int, url string, active bool)
	TabActivated(ctx context.Context, tabID int)
	TabRemoved(ctx context.Context, tabID int)
}

// ErrNotConnected is returned for commands issued while no shim is attached.
var ErrNotConnected = errors.New("browser shim not connected")

const (
	commandTimeout = 5 * time.Second
	// One ping/inject attempt can race a navigating tab; a couple of short
	// retries covers script startup.
	ensureWidgetAttempts = 3
)

// Shim wire protocol. Commands flow server to shim, replies and events flow
// back; all frames are JSON text messages.
type commandFrame struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

type inboundFrame struct {
	// Reply fields.
	ID     string          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`

	// Event fields.
	Event  string          `json:"event,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
}

type tabEventParams struct {
	TabID  int    `json:"tabId"`
	URL    string `json:"url,omitempty"`
	Active bool   `json:"active,omitempty"`
}

type focusEventParams struct {
	Focused bool `json:"focused"`
}
