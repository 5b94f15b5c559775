// Package hub fans out core state-change events to the per-tab UI surfaces
// (timer widget, intention dialog). Each surface holds one websocket
// registered under its browser tab id.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// ErrTabGone marks a delivery failure that means the tab's surface existed
// and is no longer reachable; callers should purge the tab from domain
// membership. A surface that merely has not connected yet reports
// ErrNotConnected instead and must not trigger a purge.
var (
	ErrTabGone      = errors.New("tab surface gone")
	ErrNotConnected = errors.New("tab surface not connected")
)

const writeTimeout = 5 * time.Second

type Hub struct {
	log *slog.Logger

	mu    sync.Mutex
	conns map[int]*websocket.Conn
	// Tabs that had a surface at some point; lets SendToTab distinguish
	// "not yet connected" from "closed".
	seen map[int]struct{}
}

func New(log *slog.Logger) *Hub {
	return &Hub{
		log:   log,
		conns: make(map[int]*websocket.Conn),
		seen:  make(map[int]struct{}),
	}
}

// HandleSocket accepts a tab surface connection and serves it until the
// surface disconnects. Inbound frames are ignored; surfaces issue commands
// through the message endpoint.
func (h *Hub) HandleSocket(w http.ResponseWriter, r *http.Request, tabID int) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Error("failed to accept tab surface socket", "err", err, "tab_id", tabID)
		return
	}

	h.mu.Lock()
	if prior := h.conns[tabID]; prior != nil {
		_ = prior.Close(websocket.StatusPolicyViolation, "replaced by newer surface connection")
	}
	h.conns[tabID] = conn
	h.seen[tabID] = struct{}{}
	h.mu.Unlock()

	// Hold the connection open until the client goes away.
	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			break
		}
	}

	h.mu.Lock()
	if h.conns[tabID] == conn {
		delete(h.conns, tabID)
	}
	h.mu.Unlock()
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

// SendToTab delivers one event to the surface of a tab.
func (h *Hub) SendToTab(ctx context.Context, tabID int, event any) error {
	h.mu.Lock()
	conn := h.conns[tabID]
	_, wasSeen := h.seen[tabID]
	h.mu.Unlock()

	if conn == nil {
		if wasSeen {
			return ErrTabGone
		}
		return ErrNotConnected
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		h.mu.Lock()
		if h.conns[tabID] == conn {
			delete(h.conns, tabID)
		}
		h.mu.Unlock()
		_ = conn.Close(websocket.StatusAbnormalClosure, "write failed")
		return ErrTabGone
	}
	return nil
}

// Connected reports whether a surface is currently attached for the tab.
func (h *Hub) Connected(tabID int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conns[tabID] != nil
}

// Forget drops the not-yet-connected bookkeeping for a closed tab so its id
// can be reused by the browser without inheriting "gone" semantics.
func (h *Hub) Forget(tabID int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.seen, tabID)
	if conn := h.conns[tabID]; conn != nil {
		delete(h.conns, tabID)
		_ = conn.Close(websocket.StatusNormalClosure, "tab closed")
	}
}
