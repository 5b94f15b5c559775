package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/avast/retry-go/v5"
	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/focusfinder/server/lib/logger"
)

// Gateway implements Commander over the shim's control websocket and fans the
// shim's events into an EventSink. At most one shim is attached at a time; a
// newly accepted socket replaces the previous one.
type Gateway struct {
	log       *slog.Logger
	sink      EventSink
	onConnect func(ctx context.Context)

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan inboundFrame
}

func NewGateway(log *slog.Logger) *Gateway {
	return &Gateway{
		log:     log,
		pending: make(map[string]chan inboundFrame),
	}
}

// Bind wires the event sink and the connect hook. The gateway and its sink
// reference each other, so binding happens after both are constructed and
// before the gateway starts accepting connections.
func (g *Gateway) Bind(sink EventSink, onConnect func(ctx context.Context)) {
	g.sink = sink
	g.onConnect = onConnect
}

// HandleSocket accepts the shim's control connection and serves it until the
// shim disconnects.
func (g *Gateway) HandleSocket(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Error("failed to accept browser control socket", "err", err)
		return
	}

	g.mu.Lock()
	if g.conn != nil {
		_ = g.conn.Close(websocket.StatusPolicyViolation, "replaced by newer shim connection")
		g.failPendingLocked()
	}
	g.conn = conn
	g.mu.Unlock()

	log.Info("browser shim connected")
	if g.onConnect != nil {
		go g.onConnect(context.Background())
	}

	g.readLoop(r.Context(), conn)

	g.mu.Lock()
	if g.conn == conn {
		g.conn = nil
		g.failPendingLocked()
	}
	g.mu.Unlock()
	log.Info("browser shim disconnected")
}

func (g *Gateway) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			g.log.Warn("discarding malformed shim frame", "err", err)
			continue
		}

		switch {
		case frame.ID != "":
			g.mu.Lock()
			ch, ok := g.pending[frame.ID]
			if ok {
				delete(g.pending, frame.ID)
			}
			g.mu.Unlock()
			if ok {
				ch <- frame
			}
		case frame.Event != "":
			g.dispatchEvent(ctx, frame)
		}
	}
}

func (g *Gateway) dispatchEvent(ctx context.Context, frame inboundFrame) {
	if g.sink == nil {
		g.log.Warn("dropping shim event, no sink bound", "event", frame.Event)
		return
	}
	switch frame.Event {
	case "windowFocusChanged":
		var p focusEventParams
		if err := json.Unmarshal(frame.Params, &p); err != nil {
			g.log.Warn("bad windowFocusChanged params", "err", err)
			return
		}
		g.sink.WindowFocusChanged(p.Focused)
	case "tabUpdated":
		var p tabEventParams
		if err := json.Unmarshal(frame.Params, &p); err != nil {
			g.log.Warn("bad tabUpdated params", "err", err)
			return
		}
		g.sink.TabUpdated(ctx, p.TabID, p.URL, p.Active)
	case "tabActivated":
		var p tabEventParams
		if err := json.Unmarshal(frame.Params, &p); err != nil {
			g.log.Warn("bad tabActivated params", "err", err)
			return
		}
		g.sink.TabActivated(ctx, p.TabID)
	case "tabRemoved":
		var p tabEventParams
		if err := json.Unmarshal(frame.Params, &p); err != nil {
			g.log.Warn("bad tabRemoved params", "err", err)
			return
		}
		g.sink.TabRemoved(ctx, p.TabID)
	default:
		g.log.Warn("unknown shim event", "event", frame.Event)
	}
}

// failPendingLocked unblocks every in-flight command with a disconnect error.
func (g *Gateway) failPendingLocked() {
	for id, ch := range g.pending {
		delete(g.pending, id)
		ch <- inboundFrame{ID: id, Error: ErrNotConnected.Error()}
	}
}

func (g *Gateway) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := uuid.NewString()
	frame, err := json.Marshal(commandFrame{ID: id, Method: method, Params: params})
	if err != nil {
		return nil, err
	}

	ch := make(chan inboundFrame, 1)
	g.mu.Lock()
	conn := g.conn
	if conn == nil {
		g.mu.Unlock()
		return nil, ErrNotConnected
	}
	g.pending[id] = ch
	g.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
		g.mu.Lock()
		delete(g.pending, id)
		g.mu.Unlock()
		return nil, err
	}

	select {
	case reply := <-ch:
		if reply.Error != "" {
			return nil, fmt.Errorf("%s: %s", method, reply.Error)
		}
		return reply.Result, nil
	case <-ctx.Done():
		g.mu.Lock()
		delete(g.pending, id)
		g.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (g *Gateway) GetTab(ctx context.Context, tabID int) (Tab, error) {
	result, err := g.call(ctx, "getTab", tabEventParams{TabID: tabID})
	if err != nil {
		return Tab{}, err
	}
	var tab Tab
	if err := json.Unmarshal(result, &tab); err != nil {
		return Tab{}, fmt.Errorf("decode tab: %w", err)
	}
	return tab, nil
}

func (g *Gateway) QueryTabs(ctx context.Context) ([]Tab, error) {
	result, err := g.call(ctx, "queryTabs", nil)
	if err != nil {
		return nil, err
	}
	var tabs []Tab
	if err := json.Unmarshal(result, &tabs); err != nil {
		return nil, fmt.Errorf("decode tabs: %w", err)
	}
	return tabs, nil
}

func (g *Gateway) ActiveTab(ctx context.Context) (Tab, bool, error) {
	result, err := g.call(ctx, "activeTab", nil)
	if err != nil {
		return Tab{}, false, err
	}
	if len(result) == 0 || string(result) == "null" {
		return Tab{}, false, nil
	}
	var tab Tab
	if err := json.Unmarshal(result, &tab); err != nil {
		return Tab{}, false, fmt.Errorf("decode tab: %w", err)
	}
	return tab, true, nil
}

func (g *Gateway) CloseTab(ctx context.Context, tabID int) error {
	_, err := g.call(ctx, "closeTab", tabEventParams{TabID: tabID})
	return err
}

// EnsureWidget pings the tab's surface and asks the shim to inject the widget
// script when the ping goes unanswered. Retried because injection races page
// navigation.
func (g *Gateway) EnsureWidget(ctx context.Context, tabID int) error {
	return retry.New(
		retry.Attempts(ensureWidgetAttempts),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	).Do(func() error {
		_, err := g.call(ctx, "ensureWidget", tabEventParams{TabID: tabID})
		return err
	})
}
