package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, h *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tabID, err := strconv.Atoi(r.URL.Query().Get("tab"))
		if err != nil {
			http.Error(w, "bad tab id", http.StatusBadRequest)
			return
		}
		h.HandleSocket(w, r, tabID)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dialTab(t *testing.T, srv *httptest.Server, tabID int) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, srv.URL+"?tab="+strconv.Itoa(tabID), nil)
	require.NoError(t, err)
	return conn
}

func TestSendToTabDeliversEvent(t *testing.T) {
	t.Parallel()

	h := New(slog.Default())
	srv := newTestServer(t, h)
	conn := dialTab(t, srv, 7)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return h.Connected(7) }, 2*time.Second, 10*time.Millisecond)

	payload := map[string]any{"action": "updateTimer", "timeSpent": 42}
	require.NoError(t, h.SendToTab(context.Background(), 7, payload))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, "updateTimer", got["action"])
	require.Equal(t, float64(42), got["timeSpent"])
}

func TestSendToTabNeverConnected(t *testing.T) {
	t.Parallel()

	h := New(slog.Default())
	err := h.SendToTab(context.Background(), 1, map[string]string{"action": "timerPaused"})
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestSendToTabAfterDisconnectReportsGone(t *testing.T) {
	t.Parallel()

	h := New(slog.Default())
	srv := newTestServer(t, h)
	conn := dialTab(t, srv, 3)

	require.Eventually(t, func() bool { return h.Connected(3) }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
	require.Eventually(t, func() bool { return !h.Connected(3) }, 2*time.Second, 10*time.Millisecond)

	err := h.SendToTab(context.Background(), 3, map[string]string{"action": "timerPaused"})
	require.ErrorIs(t, err, ErrTabGone)
}

func TestForgetClearsSeenState(t *testing.T) {
	t.Parallel()

	h := New(slog.Default())
	srv := newTestServer(t, h)
	conn := dialTab(t, srv, 9)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return h.Connected(9) }, 2*time.Second, 10*time.Millisecond)
	h.Forget(9)
	require.False(t, h.Connected(9))

	err := h.SendToTab(context.Background(), 9, map[string]string{"action": "timerResumed"})
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestNewSurfaceReplacesPrior(t *testing.T) {
	t.Parallel()

	h := New(slog.Default())
	srv := newTestServer(t, h)

	old := dialTab(t, srv, 5)
	require.Eventually(t, func() bool { return h.Connected(5) }, 2*time.Second, 10*time.Millisecond)

	replacement := dialTab(t, srv, 5)
	defer replacement.Close(websocket.StatusNormalClosure, "")

	// Old connection is closed server-side; a read on it should fail.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := old.Read(ctx)
	require.Error(t, err)

	require.NoError(t, h.SendToTab(context.Background(), 5, map[string]string{"action": "timerResumed"}))
	_, data, err := replacement.Read(ctx)
	require.NoError(t, err)
	require.Contains(t, string(data), "timerResumed")
}
