// Package api exposes the tracker over HTTP: the message endpoint the tab
// widgets talk to, the websocket the browser shim attaches to, and the
// per-tab event sockets.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/focusfinder/server/lib/browser"
	"github.com/focusfinder/server/lib/focus"
	"github.com/focusfinder/server/lib/hub"
	"github.com/focusfinder/server/lib/logger"
)

type ApiService struct {
	engine *focus.Engine
	tabs   *hub.Hub
	shim   *browser.Gateway
}

func New(engine *focus.Engine, tabs *hub.Hub, shim *browser.Gateway) (*ApiService, error) {
	switch {
	case engine == nil:
		return nil, fmt.Errorf("engine is required")
	case tabs == nil:
		return nil, fmt.Errorf("tab hub is required")
	case shim == nil:
		return nil, fmt.Errorf("browser gateway is required")
	}
	return &ApiService{engine: engine, tabs: tabs, shim: shim}, nil
}

// Routes mounts the service's endpoints on r.
func (s *ApiService) Routes(r chi.Router) {
	r.Post("/v1/message", s.HandleMessage)
	r.Get("/v1/tabs/{tabID}/socket", s.HandleTabSocket)
	r.Get("/v1/browser/socket", s.HandleBrowserSocket)
	r.Get("/v1/health", s.HandleHealth)
}

// HandleTabSocket upgrades a tab surface's event connection. The tab id comes
// from the path so the hub can address broadcasts back to it.
func (s *ApiService) HandleTabSocket(w http.ResponseWriter, r *http.Request) {
	tabID, err := strconv.Atoi(chi.URLParam(r, "tabID"))
	if err != nil || tabID <= 0 {
		http.Error(w, "tabID must be a positive integer", http.StatusBadRequest)
		return
	}
	s.tabs.HandleSocket(w, r, tabID)
}

// HandleBrowserSocket upgrades the shim's control connection.
func (s *ApiService) HandleBrowserSocket(w http.ResponseWriter, r *http.Request) {
	s.shim.HandleSocket(w, r)
}

func (s *ApiService) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, statusResponse{Status: "ready"})
}

// Shutdown flushes the in-memory domain state to storage.
func (s *ApiService) Shutdown(ctx context.Context) error {
	s.engine.Flush(ctx)
	return nil
}

func writeJSON(ctx context.Context, w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.FromContext(ctx).Error("failed to write response", "err", err)
	}
}
