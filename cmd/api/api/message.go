package api

import (
	"encoding/json"
	"net/http"

	"github.com/focusfinder/server/lib/focus"
	"github.com/focusfinder/server/lib/logger"
	"github.com/focusfinder/server/lib/settings"
)

// message is the envelope every widget request arrives in. Only Action is
// always present; the rest depends on the action.
type message struct {
	Action      string           `json:"action"`
	Domain      string           `json:"domain,omitempty"`
	TabID       int              `json:"tabId,omitempty"`
	Intention   string           `json:"intention,omitempty"`
	Duration    int              `json:"duration,omitempty"`
	Minutes     int              `json:"minutes,omitempty"`
	Enable      *bool            `json:"enable,omitempty"`
	IsVisible   *bool            `json:"isVisible,omitempty"`
	Expanded    *bool            `json:"expanded,omitempty"`
	Position    string           `json:"position,omitempty"`
	NewSettings *settings.Update `json:"newSettings,omitempty"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type successResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type enabledResponse struct {
	IsEnabled bool `json:"isEnabled"`
}

type toggleResponse struct {
	Success   bool `json:"success"`
	IsEnabled bool `json:"isEnabled"`
}

type unknownActionResponse struct {
	Error string `json:"error"`
}

func ok() successResponse { return successResponse{Success: true} }

func failed(msg string) successResponse { return successResponse{Success: false, Error: msg} }

// HandleMessage dispatches one widget request. All recognized actions answer
// 200 with a JSON body; failures are reported in the body, not the status
// code, so the widget handles them uniformly.
func (s *ApiService) HandleMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var msg message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	// Most actions address a domain. Widgets normally send it explicitly;
	// when omitted, fall back to whatever domain holds the active tab.
	domain := msg.Domain
	if domain == "" {
		domain = s.engine.ActiveDomain()
	}

	switch msg.Action {
	case "ping":
		writeJSON(ctx, w, statusResponse{Status: "ready"})

	case "getExtensionStatus":
		writeJSON(ctx, w, enabledResponse{IsEnabled: s.engine.IsEnabled()})

	case "toggleExtension":
		enable := !s.engine.IsEnabled()
		if msg.Enable != nil {
			enable = *msg.Enable
		}
		updated := s.engine.ToggleExtension(ctx, enable)
		writeJSON(ctx, w, toggleResponse{Success: true, IsEnabled: updated.IsExtensionEnabled})

	case "intentionSet":
		if domain == "" {
			writeJSON(ctx, w, failed("domain is required"))
			return
		}
		s.engine.SetIntention(ctx, domain, msg.Intention, msg.Duration, msg.TabID)
		writeJSON(ctx, w, ok())

	case "pauseTimer":
		if domain == "" {
			writeJSON(ctx, w, failed("domain is required"))
			return
		}
		s.engine.PauseTimer(ctx, domain)
		writeJSON(ctx, w, ok())

	case "resumeTimer":
		if domain == "" {
			writeJSON(ctx, w, failed("domain is required"))
			return
		}
		s.engine.ResumeTimer(ctx, domain)
		writeJSON(ctx, w, ok())

	case "extendTime", "forceExtendTime":
		if domain == "" {
			writeJSON(ctx, w, failed("domain is required"))
			return
		}
		s.engine.ExtendTime(ctx, domain, msg.Minutes, msg.Action == "forceExtendTime")
		writeJSON(ctx, w, ok())

	case "closeAllTabs":
		if domain == "" {
			writeJSON(ctx, w, failed("domain is required"))
			return
		}
		if err := s.engine.CloseAllTabs(ctx, domain); err != nil {
			log.Error("failed to close domain tabs", "domain", domain, "err", err)
			writeJSON(ctx, w, failed(err.Error()))
			return
		}
		writeJSON(ctx, w, ok())

	case "getSettings":
		writeJSON(ctx, w, s.engine.Settings())

	case "updateSettings":
		if msg.NewSettings == nil {
			writeJSON(ctx, w, failed("newSettings is required"))
			return
		}
		s.engine.UpdateSettings(ctx, *msg.NewSettings)
		writeJSON(ctx, w, ok())

	case "getDomainState":
		state, found := s.engine.DomainState(domain)
		if !found {
			writeJSON(ctx, w, struct{}{})
			return
		}
		writeJSON(ctx, w, state)

	case "visibilityChanged":
		if domain == "" {
			writeJSON(ctx, w, failed("domain is required"))
			return
		}
		if msg.IsVisible == nil {
			writeJSON(ctx, w, failed("isVisible is required"))
			return
		}
		s.engine.VisibilityChanged(ctx, domain, msg.TabID, *msg.IsVisible)
		writeJSON(ctx, w, ok())

	case "saveWidgetState":
		if domain == "" {
			writeJSON(ctx, w, failed("domain is required"))
			return
		}
		if msg.Expanded == nil {
			writeJSON(ctx, w, failed("expanded is required"))
			return
		}
		s.engine.SaveWidgetExpanded(ctx, domain, *msg.Expanded)
		writeJSON(ctx, w, ok())

	case "saveWidgetPosition":
		if domain == "" {
			writeJSON(ctx, w, failed("domain is required"))
			return
		}
		if err := s.engine.SaveWidgetPosition(ctx, domain, focus.WidgetPosition(msg.Position)); err != nil {
			writeJSON(ctx, w, failed(err.Error()))
			return
		}
		writeJSON(ctx, w, ok())

	default:
		log.Warn("unknown widget action", "action", msg.Action)
		writeJSON(ctx, w, unknownActionResponse{Error: "Unknown action"})
	}
}
