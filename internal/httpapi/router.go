package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dashwise/router-runtime/internal/config"
	"github.com/dashwise/router-runtime/internal/engine"
	"github.com/dashwise/router-runtime/internal/session"
	"github.com/dashwise/router-runtime/internal/store"
)

type Dependencies struct {
	Config  config.Config
	Store   *store.Store
	Engine  *engine.Engine
	Gateway http.Handler
	Logger  *slog.Logger
}

type router struct {
	deps Dependencies
}

func NewRouter(deps Dependencies) http.Handler {
	rt := &router{deps: deps}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.handleHealth)
	mux.HandleFunc("/readyz", rt.handleReady)
	mux.HandleFunc("/api/v1/info", rt.handleInfo)
	mux.HandleFunc("/api/v1/route", rt.handleRoute)
	mux.HandleFunc("/api/v1/options", rt.handleOptions)
	mux.HandleFunc("/api/v1/events", rt.handleEvents)
	mux.HandleFunc("/api/v1/arbitrations", rt.handleArbitrations)
	mux.HandleFunc("/api/v1/sessions", rt.handleSessions)
	mux.HandleFunc("/api/v1/nouns", rt.handleNouns)
	if deps.Gateway != nil {
		mux.Handle("/ws", deps.Gateway)
	}
	return mux
}

func (r *router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (r *router) handleReady(w http.ResponseWriter, req *http.Request) {
	if r.deps.Store != nil {
		if err := r.deps.Store.Ping(req.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not-ready", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (r *router) handleInfo(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":        "router-runtime",
		"environment": r.deps.Config.Environment,
	})
}

func (r *router) handleRoute(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var payload engine.TurnRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if strings.TrimSpace(payload.Input) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "input is required"})
		return
	}

	response, err := r.deps.Engine.RouteTurn(req.Context(), payload)
	if err != nil {
		r.deps.Logger.Error("route turn failed", "session_id", payload.SessionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, response)
}

type optionsRequest struct {
	SessionID      string           `json:"session_id"`
	Kind           string           `json:"kind"`
	OriginalIntent string           `json:"original_intent"`
	Options        []session.Option `json:"options"`
}

// handleOptions lets the host register an option set it showed on its own,
// so follow-up turns can select against it.
func (r *router) handleOptions(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var payload optionsRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if len(payload.Options) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "options are required"})
		return
	}
	kind := payload.Kind
	if kind == "" {
		kind = "options"
	}
	r.deps.Engine.ShowOptions(payload.SessionID, kind, payload.OriginalIntent, payload.Options)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "registered"})
}

func (r *router) handleEvents(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if r.deps.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "event journal is unavailable"})
		return
	}
	limit := queryInt(req, "limit", 50)
	events, err := r.deps.Store.ListRecentEvents(req.Context(), req.URL.Query().Get("session_id"), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (r *router) handleArbitrations(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if r.deps.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "audit is unavailable"})
		return
	}
	audits, err := r.deps.Store.ListRecentArbitrations(req.Context(), queryInt(req, "limit", 50))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"arbitrations": audits})
}

func (r *router) handleSessions(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": r.deps.Engine.Sessions()})
}

func (r *router) handleNouns(w http.ResponseWriter, req *http.Request) {
	if r.deps.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "noun routes are unavailable"})
		return
	}
	switch req.Method {
	case http.MethodGet:
		routes, err := r.deps.Store.ListNounRoutes(req.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"nouns": routes})
	case http.MethodPost:
		var payload store.NounRoute
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
			return
		}
		if err := r.deps.Store.UpsertNounRoute(req.Context(), payload); err != nil {
			status := http.StatusInternalServerError
			if err == store.ErrNounRouteRequired {
				status = http.StatusBadRequest
			}
			writeJSON(w, status, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "stored"})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func queryInt(req *http.Request, name string, fallback int) int {
	raw := strings.TrimSpace(req.URL.Query().Get(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
