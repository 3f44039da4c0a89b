package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ianarundale/lead-from-here/internal/store"
	"github.com/ianarundale/lead-from-here/internal/voting"
	"github.com/ianarundale/lead-from-here/internal/ws"
)

// API is the request/response surface next to the websocket protocol. All of
// its endpoints are idempotent from the caller's perspective.
type API struct {
	voting  *voting.Handler
	hub     *ws.Hub
	version string
	log     *zap.Logger
}

func NewAPI(v *voting.Handler, hub *ws.Hub, version string, log *zap.Logger) *API {
	return &API{voting: v, hub: hub, version: version, log: log}
}

// Reset handles GET /reset: restore default tallies and notify every client.
func (a *API) Reset(w http.ResponseWriter, r *http.Request) {
	plans, err := a.voting.Reset(r.Context())
	if err != nil {
		a.fail(w, "reset failed", err)
		return
	}
	a.hub.Inbox() <- ws.Deliver{Plans: plans}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "All votes have been reset",
	})
}

// Status handles GET /status.
func (a *API) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": a.version})
}

// State handles GET /api/state: the full aggregate plus presence count.
func (a *API) State(w http.ResponseWriter, r *http.Request) {
	payload, err := a.voting.State(r.Context())
	if err != nil {
		a.fail(w, "state read failed", err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// Behaviors handles GET /api/behaviors.
func (a *API) Behaviors(w http.ResponseWriter, r *http.Request) {
	payload, err := a.voting.State(r.Context())
	if err != nil {
		a.fail(w, "state read failed", err)
		return
	}
	writeJSON(w, http.StatusOK, payload.Behaviors)
}

type addBehaviorRequest struct {
	Scenario string   `json:"scenario"`
	Prompts  []string `json:"prompts"`
}

// AddBehavior handles POST /api/behaviors: append a scenario at runtime and
// announce it to connected clients.
func (a *API) AddBehavior(w http.ResponseWriter, r *http.Request) {
	var req addBehaviorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Scenario == "" {
		http.Error(w, "scenario is required", http.StatusBadRequest)
		return
	}

	added, plans, err := a.voting.AddBehavior(r.Context(), req.Scenario, req.Prompts)
	if err != nil {
		a.fail(w, "add behavior failed", err)
		return
	}
	a.hub.Inbox() <- ws.Deliver{Plans: plans}

	writeJSON(w, http.StatusCreated, added)
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (a *API) fail(w http.ResponseWriter, msg string, err error) {
	a.log.Error(msg, zap.Error(err))
	if errors.Is(err, store.ErrUnavailable) {
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
