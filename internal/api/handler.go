// Package api is the ops surface: health, adapter status, user memory
// inspection, and the local REST channel for poking the bot without a
// chat platform.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/snarkbot/snark/internal/cooldown"
	"github.com/snarkbot/snark/internal/gateway"
	"github.com/snarkbot/snark/internal/provider"
	"github.com/snarkbot/snark/internal/store"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	store  *store.Store
	models *provider.Router
	ledger cooldown.Ledger
	restGW *gateway.RESTAdapter
	gw     *gateway.Gateway
	logger *zap.Logger
}

// NewHandler creates the API handler. store, ledger and restGW may be
// nil when the corresponding subsystem is disabled.
func NewHandler(
	st *store.Store,
	models *provider.Router,
	ledger cooldown.Ledger,
	restGW *gateway.RESTAdapter,
	gw *gateway.Gateway,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		store:  st,
		models: models,
		ledger: ledger,
		restGW: restGW,
		gw:     gw,
		logger: logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Get("/gateway/status", h.gatewayStatus)
		if h.restGW != nil {
			r.Mount("/gateway/rest", h.restGW.Routes())
		}
		r.Get("/providers", h.listProviders)

		r.Get("/users", h.listUsers)
		r.Get("/users/{id}/facts", h.getUserFacts)

		r.Post("/cooldowns/release", h.releaseCooldown)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "bot": "snark"})
}

func (h *Handler) gatewayStatus(w http.ResponseWriter, r *http.Request) {
	if h.gw == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "gateway not initialized"})
		return
	}
	writeJSON(w, http.StatusOK, h.gw.Statuses())
}

func (h *Handler) listProviders(w http.ResponseWriter, r *http.Request) {
	if h.models == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "providers not initialized"})
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"providers": h.models.Providers()})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "store not initialized"})
		return
	}
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) getUserFacts(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "store not initialized"})
		return
	}
	id := chi.URLParam(r, "id")
	facts, err := h.store.GetFacts(r.Context(), id)
	if err != nil {
		h.logger.Error("get facts failed", zap.String("user", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if facts == nil {
		facts = []store.FactRow{}
	}
	writeJSON(w, http.StatusOK, facts)
}

type releaseRequest struct {
	UserID     string `json:"user_id"`
	Capability string `json:"capability"`
}

// releaseCooldown drops a reservation by hand, for when an operator
// wants to refund a user outside the configured policy.
func (h *Handler) releaseCooldown(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "ledger not initialized"})
		return
	}
	var req releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.UserID == "" || req.Capability == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id and capability required"})
		return
	}
	if err := h.ledger.Release(r.Context(), req.UserID, req.Capability); err != nil {
		h.logger.Error("cooldown release failed",
			zap.String("user", req.UserID),
			zap.String("capability", req.Capability),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
