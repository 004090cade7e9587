// Package admin exposes registry state and health checks over HTTP.
package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/guileen/pglitepool/logger"
	"github.com/guileen/pglitepool/pool"
	"github.com/guileen/pglitepool/registry"
)

type Handler struct {
	registry *registry.Registry
}

func NewHandler(reg *registry.Registry) *Handler {
	return &Handler{registry: reg}
}

// NewRouter returns a chi router serving the admin API
func NewRouter(reg *registry.Registry) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Minute))
	NewHandler(reg).RegisterRoutes(r)
	return r
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Health)
	r.Route("/pools", func(r chi.Router) {
		r.Get("/", h.ListPools)
		r.Post("/test", h.TestAll)
		r.Get("/{key}", h.GetPool)
		r.Post("/{key}/test", h.TestPool)
	})
}

type HealthResponse struct {
	Status string `json:"status"`
	Pools  int    `json:"pools"`
}

type PoolStatus struct {
	Key               string `json:"key"`
	Address           string `json:"address"`
	User              string `json:"user"`
	InitialCapacity   int    `json:"initial_capacity"`
	MinimumCapacity   int    `json:"minimum_capacity"`
	MaximumCapacity   int    `json:"maximum_capacity"`
	ValidationTimeout string `json:"validation_timeout"`

	Size             int    `json:"size"`
	Available        int    `json:"available"`
	InUse            int    `json:"in_use"`
	Hits             uint64 `json:"hits"`
	Misses           uint64 `json:"misses"`
	Exhausted        uint64 `json:"exhausted"`
	Opened           uint64 `json:"opened"`
	Closed           uint64 `json:"closed"`
	HealthChecks     uint64 `json:"health_checks"`
	FailedProbes     uint64 `json:"failed_probes"`
	ConnectionErrors uint64 `json:"connection_errors"`
}

type TestResponse struct {
	Tested []string `json:"tested"`
	Error  string   `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Pools: len(h.registry.Keys())})
}

func (h *Handler) ListPools(w http.ResponseWriter, r *http.Request) {
	keys := h.registry.Keys()
	statuses := make([]PoolStatus, 0, len(keys))
	for _, key := range keys {
		p, err := h.registry.Pool(key)
		if err != nil {
			// unregistered between Keys and Pool
			continue
		}
		statuses = append(statuses, statusOf(key, p))
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (h *Handler) GetPool(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	p, err := h.registry.Pool(key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusOf(key, p))
}

func (h *Handler) TestAll(w http.ResponseWriter, r *http.Request) {
	resp := TestResponse{Tested: h.registry.Keys()}
	if err := h.registry.TestConnections(r.Context()); err != nil {
		resp.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) TestPool(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	p, err := h.registry.Pool(key)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := TestResponse{Tested: []string{key}}
	if err := p.Test(logger.WithPoolKey(r.Context(), key)); err != nil {
		resp.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func statusOf(key string, p *pool.Pool) PoolStatus {
	target := p.Target()
	config := p.Config()
	stats := p.Stats()
	return PoolStatus{
		Key:               key,
		Address:           target.Address,
		User:              target.User,
		InitialCapacity:   config.InitialCapacity,
		MinimumCapacity:   config.MinimumCapacity,
		MaximumCapacity:   config.MaximumCapacity,
		ValidationTimeout: config.ValidationTimeout.String(),
		Size:              stats.Size,
		Available:         stats.Available,
		InUse:             stats.InUse,
		Hits:              stats.Hits,
		Misses:            stats.Misses,
		Exhausted:         stats.Exhausted,
		Opened:            stats.Opened,
		Closed:            stats.Closed,
		HealthChecks:      stats.HealthChecks,
		FailedProbes:      stats.FailedProbes,
		ConnectionErrors:  stats.ConnectionErrors,
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if pool.IsUnknownPool(err) {
		status = http.StatusNotFound
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: pool.Code(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to encode admin response", logger.ErrorField(err))
	}
}
