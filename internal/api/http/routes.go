package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"rentloop-backend/internal/security"
)

// RouterOptions tunes the per-user middleware.
type RouterOptions struct {
	RateLimitRPS   float64
	RateLimitBurst int
	// RateLimitIdle is how long an unused per-user limiter is kept. Zero means ten minutes.
	RateLimitIdle  time.Duration
	IdempotencyTTL time.Duration
}

// RegisterOrderRoutes mounts the order API under /api/v1 and the unauthenticated health probe.
func RegisterOrderRoutes(router *mux.Router, h *OrderHandler, tm security.TokenManager, opts RouterOptions) {
	router.Use(RequestLogger)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	limiter := NewUserRateLimiter(rate.Limit(opts.RateLimitRPS), opts.RateLimitBurst, opts.RateLimitIdle)
	replay := cache.New(opts.IdempotencyTTL, 2*opts.IdempotencyTTL)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(AuthMiddleware(tm), limiter.Middleware, Idempotency(replay, opts.IdempotencyTTL))

	api.HandleFunc("/orders", h.CreateOrder).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}", h.GetOrder).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}/actions/{action}", h.ExecuteAction).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/activity", h.ListActivityLog).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}/available-actions", h.GetAvailableActions).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}/milestones", h.ListMilestones).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}/reviews", h.MarkReviewed).Methods(http.MethodPost)
	api.HandleFunc("/milestones/{id}/pay", h.PayMilestone).Methods(http.MethodPost)
	api.HandleFunc("/actions/{action}/reasons", h.ListReasons).Methods(http.MethodGet)
	api.HandleFunc("/users/me/penalty", h.GetMyPenalty).Methods(http.MethodGet)
}
