package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/user-lookup-service/internal/observability"
)

// RouterOptions configures the /users subrouter. A nil Limiter disables rate limiting.
type RouterOptions struct {
	RequestTimeout time.Duration
	Limiter        *rate.Limiter
}

// NewRouter mounts /health, /metrics and GET /users/{id}. Only /users is rate limited
// and deadline-bound.
func NewRouter(h *Handler, logger *zap.Logger, opts RouterOptions) *mux.Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	users := router.PathPrefix("/users").Subrouter()
	users.Use(RateLimitMiddleware(opts.Limiter))
	if opts.RequestTimeout > 0 {
		users.Use(TimeoutMiddleware(opts.RequestTimeout))
	}
	users.HandleFunc("/{id}", h.GetUser).Methods(http.MethodGet)
	return router
}
