package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/user-lookup-service/internal/database"
	"github.com/kjstillabower/user-lookup-service/internal/lifecycle"
	"github.com/kjstillabower/user-lookup-service/internal/models"
	"github.com/kjstillabower/user-lookup-service/internal/observability"
	"github.com/kjstillabower/user-lookup-service/internal/traffic"
	"github.com/kjstillabower/user-lookup-service/internal/validation"
)

// UserLookup is the lookup the handlers serve. *service.UserActions implements it.
type UserLookup interface {
	Lookup(ctx context.Context, id int64) (models.User, error)
}

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
	// DatabasePing, when set, is called to check the user store. A failure marks the service degraded.
	DatabasePing func() error
	Version      string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	users            UserLookup
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. healthConfig may be nil.
func NewHandler(users UserLookup, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		users:        users,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// GetUser handles GET /users/{id}. Any lookup failure is an absent user: 404.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := validation.ParseUserID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_USER_ID", err.Error())
		return
	}

	u, err := h.users.Lookup(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			traffic.Record(traffic.Missing)
		} else {
			traffic.Record(traffic.Failed)
		}
		writeError(w, r, http.StatusNotFound, "USER_NOT_FOUND", "user not found")
		return
	}
	traffic.Record(traffic.Found)
	writeJSON(w, http.StatusOK, u)
}

type healthResult struct {
	status     string
	statusCode int
	reason     string
	dbHealthy  bool
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"userDatabase": "healthy"}
	if !result.dbHealthy {
		checks["userDatabase"] = "unhealthy"
	}
	version := "dev"
	if h.healthConfig != nil {
		if h.healthConfig.CachePing != nil {
			if h.healthConfig.CachePing() == nil {
				checks["cache"] = "healthy"
			} else {
				checks["cache"] = "unhealthy"
			}
		}
		if h.healthConfig.Version != "" {
			version = h.healthConfig.Version
		}
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   "user-lookup-service",
		"version":   version,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates, in order: shutting-down > starting > degraded > healthy.
// Degraded covers an unreachable user store and a failure rate at or over the threshold.
func (h *Handler) computeHealthStatus() healthResult {
	dbHealthy := true
	if h.healthConfig != nil && h.healthConfig.DatabasePing != nil {
		if err := h.healthConfig.DatabasePing(); err != nil {
			h.logger.Warn("user database ping failed", zap.Error(err))
			dbHealthy = false
		}
	}

	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal", dbHealthy}
	}
	if !lifecycle.IsReady() {
		return healthResult{"starting", http.StatusServiceUnavailable, "ready_delay", dbHealthy}
	}
	if !dbHealthy {
		return healthResult{"degraded", http.StatusServiceUnavailable, "database_unreachable", false}
	}
	if h.healthConfig != nil && h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		failed, total := traffic.FailureRate(h.healthConfig.DegradedWindow)
		if total > 0 {
			pct := float64(failed) * 100 / float64(total)
			if pct >= float64(h.healthConfig.DegradedErrorPct) {
				return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach", false}
			}
		}
	}
	return healthResult{"healthy", http.StatusOK, "", true}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error":{"code","message","requestId"}}.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationIDFromContext(r.Context()),
		},
	})
}
