package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// TestMetrics_Usable verifies that all Prometheus metrics can be used without
// panic, ensuring label dimensions match usage across client, http, service, and cache packages.
func TestMetrics_Usable(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/users/{id}", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/users/{id}").Observe(0.01)
	CollaboratorErrorsTotal.WithLabelValues("not_found").Inc()
	DirectoryCallsTotal.WithLabelValues("success").Inc()
	DirectoryDuration.WithLabelValues("server_error").Observe(0.1)
	CacheErrorsTotal.WithLabelValues("get", "timeout").Inc()
	CacheOperationDurationSeconds.WithLabelValues("set", "success").Observe(0.001)
	RecordCircuitBreakerTransition("user_directory", "closed", "open")
	SetCircuitBreakerStateGauge("user_directory", 1)
	RecordShutdownInFlight(3)
	RegisterRateLimitGauges(time.Minute)
	RegisterRateLimitGauges(time.Minute) // second call must not re-register
}

// TestRecordUserLookup_Labels verifies that found and absent lookups land on
// their own result label in the exposition output.
func TestRecordUserLookup_Labels(t *testing.T) {
	RecordUserLookup(true)
	RecordUserLookup(false)

	w := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	body := w.Body.String()
	for _, want := range []string{`userLookupsTotal{result="found"}`, `userLookupsTotal{result="absent"}`} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}

// TestMetricsHandler_ServesPrometheusFormat verifies that MetricsHandler serves
// Prometheus text exposition format with correct HTTP status and metric output.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/health", "2xx").Inc()
	handler := MetricsHandler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "httpRequestsTotal") {
		t.Error("MetricsHandler response should contain metric output")
	}
}
