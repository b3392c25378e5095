package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetricsRecordingAndHandler(t *testing.T) {
	m := NewMetrics("test")

	m.RecordRequestLatency("/health", "GET", "200", 0.01)
	m.RecordHTTPRequest("/health", "GET", "200")
	m.IncHTTPRequestsInFlight()
	m.DecHTTPRequestsInFlight()
	m.RecordOAuthExchange("notion", "success")
	m.RecordInstallationToken("minted")
	m.RecordInstallationToken("fallback")
	m.RecordSyncRun("github", "success", 1.5)
	m.RecordLLMCall("success")
	m.RecordTasksCreated("notion", 3, 1)
	m.RecordError("timeout", "/health", "GET")

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	body := w.Body.String()
	for _, metric := range []string{
		"test_request_latency_seconds",
		"test_oauth_exchanges_total",
		"test_sync_runs_total",
		"test_tasks_created_total",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected metrics output to contain %s", metric)
		}
	}

	if _, err := m.registry.Gather(); err != nil {
		t.Fatalf("expected gather to succeed: %v", err)
	}
}
