package observability_test

import (
	"SynthLedger/internal/observability"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
)

// ============================================================================
// Test: HealthChecker
// ============================================================================

func readyStatus(t *testing.T, h *observability.HealthChecker) (int, map[string]string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return rec.Code, body
}

func TestHealthChecker_Readiness(t *testing.T) {
	h := observability.NewHealthChecker()

	if code, _ := readyStatus(t, h); code != http.StatusServiceUnavailable {
		t.Errorf("got %d before ready, want 503", code)
	}

	h.SetReady(true)
	if code, body := readyStatus(t, h); code != http.StatusOK || body["status"] != "ready" {
		t.Errorf("got %d %v, want 200 ready", code, body)
	}

	h.SetDegraded("engine halted")
	code, body := readyStatus(t, h)
	if code != http.StatusServiceUnavailable || body["reason"] != "engine halted" {
		t.Errorf("got %d %v, want 503 degraded", code, body)
	}
	if h.IsReady() {
		t.Error("degraded service should not be ready")
	}

	h.SetDegraded("")
	if !h.IsReady() {
		t.Error("clearing degradation should restore readiness")
	}
}

func TestHealthChecker_Liveness(t *testing.T) {
	rec := httptest.NewRecorder()
	observability.NewHealthChecker().LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("got %d, want 200", rec.Code)
	}
}

// ============================================================================
// Test: Metrics
// ============================================================================

func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if m.Counter != nil {
		return m.Counter.GetValue()
	}
	return m.Gauge.GetValue()
}

func TestNewMetrics_IsolatedRegistries(t *testing.T) {
	// Two registries must not collide.
	m1 := observability.NewMetrics(prometheus.NewRegistry())
	m2 := observability.NewMetrics(prometheus.NewRegistry())

	m1.OpsApplied.WithLabelValues("deposit").Inc()
	if got := value(t, m1.OpsApplied.WithLabelValues("deposit")); got != 1 {
		t.Errorf("got %v, want 1", got)
	}
	if got := value(t, m2.OpsApplied.WithLabelValues("deposit")); got != 0 {
		t.Errorf("got %v, want 0", got)
	}
}

func TestSetChannelMetrics(t *testing.T) {
	m := observability.NewMetrics(prometheus.NewRegistry())
	m.SetChannelMetrics("persist", 25, 100)
	if got := value(t, m.ChannelUtilization.WithLabelValues("persist")); got != 0.25 {
		t.Errorf("got %v, want 0.25", got)
	}
}

// ============================================================================
// Test: Logger
// ============================================================================

func TestNewLoggerTo_Component(t *testing.T) {
	var buf bytes.Buffer
	log := observability.NewLoggerTo(&buf, "engine", zerolog.InfoLevel)
	log.Debug().Msg("hidden")
	log.Info().Msg("shown")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected exactly one JSON line, got %q: %v", buf.String(), err)
	}
	if line["component"] != "engine" || line["message"] != "shown" {
		t.Errorf("unexpected log line %v", line)
	}
}

func TestLevelFromEnv(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":         zerolog.InfoLevel,
		"debug":    zerolog.DebugLevel,
		"WARN":     zerolog.WarnLevel,
		"bogus":    zerolog.InfoLevel,
		"disabled": zerolog.Disabled,
	}
	for in, want := range cases {
		t.Setenv("SYNTH_LOG_LEVEL", in)
		if got := observability.LevelFromEnv(); got != want {
			t.Errorf("SYNTH_LOG_LEVEL=%q: got %v, want %v", in, got, want)
		}
	}
}
