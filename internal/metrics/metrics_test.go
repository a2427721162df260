package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/keithlinneman/linnemanlabs-webapp/internal/version"
)

// gatherMetric returns the named family from reg, or nil.
func gatherMetric(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func firstSample(t *testing.T, reg *prometheus.Registry, name string) *dto.Metric {
	t.Helper()
	f := gatherMetric(t, reg, name)
	if f == nil || len(f.GetMetric()) == 0 {
		t.Fatalf("metric %q has no samples", name)
	}
	return f.GetMetric()[0]
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	return firstSample(t, reg, name).GetCounter().GetValue()
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	return firstSample(t, reg, name).GetGauge().GetValue()
}

func histogramCount(t *testing.T, reg *prometheus.Registry, name string) uint64 {
	t.Helper()
	return firstSample(t, reg, name).GetHistogram().GetSampleCount()
}

// byLabel maps one label's value to the counter value across a family.
func byLabel(t *testing.T, reg *prometheus.Registry, name, label string) map[string]float64 {
	t.Helper()
	out := map[string]float64{}
	f := gatherMetric(t, reg, name)
	if f == nil {
		return out
	}
	for _, mt := range f.GetMetric() {
		for _, lp := range mt.GetLabel() {
			if lp.GetName() == label {
				out[lp.GetValue()] = mt.GetCounter().GetValue()
			}
		}
	}
	return out
}

func scrape(t *testing.T, m *ServerMetrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	return rec.Body.String()
}

func TestScrape_Families(t *testing.T) {
	body := scrape(t, New())
	for _, name := range []string{
		"go_goroutines",
		"http_inflight_requests",
		"http_panic_total",
		"http_requests_rate_limited_total",
		"profiling_active",
		"sessions_created_total",
		"csrf_rejections_total",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("%s missing from scrape", name)
		}
	}
}

func TestCounters(t *testing.T) {
	tests := []struct {
		name string
		inc  func(*ServerMetrics)
		n    int
	}{
		{"http_panic_total", (*ServerMetrics).IncHttpPanic, 3},
		{"http_requests_rate_limited_total", (*ServerMetrics).IncRateLimitDenied, 2},
		{"http_requests_rate_limited_capacity_total", (*ServerMetrics).IncRateLimitCapacity, 1},
		{"sessions_created_total", (*ServerMetrics).IncSessionCreated, 4},
		{"csrf_rejections_total", (*ServerMetrics).IncCSRFRejection, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			for i := 0; i < tt.n; i++ {
				tt.inc(m)
			}
			if got := counterValue(t, m.reg, tt.name); got != float64(tt.n) {
				t.Fatalf("%s = %v, want %d", tt.name, got, tt.n)
			}
		})
	}
}

func TestIncPipelineFault(t *testing.T) {
	m := New()
	m.IncPipelineFault("csrf_validation_failed")
	m.IncPipelineFault("csrf_validation_failed")
	m.IncPipelineFault("session_unavailable")

	got := byLabel(t, m.reg, "pipeline_faults_total", "kind")
	if len(got) != 2 || got["csrf_validation_failed"] != 2 || got["session_unavailable"] != 1 {
		t.Fatalf("pipeline_faults_total = %v", got)
	}
}

func TestIncSessionStoreError(t *testing.T) {
	m := New()
	m.IncSessionStoreError("get")
	m.IncSessionStoreError("persist")
	m.IncSessionStoreError("persist")

	got := byLabel(t, m.reg, "session_store_errors_total", "op")
	if got["get"] != 1 || got["persist"] != 2 {
		t.Fatalf("session_store_errors_total = %v", got)
	}
}

func TestSetProfilingActive(t *testing.T) {
	m := New()
	m.SetProfilingActive(true)
	if v := gaugeValue(t, m.reg, "profiling_active"); v != 1 {
		t.Fatalf("active = %v", v)
	}
	m.SetProfilingActive(false)
	if v := gaugeValue(t, m.reg, "profiling_active"); v != 0 {
		t.Fatalf("inactive = %v", v)
	}
}

func TestSetBuildInfoFromVersion(t *testing.T) {
	dirty := true
	tests := []struct {
		name      string
		vi        version.Info
		wantDirty string
	}{
		{"dirty", version.Info{Version: "1.4.0", Commit: "9f1c2ab", BuildId: "b-17", GoVersion: "go1.24.11", VCSDirty: &dirty}, "true"},
		{"unknown", version.Info{Version: "dev"}, "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			m.SetBuildInfoFromVersion("webapp", "server", tt.vi)

			s := firstSample(t, m.reg, "build_info")
			if s.GetGauge().GetValue() != 1 {
				t.Fatalf("build_info = %v, want 1", s.GetGauge().GetValue())
			}
			labels := map[string]string{}
			for _, lp := range s.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["app"] != "webapp" || labels["component"] != "server" || labels["version"] != tt.vi.Version {
				t.Fatalf("labels = %v", labels)
			}
			if labels["commit"] != tt.vi.Commit || labels["go_version"] != tt.vi.GoVersion {
				t.Fatalf("labels = %v", labels)
			}
			if labels["vcs_dirty"] != tt.wantDirty {
				t.Fatalf("vcs_dirty = %q, want %q", labels["vcs_dirty"], tt.wantDirty)
			}
		})
	}
}

func TestNew_IsolatedRegistries(t *testing.T) {
	a, b := New(), New()
	a.IncSessionCreated()
	if v := counterValue(t, a.reg, "sessions_created_total"); v != 1 {
		t.Fatalf("a = %v", v)
	}
	if v := counterValue(t, b.reg, "sessions_created_total"); v != 0 {
		t.Fatalf("b = %v, registries share state", v)
	}
}

func TestResponseSizeBuckets(t *testing.T) {
	m := New()
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("x"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	buckets := firstSample(t, m.reg, "http_response_size_bytes").GetHistogram().GetBucket()
	if len(buckets) == 0 || buckets[len(buckets)-1].GetUpperBound() < 50_000_000 {
		t.Fatal("largest size bucket should cover 50MB")
	}
}

func TestRegisterActiveSessions(t *testing.T) {
	m := New()
	n := 3
	if err := m.RegisterActiveSessions(func() int { return n }); err != nil {
		t.Fatalf("register: %v", err)
	}
	if v := gaugeValue(t, m.reg, "sessions_active"); v != 3 {
		t.Fatalf("sessions_active = %v, want 3", v)
	}
	n = 1
	if v := gaugeValue(t, m.reg, "sessions_active"); v != 1 {
		t.Fatalf("sessions_active = %v, want 1 after change", v)
	}
	if err := m.RegisterActiveSessions(func() int { return 0 }); err == nil {
		t.Fatal("duplicate registration should fail")
	}
}

func TestHandler_ContentType(t *testing.T) {
	m := New()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") && !strings.Contains(ct, "openmetrics") {
		t.Fatalf("Content-Type = %q", ct)
	}
}
