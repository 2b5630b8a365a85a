package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/dnsgate"
)

type fakeSource struct {
	snapshot dnsgate.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() dnsgate.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                     { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewFromSource(fakeSource{
		snapshot: dnsgate.MetricsSnapshot{
			Counters:   map[dnsgate.MetricID]uint64{},
			Histograms: map[dnsgate.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderCountersAndHistogram(t *testing.T) {
	exp := NewFromSource(fakeSource{
		snapshot: dnsgate.MetricsSnapshot{
			Counters: map[dnsgate.MetricID]uint64{
				dnsgate.MetricLoginSuccess:       7,
				dnsgate.MetricZoneDenied:         2,
				dnsgate.MetricResolverClientMode: 1,
			},
			Histograms: map[dnsgate.MetricID][]uint64{
				dnsgate.MetricResolveLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	for _, want := range []string{
		"dnsgate_login_success_total 7",
		"dnsgate_zone_denied_total 2",
		"dnsgate_resolver_client_mode_total 1",
		"dnsgate_login_failure_total 0",
		"dnsgate_resolve_latency_seconds_bucket{le=\"0.005\"} 1",
		"dnsgate_resolve_latency_seconds_bucket{le=\"+Inf\"} 36",
		"dnsgate_resolve_latency_seconds_count 36",
		"dnsgate_audit_dropped_total 2",
		"# TYPE dnsgate_resolve_latency_seconds histogram",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestRenderSkipsHistogramWhenLatencyDisabled(t *testing.T) {
	exp := NewFromSource(fakeSource{
		snapshot: dnsgate.MetricsSnapshot{
			Counters:   map[dnsgate.MetricID]uint64{dnsgate.MetricLogout: 1},
			Histograms: map[dnsgate.MetricID][]uint64{},
		},
	})

	out := exp.Render()
	if strings.Contains(out, "dnsgate_resolve_latency_seconds") {
		t.Fatalf("histogram must be omitted without latency data, got:\n%s", out)
	}
	if !strings.Contains(out, "dnsgate_logout_total 1") {
		t.Fatalf("expected logout counter, got:\n%s", out)
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewFromSource(fakeSource{
		snapshot: dnsgate.MetricsSnapshot{
			Counters:   map[dnsgate.MetricID]uint64{dnsgate.MetricLoginSuccess: 1},
			Histograms: map[dnsgate.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewFromSource(fakeSource{
		snapshot: dnsgate.MetricsSnapshot{
			Counters: map[dnsgate.MetricID]uint64{
				dnsgate.MetricLoginSuccess:       1000,
				dnsgate.MetricLoginFailure:       40,
				dnsgate.MetricRefreshSuccess:     800,
				dnsgate.MetricRefreshFailure:     10,
				dnsgate.MetricResolverForbidden:  20,
				dnsgate.MetricResolverClientMode: 3,
			},
			Histograms: map[dnsgate.MetricID][]uint64{
				dnsgate.MetricResolveLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
