package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestProvider_RegistersStandardCollectors_AndBuildInfo(t *testing.T) {
	p := Init(Config{
		Build:       BuildInfo{Version: "test", Revision: "r", BuildDate: "now"},
		StoreDriver: "redis",
		Codec:       "cbor",
	})

	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "smoke"})
	p.Register(g)
	g.Set(42)

	if n := testutil.CollectAndCount(g); n == 0 {
		t.Fatalf("expected at least 1 sample from test_gauge, got %d", n)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	body := rr.Body.String()

	if !strings.Contains(body, "go_goroutines") {
		t.Fatalf("expected go_goroutines in payload; got:\n%s", body)
	}
	if !strings.Contains(body, "process_cpu_seconds_total") && !strings.Contains(body, "process_start_time_seconds") {
		t.Fatalf("expected process_* metrics in payload; got:\n%s", body)
	}
	want := `assetcache_build_info{build_date="now",codec="cbor",revision="r",store_driver="redis",version="test"} 1`
	if !strings.Contains(body, want) {
		t.Fatalf("expected %q in payload; got:\n%s", want, body)
	}
}

func TestBuildFromEnv(t *testing.T) {
	t.Setenv("BUILD_VERSION", "")
	t.Setenv("BUILD_REVISION", "abc123")
	b := BuildFromEnv("dev")
	if b.Version != "dev" || b.Revision != "abc123" {
		t.Fatalf("build=%+v", b)
	}
}
