package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	return rr.Body.String()
}

func TestMetrics_RecordedOnRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	Init(reg, true)
	t.Cleanup(func() { Init(nil, false) })

	ObserveHTTP("GET", "/*", 200, 0.001)
	IncStrategyResult("versioned-asset", "cache")
	ObserveCacheOp("put", nil, 0.0001)
	ObserveCacheOp("get", errors.New("boom"), 0.0001)
	IncPrecache("speculative", "ok")
	IncRevalidateFailure()
	IncControlMessage("CLEAR_CACHES", "ok")
	SetGeneration("live2d-cache-v1")

	body := scrape(t, reg)
	for _, s := range []string{
		`http_requests_total{method="GET",route="/*",status="200"} 1`,
		`strategy_results_total{class="versioned-asset",source="cache"} 1`,
		`cache_op_total{op="put",result="ok"} 1`,
		`cache_op_total{op="get",result="error"} 1`,
		`precache_fetch_total{phase="speculative",result="ok"} 1`,
		`revalidate_failures_total 1`,
		`control_messages_total{result="ok",type="CLEAR_CACHES"} 1`,
		`cache_generation_info{namespace="live2d-cache-v1"} 1`,
	} {
		if !strings.Contains(body, s) {
			t.Fatalf("expected %q in payload; got:\n%s", s, body)
		}
	}
}

func TestMetrics_DisabledIsNoop(t *testing.T) {
	Init(nil, false)
	ObserveHTTP("GET", "/", 200, 0.001)
	IncStrategyResult("dynamic", "network")
	SetGeneration("x")
}
