package monitoring

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCollectorPrefixesNames(t *testing.T) {
	mc := NewMetricsCollector("lookout-test", "v1", "abc")
	counter := mc.NewCounter("widgets_total", "Widgets", []string{"kind"})
	counter.WithLabelValues("a").Inc()
	counter.WithLabelValues("a").Inc()

	if got := testutil.ToFloat64(counter.WithLabelValues("a")); got != 2 {
		t.Fatalf("expected 2, got %v", got)
	}

	families, err := mc.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "lookout_test_widgets_total" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected sanitized prefix on metric name")
	}
}

func TestMetricsCollectorsAreIndependent(t *testing.T) {
	a := NewMetricsCollector("svc", "v1", "abc")
	b := NewMetricsCollector("svc", "v1", "abc")
	a.NewCounter("dup_total", "dup", nil)
	b.NewCounter("dup_total", "dup", nil)
}

func TestMetricsHandlerServesRegistry(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mc := NewMetricsCollector("svc", "v1", "abc")

	r := gin.New()
	r.Use(mc.MetricsMiddleware())
	r.GET("/metrics", mc.Handler())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `svc_http_requests_total{endpoint="/ping",method="GET",status="200"} 1`) {
		t.Fatalf("expected ping request counter in output:\n%s", body)
	}
	if !strings.Contains(body, `svc_service_info{commit="abc",version="v1"} 1`) {
		t.Fatalf("expected service info in output")
	}
}
