package monitoring

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
)

func TestHealthChecker_Aggregation(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]string
		want   string
	}{
		{"all healthy", map[string]string{"a": StatusHealthy, "b": StatusHealthy}, StatusHealthy},
		{"one degraded", map[string]string{"a": StatusHealthy, "b": StatusDegraded}, StatusDegraded},
		{"one unhealthy", map[string]string{"a": StatusDegraded, "b": StatusUnhealthy}, StatusUnhealthy},
		{"unknown status", map[string]string{"a": "weird"}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := NewHealthChecker("svc", "v1")
			for name, st := range tt.checks {
				st := st
				hc.AddCheck(name, func() CheckResult { return CheckResult{Status: st} })
			}
			if got := hc.CheckHealth().Status; got != tt.want {
				t.Fatalf("status = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPingHealthCheck(t *testing.T) {
	ok := PingHealthCheck("Redis", PingFunc(func(context.Context) error { return nil }), StatusDegraded)()
	if ok.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %q", ok.Status)
	}

	failing := PingHealthCheck("Redis", PingFunc(func(context.Context) error { return errors.New("down") }), StatusDegraded)()
	if failing.Status != StatusDegraded {
		t.Fatalf("expected degraded, got %q", failing.Status)
	}

	nilClient := PingHealthCheck("Kafka", nil, StatusUnhealthy)()
	if nilClient.Status != StatusUnhealthy || nilClient.Message != "Kafka client is nil" {
		t.Fatalf("unexpected nil result %+v", nilClient)
	}
}

func TestDatabaseHealthCheck(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	mock.ExpectPing()

	if res := DatabaseHealthCheck(db)(); res.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %+v", res)
	}
	if res := DatabaseHealthCheck(nil)(); res.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy for nil db, got %+v", res)
	}
}

func TestConfigurationHealthCheck(t *testing.T) {
	res := ConfigurationHealthCheck(map[string]string{"DATABASE_URL": "", "PORT": "1"})()
	if res.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %q", res.Status)
	}
}

func TestHealthHandlerStatusCode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hc := NewHealthChecker("svc", "v1")
	hc.AddCheck("db", func() CheckResult { return CheckResult{Status: StatusUnhealthy} })

	r := gin.New()
	r.GET("/health", hc.Handler())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}
