package clients

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"frameworks/pkg/monitoring"
)

func respond(status int) func() (*http.Response, error) {
	return func() (*http.Response, error) {
		return &http.Response{StatusCode: status}, nil
	}
}

func TestBreakerExecutor_StartsClosed(t *testing.T) {
	exec := NewBreakerExecutor(CircuitBreakerConfig{})
	if exec.State() != StateClosed {
		t.Fatalf("expected CLOSED, got %s", exec.State())
	}
	if exec.Name() != "circuit-breaker" {
		t.Fatalf("expected default name, got %q", exec.Name())
	}
}

//nolint:bodyclose // test responses have no body
func TestBreakerExecutor_IgnoresClientErrors(t *testing.T) {
	exec := NewBreakerExecutor(CircuitBreakerConfig{Name: "4xx", MinRequests: 2, FailureRatio: 0.5, Timeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		resp, err := exec.Execute(ctx, respond(http.StatusNotFound))
		if err != nil {
			t.Fatalf("4xx should pass through, got %v", err)
		}
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("unexpected status %d", resp.StatusCode)
		}
	}
	if exec.State() != StateClosed {
		t.Fatalf("expected CLOSED after client errors, got %s", exec.State())
	}
}

//nolint:bodyclose // test responses have no body
func TestBreakerExecutor_MakesOneAttempt(t *testing.T) {
	exec := NewBreakerExecutor(CircuitBreakerConfig{Name: "single"})

	var attempts int32
	_, err := exec.Execute(context.Background(), func() (*http.Response, error) {
		atomic.AddInt32(&attempts, 1)
		return nil, errors.New("network partition")
	})
	if err == nil {
		t.Fatal("expected request to fail")
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("expected single attempt, got %d", got)
	}
}

//nolint:bodyclose // test responses have no body
func TestBreakerExecutor_OpensOnServerErrors(t *testing.T) {
	mc := monitoring.NewMetricsCollector("clients_test", "v1", "abc")
	metrics := NewCircuitBreakerMetrics(mc)
	exec := NewBreakerExecutor(CircuitBreakerConfig{
		Name:          "push",
		MinRequests:   2,
		FailureRatio:  0.5,
		Timeout:       time.Minute,
		OnStateChange: metrics.Record,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _ = exec.Execute(ctx, respond(http.StatusBadGateway))
	}

	var called atomic.Bool
	_, err := exec.Execute(ctx, func() (*http.Response, error) {
		called.Store(true)
		return &http.Response{StatusCode: http.StatusOK}, nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected open circuit after repeated 5xx, got %v", err)
	}
	if called.Load() {
		t.Fatal("open circuit should skip the call")
	}
	if exec.State() != StateOpen {
		t.Fatalf("expected OPEN, got %s", exec.State())
	}
	if got := testutil.ToFloat64(metrics.state.WithLabelValues("push")); got != float64(StateOpen) {
		t.Fatalf("expected state gauge to report open, got %v", got)
	}
}

//nolint:bodyclose // test responses have no body
func TestBreakerExecutor_HalfOpenRecovers(t *testing.T) {
	exec := NewBreakerExecutor(CircuitBreakerConfig{
		Name:         "half-open",
		MinRequests:  2,
		FailureRatio: 0.5,
		Timeout:      50 * time.Millisecond,
	})
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, _ = exec.Execute(ctx, respond(http.StatusServiceUnavailable))
	}

	time.Sleep(80 * time.Millisecond)

	if _, err := exec.Execute(ctx, respond(http.StatusOK)); err != nil {
		t.Fatalf("expected half-open trial call to succeed, got %v", err)
	}
	if exec.State() != StateClosed {
		t.Fatalf("expected CLOSED after successful trial call, got %s", exec.State())
	}
}
