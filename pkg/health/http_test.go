package health

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPChecker_HealthyEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("healthy"))
	}))
	defer server.Close()

	checker := NewHTTPChecker(server.URL)

	result := checker.Check(context.Background())

	if !result.Healthy {
		t.Errorf("Expected healthy, got unhealthy: %s", result.Message)
	}
	if result.Duration <= 0 {
		t.Error("Expected positive duration")
	}
}

func TestHTTPChecker_ServerErrorIsUnhealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	checker := NewHTTPChecker(server.URL)

	result := checker.Check(context.Background())

	if result.Healthy {
		t.Errorf("Expected unhealthy for 500, got healthy: %s", result.Message)
	}
}

func TestHTTPChecker_AuthChallengeIsReady(t *testing.T) {
	// A 401 from a service still booting its auth layer counts as up.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	checker := NewHTTPChecker(server.URL)

	result := checker.Check(context.Background())

	if !result.Healthy {
		t.Errorf("Expected healthy for 401, got unhealthy: %s", result.Message)
	}
}

func TestHTTPChecker_CustomStatusRange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	checker := NewHTTPChecker(server.URL).WithStatusRange(200, 299)

	result := checker.Check(context.Background())

	if !result.Healthy {
		t.Errorf("Expected healthy for 201 status, got unhealthy: %s", result.Message)
	}
}

func TestHTTPChecker_CustomHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "test-value" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker := NewHTTPChecker(server.URL).WithHeader("X-Api-Key", "test-value")

	result := checker.Check(context.Background())

	if !result.Healthy {
		t.Errorf("Expected healthy with custom header, got unhealthy: %s", result.Message)
	}
}

func TestHTTPChecker_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker := NewHTTPChecker(server.URL).WithTimeout(50 * time.Millisecond)

	result := checker.Check(context.Background())

	if result.Healthy {
		t.Errorf("Expected unhealthy due to timeout, got healthy: %s", result.Message)
	}
}

func TestHTTPChecker_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker := NewHTTPChecker(server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := checker.Check(ctx)

	if result.Healthy {
		t.Errorf("Expected unhealthy due to cancelled context, got healthy: %s", result.Message)
	}
}

func TestHTTPChecker_Type(t *testing.T) {
	checker := NewHTTPChecker("http://example.com")
	if checker.Type() != CheckTypeHTTP {
		t.Errorf("Expected type %s, got %s", CheckTypeHTTP, checker.Type())
	}
}

func TestTCPChecker(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	checker := NewTCPChecker(ln.Addr().String())
	result := checker.Check(context.Background())
	if !result.Healthy {
		t.Errorf("Expected healthy, got unhealthy: %s", result.Message)
	}

	ln.Close()
	// Grab a port nothing listens on.
	dead := NewTCPChecker(ln.Addr().String()).WithTimeout(200 * time.Millisecond)
	result = dead.Check(context.Background())
	if result.Healthy {
		t.Error("Expected unhealthy after listener closed")
	}
}

func TestWaitFor_SucceedsOnceReady(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker := NewHTTPChecker(server.URL)
	cfg := WaitConfig{Timeout: 2 * time.Second, Interval: 10 * time.Millisecond}

	if err := WaitFor(context.Background(), checker, cfg); err != nil {
		t.Fatalf("WaitFor failed: %v", err)
	}
	if calls < 3 {
		t.Errorf("Expected at least 3 probes, got %d", calls)
	}
}

func TestWaitFor_TimeoutCarriesLastFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	checker := NewHTTPChecker(server.URL)
	cfg := WaitConfig{Timeout: 50 * time.Millisecond, Interval: 10 * time.Millisecond}

	err := WaitFor(context.Background(), checker, cfg)
	if err == nil {
		t.Fatal("Expected timeout error")
	}
}
