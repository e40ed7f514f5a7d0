package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

type stubMongoChecker struct {
	err error
}

func (s stubMongoChecker) Ping(context.Context) error {
	return s.err
}

func TestHealthHandlerOK(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	server := NewServer(0, stubMongoChecker{err: nil}, nil, logrus.NewEntry(logger))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()

	server.server.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected HTTP 200, got %d", rr.Code)
	}

	body := strings.TrimSpace(rr.Body.String())
	if body != `{"status":"ok","persistence":"mongo"}` {
		t.Fatalf("unexpected body: %s", body)
	}

	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected content-type application/json, got %s", ct)
	}
}

func TestHealthHandlerMongoError(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	server := NewServer(0, stubMongoChecker{err: errors.New("mongo down")}, nil, logrus.NewEntry(logger))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()

	server.server.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected HTTP 200, got %d", rr.Code)
	}

	body := strings.TrimSpace(rr.Body.String())
	if body != `{"status":"degraded","persistence":"mongo","mongo":"error"}` {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestHealthHandlerWithoutPersistence(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	server := NewServer(0, nil, nil, logrus.NewEntry(logger))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()

	server.server.Handler.ServeHTTP(rr, req)

	body := strings.TrimSpace(rr.Body.String())
	if body != `{"status":"ok","persistence":"memory"}` {
		t.Fatalf("unexpected body: %s", body)
	}
	if len(hook.AllEntries()) != 0 {
		t.Fatalf("expected no warnings when persistence is disabled, got %d entries", len(hook.AllEntries()))
	}
}

func TestMetricsEndpointMounted(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("bot_commands_total 1\n"))
	})
	server := NewServer(0, nil, metrics, logrus.NewEntry(logger))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()

	server.server.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected HTTP 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "bot_commands_total") {
		t.Fatalf("expected metrics body, got %s", rr.Body.String())
	}
}

func TestMetricsEndpointAbsentWithoutHandler(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	server := NewServer(0, nil, nil, logrus.NewEntry(logger))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()

	server.server.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected HTTP 404, got %d", rr.Code)
	}
}
