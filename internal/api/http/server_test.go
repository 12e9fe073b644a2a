package httpapi

import (
	stdcontext "context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Paintersrp/kirad/internal/api"
	"github.com/Paintersrp/kirad/internal/metrics"
)

func TestNewServerRejectsTypedNilController(t *testing.T) {
	var ctrl api.Controller = (*mockController)(nil)
	_, err := NewServer(Config{Controller: ctrl})
	if err == nil {
		t.Fatalf("expected error when controller is typed nil")
	}
	if !strings.Contains(err.Error(), "mockController") {
		t.Fatalf("expected error to describe typed nil controller, got %v", err)
	}
}

func TestNormalizeAddr(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":           defaultAddr,
		":80":        "127.0.0.1:80",
		"0.0.0.0:80": "0.0.0.0:80",
		"host:9000":  "host:9000",
		"[::1]:443":  "[::1]:443",
	}

	for input, expected := range tests {
		input, expected := input, expected
		t.Run(fmt.Sprintf("%s->%s", input, expected), func(t *testing.T) {
			t.Parallel()
			if got := normalizeAddr(input); got != expected {
				t.Fatalf("normalizeAddr(%q)=%q, want %q", input, got, expected)
			}
		})
	}
}

func TestHandleStatus(t *testing.T) {
	ctrl := &mockController{
		statusFn: func(stdcontext.Context) (*api.StatusReport, error) {
			return &api.StatusReport{Running: true, PID: 42, GeneratedAt: time.Unix(123, 0)}, nil
		},
	}
	server := newTestServer(t, ctrl)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()

	server.handleStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", rec.Code)
	}

	var body api.StatusReport
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed decoding response: %v", err)
	}
	if !body.Running || body.PID != 42 {
		t.Fatalf("expected running pid 42, got %+v", body)
	}
}

func TestHandleStatusError(t *testing.T) {
	ctrl := &mockController{
		statusFn: func(stdcontext.Context) (*api.StatusReport, error) {
			return nil, errors.New("boom")
		},
	}
	server := newTestServer(t, ctrl)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()

	server.handleStatus(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if body.Code != "internal_error" {
		t.Fatalf("expected internal_error code, got %q", body.Code)
	}
}

func TestHandleStatusMethodNotAllowed(t *testing.T) {
	server := newTestServer(t, &mockController{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	server.handleStatus(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != http.MethodGet {
		t.Fatalf("expected Allow header %q, got %q", http.MethodGet, allow)
	}
}

func TestHandleStartRefused(t *testing.T) {
	ctrl := &mockController{
		startFn: func(stdcontext.Context) (*api.StartResult, error) {
			return &api.StartResult{OK: false, Message: "Server already running"}, nil
		},
		statusFn: func(stdcontext.Context) (*api.StatusReport, error) {
			return &api.StatusReport{Running: true}, nil
		},
	}
	server := newTestServer(t, ctrl)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/start", nil)
	rec := httptest.NewRecorder()
	server.handleStart(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	start, ok := body["start"].(map[string]any)
	if !ok || start["message"] != "Server already running" {
		t.Fatalf("expected refusal message, got %v", body["start"])
	}
	if status, ok := body["status"].(map[string]any); !ok || status["running"] != true {
		t.Fatalf("expected running status, got %v", body["status"])
	}
}

func TestHandleStop(t *testing.T) {
	stopped := false
	ctrl := &mockController{
		stopFn: func(stdcontext.Context) error {
			stopped = true
			return nil
		},
	}
	server := newTestServer(t, ctrl)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stop", nil)
	rec := httptest.NewRecorder()
	server.handleStop(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if !stopped {
		t.Fatalf("expected controller Stop to be called")
	}
}

func TestHandleStopWithoutWorker(t *testing.T) {
	ctrl := &mockController{
		stopFn: func(stdcontext.Context) error {
			return api.ErrWorkerNotRunning
		},
	}
	server := newTestServer(t, ctrl)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stop", nil)
	rec := httptest.NewRecorder()
	server.handleStop(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if body.Code != "not_running" {
		t.Fatalf("expected not_running, got %q", body.Code)
	}
}

func TestHandleSend(t *testing.T) {
	var got string
	ctrl := &mockController{
		sendFn: func(_ stdcontext.Context, text string) error {
			got = text
			return nil
		},
	}
	server := newTestServer(t, ctrl)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/send", strings.NewReader(`{"text":"ping\n"}`))
	rec := httptest.NewRecorder()
	server.handleSend(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got != "ping\n" {
		t.Fatalf("expected text forwarded, got %q", got)
	}
}

func TestHandleSendErrors(t *testing.T) {
	ctrl := &mockController{
		sendFn: func(stdcontext.Context, string) error {
			return fmt.Errorf("send: %w", api.ErrWorkerNotRunning)
		},
	}
	server := newTestServer(t, ctrl)

	tests := []struct {
		name string
		body string
		code int
		want string
	}{
		{"not running", `{"text":"x"}`, http.StatusNotFound, "not_running"},
		{"empty", `{"text":""}`, http.StatusBadRequest, "bad_input"},
		{"malformed", `{`, http.StatusBadRequest, "bad_input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/send", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			server.handleSend(rec, req)

			if rec.Code != tt.code {
				t.Fatalf("expected %d, got %d", tt.code, rec.Code)
			}
			var body errorBody
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode error: %v", err)
			}
			if body.Code != tt.want {
				t.Fatalf("expected code %s, got %q", tt.want, body.Code)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(t, &mockController{})

	metrics.EmitBuildInfo()
	metrics.IncWorkerStarts()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	server.srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from metrics endpoint, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "kirad_worker_starts_total") {
		t.Fatalf("expected worker starts counter, got:\n%s", body)
	}
	if !strings.Contains(body, "kirad_build_info{") {
		t.Fatalf("expected metrics output to include build info, got:\n%s", body)
	}
}

type mockController struct {
	statusFn func(stdcontext.Context) (*api.StatusReport, error)
	startFn  func(stdcontext.Context) (*api.StartResult, error)
	stopFn   func(stdcontext.Context) error
	sendFn   func(stdcontext.Context, string) error
}

func (m *mockController) Status(ctx stdcontext.Context) (*api.StatusReport, error) {
	if m.statusFn != nil {
		return m.statusFn(ctx)
	}
	return &api.StatusReport{}, nil
}

func (m *mockController) Start(ctx stdcontext.Context) (*api.StartResult, error) {
	if m.startFn != nil {
		return m.startFn(ctx)
	}
	return &api.StartResult{OK: true}, nil
}

func (m *mockController) Stop(ctx stdcontext.Context) error {
	if m.stopFn != nil {
		return m.stopFn(ctx)
	}
	return nil
}

func (m *mockController) Send(ctx stdcontext.Context, text string) error {
	if m.sendFn != nil {
		return m.sendFn(ctx, text)
	}
	return nil
}

func newTestServer(t *testing.T, ctrl api.Controller) *Server {
	t.Helper()
	server, err := NewServer(Config{Controller: ctrl})
	if err != nil {
		t.Fatalf("failed creating server: %v", err)
	}
	return server
}
