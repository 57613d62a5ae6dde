package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Report {
	t.Helper()
	var body Report
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return body
}

func ok(context.Context) error { return nil }

func failing(msg string) func(context.Context) error {
	return func(context.Context) error { return errors.New(msg) }
}

func TestHealthz(t *testing.T) {
	h := New([]Checker{{Name: "agent", Check: failing("down")}},
		WithDetails(func() any { return map[string]string{"session_id": "s-1"} }))

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := decode(t, rec)
	if body.Status != StatusOK || len(body.Checks) != 0 {
		t.Errorf("body = %+v", body)
	}
	if d, _ := body.Details.(map[string]any); d["session_id"] != "s-1" {
		t.Errorf("details = %v", body.Details)
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantErrors map[string]string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: StatusOK,
		},
		{
			name:       "all pass",
			checkers:   []Checker{{Name: "agent", Check: ok}, {Name: "storage", Check: ok}},
			wantCode:   http.StatusOK,
			wantStatus: StatusOK,
			wantErrors: map[string]string{"agent": "", "storage": ""},
		},
		{
			name:       "required fails",
			checkers:   []Checker{{Name: "agent", Check: ok}, {Name: "storage", Check: failing("connection refused")}},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusFail,
			wantErrors: map[string]string{"agent": "", "storage": "connection refused"},
		},
		{
			name:       "optional fails",
			checkers:   []Checker{{Name: "agent", Check: ok}, {Name: "bus", Check: failing("unhealthy"), Optional: true}},
			wantCode:   http.StatusOK,
			wantStatus: StatusDegraded,
			wantErrors: map[string]string{"agent": "", "bus": "unhealthy"},
		},
		{
			name: "required and optional fail",
			checkers: []Checker{
				{Name: "agent", Check: failing("connection closed")},
				{Name: "bus", Check: failing("unhealthy"), Optional: true},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusFail,
			wantErrors: map[string]string{"agent": "connection closed", "bus": "unhealthy"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			New(tc.checkers).Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

			if rec.Code != tc.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tc.wantCode)
			}
			body := decode(t, rec)
			if body.Status != tc.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tc.wantStatus)
			}
			for name, want := range tc.wantErrors {
				got, found := body.Checks[name]
				if !found {
					t.Errorf("check %s missing", name)
					continue
				}
				if got.Error != want {
					t.Errorf("check %s error = %q, want %q", name, got.Error, want)
				}
				if wantStatus := map[bool]string{true: StatusOK, false: StatusFail}[want == ""]; got.Status != wantStatus {
					t.Errorf("check %s status = %q, want %q", name, got.Status, wantStatus)
				}
				if got.Latency == "" {
					t.Errorf("check %s has no latency", name)
				}
			}
		})
	}
}

func TestEvaluate_ChecksRunConcurrently(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	slow := func(ctx context.Context) error {
		started <- struct{}{}
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h := New([]Checker{{Name: "a", Check: slow}, {Name: "b", Check: slow}})

	done := make(chan Report)
	go func() { done <- h.Evaluate(context.Background()) }()

	for range 2 {
		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatal("checks did not start concurrently")
		}
	}
	close(release)
	if rep := <-done; rep.Status != StatusOK {
		t.Errorf("status = %q", rep.Status)
	}
}

func TestEvaluate_RespectsContextCancellation(t *testing.T) {
	h := New([]Checker{{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep := h.Evaluate(ctx)
	if rep.Status != StatusFail || rep.Checks["slow"].Error != context.Canceled.Error() {
		t.Errorf("report = %+v", rep)
	}
}

func TestRegister_Routes(t *testing.T) {
	mux := http.NewServeMux()
	New([]Checker{{Name: "agent", Check: ok}}).Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/readyz", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /readyz = %d", rec.Code)
	}
}
