// Package health serves the liveness and readiness endpoints of a voice
// session.
//
// /healthz answers 200 while the process can serve HTTP and carries the
// session details when a [WithDetails] source is set. /readyz runs every
// [Checker] concurrently and answers 503 when a required check fails. A
// failing optional check, such as the event bus, only marks the report
// degraded.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const checkTimeout = 5 * time.Second

// Report statuses.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFail     = "fail"
)

// Checker tests one dependency of the session.
type Checker struct {
	// Name keys the result in the report, e.g. "agent" or "storage".
	Name string

	// Check returns nil when the dependency is usable. It must respect ctx.
	Check func(ctx context.Context) error

	// Optional failures degrade the report without failing readiness.
	Optional bool
}

// Result is the outcome of one check.
type Result struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency"`
}

// Report is the JSON body of both endpoints.
type Report struct {
	Status  string            `json:"status"`
	Details any               `json:"details,omitempty"`
	Checks  map[string]Result `json:"checks,omitempty"`
}

// Option configures a [Handler].
type Option func(*Handler)

// WithDetails adds the value returned by fn to every /healthz report.
func WithDetails(fn func() any) Option {
	return func(h *Handler) { h.details = fn }
}

// Handler serves both endpoints. The checker list is fixed at construction.
type Handler struct {
	checkers []Checker
	details  func() any
}

// New returns a Handler running checkers on each /readyz request.
func New(checkers []Checker, opts ...Option) *Handler {
	h := &Handler{checkers: append([]Checker(nil), checkers...)}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Healthz always answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	rep := Report{Status: StatusOK}
	if h.details != nil {
		rep.Details = h.details()
	}
	writeJSON(w, http.StatusOK, rep)
}

// Readyz answers 200 unless a required check fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := h.Evaluate(r.Context())
	status := http.StatusOK
	if rep.Status == StatusFail {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, rep)
}

// Evaluate runs every check concurrently, each bounded by its own timeout.
func (h *Handler) Evaluate(ctx context.Context) Report {
	var (
		mu       sync.Mutex
		g        errgroup.Group
		failed   bool
		degraded bool
	)
	checks := make(map[string]Result, len(h.checkers))
	for _, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			begin := time.Now()
			err := c.Check(cctx)
			res := Result{Status: StatusOK, Latency: time.Since(begin).Round(time.Microsecond).String()}
			if err != nil {
				res.Status, res.Error = StatusFail, err.Error()
			}

			mu.Lock()
			defer mu.Unlock()
			checks[c.Name] = res
			switch {
			case err == nil:
			case c.Optional:
				degraded = true
			default:
				failed = true
			}
			return nil
		})
	}
	_ = g.Wait()

	rep := Report{Status: StatusOK, Checks: checks}
	switch {
	case failed:
		rep.Status = StatusFail
	case degraded:
		rep.Status = StatusDegraded
	}
	return rep
}

// Register adds GET /healthz and GET /readyz to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
