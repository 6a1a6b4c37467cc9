package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/desertthunder/makin/internal/loader"
	"github.com/desertthunder/makin/internal/shared"
)

// Health collects startup load reports and answers /healthz.
type Health struct {
	mu      sync.RWMutex
	started time.Time
	reports map[string]*loader.Report
	errors  []string
}

// NewHealth creates an empty [Health].
func NewHealth() *Health {
	return &Health{started: time.Now().UTC(), reports: map[string]*loader.Report{}}
}

// Record stores the report of one loader run under kind. A nil report with err (the directory
// could not be listed) counts as a failure too.
func (h *Health) Record(kind string, report *loader.Report, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if report != nil {
		h.reports[kind] = report
		for _, f := range report.Failed {
			h.errors = append(h.errors, kind+": "+f.Error())
		}
		return
	}
	if err != nil {
		h.errors = append(h.errors, kind+": "+err.Error())
	}
}

// Errors returns every recorded failure.
func (h *Health) Errors() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string(nil), h.errors...)
}

type healthResponse struct {
	Status  string         `json:"status"`
	Started time.Time      `json:"started"`
	Loaded  map[string]int `json:"loaded"`
	Errors  []string       `json:"errors,omitempty"`
}

// ServeHTTP answers 200 when every module loaded and 503 otherwise.
func (h *Health) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	resp := healthResponse{Status: "ok", Started: h.started, Loaded: map[string]int{}}
	for kind, report := range h.reports {
		resp.Loaded[kind] = len(report.Loaded)
	}
	resp.Errors = append(resp.Errors, h.errors...)
	h.mu.RUnlock()

	status := http.StatusOK
	if len(resp.Errors) > 0 {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	shared.WriteJSON(w, status, resp)
}
