// Package server exposes runs over HTTP so a scheduler or webhook can trigger
// them, and optionally triggers compare runs on a cron schedule itself.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/leoncowle/mastodon-misc/internal/assert"
	"github.com/leoncowle/mastodon-misc/internal/chrono"
	"github.com/leoncowle/mastodon-misc/internal/components/telemetry"
	"github.com/leoncowle/mastodon-misc/internal/drift"
	"github.com/leoncowle/mastodon-misc/internal/mastodon"
	"github.com/leoncowle/mastodon-misc/internal/snapshot"
	"github.com/leoncowle/mastodon-misc/lib/serviceutil"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	report_server_run      = "server.run"
	report_server_schedule = "server.schedule"
)

type Runner interface {
	Run(ctx context.Context, opts drift.Options) (drift.Outcome, error)
}

type Options struct {
	// Compare holds the options of every compare run, Reset is ignored.
	Compare drift.Options
	// RunTimeout bounds a single run, defaults to 5 minutes.
	RunTimeout time.Duration
}

type Server struct {
	runner   Runner
	opts     Options
	tel      telemetry.API
	metrics  *metrics
	registry *prometheus.Registry

	// runs are serialized, the store has a single writer
	mutex sync.Mutex
}

func NewServer(runner Runner, opts Options, tel telemetry.API) *Server {
	assert.NotNil(runner, "runner")
	assert.NotNil(tel, "telemetry")
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 5 * time.Minute
	}

	registry := prometheus.NewRegistry()
	return &Server{
		runner:   runner,
		opts:     opts,
		tel:      telemetry.NewScopedAPI("server", tel),
		metrics:  newMetrics(registry),
		registry: registry,
	}
}

// Trigger performs a single run, waiting for any run already in progress.
func (s *Server) Trigger(ctx context.Context, reset bool) (drift.Outcome, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.opts.RunTimeout)
	defer cancel()

	opts := s.opts.Compare
	opts.Reset = reset

	outcome, err := s.runner.Run(ctx, opts)
	s.metrics.observe(reset, outcome, err)
	if err != nil {
		s.tel.ReportBroken(report_server_run, err)
		return outcome, err
	}
	return outcome, nil
}

// Schedule triggers a compare run on every tick of spec. Ticks after ctx is
// done are skipped and a run in progress is cancelled with it.
func (s *Server) Schedule(ctx context.Context, cron chrono.CronAPI, spec string) error {
	return cron.Cron(spec, func() {
		if ctx.Err() != nil {
			return
		}
		_, err := s.Trigger(ctx, false)
		if err != nil {
			s.tel.ReportWarning(report_server_schedule, err)
		}
	})
}

type removalJSON struct {
	ListID    string `json:"list_id"`
	ListTitle string `json:"list_title"`
	Account   string `json:"account"`
}

type runResponse struct {
	Status      string        `json:"status"`
	Mode        drift.Mode    `json:"mode,omitempty"`
	Saved       bool          `json:"saved"`
	Removals    []removalJSON `json:"removals,omitempty"`
	NewLists    []string      `json:"new_lists,omitempty"`
	FailedLists []string      `json:"failed_lists,omitempty"`
	Error       string        `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func (s *Server) handleRun(reset bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		outcome, err := s.Trigger(r.Context(), reset)
		if err != nil {
			code := http.StatusInternalServerError
			if errors.Is(err, mastodon.ErrAuth) {
				code = http.StatusBadGateway
			}
			writeJSON(w, code, runResponse{Status: "error", Error: err.Error()})
			return
		}

		res := runResponse{
			Status: "checked current status",
			Mode:   outcome.Mode,
			Saved:  outcome.Saved,
		}
		if outcome.Mode == drift.ModeReset {
			res.Status = "saved current status"
		}
		for _, removal := range outcome.Report.Removals() {
			res.Removals = append(res.Removals, removalJSON{
				ListID:    string(removal.ListID),
				ListTitle: removal.ListTitle,
				Account:   string(removal.Account),
			})
		}
		for _, notice := range outcome.Report.NewLists {
			res.NewLists = append(res.NewLists, string(notice.ID))
		}
		failed := make([]snapshot.ListID, 0, len(outcome.Failed))
		for id := range outcome.Failed {
			failed = append(failed, id)
		}
		snapshot.SortIDs(failed)
		for _, id := range failed {
			res.FailedLists = append(res.FailedLists, string(id))
		}

		writeJSON(w, http.StatusOK, res)
	}
}

// Handler returns the routes of the server:
//
//	GET /savecurrent   replace the baseline with the live state
//	GET|POST /check    compare the live state against the baseline
//	GET /healthz
//	GET /metrics       prometheus metrics
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /savecurrent", s.handleRun(true))
	mux.HandleFunc("GET /check", s.handleRun(false))
	mux.HandleFunc("POST /check", s.handleRun(false))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}

// Serve listens on port until ctx is done.
func (s *Server) Serve(ctx context.Context, port int) error {
	return serviceutil.StartHttpServer(ctx, port, s.Handler())
}
