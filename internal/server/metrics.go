package server

import (
	"github.com/leoncowle/mastodon-misc/internal/drift"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	runs        *prometheus.CounterVec
	removals    prometheus.Counter
	newLists    prometheus.Counter
	fetchErrors prometheus.Counter
	lastSuccess prometheus.Gauge
}

func newMetrics(registerer prometheus.Registerer) *metrics {
	m := &metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "listdrift",
			Name:      "runs_total",
			Help:      "Runs by mode and result",
		}, []string{"mode", "result"}),
		removals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "listdrift",
			Name:      "removals_total",
			Help:      "Accounts found missing from their list",
		}),
		newLists: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "listdrift",
			Name:      "new_lists_total",
			Help:      "Lists found without a baseline",
		}),
		fetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "listdrift",
			Name:      "fetch_errors_total",
			Help:      "Lists that could not be fetched",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "listdrift",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that completed",
		}),
	}
	registerer.MustRegister(m.runs, m.removals, m.newLists, m.fetchErrors, m.lastSuccess)
	return m
}

func (m *metrics) observe(reset bool, outcome drift.Outcome, err error) {
	mode := string(drift.ModeCompare)
	if reset {
		mode = string(drift.ModeReset)
	}
	if outcome.Mode != "" {
		mode = string(outcome.Mode)
	}

	if err != nil {
		m.runs.WithLabelValues(mode, "error").Inc()
		return
	}
	m.runs.WithLabelValues(mode, "ok").Inc()
	m.removals.Add(float64(len(outcome.Report.Removals())))
	m.newLists.Add(float64(len(outcome.Report.NewLists)))
	m.fetchErrors.Add(float64(len(outcome.Failed)))
	m.lastSuccess.SetToCurrentTime()
}
