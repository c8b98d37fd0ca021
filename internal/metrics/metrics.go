package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	processCreates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dispatchr",
			Subsystem: "registry",
			Name:      "creates_total",
			Help:      "Number of process records created.",
		},
	)
	processDeletes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dispatchr",
			Subsystem: "registry",
			Name:      "deletes_total",
			Help:      "Number of process records purged.",
		},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dispatchr",
			Subsystem: "registry",
			Name:      "transitions_total",
			Help:      "Number of applied state transitions.",
		}, []string{"from", "to"},
	)
	illegalTransitions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dispatchr",
			Subsystem: "registry",
			Name:      "illegal_transitions_total",
			Help:      "Number of rejected state transitions.",
		},
	)
	assignments = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dispatchr",
			Subsystem: "dispatcher",
			Name:      "assigns_total",
			Help:      "Number of processes handed to supervisors.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{processCreates, processDeletes, stateTransitions, illegalTransitions, assignments}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncCreate() {
	if regOK.Load() {
		processCreates.Inc()
	}
}

func IncDelete() {
	if regOK.Load() {
		processDeletes.Inc()
	}
}

func RecordStateTransition(from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(from, to).Inc()
	}
}

func IncIllegalTransition() {
	if regOK.Load() {
		illegalTransitions.Inc()
	}
}

func IncAssign() {
	if regOK.Load() {
		assignments.Inc()
	}
}
