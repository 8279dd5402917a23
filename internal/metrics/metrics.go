// Package metrics exposes the orchestrator's Prometheus collectors,
// grounded on the teacher's internal/metrics: the same
// register-once-then-package-level-helper shape, generalized from
// per-process counters to the app lifecycle's own events (state
// transitions, tunnel outcomes, script step outcomes).
package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	regOK atomic.Bool

	appInstalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orchestrator",
			Subsystem: "app",
			Name:      "installs_total",
			Help:      "Number of completed app installs, by outcome.",
		}, []string{"appId", "outcome"},
	)
	appStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orchestrator",
			Subsystem: "app",
			Name:      "starts_total",
			Help:      "Number of app starts, by outcome.",
		}, []string{"appId", "outcome"},
	)
	appStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orchestrator",
			Subsystem: "app",
			Name:      "stops_total",
			Help:      "Number of app stops.",
		}, []string{"appId"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orchestrator",
			Subsystem: "app",
			Name:      "state_transitions_total",
			Help:      "Number of Lifecycle Manager state transitions.",
		}, []string{"appId", "from", "to"},
	)
	currentStates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "orchestrator",
			Subsystem: "app",
			Name:      "current_state",
			Help:      "Current app state (1 = active, 0 = inactive).",
		}, []string{"appId", "state"},
	)

	tunnelOpens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orchestrator",
			Subsystem: "tunnel",
			Name:      "opens_total",
			Help:      "Number of tunnels successfully opened, by provider.",
		}, []string{"provider"},
	)
	tunnelFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orchestrator",
			Subsystem: "tunnel",
			Name:      "failures_total",
			Help:      "Number of tunnel open or probe failures, by provider.",
		}, []string{"provider"},
	)

	scriptStepOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orchestrator",
			Subsystem: "script",
			Name:      "step_outcomes_total",
			Help:      "Number of script step executions, by step kind and outcome.",
		}, []string{"kind", "outcome"},
	)
)

// Register registers every collector with r. Safe to call more than
// once; subsequent successful calls are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	if r == nil {
		r = prometheus.DefaultRegisterer
	}
	cs := []prometheus.Collector{
		appInstalls, appStarts, appStops, stateTransitions, currentStates,
		tunnelOpens, tunnelFailures, scriptStepOutcomes,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
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

// Handler serves Prometheus metrics from the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

func IncInstall(appID, outcome string) {
	if regOK.Load() {
		appInstalls.WithLabelValues(appID, outcome).Inc()
	}
}

func IncStart(appID, outcome string) {
	if regOK.Load() {
		appStarts.WithLabelValues(appID, outcome).Inc()
	}
}

func IncStop(appID string) {
	if regOK.Load() {
		appStops.WithLabelValues(appID).Inc()
	}
}

func RecordStateTransition(appID, from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(appID, from, to).Inc()
	}
}

func SetCurrentState(appID, state string, active bool) {
	if regOK.Load() {
		var value float64
		if active {
			value = 1
		}
		currentStates.WithLabelValues(appID, state).Set(value)
	}
}

func IncTunnelOpen(provider string) {
	if regOK.Load() {
		tunnelOpens.WithLabelValues(provider).Inc()
	}
}

func IncTunnelFailure(provider string) {
	if regOK.Load() {
		tunnelFailures.WithLabelValues(provider).Inc()
	}
}

func IncScriptStepOutcome(kind, outcome string) {
	if regOK.Load() {
		scriptStepOutcomes.WithLabelValues(kind, outcome).Inc()
	}
}
