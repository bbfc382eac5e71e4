// Package metrics exposes the engine's prometheus instruments. Instruments
// are registered once on the default registerer and shared via singletons.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics captures distribution-engine health signals: push outcomes,
// pulled reservations, parity violations, and overbooking corrections.
type EngineMetrics struct {
	syncCells           *prometheus.CounterVec
	syncDuration        *prometheus.HistogramVec
	pulledReservations  *prometheus.CounterVec
	parityChecks        *prometheus.CounterVec
	parityViolations    *prometheus.CounterVec
	overbookingRuns     *prometheus.CounterVec
	overbookingAdjusted prometheus.Counter
}

var (
	engineMetricsOnce sync.Once
	engineMetrics     *EngineMetrics
)

// Engine returns the singleton engine metrics registry.
func Engine() *EngineMetrics {
	engineMetricsOnce.Do(func() {
		engineMetrics = newEngineMetrics(prometheus.DefaultRegisterer)
	})
	return engineMetrics
}

func newEngineMetrics(registerer prometheus.Registerer) *EngineMetrics {
	m := &EngineMetrics{
		syncCells: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "channelsync_push_cells_total",
			Help: "Push cells attempted, by channel category and outcome.",
		}, []string{"category", "outcome"}),
		syncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "channelsync_push_duration_seconds",
			Help:    "Duration of a full channel push.",
			Buckets: prometheus.DefBuckets,
		}, []string{"category"}),
		pulledReservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "channelsync_pulled_reservations_total",
			Help: "Reservations pulled from channels, by category and outcome.",
		}, []string{"category", "outcome"}),
		parityChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "channelsync_parity_checks_total",
			Help: "Parity cells checked, by category.",
		}, []string{"category"}),
		parityViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "channelsync_parity_violations_total",
			Help: "Parity violations detected, by category and direction.",
		}, []string{"category", "direction"}),
		overbookingRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "channelsync_overbooking_runs_total",
			Help: "Overbooking guard runs, by outcome.",
		}, []string{"outcome"}),
		overbookingAdjusted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "channelsync_overbooking_rooms_adjusted_total",
			Help: "Rooms removed from pending channel allocations by the guard.",
		}),
	}

	for _, collector := range []prometheus.Collector{
		m.syncCells,
		m.syncDuration,
		m.pulledReservations,
		m.parityChecks,
		m.parityViolations,
		m.overbookingRuns,
		m.overbookingAdjusted,
	} {
		if err := registerer.Register(collector); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				_ = already
				continue
			}
		}
	}
	return m
}

func (m *EngineMetrics) IncSyncCell(category, outcome string) {
	m.syncCells.WithLabelValues(category, outcome).Inc()
}

func (m *EngineMetrics) ObservePushDuration(category string, d time.Duration) {
	m.syncDuration.WithLabelValues(category).Observe(d.Seconds())
}

func (m *EngineMetrics) IncPulledReservation(category, outcome string) {
	m.pulledReservations.WithLabelValues(category, outcome).Inc()
}

func (m *EngineMetrics) IncParityCheck(category string) {
	m.parityChecks.WithLabelValues(category).Inc()
}

func (m *EngineMetrics) IncParityViolation(category, direction string) {
	m.parityViolations.WithLabelValues(category, direction).Inc()
}

func (m *EngineMetrics) IncOverbookingRun(outcome string) {
	m.overbookingRuns.WithLabelValues(outcome).Inc()
}

func (m *EngineMetrics) AddOverbookingAdjusted(rooms int) {
	if rooms > 0 {
		m.overbookingAdjusted.Add(float64(rooms))
	}
}
