// Package slo implements the Runtime-Class SLO Monitor (spec.md §4.9):
// per-class (R1/W1/C1) streaming summaries of observed ticks, latency,
// park rate, and escalation rate, exported as Prometheus metrics and
// readable back out as a point-in-time snapshot for the inspection API.
//
// The promauto-registered HistogramVec/CounterVec/GaugeVec shape is
// grounded on the teacher's internal/escrow/metrics.go Metrics struct,
// generalized from escrow-specific metric names (entropy score, tax
// levied) to the runtime-class metrics this spec calls for.
package slo

import (
	"sync"
	"sync/atomic"

	"github.com/eightbeat/reconciler/internal/receipt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Monitor tracks per-runtime-class streaming summaries.
type Monitor struct {
	observedTicks  *prometheus.HistogramVec
	latencySeconds *prometheus.HistogramVec
	parkRate       *prometheus.GaugeVec
	escalationRate prometheus.Gauge
	admissions     *prometheus.CounterVec

	mu      sync.RWMutex
	byClass map[receipt.RuntimeClass]*classSnapshot
}

type classSnapshot struct {
	admitted      atomic.Uint64
	parked        atomic.Uint64
	tickSum       atomic.Uint64
	tickCount     atomic.Uint64
	tickP99Approx atomic.Uint64 // running max, a conservative stand-in for p99 in the read-only snapshot
}

// New builds a Monitor and registers its metrics against reg. Pass
// prometheus.DefaultRegisterer in production, or prometheus.NewRegistry()
// in tests so repeated construction doesn't panic on duplicate
// registration.
func New(reg prometheus.Registerer) *Monitor {
	factory := promauto.With(reg)
	m := &Monitor{
		observedTicks: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reconciler_observed_ticks",
			Help:    "Actual ticks consumed per fiber invocation, by runtime class",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8, 16, 32, 64},
		}, []string{"class"}),
		latencySeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reconciler_fiber_latency_seconds",
			Help:    "Wall-clock latency of fiber invocations, by runtime class",
			Buckets: prometheus.DefBuckets,
		}, []string{"class"}),
		parkRate: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "reconciler_park_rate",
			Help: "Rolling park rate, by runtime class",
		}, []string{"class"}),
		escalationRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "reconciler_c1_escalation_rate",
			Help: "Fraction of tracked predicates currently escalated to C1",
		}),
		admissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reconciler_admissions_total",
			Help: "Total admission attempts, by runtime class and outcome",
		}, []string{"class", "outcome"}),
		byClass: make(map[receipt.RuntimeClass]*classSnapshot),
	}
	return m
}

func (m *Monitor) snapshotFor(class receipt.RuntimeClass) *classSnapshot {
	m.mu.RLock()
	s, ok := m.byClass[class]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok = m.byClass[class]; ok {
		return s
	}
	s = &classSnapshot{}
	m.byClass[class] = s
	return s
}

// ObserveTick records one fiber invocation's actual tick count and
// wall-clock latency for class.
func (m *Monitor) ObserveTick(class receipt.RuntimeClass, ticks uint32, latencySeconds float64) {
	label := class.String()
	m.observedTicks.WithLabelValues(label).Observe(float64(ticks))
	m.latencySeconds.WithLabelValues(label).Observe(latencySeconds)

	s := m.snapshotFor(class)
	s.tickSum.Add(uint64(ticks))
	s.tickCount.Add(1)
	for {
		cur := s.tickP99Approx.Load()
		if uint64(ticks) <= cur {
			break
		}
		if s.tickP99Approx.CompareAndSwap(cur, uint64(ticks)) {
			break
		}
	}
}

// RecordAdmission records one admission attempt's outcome ("admitted",
// "parked", "rejected") for class.
func (m *Monitor) RecordAdmission(class receipt.RuntimeClass, outcome string) {
	m.admissions.WithLabelValues(class.String(), outcome).Inc()

	s := m.snapshotFor(class)
	s.admitted.Add(1)
	if outcome == "parked" {
		s.parked.Add(1)
	}
}

// SetParkRate publishes the admission gate's rolling park rate for class.
func (m *Monitor) SetParkRate(class receipt.RuntimeClass, rate float64) {
	m.parkRate.WithLabelValues(class.String()).Set(rate)
}

// SetEscalationRate publishes the fraction of tracked predicates
// currently escalated to C1.
func (m *Monitor) SetEscalationRate(rate float64) {
	m.escalationRate.Set(rate)
}

// Snapshot is a read-only point-in-time summary for one runtime class,
// served by the inspection API's GET /snapshot/slo/{class} endpoint.
type Snapshot struct {
	Class        string  `json:"class"`
	Admitted     uint64  `json:"admitted"`
	Parked       uint64  `json:"parked"`
	ParkRate     float64 `json:"park_rate"`
	MeanTicks    float64 `json:"mean_ticks"`
	MaxTicksSeen uint64  `json:"max_ticks_seen"`
}

// SnapshotFor returns the current summary for class.
func (m *Monitor) SnapshotFor(class receipt.RuntimeClass) Snapshot {
	s := m.snapshotFor(class)
	admitted := s.admitted.Load()
	parked := s.parked.Load()
	count := s.tickCount.Load()

	var meanTicks, parkRate float64
	if count > 0 {
		meanTicks = float64(s.tickSum.Load()) / float64(count)
	}
	if admitted > 0 {
		parkRate = float64(parked) / float64(admitted)
	}

	return Snapshot{
		Class:        class.String(),
		Admitted:     admitted,
		Parked:       parked,
		ParkRate:     parkRate,
		MeanTicks:    meanTicks,
		MaxTicksSeen: s.tickP99Approx.Load(),
	}
}

// SnapshotAll returns summaries for all three runtime classes.
func (m *Monitor) SnapshotAll() []Snapshot {
	classes := []receipt.RuntimeClass{receipt.ClassR1, receipt.ClassW1, receipt.ClassC1}
	out := make([]Snapshot, len(classes))
	for i, c := range classes {
		out[i] = m.SnapshotFor(c)
	}
	return out
}
