package orchestrator

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/codeshot/internal/runtime/envelope"
)

// Request outcomes used as the "outcome" label.
const (
	OutcomeResolved    = "resolved"
	OutcomeTimeout     = "timeout"
	OutcomeCanceled    = "canceled"
	OutcomeUnavailable = "unavailable"
)

// Metrics tracks request statistics in memory and, once registered, in
// Prometheus. A nil *Metrics records nothing.
type Metrics struct {
	mu    sync.RWMutex
	types map[envelope.MessageType]*TypeMetrics

	requestsTotal *prometheus.CounterVec
	sendsTotal    *prometheus.CounterVec
	duration      *prometheus.HistogramVec

	registerer prometheus.Registerer
	registered bool
}

// TypeMetrics holds the counters of one message type.
type TypeMetrics struct {
	Resolved      uint64        `json:"resolved"`
	TimedOut      uint64        `json:"timed_out"`
	Canceled      uint64        `json:"canceled"`
	Unavailable   uint64        `json:"unavailable"`
	Sends         uint64        `json:"sends"`
	LastDuration  time.Duration `json:"last_duration"`
	LastUpdatedAt time.Time     `json:"last_updated_at"`
}

// MetricsSnapshot is a point-in-time copy of the in-memory counters.
type MetricsSnapshot struct {
	Types       map[envelope.MessageType]TypeMetrics `json:"types"`
	CollectedAt time.Time                            `json:"collected_at"`
}

func newCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codeshot",
			Subsystem: "request",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// NewMetrics creates request metrics. A nil registerer means the Prometheus
// default registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Metrics{
		types:         make(map[envelope.MessageType]*TypeMetrics),
		registerer:    registerer,
		requestsTotal: newCounterVec("requests_total", "Requests by message type and outcome", []string{"type", "outcome"}),
		sendsTotal:    newCounterVec("sends_total", "Envelopes sent on behalf of requests, resends included", []string{"type"}),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "codeshot",
				Subsystem: "request",
				Name:      "duration_seconds",
				Help:      "Time from first send until a request settled",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"type"},
		),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
// When another Metrics already registered them, its collectors are adopted so
// every instance feeds the same series.
func (m *Metrics) Register() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registered {
		return nil
	}

	requests, err := registerCollector(m.registerer, m.requestsTotal)
	if err != nil {
		return err
	}
	sends, err := registerCollector(m.registerer, m.sendsTotal)
	if err != nil {
		return err
	}
	duration, err := registerCollector(m.registerer, m.duration)
	if err != nil {
		return err
	}
	m.requestsTotal, m.sendsTotal, m.duration = requests, sends, duration
	m.registered = true
	return nil
}

func registerCollector[C prometheus.Collector](registerer prometheus.Registerer, c C) (C, error) {
	err := registerer.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, err
}

func (m *Metrics) typeMetrics(t envelope.MessageType) *TypeMetrics {
	tm, ok := m.types[t]
	if !ok {
		tm = &TypeMetrics{}
		m.types[t] = tm
	}
	return tm
}

func (m *Metrics) recordSend(t envelope.MessageType) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.typeMetrics(t).Sends++
	sends := m.sendsTotal
	m.mu.Unlock()
	sends.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) recordOutcome(t envelope.MessageType, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	tm := m.typeMetrics(t)
	switch outcome {
	case OutcomeResolved:
		tm.Resolved++
	case OutcomeTimeout:
		tm.TimedOut++
	case OutcomeCanceled:
		tm.Canceled++
	case OutcomeUnavailable:
		tm.Unavailable++
	}
	tm.LastDuration = elapsed
	tm.LastUpdatedAt = time.Now()
	requests, duration := m.requestsTotal, m.duration
	m.mu.Unlock()

	requests.WithLabelValues(string(t), outcome).Inc()
	if outcome != OutcomeUnavailable {
		duration.WithLabelValues(string(t)).Observe(elapsed.Seconds())
	}
}

// Snapshot copies the in-memory counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Types: map[envelope.MessageType]TypeMetrics{}, CollectedAt: time.Now()}
	if m == nil {
		return snap
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for t, tm := range m.types {
		snap.Types[t] = *tm
	}
	return snap
}
