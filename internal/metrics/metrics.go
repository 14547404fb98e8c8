// Package metrics 定义对话流水线的 Prometheus 指标。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "loob"

// Metrics 汇总流水线指标，nil 的 *Metrics 不记录任何数据。
type Metrics struct {
	turnsSaved        *prometheus.CounterVec
	turnsDuplicate    prometheus.Counter
	analyses          *prometheus.CounterVec
	broadcasts        *prometheus.CounterVec
	fragments         prometheus.Counter
	completions       *prometheus.CounterVec
	retrievalDuration prometheus.Histogram
}

// New 创建指标并注册到 reg。
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		turnsSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_saved_total",
			Help:      "Conversation turns written to the message store, by role.",
		}, []string{"role"}),
		turnsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_duplicate_total",
			Help:      "Save calls skipped because the (session, content) pair already exists.",
		}),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Analysis extraction attempts on completions, by result (found, none).",
		}, []string{"result"}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Analysis events published, by backend and result (ok, failed).",
		}, []string{"backend", "result"}),
		fragments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_fragments_total",
			Help:      "Completion fragments relayed to callers.",
		}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Completion streams, by result (ok, failed, partial).",
		}, []string{"result"}),
		retrievalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Embedding plus vector query latency.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.turnsSaved,
			m.turnsDuplicate,
			m.analyses,
			m.broadcasts,
			m.fragments,
			m.completions,
			m.retrievalDuration,
		)
	}
	return m
}

func (m *Metrics) TurnSaved(role string) {
	if m == nil {
		return
	}
	m.turnsSaved.WithLabelValues(role).Inc()
}

func (m *Metrics) TurnDuplicate() {
	if m == nil {
		return
	}
	m.turnsDuplicate.Inc()
}

func (m *Metrics) Analysis(found bool) {
	if m == nil {
		return
	}
	result := "none"
	if found {
		result = "found"
	}
	m.analyses.WithLabelValues(result).Inc()
}

func (m *Metrics) Broadcast(backend string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.broadcasts.WithLabelValues(backend, result).Inc()
}

func (m *Metrics) Fragment() {
	if m == nil {
		return
	}
	m.fragments.Inc()
}

func (m *Metrics) Completion(result string) {
	if m == nil {
		return
	}
	m.completions.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveRetrieval(d time.Duration) {
	if m == nil {
		return
	}
	m.retrievalDuration.Observe(d.Seconds())
}
