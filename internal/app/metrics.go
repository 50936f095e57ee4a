package app

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/markdave123-py/docchat/internal/core"
)

var _ core.Metrics = (*Metrics)(nil)

// Metrics records pipeline outcomes on a private registry served at /metrics.
type Metrics struct {
	registry *prometheus.Registry

	ingestions     *prometheus.CounterVec
	ingestDuration prometheus.Histogram
	ingestChunks   prometheus.Histogram
	answers        *prometheus.CounterVec
	answerDuration prometheus.Histogram
	modelCalls     *prometheus.CounterVec
	modelDuration  prometheus.Histogram
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ingestions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docchat",
			Name:      "ingestions_total",
			Help:      "Document ingestions by outcome.",
		}, []string{"outcome"}),
		ingestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docchat",
			Name:      "ingestion_duration_seconds",
			Help:      "Wall time of successful ingestions.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		ingestChunks: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docchat",
			Name:      "ingestion_chunks",
			Help:      "Chunks stored per ingested document.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docchat",
			Name:      "answers_total",
			Help:      "Answer requests by outcome.",
		}, []string{"outcome"}),
		answerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docchat",
			Name:      "answer_duration_seconds",
			Help:      "Wall time of answer requests.",
			Buckets:   prometheus.DefBuckets,
		}),
		modelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docchat",
			Name:      "model_calls_total",
			Help:      "Language model calls by result.",
		}, []string{"result"}),
		modelDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docchat",
			Name:      "model_call_duration_seconds",
			Help:      "Latency of language model calls.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ingestions, m.ingestDuration, m.ingestChunks,
		m.answers, m.answerDuration,
		m.modelCalls, m.modelDuration,
	)
	return m
}

func (m *Metrics) ObserveIngestion(outcome string, chunks int, took time.Duration) {
	m.ingestions.WithLabelValues(outcome).Inc()
	if outcome == core.OutcomeSuccess {
		m.ingestDuration.Observe(took.Seconds())
		m.ingestChunks.Observe(float64(chunks))
	}
}

func (m *Metrics) ObserveAnswer(outcome string, took time.Duration) {
	m.answers.WithLabelValues(outcome).Inc()
	m.answerDuration.Observe(took.Seconds())
}

func (m *Metrics) ObserveModelCall(took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.modelCalls.WithLabelValues(result).Inc()
	m.modelDuration.Observe(took.Seconds())
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
