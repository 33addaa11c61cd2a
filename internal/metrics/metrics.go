package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/skalibog/patternscope/pkg/models"
)

// Этапы конвейера для счетчика ошибок
const (
	StageFetch   = "fetch"
	StageEngine  = "engine"
	StageStorage = "storage"
	StageStats   = "stats"
	StageCache   = "cache"
	StagePredict = "predict"
)

// Metrics метрики анализа
type Metrics struct {
	registry *prometheus.Registry

	runs             *prometheus.CounterVec
	failures         *prometheus.CounterVec
	patterns         *prometheus.CounterVec
	duration         *prometheus.HistogramVec
	confidence       *prometheus.GaugeVec
	patternScore     *prometheus.GaugeVec
	momentumVelocity *prometheus.GaugeVec
}

// New создает метрики в собственном реестре
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "patternscope",
				Subsystem: "analysis",
				Name:      "runs_total",
				Help:      "Completed analysis runs by symbol",
			},
			[]string{"symbol"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "patternscope",
				Subsystem: "analysis",
				Name:      "failures_total",
				Help:      "Failures by pipeline stage",
			},
			[]string{"stage"},
		),
		patterns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "patternscope",
				Subsystem: "patterns",
				Name:      "detected_total",
				Help:      "Detected patterns by name",
			},
			[]string{"symbol", "pattern"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "patternscope",
				Subsystem: "analysis",
				Name:      "duration_seconds",
				Help:      "Duration of a full analysis run",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"symbol"},
		),
		confidence: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "patternscope",
				Subsystem: "analysis",
				Name:      "mathematical_confidence",
				Help:      "Mathematical confidence of the latest report",
			},
			[]string{"symbol"},
		),
		patternScore: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "patternscope",
				Subsystem: "analysis",
				Name:      "pattern_recognition_score",
				Help:      "Pattern recognition score of the latest report",
			},
			[]string{"symbol"},
		),
		momentumVelocity: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "patternscope",
				Subsystem: "momentum",
				Name:      "velocity",
				Help:      "Momentum velocity of the latest report",
			},
			[]string{"symbol"},
		),
	}

	m.registry.MustRegister(
		m.runs, m.failures, m.patterns, m.duration,
		m.confidence, m.patternScore, m.momentumVelocity,
	)
	return m
}

// ObserveReport учитывает успешный прогон
func (m *Metrics) ObserveReport(report *models.Report, elapsed time.Duration) {
	m.runs.WithLabelValues(report.Symbol).Inc()
	m.duration.WithLabelValues(report.Symbol).Observe(elapsed.Seconds())
	m.confidence.WithLabelValues(report.Symbol).Set(report.Quality.MathematicalConfidence)
	m.patternScore.WithLabelValues(report.Symbol).Set(report.Quality.PatternRecognitionScore)
	m.momentumVelocity.WithLabelValues(report.Symbol).Set(report.Physics.MomentumVelocity)

	for _, p := range report.DetectedPatterns {
		m.patterns.WithLabelValues(report.Symbol, p.PatternName).Inc()
	}
}

// Failure учитывает ошибку этапа
func (m *Metrics) Failure(stage string) {
	m.failures.WithLabelValues(stage).Inc()
}

// Registry возвращает реестр метрик
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler возвращает HTTP-обработчик для экспорта метрик
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
