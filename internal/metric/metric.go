package metric

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "adreport"

// Metrics holds the pipeline collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Pipeline metrics
	PipelineRuns     *prometheus.CounterVec
	RowsDropped      *prometheus.CounterVec
	PipelineDuration *prometheus.HistogramVec

	// Rate metrics
	RateRefreshes *prometheus.CounterVec

	// API metrics
	RequestsProcessed *prometheus.CounterVec
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	m := &Metrics{registry: registry}

	m.PipelineRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pipeline_runs_total",
		Help:      "Total number of pipeline runs by network and outcome",
	}, []string{"network", "outcome"})

	m.RowsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rows_dropped_total",
		Help:      "Total number of report rows dropped by validation check",
	}, []string{"check"})

	m.PipelineDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "pipeline_duration_seconds",
		Help:      "Time spent in each pipeline stage",
		Buckets:   prometheus.DefBuckets,
	}, []string{"stage"})

	m.RateRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_refresh_total",
		Help:      "Total number of exchange rate refresh attempts by currency and result",
	}, []string{"currency", "result"})

	m.RequestsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "api_requests_processed_total",
		Help:      "Total number of API requests processed",
	}, []string{"method", "status"})

	for _, collector := range []prometheus.Collector{
		m.PipelineRuns,
		m.RowsDropped,
		m.PipelineDuration,
		m.RateRefreshes,
		m.RequestsProcessed,
	} {
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Metrics) RunFinished(network, outcome string) {
	if m == nil {
		return
	}
	m.PipelineRuns.WithLabelValues(network, outcome).Inc()
}

func (m *Metrics) Dropped(check string, rows int) {
	if m == nil || rows <= 0 {
		return
	}
	m.RowsDropped.WithLabelValues(check).Add(float64(rows))
}

func (m *Metrics) ObserveStage(stage string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.PipelineDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func (m *Metrics) RateRefreshed(currency, result string) {
	if m == nil {
		return
	}
	m.RateRefreshes.WithLabelValues(currency, result).Inc()
}

func (m *Metrics) RequestProcessed(method string, status int) {
	if m == nil {
		return
	}
	m.RequestsProcessed.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// GetGatherer returns the gatherer for metrics export.
func (m *Metrics) GetGatherer() prometheus.Gatherer {
	if m == nil || m.registry == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.GetGatherer(), promhttp.HandlerOpts{})
}
