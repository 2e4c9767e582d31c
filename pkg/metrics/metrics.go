package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Converge metrics
	ApplyRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eznas_apply_runs_total",
			Help: "Total number of converge runs by result",
		},
		[]string{"result"},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eznas_stage_duration_seconds",
			Help:    "Converge stage duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	StageFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eznas_stage_failures_total",
			Help: "Total number of failed converge stages by stage name",
		},
		[]string{"stage"},
	)

	ServiceEnsuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eznas_service_ensures_total",
			Help: "Total number of service ensure passes by service and result",
		},
		[]string{"service", "result"},
	)

	// Client metrics
	ClientRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eznas_client_retries_total",
			Help: "Total number of retried service API requests",
		},
		[]string{"service"},
	)

	// Pipeline metrics
	PipelineItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eznas_pipeline_items_total",
			Help: "Total number of processed pipeline items by status",
		},
		[]string{"status"},
	)

	PipelinePassDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "eznas_pipeline_pass_duration_seconds",
			Help:    "Duration of one pipeline polling pass in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(ApplyRunsTotal)
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(StageFailuresTotal)
	prometheus.MustRegister(ServiceEnsuresTotal)
	prometheus.MustRegister(ClientRetriesTotal)
	prometheus.MustRegister(PipelineItemsTotal)
	prometheus.MustRegister(PipelinePassDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
