/*
Package metrics provides Prometheus metrics collection and exposition.

The package registers all eznas metrics with the default Prometheus
registry at init time and exposes them through Handler(). The pipeline
worker serves the handler alongside a small JSON health endpoint backed
by the component registry in this package.

# Metric Inventory

Converge:
  - eznas_apply_runs_total{result}: converge runs by outcome
  - eznas_stage_duration_seconds{stage}: per-stage latency
  - eznas_stage_failures_total{stage}: failed stages
  - eznas_service_ensures_total{service,result}: ensure passes

Clients:
  - eznas_client_retries_total{service}: retried service API requests

Pipeline:
  - eznas_pipeline_items_total{status}: processed items by ledger status
  - eznas_pipeline_pass_duration_seconds: polling pass latency

# Usage

Timing a stage:

	timer := metrics.NewTimer()
	runStage()
	timer.ObserveDurationVec(metrics.StageDuration, "render")

Serving metrics from the pipeline worker:

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
*/
package metrics
