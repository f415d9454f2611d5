package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	TasksSubmitted   = prometheus.NewCounter(prometheus.CounterOpts{Name: "images_tasks_submitted_total", Help: "Tasks accepted via intake"})
	TasksSucceeded   = prometheus.NewCounter(prometheus.CounterOpts{Name: "images_tasks_succeeded_total", Help: "Tasks that reached success"})
	TasksFailed      = prometheus.NewCounter(prometheus.CounterOpts{Name: "images_tasks_failed_total", Help: "Tasks that reached failed"})
	FetchRetries     = prometheus.NewCounter(prometheus.CounterOpts{Name: "images_fetch_retries_total", Help: "Download attempts beyond the first"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "images_rate_limit_rejects_total", Help: "Intake requests rejected by rate limiter"})
	PendingGauge     = prometheus.NewGauge(prometheus.GaugeOpts{Name: "images_tasks_pending_batch", Help: "Pending tasks claimed by the last poll"})
	InFlightGauge    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "images_tasks_inflight", Help: "Tasks currently executing"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			TasksSubmitted,
			TasksSucceeded,
			TasksFailed,
			FetchRetries,
			RateLimitRejects,
			PendingGauge,
			InFlightGauge,
		)
	})
	return promhttp.Handler()
}
