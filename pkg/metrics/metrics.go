package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Record flow metrics
	RecordsEmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedwatch_records_emitted_total",
			Help: "Total number of records emitted by actor and entity",
		},
		[]string{"actor", "entity"},
	)

	RecordsStoredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedwatch_records_stored_total",
			Help: "Total number of record rows written to the store by feed",
		},
		[]string{"feed"},
	)

	// Fetch metrics
	FetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedwatch_fetches_total",
			Help: "Total number of fetch attempts by actor and result (ok, not_modified, error)",
		},
		[]string{"actor", "result"},
	)

	// Per-entity live polling interval, drifts under adaptation and backoff
	UpdateInterval = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "feedwatch_update_interval_seconds",
			Help: "Current polling interval by actor and entity",
		},
		[]string{"actor", "entity"},
	)

	// Handler failures caught by the dispatch boundary
	HandlerErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedwatch_handler_errors_total",
			Help: "Total number of handler errors caught by the dispatch boundary",
		},
		[]string{"actor"},
	)
)

func init() {
	prometheus.MustRegister(
		RecordsEmittedTotal,
		RecordsStoredTotal,
		FetchesTotal,
		UpdateInterval,
		HandlerErrorsTotal,
	)
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve starts the metrics endpoint on addr. Blocks; intended to run on its
// own goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return server.ListenAndServe()
}
