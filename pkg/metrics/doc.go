/*
Package metrics exposes Prometheus collectors for the record pipeline:
records emitted and stored, fetch outcomes, handler failures caught by the
dispatch boundary, and the per-entity live polling interval as it drifts
under cache adaptation and backoff. Serve publishes them on /metrics when a
listen address is configured.
*/
package metrics
