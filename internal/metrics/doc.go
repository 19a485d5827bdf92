// Package metrics records cache and build observations.
//
// Callers depend on the [Recorder] interface; [NoopRecorder] is the default
// when metrics are not configured. [PrometheusRecorder] keeps the values in
// a private registry that is written out as a node-exporter textfile at the
// end of a run, since a one-shot CLI has no scrape endpoint.
package metrics
