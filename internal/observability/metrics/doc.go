// Package metrics exposes Prometheus metrics for the HTTP surface and the
// submission engines.
package metrics
