// Package api exposes the HTTP interface: synchronous tool invocation,
// asynchronous tasks, submission history, health snapshots and metrics.
package api
