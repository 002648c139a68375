// Package agent dispatches tool invocations by name. Every invocation is
// bounded by a tool timeout and recorded in the submission repository,
// whether the transaction was accepted by the node or not.
package agent
