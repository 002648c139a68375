// Package tools exposes the chain operations as named tools with loosely typed
// input, the shape an agent loop or HTTP caller hands over. Each tool parses
// its input once into a typed intent and delegates to an engine.
package tools
