// Package bootstrap assembles the long-lived components shared by the daemon
// and the CLI: chain clients, signers, engines, tools, and the storage and
// queue backends selected in configuration.
package bootstrap
