// Package config loads ChainAgent runtime settings from a YAML file, a local
// .env file and CHAINAGENT_ prefixed environment variables, and builds the
// immutable credential set handed to signers at startup.
package config
