// Package config defines the configuration of a Chaos swarm.
//
// Regardless of how Chaos is started, directly from Go code or as a standalone
// process from the command line, it uses the Config object defined in this
// package to store and forward configuration options. The protocol constants
// (Params) must be identical on every node of a swarm, otherwise packets are
// mutually unintelligible. On top of these options, Chaos relies on a data
// directory, defined by Config.DataDir, where it looks for an optional
// configuration file (chaos.toml, chaos.yaml or chaos.json) and keeps the
// Badger round history when Store is set.
package config
