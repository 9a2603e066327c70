// Package config loads, normalizes, and validates docpipe configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// DOCPIPE_API_KEY. The Config type centralizes every knob the CLI and the
// server need: output and ledger locations, generator credentials, per-stage
// model choices, and the retry schedule shared by both retry layers.
//
// A loaded Config is treated as immutable. Callers derive the narrower
// settings values other packages accept (generator client options, driver
// settings) once at startup and pass them explicitly.
package config
