// Package config loads Ember's server configuration from YAML or TOML.
package config
