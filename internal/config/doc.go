// Package config loads gateway configuration from environment variables.
// Serve-command flags may override individual fields after loading.
package config
