// Package config provides server configuration for clipshare.
//
// This package defines the server configuration structure and validation:
//
//   - config.go: ServerConfig struct definition
//   - default.go: Default configuration values and platform directories
//   - verify.go: Range checks and data directory creation
//
// Configuration is loaded via internal/infra/confloader and supports
// multiple sources: files, environment variables, and flags.
package config
