// Package confloader provides configuration loading mechanism.
//
// This package implements a configuration loader that supports multiple
// sources and formats using koanf as the underlying library.
//
// Features:
//
//   - Multiple Sources: Files, environment variables, flag maps
//   - Multiple Formats: TOML and YAML, chosen by file extension
//   - Watch Support: Reload on config file changes
//   - Defaults: Load unmarshals over a pre-populated struct
//
// Priority (highest to lowest):
//
//  1. Command-line flags
//  2. Environment variables
//  3. Configuration files
//  4. Default values
package confloader
