// Package tlscert provides TLS certificate management for clipshare.
//
// This package handles the server's self-signed certificate:
//
//   - cert.go: Generate cert.pem and key.pem on first start
//   - watcher.go: Certificate hot-reload via fsnotify
//   - roots.go: Client trust pools for pinning a server certificate
package tlscert
