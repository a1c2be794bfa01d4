// Package connection provides the HTTP/HTTPS client the CLI uses to talk
// to a clipshare server.
//
// Servers generate self-signed certificates, so callers either pin the
// server certificate with a CA file or skip verification explicitly.
package connection
