// Package httpserver provides the HTTP/HTTPS server for clipshare.
//
// This package implements the external API using stdlib net/http:
//
//   - Entry endpoints: /api/entries, /api/entries/{id}
//   - Peer channels: /ws (WebSocket)
//   - Operational endpoints: /health, /metrics
//   - Static UI: /, /static/
//
// Features:
//
//   - TLS with certificate hot reload
//   - Middleware chain: Recover, RequestID, Audit, RateLimit, BodyLimit, Instrument
//   - Graceful shutdown under the caller's deadline
package httpserver
