// Package metric provides Prometheus metrics for clipshare.
//
//   - prometheus.go: the registry, server-wide metrics and the /metrics handler
//   - collector.go: scrape-time collectors for build and uptime information
//
// Every Observe/Set method is safe on a nil *Registry so that components
// can run without metrics in tests.
package metric
