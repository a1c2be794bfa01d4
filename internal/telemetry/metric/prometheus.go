package metric

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every clipshare metric.
const Namespace = "clipshare"

// Delivery and announcement results.
const (
	ResultOK      = "ok"
	ResultFailed  = "failed"
	ResultDropped = "dropped"
)

// Registry holds all application metrics.
type Registry struct {
	reg *prometheus.Registry

	// HTTP metrics
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	// Peer channel metrics
	peersConnected prometheus.Gauge
	peerDeliveries *prometheus.CounterVec

	// Discovery metrics
	announcements *prometheus.CounterVec
}

// NewRegistry creates a registry with Go runtime and process collectors
// plus the clipshare server metrics.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		reg: reg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		peersConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "peers",
			Name:      "connected",
			Help:      "Live peer channels",
		}),
		peerDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "peers",
			Name:      "deliveries_total",
			Help:      "Fan-out delivery attempts by result",
		}, []string{"result"}),
		announcements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "discovery",
			Name:      "announcements_total",
			Help:      "Discovery datagrams sent by result",
		}, []string{"result"}),
	}

	reg.MustRegister(
		r.requestsTotal,
		r.requestDuration,
		r.peersConnected,
		r.peerDeliveries,
		r.announcements,
	)
	return r
}

// Registerer exposes the underlying registry for components that own their
// own collectors, such as the storage engine.
func (r *Registry) Registerer() prometheus.Registerer {
	return r.reg
}

// Gatherer exposes the underlying registry for tests and exposition.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// ObserveHTTP records a completed request.
func (r *Registry) ObserveHTTP(method, route string, status int, d time.Duration) {
	if r == nil {
		return
	}
	r.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.requestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// SetPeers records the number of live peer channels.
func (r *Registry) SetPeers(n int) {
	if r == nil {
		return
	}
	r.peersConnected.Set(float64(n))
}

// ObservePeerDelivery counts one fan-out attempt.
func (r *Registry) ObservePeerDelivery(result string) {
	if r == nil {
		return
	}
	r.peerDeliveries.WithLabelValues(result).Inc()
}

// ObserveAnnouncement counts one discovery datagram.
func (r *Registry) ObserveAnnouncement(result string) {
	if r == nil {
		return
	}
	r.announcements.WithLabelValues(result).Inc()
}
