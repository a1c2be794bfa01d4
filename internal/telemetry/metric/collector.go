package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector reports build information and process uptime at scrape time.
type Collector struct {
	buildInfo *prometheus.Desc
	uptime    *prometheus.Desc

	version   string
	commit    string
	goVersion string
	started   time.Time
}

// NewCollector creates a collector for the given build.
func NewCollector(version, commit, goVersion string) *Collector {
	return &Collector{
		buildInfo: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "", "build_info"),
			"Build information; value is always 1",
			[]string{"version", "commit", "go_version"}, nil,
		),
		uptime: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "", "uptime_seconds"),
			"Seconds since the server started",
			nil, nil,
		),
		version:   version,
		commit:    commit,
		goVersion: goVersion,
		started:   time.Now(),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.buildInfo
	ch <- c.uptime
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.buildInfo, prometheus.GaugeValue, 1, c.version, c.commit, c.goVersion)
	ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, time.Since(c.started).Seconds())
}

// Register adds the collector to r.
func (c *Collector) Register(r *Registry) {
	r.reg.MustRegister(c)
}
