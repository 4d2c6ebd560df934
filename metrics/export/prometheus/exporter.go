package prometheus

import (
	"net/http"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/metrics/export/internaldefs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsSource interface {
	MetricsSnapshot() goSession.MetricsSnapshot
	EventsDropped() uint64
}

type histogramDesc struct {
	id   goSession.MetricID
	desc *prometheus.Desc
}

type counterDesc struct {
	id   goSession.MetricID
	desc *prometheus.Desc
}

// Collector reads a metrics snapshot on every scrape. It reports nothing
// while the source has metrics disabled. Sources exposing a Coordinator also
// report the refresh gauges.
type Collector struct {
	source     metricsSource
	counters   []counterDesc
	histograms []histogramDesc
	dropped    *prometheus.Desc
	inFlight   *prometheus.Desc
	waiting    *prometheus.Desc
}

// NewCollector describes every goSession metric read from source.
func NewCollector(source metricsSource) *Collector {
	c := &Collector{
		source:     source,
		counters:   make([]counterDesc, 0, len(internaldefs.CounterDefs)),
		histograms: make([]histogramDesc, 0, len(internaldefs.HistogramDefs)),
		dropped:    prometheus.NewDesc(internaldefs.EventsDroppedName, internaldefs.EventsDroppedHelp, nil, nil),
		inFlight:   prometheus.NewDesc(internaldefs.RefreshInFlightName, internaldefs.RefreshInFlightHelp, nil, nil),
		waiting:    prometheus.NewDesc(internaldefs.RefreshWaitingName, internaldefs.RefreshWaitingHelp, nil, nil),
	}
	for _, def := range internaldefs.CounterDefs {
		c.counters = append(c.counters, counterDesc{
			id:   def.ID,
			desc: prometheus.NewDesc(def.Name, def.Help, nil, nil),
		})
	}
	for _, def := range internaldefs.HistogramDefs {
		c.histograms = append(c.histograms, histogramDesc{
			id:   def.ID,
			desc: prometheus.NewDesc(def.Name, def.Help, nil, nil),
		})
	}
	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, cd := range c.counters {
		ch <- cd.desc
	}
	for _, hd := range c.histograms {
		ch <- hd.desc
	}
	ch <- c.dropped
	ch <- c.inFlight
	ch <- c.waiting
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c == nil || c.source == nil {
		return
	}

	snapshot := c.source.MetricsSnapshot()
	dropped := c.source.EventsDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return
	}

	for _, cd := range c.counters {
		ch <- prometheus.MustNewConstMetric(cd.desc, prometheus.CounterValue, float64(snapshot.Counters[cd.id]))
	}

	for _, hd := range c.histograms {
		raw, ok := snapshot.Histograms[hd.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		buckets := make(map[float64]uint64, len(internaldefs.HistogramUpperBounds))
		for i, le := range internaldefs.HistogramUpperBounds {
			buckets[le] = cumulative[i]
		}
		// Snapshots carry bucket counts only, so the sum is reported as zero.
		ch <- prometheus.MustNewConstHistogram(hd.desc, cumulative[len(cumulative)-1], 0, buckets)
	}

	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(dropped))

	if inFlight, waiting, ok := internaldefs.SessionState(c.source); ok {
		ch <- prometheus.MustNewConstMetric(c.inFlight, prometheus.GaugeValue, float64(inFlight))
		ch <- prometheus.MustNewConstMetric(c.waiting, prometheus.GaugeValue, float64(waiting))
	}
}

// PrometheusExporter serves one client's metrics from a private registry.
type PrometheusExporter struct {
	collector *Collector
	registry  *prometheus.Registry
}

// NewPrometheusExporter creates an exporter that reads from client.
func NewPrometheusExporter(client *goSession.Client) *PrometheusExporter {
	return NewPrometheusExporterFromSource(client)
}

// NewPrometheusExporterFromSource creates an exporter over any snapshot source.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	collector := NewCollector(source)
	registry := prometheus.NewRegistry()
	registry.MustRegister(collector)
	return &PrometheusExporter{collector: collector, registry: registry}
}

// Collector returns the underlying collector for use with another registry.
func (p *PrometheusExporter) Collector() *Collector {
	return p.collector
}

// Registry returns the private registry the Handler gathers from.
func (p *PrometheusExporter) Registry() *prometheus.Registry {
	return p.registry
}

// Handler returns an http.Handler that serves the metrics in the Prometheus
// exposition format.
func (p *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
