package otel

import (
	"context"
	"errors"
	"fmt"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() goSession.MetricsSnapshot
	EventsDropped() uint64
}

type observedCounter struct {
	id         goSession.MetricID
	instrument metric.Int64ObservableCounter
}

// observedHistogram reports cumulative bucket counts on one gauge, one data
// point per le attribute.
type observedHistogram struct {
	id      goSession.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// OTelExporter observes a client's metrics snapshot and refresh coordinator
// on every collection.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	counters     []observedCounter
	histograms   []observedHistogram
	dropped      metric.Int64ObservableCounter
	inFlight     metric.Int64ObservableGauge
	waiting      metric.Int64ObservableGauge
	bucketAttrs  []metric.ObserveOption
}

// NewOTelExporter registers observable instruments for client on meter.
func NewOTelExporter(meter metric.Meter, client *goSession.Client) (*OTelExporter, error) {
	if client == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, client)
}

// NewOTelExporterFromSource registers observable instruments over any
// snapshot source. Coordinator gauges are reported only when source also
// exposes Coordinator, as *goSession.Client does.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{
		source:      source,
		counters:    make([]observedCounter, 0, len(internaldefs.CounterDefs)),
		histograms:  make([]observedHistogram, 0, len(internaldefs.HistogramDefs)),
		bucketAttrs: make([]metric.ObserveOption, len(internaldefs.HistogramBoundLabels)),
	}
	for i, le := range internaldefs.HistogramBoundLabels {
		e.bucketAttrs[i] = metric.WithAttributes(attribute.String("le", le))
	}

	var observables []metric.Observable
	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", def.Name, err)
		}
		e.counters = append(e.counters, observedCounter{id: def.ID, instrument: ins})
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		buckets, err := meter.Int64ObservableGauge(def.Name+"_bucket",
			metric.WithDescription(def.Help+" Cumulative count per le bound."),
			metric.WithUnit("{request}"))
		if err != nil {
			return nil, fmt.Errorf("create bucket gauge %s: %w", def.Name, err)
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription(def.Help+" Sample count."))
		if err != nil {
			return nil, fmt.Errorf("create count gauge %s: %w", def.Name, err)
		}
		e.histograms = append(e.histograms, observedHistogram{id: def.ID, buckets: buckets, count: count})
		observables = append(observables, buckets, count)
	}

	var err error
	if e.dropped, err = meter.Int64ObservableCounter(internaldefs.EventsDroppedName, metric.WithDescription(internaldefs.EventsDroppedHelp)); err != nil {
		return nil, fmt.Errorf("create events dropped counter: %w", err)
	}
	if e.inFlight, err = meter.Int64ObservableGauge(internaldefs.RefreshInFlightName, metric.WithDescription(internaldefs.RefreshInFlightHelp)); err != nil {
		return nil, fmt.Errorf("create refresh in-flight gauge: %w", err)
	}
	if e.waiting, err = meter.Int64ObservableGauge(internaldefs.RefreshWaitingName, metric.WithDescription(internaldefs.RefreshWaitingHelp)); err != nil {
		return nil, fmt.Errorf("create refresh waiting gauge: %w", err)
	}
	observables = append(observables, e.dropped, e.inFlight, e.waiting)

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, c := range e.counters {
		o.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
	}
	for _, h := range e.histograms {
		raw, ok := snapshot.Histograms[h.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i, n := range cumulative {
			o.ObserveInt64(h.buckets, int64(n), e.bucketAttrs[i])
		}
		o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}
	o.ObserveInt64(e.dropped, int64(e.source.EventsDropped()))

	if inFlight, waiting, ok := internaldefs.SessionState(e.source); ok {
		o.ObserveInt64(e.inFlight, inFlight)
		o.ObserveInt64(e.waiting, waiting)
	}
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
