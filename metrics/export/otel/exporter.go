package otel

import (
	"context"
	"errors"
	"fmt"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Source is what the exporter reads on every collection. *goIdentity.Engine
// satisfies it.
type Source interface {
	MetricsSnapshot() goIdentity.MetricsSnapshot
	AuditDropped() uint64
}

// reading is one collection pass: a snapshot plus the audit drop count.
type reading struct {
	snapshot   goIdentity.MetricsSnapshot
	dropped    uint64
	cumulative map[goIdentity.MetricID][]uint64
}

func (r *reading) buckets(id goIdentity.MetricID) []uint64 {
	if c, ok := r.cumulative[id]; ok {
		return c
	}
	if r.cumulative == nil {
		r.cumulative = make(map[goIdentity.MetricID][]uint64, 1)
	}
	c := internaldefs.Cumulative(r.snapshot.Histograms[id])
	r.cumulative[id] = c
	return c
}

// binding reports one instrument's value from a reading.
type binding func(metric.Observer, *reading)

// Exporter mirrors engine counters into asynchronous OpenTelemetry
// instruments. Call Close to unregister the callback.
type Exporter struct {
	source       Source
	bindings     []binding
	registration metric.Registration
}

// New registers instruments on meter that observe engine.
func New(meter metric.Meter, engine *goIdentity.Engine) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewFromSource(meter, engine)
}

// NewFromSource registers instruments on meter that observe source.
func NewFromSource(meter metric.Meter, source Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source}
	var observables []metric.Observable

	counter := func(name, help string, value func(*reading) uint64) error {
		ins, err := meter.Int64ObservableCounter(name, metric.WithDescription(help))
		if err != nil {
			return fmt.Errorf("create observable counter %s: %w", name, err)
		}
		observables = append(observables, ins)
		e.bindings = append(e.bindings, func(o metric.Observer, r *reading) {
			o.ObserveInt64(ins, int64(value(r)))
		})
		return nil
	}
	gauge := func(name, help string, value func(*reading) uint64) error {
		ins, err := meter.Int64ObservableGauge(name, metric.WithDescription(help))
		if err != nil {
			return fmt.Errorf("create observable gauge %s: %w", name, err)
		}
		observables = append(observables, ins)
		e.bindings = append(e.bindings, func(o metric.Observer, r *reading) {
			o.ObserveInt64(ins, int64(value(r)))
		})
		return nil
	}

	for _, def := range internaldefs.CounterDefs {
		id := def.ID
		if err := counter(def.Name, def.Help, func(r *reading) uint64 { return r.snapshot.Counters[id] }); err != nil {
			return nil, err
		}
	}

	for _, def := range internaldefs.HistogramDefs {
		id := def.ID
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			if err := gauge(def.Name+"_bucket_le_"+suffix, "Cumulative bucket count.", func(r *reading) uint64 {
				return r.buckets(id)[i]
			}); err != nil {
				return nil, err
			}
		}
		if err := gauge(def.Name+"_count", "Total sample count.", func(r *reading) uint64 {
			c := r.buckets(id)
			return c[len(c)-1]
		}); err != nil {
			return nil, err
		}
	}

	if err := counter("goidentity_audit_dropped_total", "Audit events dropped on a full buffer.", func(r *reading) uint64 {
		return r.dropped
	}); err != nil {
		return nil, err
	}

	registration, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = registration
	return e, nil
}

func (e *Exporter) observe(_ context.Context, observer metric.Observer) error {
	r := &reading{snapshot: e.source.MetricsSnapshot(), dropped: e.source.AuditDropped()}
	for _, bind := range e.bindings {
		bind(observer, r)
	}
	return nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
