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
	AuditDropped() uint64
}

type member struct {
	id    goSession.MetricID
	value string
}

// family folds related engine counters into one instrument keyed by an
// attribute, so verify outcomes or cache results can be summed per backend.
type family struct {
	name    string
	help    string
	key     string
	members []member
}

var families = []family{
	{
		name: "gosession_verify_total",
		help: "Session verifications by outcome.",
		key:  "outcome",
		members: []member{
			{goSession.MetricVerifySuccess, "success"},
			{goSession.MetricVerifyMalformed, "malformed"},
			{goSession.MetricVerifyExpired, "expired"},
			{goSession.MetricVerifyRevoked, "revoked"},
		},
	},
	{
		name: "gosession_handshake_total",
		help: "Embedded-client handshakes by outcome.",
		key:  "outcome",
		members: []member{
			{goSession.MetricHandshakeSuccess, "success"},
			{goSession.MetricHandshakeFailure, "failure"},
		},
	},
	{
		name: "gosession_magic_token_total",
		help: "Magic token operations by outcome.",
		key:  "outcome",
		members: []member{
			{goSession.MetricMagicIssued, "issued"},
			{goSession.MetricMagicRedeemed, "redeemed"},
			{goSession.MetricMagicRejected, "rejected"},
		},
	},
	{
		name: "gosession_fast_path_total",
		help: "Trusted header identities by outcome.",
		key:  "outcome",
		members: []member{
			{goSession.MetricFastPathAccepted, "accepted"},
			{goSession.MetricFastPathRejected, "rejected"},
		},
	},
	{
		name: "gosession_stamp_lookup_total",
		help: "Stamp lookups by cache result.",
		key:  "cache",
		members: []member{
			{goSession.MetricStampCacheHit, "hit"},
			{goSession.MetricStampCacheMiss, "miss"},
		},
	},
}

type observation struct {
	id    goSession.MetricID
	attrs metric.ObserveOption
}

type observedCounter struct {
	instrument metric.Int64ObservableCounter
	points     []observation
}

type observedHistogram struct {
	id      goSession.MetricID
	buckets metric.Int64ObservableGauge
	bounds  [8]metric.ObserveOption
	count   metric.Int64ObservableGauge
}

// Exporter publishes engine metrics as OpenTelemetry observable instruments.
// Values are read once per collection cycle.
type Exporter struct {
	source       metricsSource
	registration metric.Registration
	counters     []observedCounter
	histograms   []observedHistogram
	auditDropped metric.Int64ObservableCounter
}

// NewExporter registers instruments on meter that read from engine.
func NewExporter(meter metric.Meter, engine *goSession.Engine) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewExporterFromSource(meter, engine)
}

// NewExporterFromSource registers instruments on meter that read from source.
func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source}
	var observables []metric.Observable

	grouped := make(map[goSession.MetricID]bool)
	for _, f := range families {
		ins, err := meter.Int64ObservableCounter(f.name, metric.WithDescription(f.help))
		if err != nil {
			return nil, fmt.Errorf("create counter family %s: %w", f.name, err)
		}
		c := observedCounter{instrument: ins}
		for _, m := range f.members {
			grouped[m.id] = true
			c.points = append(c.points, observation{
				id:    m.id,
				attrs: metric.WithAttributeSet(attribute.NewSet(attribute.String(f.key, m.value))),
			})
		}
		e.counters = append(e.counters, c)
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.CounterDefs {
		if grouped[def.ID] {
			continue
		}
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", def.Name, err)
		}
		e.counters = append(e.counters, observedCounter{
			instrument: ins,
			points:     []observation{{id: def.ID, attrs: metric.WithAttributeSet(*attribute.EmptySet())}},
		})
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		h := observedHistogram{id: def.ID}
		var err error
		h.buckets, err = meter.Int64ObservableGauge(def.Name+"_bucket", metric.WithDescription(def.Help+" Cumulative bucket counts."))
		if err != nil {
			return nil, fmt.Errorf("create histogram buckets %s: %w", def.Name, err)
		}
		for i, le := range internaldefs.HistogramBounds {
			h.bounds[i] = metric.WithAttributeSet(attribute.NewSet(attribute.String("le", le)))
		}
		h.count, err = meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription(def.Help+" Sample count."))
		if err != nil {
			return nil, fmt.Errorf("create histogram count %s: %w", def.Name, err)
		}
		e.histograms = append(e.histograms, h)
		observables = append(observables, h.buckets, h.count)
	}

	var err error
	e.auditDropped, err = meter.Int64ObservableCounter(
		internaldefs.AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	observables = append(observables, e.auditDropped)

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for _, c := range e.counters {
		for _, p := range c.points {
			o.ObserveInt64(c.instrument, int64(snap.Counters[p.id]), p.attrs)
		}
	}
	for _, h := range e.histograms {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[h.id]))
		for i, v := range cumulative {
			o.ObserveInt64(h.buckets, int64(v), h.bounds[i])
		}
		o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
