// Package metrics is a thin abstraction over Prometheus, following the
// teacher's pkg/metrics.go almost line for line: a Sink interface so the
// item layer can be used with or without metrics, a no-op implementation
// that costs nothing on the hot path, and a Prometheus-backed one that
// registers real collectors when the embedder opts in.
//
// Unlike the teacher's per-shard metrics (labeled by shard), this engine
// is a single instance (see SPEC_FULL.md §9's concurrency resolution), so
// counters and gauges carry no labels.
//
// Counter/gauge names mirror the spec's §6 list verbatim: item_req,
// item_req_ex, item_link, item_unlink, item_remove are monotonic counters;
// item_curr, item_keyval_byte, item_val_byte are gauges because they track
// a current level that goes up and down as items link and unlink.
//
// © 2025 itemkernel authors. MIT License.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Name identifies one of the fixed set of counters/gauges the item layer
// emits to. The ordering matters: names <= ItemRemove are counters, the
// rest are gauges (see Sink implementations below).
type Name int

const (
	ItemReq Name = iota
	ItemReqEx
	ItemLink
	ItemUnlink
	ItemRemove
	ItemCurr
	ItemKeyValByte
	ItemValByte
	numNames
)

// Sink is the abstract counter/gauge bag the item layer writes to.
type Sink interface {
	Incr(n Name)
	Decr(n Name)
	IncrBy(n Name, delta int64)
	DecrBy(n Name, delta int64)
}

/* ---------------- No-op implementation ---------------- */

type noopSink struct{}

// Noop returns a Sink that discards every update. Used when the embedder
// does not opt into metrics.
func Noop() Sink { return noopSink{} }

func (noopSink) Incr(Name)             {}
func (noopSink) Decr(Name)             {}
func (noopSink) IncrBy(Name, int64)    {}
func (noopSink) DecrBy(Name, int64)    {}

/* ---------------- Prometheus implementation ---------------- */

var counterNames = [...]string{"item_req", "item_req_ex", "item_link", "item_unlink", "item_remove"}
var gaugeNames = [...]string{"item_curr", "item_keyval_byte", "item_val_byte"}

type promSink struct {
	counters [len(counterNames)]prometheus.Counter
	gauges   [len(gaugeNames)]prometheus.Gauge
}

// NewPrometheus registers one collector per name in reg and returns a Sink
// backed by them. reg must not be nil.
func NewPrometheus(reg *prometheus.Registry) Sink {
	ps := &promSink{}
	for i, name := range counterNames {
		ps.counters[i] = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "itemkernel",
			Name:      name + "_total",
			Help:      "itemkernel " + name + " counter.",
		})
		reg.MustRegister(ps.counters[i])
	}
	for i, name := range gaugeNames {
		ps.gauges[i] = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "itemkernel",
			Name:      name,
			Help:      "itemkernel " + name + " gauge.",
		})
		reg.MustRegister(ps.gauges[i])
	}
	return ps
}

func (p *promSink) Incr(n Name) { p.IncrBy(n, 1) }
func (p *promSink) Decr(n Name) { p.DecrBy(n, 1) }

func (p *promSink) IncrBy(n Name, delta int64) {
	if n <= ItemRemove {
		p.counters[n].Add(float64(delta))
		return
	}
	p.gauges[n-ItemCurr].Add(float64(delta))
}

func (p *promSink) DecrBy(n Name, delta int64) {
	if n <= ItemRemove {
		// Prometheus counters cannot go down; the item layer never asks a
		// pure request/link/unlink/remove counter to decrease.
		return
	}
	p.gauges[n-ItemCurr].Add(-float64(delta))
}

// New picks the Prometheus-backed sink when reg is non-nil, the no-op sink
// otherwise. Mirrors the teacher's newMetricsSink factory.
func New(reg *prometheus.Registry) Sink {
	if reg == nil {
		return Noop()
	}
	return NewPrometheus(reg)
}
