// Package metrics exposes Prometheus counters for the transform tool.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Edit outcomes.
const (
	OutcomeApplied = "applied"
	OutcomeFailed  = "failed"
	OutcomeUndone  = "undone"
	OutcomeRedone  = "redone"
)

// Rejection reasons.
const (
	ReasonNoControlPoint = "no_control_point"
	ReasonNoSelection    = "no_selection"
	ReasonSystemMismatch = "system_mismatch"
	ReasonNoPointLayer   = "no_point_layer"
	ReasonApplyPending   = "apply_pending"
)

// Collector holds the tool's counters. A nil *Collector is a valid no-op.
type Collector struct {
	gatherer prometheus.Gatherer

	Selections       prometheus.Counter
	Edits            *prometheus.CounterVec
	FeaturesMoved    prometheus.Counter
	RejectedRequests *prometheus.CounterVec
}

// NewCollector registers the counters on reg, or the default registerer when
// reg is nil. Registering twice on the same registry reuses the counters.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	selections, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shiftscale_selections_total",
		Help: "Region selections that produced a new feature selection.",
	}), "shiftscale_selections_total")
	if err != nil {
		return nil, err
	}

	edits, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shiftscale_edits_total",
		Help: "Edit operations by outcome.",
	}, []string{"outcome"}), "shiftscale_edits_total")
	if err != nil {
		return nil, err
	}

	moved, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shiftscale_features_moved_total",
		Help: "Features moved by applied edit operations.",
	}), "shiftscale_features_moved_total")
	if err != nil {
		return nil, err
	}

	rejected, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shiftscale_rejected_requests_total",
		Help: "Apply requests rejected before an edit was submitted.",
	}, []string{"reason"}), "shiftscale_rejected_requests_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:         gatherer,
		Selections:       selections,
		Edits:            edits,
		FeaturesMoved:    moved,
		RejectedRequests: rejected,
	}, nil
}

// IncSelections counts one replaced selection.
func (c *Collector) IncSelections() {
	if c == nil || c.Selections == nil {
		return
	}
	c.Selections.Inc()
}

// ObserveEdit counts an edit outcome and, for applied edits, the features it moved.
func (c *Collector) ObserveEdit(outcome string, features int) {
	if c == nil || c.Edits == nil {
		return
	}
	c.Edits.WithLabelValues(outcome).Inc()
	if outcome == OutcomeApplied && features > 0 && c.FeaturesMoved != nil {
		c.FeaturesMoved.Add(float64(features))
	}
}

// IncRejected counts an apply request refused for reason.
func (c *Collector) IncRejected(reason string) {
	if c == nil || c.RejectedRequests == nil {
		return
	}
	c.RejectedRequests.WithLabelValues(reason).Inc()
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
