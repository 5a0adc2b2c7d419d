// Package observability exposes simulator activity as Prometheus metrics.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/simehr/simehr/sim"
)

// SimCollector bundles the simulator metrics. It implements sim.Listener and
// is driven entirely by kernel signals, so it runs on the simulator goroutine.
type SimCollector struct {
	gatherer prometheus.Gatherer

	OrdersPlaced   *prometheus.CounterVec
	RuleVerdicts   *prometheus.CounterVec
	Results        *prometheus.CounterVec
	VitalsAlerts   *prometheus.CounterVec
	ScenarioEvents *prometheus.CounterVec
	ActiveOrders   prometheus.Gauge

	inFlight map[string]bool // order IDs still advancing through the pipeline
}

// NewSimCollector registers the simulator metrics against reg, defaulting to
// the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	placed, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "simehr_orders_placed_total",
		Help: "Orders accepted into the pipeline, labeled by category and priority.",
	}, []string{"category", "priority"}), "simehr_orders_placed_total")
	if err != nil {
		return nil, err
	}
	verdicts, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "simehr_rule_verdicts_total",
		Help: "Safety rule verdicts on attempted placements, labeled by outcome.",
	}, []string{"outcome"}), "simehr_rule_verdicts_total")
	if err != nil {
		return nil, err
	}
	results, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "simehr_results_total",
		Help: "Result records charted, labeled by flag. Finalized cultures count again with their final flag.",
	}, []string{"flag"}), "simehr_results_total")
	if err != nil {
		return nil, err
	}
	alerts, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "simehr_vitals_alerts_total",
		Help: "Vital sign threshold crossings, labeled by vital.",
	}, []string{"vital"}), "simehr_vitals_alerts_total")
	if err != nil {
		return nil, err
	}
	events, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "simehr_scenario_events_total",
		Help: "Scripted scenario events fired, labeled by kind.",
	}, []string{"kind"}), "simehr_scenario_events_total")
	if err != nil {
		return nil, err
	}
	active, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "simehr_active_orders",
		Help: "Orders currently advancing through the pipeline.",
	}), "simehr_active_orders")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:       gatherer,
		OrdersPlaced:   placed,
		RuleVerdicts:   verdicts,
		Results:        results,
		VitalsAlerts:   alerts,
		ScenarioEvents: events,
		ActiveOrders:   active,
		inFlight:       make(map[string]bool),
	}, nil
}

// OnSignal implements sim.Listener.
func (c *SimCollector) OnSignal(s sim.Signal) {
	if c == nil {
		return
	}
	switch s.Kind {
	case sim.SignalOrderPlaced:
		if s.Verdict != nil {
			c.RuleVerdicts.WithLabelValues(string(s.Verdict.Outcome)).Inc()
		}
		if s.Order != nil {
			c.OrdersPlaced.WithLabelValues(string(s.Order.Item.Category), string(s.Order.Priority)).Inc()
			c.track(s.Order)
		}
	case sim.SignalOrderRejected:
		if s.Verdict != nil {
			c.RuleVerdicts.WithLabelValues(string(s.Verdict.Outcome)).Inc()
		}
	case sim.SignalOrderUpdated:
		if s.Order != nil {
			c.track(s.Order)
		}
	case sim.SignalResultAvailable, sim.SignalResultFinalized:
		for _, r := range s.Results {
			c.Results.WithLabelValues(string(r.Flag)).Inc()
		}
	case sim.SignalVitalsAlert:
		if s.Alert != nil {
			c.VitalsAlerts.WithLabelValues(s.Alert.Vital).Inc()
		}
	case sim.SignalScenarioFired:
		if s.Event != nil {
			c.ScenarioEvents.WithLabelValues(string(s.Event.Kind)).Inc()
		}
	case sim.SignalReset:
		c.inFlight = make(map[string]bool)
		c.ActiveOrders.Set(0)
	}
}

func (c *SimCollector) track(o *sim.Order) {
	if o.InFlight() {
		c.inFlight[o.ID] = true
	} else {
		delete(c.inFlight, o.ID)
	}
	c.ActiveOrders.Set(float64(len(c.inFlight)))
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
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

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
