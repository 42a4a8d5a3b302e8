package stats

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metric names registered by the server.
const (
	ActiveSessions   = "active_sessions"
	FramesReceived   = "frames_received_total"
	EventsPublished  = "events_published_total"
	EventsSuppressed = "events_suppressed_total"
	PublishesDropped = "publishes_dropped_total"
	ActionErrors     = "action_errors_total"
)

// Provider is the counter surface the server updates. Backed by
// Prometheus in production and an in-memory recorder in tests.
type Provider interface {
	Register(name string)
	Incr(name string)
	Decr(name string)
}

type PromProvider struct {
	registry *prometheus.Registry
	gauges   map[string]prometheus.Gauge
}

func NewPromProvider() *PromProvider {
	return &PromProvider{
		registry: prometheus.NewRegistry(),
		gauges:   make(map[string]prometheus.Gauge),
	}
}

func (p *PromProvider) Register(name string) {
	if _, ok := p.gauges[name]; ok {
		return
	}
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "peyk",
		Name:      name,
	})
	p.registry.MustRegister(g)
	p.gauges[name] = g
}

func (p *PromProvider) Incr(name string) {
	if g, ok := p.gauges[name]; ok {
		g.Inc()
	}
}

func (p *PromProvider) Decr(name string) {
	if g, ok := p.gauges[name]; ok {
		g.Dec()
	}
}

// Handler serves the /metrics endpoint.
func (p *PromProvider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
