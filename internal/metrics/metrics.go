// Package metrics exposes Prometheus instrumentation for the bot.
package metrics

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bot"

// Command outcomes recorded by the router.
const (
	OutcomeOK      = "ok"
	OutcomeDenied  = "denied"
	OutcomeUnknown = "unknown"
	OutcomePanic   = "panic"
)

// AccessCounter reports authorized/admin set sizes.
type AccessCounter interface {
	Counts() (authorized, admins int)
}

// RegistrationCounter reports the number of registrations.
type RegistrationCounter interface {
	Len() int
}

// Recorder owns a private registry rather than the global default one.
type Recorder struct {
	registry *prometheus.Registry
	commands *prometheus.CounterVec
}

// New constructs a Recorder with Go runtime and process collectors attached.
func New() *Recorder {
	registry := prometheus.NewRegistry()
	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_total",
		Help:      "Chat commands dispatched, by command, entry surface and outcome.",
	}, []string{"command", "source", "outcome"})

	registry.MustRegister(
		commands,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Recorder{
		registry: registry,
		commands: commands,
	}
}

// ObserveCommand increments the dispatch counter.
func (r *Recorder) ObserveCommand(command, source, outcome string) {
	if r == nil {
		return
	}
	r.commands.WithLabelValues(command, source, outcome).Inc()
}

// RegisterStoreGauges exposes the store sizes, evaluated at scrape time.
func (r *Recorder) RegisterStoreGauges(access AccessCounter, registrations RegistrationCounter) error {
	if r == nil {
		return errors.New("metrics recorder is not initialized")
	}
	if access == nil || registrations == nil {
		return errors.New("stores are required")
	}

	gauges := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "authorized_users",
			Help:      "Members of the authorized set.",
		}, func() float64 {
			authorized, _ := access.Counts()
			return float64(authorized)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "admin_users",
			Help:      "Members of the admin set.",
		}, func() float64 {
			_, admins := access.Counts()
			return float64(admins)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registrations",
			Help:      "Callers that registered a display name.",
		}, func() float64 {
			return float64(registrations.Len())
		}),
	}

	for _, gauge := range gauges {
		if err := r.registry.Register(gauge); err != nil {
			return fmt.Errorf("register store gauge: %w", err)
		}
	}

	return nil
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
