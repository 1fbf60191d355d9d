// Package metrics provides Prometheus metrics collection for the billing
// engine.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/artpar/utilibill/events"
)

// Collector holds all Prometheus metrics.
type Collector struct {
	// Billing metrics
	BillsPaid     *prometheus.CounterVec
	BillsFailed   *prometheus.CounterVec
	AmountBilled  *prometheus.CounterVec
	BillingLatest prometheus.Gauge

	// Registry metrics
	ProvidersRegistered prometheus.Counter
	MetersRegistered    prometheus.Counter
	TariffUpgrades      prometheus.Counter
	ReadingsRecorded    prometheus.Counter

	// Oracle metrics
	GateRejections    *prometheus.CounterVec
	OracleReliability prometheus.Gauge
	OracleSpend       prometheus.Counter
	FeedUpdates       prometheus.Counter

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New creates a collector registered on the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a collector on a custom registry. Useful for
// testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		BillsPaid: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "utilibill",
				Name:      "bills_paid_total",
				Help:      "Total number of bills paid",
			},
			[]string{"provider_id"},
		),
		BillsFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "utilibill",
				Name:      "bills_failed_total",
				Help:      "Total number of rejected bill payments",
			},
			[]string{"reason"},
		),
		AmountBilled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "utilibill",
				Name:      "amount_billed_total",
				Help:      "Total final amounts billed, in minor units",
			},
			[]string{"currency"},
		),
		BillingLatest: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "utilibill",
				Name:      "billing_last_payment_timestamp",
				Help:      "Unix timestamp of the last successful payment",
			},
		),

		ProvidersRegistered: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "utilibill",
				Name:      "providers_registered_total",
				Help:      "Total number of providers registered",
			},
		),
		MetersRegistered: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "utilibill",
				Name:      "meters_registered_total",
				Help:      "Total number of meters registered",
			},
		),
		TariffUpgrades: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "utilibill",
				Name:      "tariff_upgrades_total",
				Help:      "Total number of tariff upgrades",
			},
		),
		ReadingsRecorded: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "utilibill",
				Name:      "meter_readings_total",
				Help:      "Total number of meter readings recorded",
			},
		),

		GateRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "utilibill",
				Name:      "oracle_gate_rejections_total",
				Help:      "Total oracle data rejections by the trust gate",
			},
			[]string{"reason"},
		),
		OracleReliability: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "utilibill",
				Name:      "oracle_reliability_score",
				Help:      "Current process-wide oracle reliability score",
			},
		),
		OracleSpend: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "utilibill",
				Name:      "oracle_spend_total",
				Help:      "Total accounted oracle call cost",
			},
		),
		FeedUpdates: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "utilibill",
				Name:      "oracle_feed_updates_total",
				Help:      "Total price feed and commodity rate updates",
			},
		),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "utilibill",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "utilibill",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
	}
}

// ObserveBus subscribes the collector to mutation events so the registry
// and billing counters advance without the services knowing about
// Prometheus.
func (c *Collector) ObserveBus(bus *events.Bus) {
	bus.Subscribe("registry.provider_registered", func(context.Context, events.Event) error {
		c.ProvidersRegistered.Inc()
		return nil
	})
	bus.Subscribe("registry.meter_registered", func(context.Context, events.Event) error {
		c.MetersRegistered.Inc()
		return nil
	})
	bus.Subscribe("registry.tariff_upgraded", func(context.Context, events.Event) error {
		c.TariffUpgrades.Inc()
		return nil
	})
	bus.Subscribe("registry.meter_reading_recorded", func(context.Context, events.Event) error {
		c.ReadingsRecorded.Inc()
		return nil
	})
	bus.Subscribe("oracle.feed_updated", func(context.Context, events.Event) error {
		c.FeedUpdates.Inc()
		return nil
	})
	bus.Subscribe("oracle.rate_updated", func(context.Context, events.Event) error {
		c.FeedUpdates.Inc()
		return nil
	})
	bus.Subscribe("billing.bill_paid", func(_ context.Context, e events.Event) error {
		providerID, _ := e.Data["provider_id"].(string)
		c.BillsPaid.WithLabelValues(providerID).Inc()
		if amount, ok := e.Data["amount"].(int64); ok {
			currency, _ := e.Data["currency"].(string)
			c.AmountBilled.WithLabelValues(currency).Add(float64(amount))
		}
		return nil
	})
}
