// Package metrics exposes prometheus instrumentation for the money paths.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

type Metrics struct {
	CapturesTotal        *prometheus.CounterVec
	DeclinesTotal        *prometheus.CounterVec
	RefundsTotal         prometheus.Counter
	AdjustmentsTotal     *prometheus.CounterVec
	ReconciliationQueued prometheus.Counter
	GatewayLatency       prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CapturesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paycore_captures_total",
			Help: "Completed payment captures by method.",
		}, []string{"method"}),
		DeclinesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paycore_declines_total",
			Help: "Gateway declines by mapped code.",
		}, []string{"code"}),
		RefundsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paycore_refunds_total",
			Help: "Completed gateway refunds.",
		}),
		AdjustmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paycore_adjustments_total",
			Help: "Resolved adjustments by action.",
		}, []string{"action"}),
		ReconciliationQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paycore_reconciliation_queued_total",
			Help: "Captured payments whose ledger writes failed and were queued for manual reconciliation.",
		}),
		GatewayLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "paycore_gateway_latency_seconds",
			Help:    "Latency of gateway authorize/capture/refund calls.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}

	reg.MustRegister(
		m.CapturesTotal,
		m.DeclinesTotal,
		m.RefundsTotal,
		m.AdjustmentsTotal,
		m.ReconciliationQueued,
		m.GatewayLatency,
	)
	return m
}

func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func provideRegisterer(reg *prometheus.Registry) prometheus.Registerer { return reg }

var Module = fx.Module("metrics",
	fx.Provide(NewRegistry),
	fx.Provide(provideRegisterer),
	fx.Provide(New),
)
