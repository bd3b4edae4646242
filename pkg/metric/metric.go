// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metric

import (
	metrics "github.com/luxfi/metric"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all engine metrics using luxfi/metric
type Metrics struct {
	metricsInstance metrics.Metrics

	// Oracle metrics
	PricesPublished      metrics.Counter
	OracleUpdatesDropped metrics.CounterVec
	TwapResets           metrics.Counter

	// Lifecycle metrics
	MarketsCreated metrics.Counter
	DealsOpened    metrics.Counter
	DealsCanceled  metrics.Counter
	DealsClosed    metrics.Counter

	// Risk metrics
	MarginCalls  metrics.Counter
	Liquidations metrics.Counter

	// Settlement metrics
	CashSettlements      metrics.Counter
	PhysicalDeliveries   metrics.Counter
	SettlementPnl        metrics.Histogram
	FeesCollected        metrics.Counter
	InsuranceCollected   metrics.Counter
	DustTransfersSkipped metrics.Counter
}

// NewMetrics creates a new metrics instance using luxfi/metric
func NewMetrics() (*Metrics, error) {
	factory := metrics.NewPrometheusFactory()
	metricsInstance := factory.New("coffeefut")

	m := &Metrics{
		metricsInstance: metricsInstance,
	}

	m.PricesPublished = metricsInstance.NewCounter("oracle_prices_published_total", "Total number of accepted oracle updates")
	m.OracleUpdatesDropped = metricsInstance.NewCounterVec(
		"oracle_updates_dropped_total",
		"Total number of rejected oracle updates by reason",
		[]string{"reason"},
	)
	m.TwapResets = metricsInstance.NewCounter("oracle_twap_resets_total", "Total number of TWAP accumulator resets after stale chains")

	m.MarketsCreated = metricsInstance.NewCounter("lifecycle_markets_created_total", "Total number of markets created")
	m.DealsOpened = metricsInstance.NewCounter("lifecycle_deals_opened_total", "Total number of deals opened")
	m.DealsCanceled = metricsInstance.NewCounter("lifecycle_deals_canceled_total", "Total number of deals canceled")
	m.DealsClosed = metricsInstance.NewCounter("lifecycle_deals_closed_total", "Total number of deals closed")

	m.MarginCalls = metricsInstance.NewCounter("risk_margin_calls_total", "Total number of margin calls raised")
	m.Liquidations = metricsInstance.NewCounter("risk_liquidations_total", "Total number of deals flagged for liquidation")

	m.CashSettlements = metricsInstance.NewCounter("settlement_cash_total", "Total number of cash settlements")
	m.PhysicalDeliveries = metricsInstance.NewCounter("settlement_physical_deliveries_total", "Total number of physical delivery tranches")
	m.SettlementPnl = metricsInstance.NewHistogram(
		"settlement_pnl_abs",
		"Absolute P&L per cash settlement in quote units",
		prometheus.ExponentialBuckets(1, 10, 12),
	)
	m.FeesCollected = metricsInstance.NewCounter("settlement_fees_collected_total", "Total quote units of protocol, farmer and buyer fee slices, including referrer shares")
	m.InsuranceCollected = metricsInstance.NewCounter("settlement_insurance_collected_total", "Total quote units routed to the insurance treasury")
	m.DustTransfersSkipped = metricsInstance.NewCounter("settlement_dust_skipped_total", "Total transfers skipped below the dust threshold")

	return m, nil
}

// GetGatherer returns the prometheus gatherer for metrics export
func (m *Metrics) GetGatherer() prometheus.Gatherer {
	if registry := m.metricsInstance.Registry(); registry != nil {
		return registry
	}
	return prometheus.DefaultGatherer
}

// GetRegisterer returns the prometheus registerer
func (m *Metrics) GetRegisterer() prometheus.Registerer {
	if registry := m.metricsInstance.Registry(); registry != nil {
		return registry
	}
	return prometheus.DefaultRegisterer
}
