// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metric

import (
	"time"

	metrics "github.com/luxfi/metric"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "adxfed"

// Metrics holds all collectors for the federation core using luxfi/metric.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	metricsInstance metrics.Metrics

	// RPC metrics
	RPCCalls    metrics.CounterVec
	RPCDuration metrics.HistogramVec

	// Inventory metrics
	CampaignsImported metrics.CounterVec
	CampaignsFailed   metrics.CounterVec
	ImportRuns        metrics.CounterVec

	// Classification metrics
	SignatureChecks metrics.CounterVec

	// Settlement metrics
	SettlementPages  metrics.CounterVec
	SettlementEvents metrics.CounterVec
	SettlementRuns   metrics.CounterVec
}

// NewMetrics creates collectors registered on a private registry
func NewMetrics() (*Metrics, error) {
	metricsInstance := metrics.NewPrometheusMetrics(namespace, prometheus.NewRegistry())

	m := &Metrics{
		metricsInstance: metricsInstance,
	}

	m.RPCCalls = metricsInstance.NewCounterVec(
		"rpc_calls_total",
		"Remote procedure calls by method and outcome",
		[]string{"method", "outcome"},
	)
	m.RPCDuration = metricsInstance.NewHistogramVec(
		"rpc_call_duration_seconds",
		"Time spent in a remote procedure call",
		[]string{"method"},
		prometheus.DefBuckets,
	)

	m.CampaignsImported = metricsInstance.NewCounterVec(
		"inventory_campaigns_saved_total",
		"Campaigns persisted from a demand node",
		[]string{"node"},
	)
	m.CampaignsFailed = metricsInstance.NewCounterVec(
		"inventory_campaigns_failed_total",
		"Campaigns skipped because they were malformed or failed to persist",
		[]string{"node"},
	)
	m.ImportRuns = metricsInstance.NewCounterVec(
		"inventory_import_runs_total",
		"Import runs by node and outcome",
		[]string{"node", "outcome"},
	)

	m.SignatureChecks = metricsInstance.NewCounterVec(
		"classification_signature_checks_total",
		"Classification signature checks by result",
		[]string{"result"},
	)

	m.SettlementPages = metricsInstance.NewCounterVec(
		"settlement_pages_total",
		"Event log pages folded into settlement runs",
		[]string{"kind"},
	)
	m.SettlementEvents = metricsInstance.NewCounterVec(
		"settlement_events_total",
		"Billable events folded into settlement runs",
		[]string{"kind"},
	)
	m.SettlementRuns = metricsInstance.NewCounterVec(
		"settlement_runs_total",
		"Settlement runs by kind and final state",
		[]string{"kind", "state"},
	)

	return m, nil
}

// ObserveRPC records one call outcome and its latency
func (m *Metrics) ObserveRPC(method, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RPCCalls.WithLabelValues(method, outcome).Inc()
	m.RPCDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveImport records the campaign counts of one import run
func (m *Metrics) ObserveImport(node, outcome string, saved, failed int) {
	if m == nil {
		return
	}
	m.ImportRuns.WithLabelValues(node, outcome).Inc()
	m.CampaignsImported.WithLabelValues(node).Add(float64(saved))
	m.CampaignsFailed.WithLabelValues(node).Add(float64(failed))
}

// ObserveSignature records a verification result
func (m *Metrics) ObserveSignature(valid bool) {
	if m == nil {
		return
	}
	result := "invalid"
	if valid {
		result = "valid"
	}
	m.SignatureChecks.WithLabelValues(result).Inc()
}

// ObservePage records one folded settlement page
func (m *Metrics) ObservePage(kind string, events int) {
	if m == nil {
		return
	}
	m.SettlementPages.WithLabelValues(kind).Inc()
	m.SettlementEvents.WithLabelValues(kind).Add(float64(events))
}

// ObserveRun records the final state of a settlement run
func (m *Metrics) ObserveRun(kind, state string) {
	if m == nil {
		return
	}
	m.SettlementRuns.WithLabelValues(kind, state).Inc()
}

// Value sums the series of the family name (without the adxfed_ namespace)
// whose labels include every pair in labels. Histograms contribute their
// sample count.
func (m *Metrics) Value(name string, labels map[string]string) (float64, error) {
	if m == nil {
		return 0, nil
	}
	families, err := m.GetGatherer().Gather()
	if err != nil {
		return 0, err
	}

	full := namespace + "_" + name
	var total float64
	for _, family := range families {
		if family.GetName() != full {
			continue
		}
		for _, series := range family.GetMetric() {
			matched := 0
			for _, pair := range series.GetLabel() {
				if v, ok := labels[pair.GetName()]; ok && v == pair.GetValue() {
					matched++
				}
			}
			if matched != len(labels) {
				continue
			}
			switch {
			case series.GetCounter() != nil:
				total += series.GetCounter().GetValue()
			case series.GetGauge() != nil:
				total += series.GetGauge().GetValue()
			case series.GetHistogram() != nil:
				total += float64(series.GetHistogram().GetSampleCount())
			}
		}
	}
	return total, nil
}

// GetGatherer returns the prometheus gatherer for metrics export
func (m *Metrics) GetGatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.DefaultGatherer
	}
	if registry := m.metricsInstance.Registry(); registry != nil {
		return registry
	}
	return prometheus.DefaultGatherer
}

// GetRegisterer returns the prometheus registerer
func (m *Metrics) GetRegisterer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	if registry := m.metricsInstance.Registry(); registry != nil {
		return registry
	}
	return prometheus.DefaultRegisterer
}
