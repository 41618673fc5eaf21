// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metric

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMetricsObserve(t *testing.T) {
	require := require.New(t)

	m, err := NewMetrics()
	require.NoError(err)

	m.ObserveRPC("inventory_list", "ok", 20*time.Millisecond)
	m.ObserveRPC("inventory_list", "transport", time.Second)
	m.ObserveImport("demand-1", "ok", 2, 1)
	m.ObserveSignature(true)
	m.ObserveSignature(false)
	m.ObservePage("unpaid", 50)
	m.ObserveRun("unpaid", "complete")

	for _, tc := range []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"rpc_calls_total", map[string]string{"method": "inventory_list", "outcome": "ok"}, 1},
		{"rpc_calls_total", map[string]string{"method": "inventory_list"}, 2},
		{"rpc_call_duration_seconds", nil, 2},
		{"inventory_campaigns_saved_total", map[string]string{"node": "demand-1"}, 2},
		{"inventory_campaigns_failed_total", map[string]string{"node": "demand-1"}, 1},
		{"classification_signature_checks_total", map[string]string{"result": "invalid"}, 1},
		{"settlement_events_total", map[string]string{"kind": "unpaid"}, 50},
		{"settlement_runs_total", map[string]string{"kind": "paid"}, 0},
	} {
		got, err := m.Value(tc.name, tc.labels)
		require.NoError(err)
		require.Equal(tc.want, got, "%s %v", tc.name, tc.labels)
	}
}

func TestMetricsAreIsolated(t *testing.T) {
	require := require.New(t)

	a, err := NewMetrics()
	require.NoError(err)
	b, err := NewMetrics()
	require.NoError(err)

	a.ObserveSignature(true)
	got, err := b.Value("classification_signature_checks_total", nil)
	require.NoError(err)
	require.Zero(got)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveRPC("x", "ok", time.Second)
	m.ObserveImport("n", "ok", 1, 0)
	m.ObserveSignature(true)
	m.ObservePage("paid", 1)
	m.ObserveRun("paid", "complete")
	require.NotNil(t, m.GetGatherer())
	require.NotNil(t, m.GetRegisterer())
	v, err := m.Value("rpc_calls_total", nil)
	require.NoError(t, err)
	require.Zero(t, v)
}
