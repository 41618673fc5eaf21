// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/adxfed/pkg/config"
	"github.com/luxfi/adxfed/pkg/inventory"
	"github.com/luxfi/adxfed/pkg/log"
	"github.com/luxfi/adxfed/pkg/settlement"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.SourceHost = "self.example"
	cfg.Settlement.EventLogPath = filepath.Join(t.TempDir(), "events.db")
	cfg.Classify.SigningSecret = "0123456789abcdef0123"
	cfg.RPC.MaxTries = 1
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNodeServesAndImportsInventory(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	// Demand node publishing one campaign
	demand, err := NewNode(testConfig(t), log.NoOp())
	require.NoError(err)
	defer demand.Close()
	require.NoError(demand.store.Save(ctx, inventory.Campaign{
		ID:         "c1",
		SourceHost: "self.example",
		LandingURL: "https://advertiser.example",
		DateStart:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Banners: []inventory.Banner{{
			ID: "b1", CampaignID: "c1", Type: inventory.BannerImage, Width: 728, Height: 90,
			ServeURL: "https://demand.example/s", ClickURL: "https://demand.example/c", ViewURL: "https://demand.example/v",
		}},
	}))
	ts := httptest.NewServer(demand.setupRPCRoutes())
	defer ts.Close()

	// Supply node importing from it
	cfg := testConfig(t)
	cfg.Nodes = []config.NodeConfig{{Name: "demand", Endpoint: ts.URL + "/rpc", SourceHost: "demand.example"}}
	supply, err := NewNode(cfg, log.NoOp())
	require.NoError(err)
	defer supply.Close()

	supply.ImportAll(ctx)
	active, err := supply.store.FetchActiveCampaigns(ctx)
	require.NoError(err)
	require.Len(active, 1)
	require.Equal("demand.example", active[0].SourceHost)

	ops := httptest.NewServer(supply.setupOpsRoutes())
	defer ops.Close()

	resp, err := http.Get(ops.URL + "/status")
	require.NoError(err)
	defer resp.Body.Close()
	var status struct {
		Nodes []nodeStatus `json:"nodes"`
	}
	require.NoError(json.NewDecoder(resp.Body).Decode(&status))
	require.Equal([]nodeStatus{{Name: "demand", Saved: 1}}, status.Nodes)

	metrics, err := http.Get(ops.URL + "/metrics")
	require.NoError(err)
	defer metrics.Body.Close()
	require.Equal(http.StatusOK, metrics.StatusCode)

	w, h := int64(728), int64(90)
	body, err := json.Marshal(openrtb2.BidRequest{
		ID:  "r1",
		Imp: []openrtb2.Imp{{ID: "i1", Banner: &openrtb2.Banner{W: &w, H: &h}}},
	})
	require.NoError(err)
	auction, err := http.Post(ops.URL+"/openrtb2/auction", "application/json", strings.NewReader(string(body)))
	require.NoError(err)
	defer auction.Body.Close()
	require.Equal(http.StatusOK, auction.StatusCode)
	var bidResp openrtb2.BidResponse
	require.NoError(json.NewDecoder(auction.Body).Decode(&bidResp))
	require.Len(bidResp.SeatBid, 1)
	require.Equal("b1", bidResp.SeatBid[0].Bid[0].AdID)

	health, err := http.Get(ops.URL + "/health")
	require.NoError(err)
	defer health.Body.Close()
	require.Equal(http.StatusOK, health.StatusCode)
}

func TestNodeSettle(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	node, err := NewNode(testConfig(t), log.NoOp())
	require.NoError(err)
	defer node.Close()

	events, err := node.openEventLog(ctx)
	require.NoError(err)
	require.NoError(events.Append(ctx,
		settlement.BillableEvent{EventID: 1, Value: 100, LicenseFee: 10, CreatedAt: time.Now()},
		settlement.BillableEvent{EventID: 2, Value: 50, LicenseFee: 5, CreatedAt: time.Now()},
	))

	require.NoError(node.Settle(ctx, settlement.KindUnpaid, 1, 2))
	require.ErrorIs(node.Settle(ctx, settlement.KindUnpaid, 2, 1), settlement.ErrInvalidWindow)
	require.ErrorIs(node.Settle(ctx, "refunds", 1, 2), settlement.ErrUnknownKind)
}

func TestNodeRejectsBadTrustedKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Classify.Trusted = map[string]string{"other": strings.Repeat("z", 64)}
	_, err := NewNode(cfg, log.NoOp())
	require.Error(t, err)
}

func TestNodeHealthReportsClosedStorage(t *testing.T) {
	require := require.New(t)

	node, err := NewNode(testConfig(t), log.NoOp())
	require.NoError(err)
	ops := httptest.NewServer(node.setupOpsRoutes())
	defer ops.Close()

	require.NoError(node.storage.Close())

	resp, err := http.Get(ops.URL + "/health")
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusServiceUnavailable, resp.StatusCode)
	var body map[string]string
	require.NoError(json.NewDecoder(resp.Body).Decode(&body))
	require.Equal("unhealthy", body["status"])
}
