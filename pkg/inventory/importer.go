// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/luxfi/adxfed/pkg/log"
	"github.com/luxfi/adxfed/pkg/metric"
	"github.com/luxfi/adxfed/pkg/rpc"
)

// MethodInventoryList returns a node's full campaign snapshot
const MethodInventoryList = "inventory_list"

// DefaultConcurrency bounds ImportAll when no limit is configured
const DefaultConcurrency = 4

// Node describes a demand node to import from
type Node struct {
	Name       string
	Endpoint   string
	SourceHost string
}

// Caller is the part of rpc.Client the importer needs
type Caller interface {
	CallInto(ctx context.Context, method string, out any, params ...any) error
}

// Dialer returns the caller used to reach node
type Dialer func(node Node) Caller

// Result summarises one import run
type Result struct {
	Node    string
	Fetched int
	Saved   int
	Failed  int
	Deleted int
	Errors  []error
}

// Config configures an Importer
type Config struct {
	Concurrency int
	// ClientOptions apply to clients created by the default dialer
	ClientOptions []rpc.Option
}

// Importer pulls campaign snapshots from nodes into a Store
type Importer struct {
	store       Store
	dial        Dialer
	concurrency int
	log         log.Logger
	metrics     *metric.Metrics
}

// NewImporter creates an importer writing to store
func NewImporter(store Store, cfg Config, logger log.Logger, metrics *metric.Metrics) *Importer {
	if logger == nil {
		logger = log.NoOp()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	opts := cfg.ClientOptions
	return &Importer{
		store:       store,
		concurrency: cfg.Concurrency,
		log:         logger,
		metrics:     metrics,
		dial: func(node Node) Caller {
			return rpc.NewClient(node.Endpoint, opts...)
		},
	}
}

// WithDialer replaces how nodes are reached
func (i *Importer) WithDialer(d Dialer) *Importer {
	i.dial = d
	return i
}

// Import fetches node's snapshot and saves every campaign in it. A failed
// fetch is returned as an error with nothing persisted; per-campaign decode
// and save failures are counted in the Result and skipped.
func (i *Importer) Import(ctx context.Context, node Node) (Result, error) {
	res := Result{Node: node.Name}
	logger := i.log.With(log.String("node", node.Name), log.String("source_host", node.SourceHost))
	start := time.Now()

	var snapshot []json.RawMessage
	if err := i.dial(node).CallInto(ctx, MethodInventoryList, &snapshot); err != nil {
		i.metrics.ObserveImport(node.Name, "fetch_failed", 0, 0)
		logger.Warn("inventory fetch failed", log.Error(err))
		return res, fmt.Errorf("fetch inventory from %s: %w", node.Name, err)
	}
	res.Fetched = len(snapshot)

	seen := make([]string, 0, len(snapshot))
	complete := true
	for n, raw := range snapshot {
		if err := ctx.Err(); err != nil {
			i.metrics.ObserveImport(node.Name, "canceled", res.Saved, res.Failed)
			return res, err
		}

		c, err := decodeCampaign(raw, node.SourceHost)
		if err != nil {
			complete = false
			res.Failed++
			res.Errors = append(res.Errors, fmt.Errorf("campaign #%d: %w", n, err))
			logger.Warn("skipping malformed campaign", log.Int("index", n), log.Error(err))
			continue
		}
		seen = append(seen, c.ID)

		if err := i.store.Save(ctx, c); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Errorf("save campaign %s: %w", c.ID, err))
			logger.Error("campaign save failed", log.String("campaign_id", c.ID), log.Error(err))
			continue
		}
		res.Saved++
	}

	if complete {
		deleted, err := i.store.MarkDeleted(ctx, node.SourceHost, seen)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("mark deleted: %w", err))
			logger.Error("mark deleted failed", log.Error(err))
		}
		res.Deleted = deleted
	} else {
		logger.Info("snapshot incomplete, keeping unseen campaigns")
	}

	outcome := "ok"
	if res.Failed > 0 {
		outcome = "partial"
	}
	i.metrics.ObserveImport(node.Name, outcome, res.Saved, res.Failed)
	logger.Info("inventory imported",
		log.Int("fetched", res.Fetched),
		log.Int("saved", res.Saved),
		log.Int("failed", res.Failed),
		log.Int("deleted", res.Deleted),
		log.Duration("elapsed", time.Since(start)))
	return res, nil
}

// NodeResult pairs a node's import result with its fetch error
type NodeResult struct {
	Result
	Err error
}

// ImportAll imports every node concurrently. One node failing does not stop
// the others; results are returned in node order.
func (i *Importer) ImportAll(ctx context.Context, nodes []Node) []NodeResult {
	results := make([]NodeResult, len(nodes))

	var g errgroup.Group
	g.SetLimit(i.concurrency)
	for n, node := range nodes {
		g.Go(func() error {
			res, err := i.Import(ctx, node)
			results[n] = NodeResult{Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func decodeCampaign(raw json.RawMessage, sourceHost string) (Campaign, error) {
	var c Campaign
	if err := json.Unmarshal(raw, &c); err != nil {
		return Campaign{}, fmt.Errorf("%w: %v", ErrInvalidCampaign, err)
	}
	// Identity and local state come from the importing side
	c.SourceHost = sourceHost
	c.DeletedAt = nil
	return NewCampaign(c)
}
