// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/mux"
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/luxfi/adxfed/pkg/classify"
	"github.com/luxfi/adxfed/pkg/config"
	"github.com/luxfi/adxfed/pkg/inventory"
	"github.com/luxfi/adxfed/pkg/log"
	"github.com/luxfi/adxfed/pkg/metric"
	"github.com/luxfi/adxfed/pkg/rpc"
	"github.com/luxfi/adxfed/pkg/rtb"
	"github.com/luxfi/adxfed/pkg/settlement"
	"github.com/luxfi/adxfed/pkg/storage"
)

// Node is one federation node: it imports inventory from demand nodes,
// serves its own inventory and classifications, and settles events.
type Node struct {
	cfg     *config.Config
	log     log.Logger
	metrics *metric.Metrics

	storage    *storage.Storage
	store      *inventory.KVStore
	importer   *inventory.Importer
	nodes      []inventory.Node
	verifier   *classify.Verifier
	classifier *classify.Classifier
	exchange   *rtb.Exchange
	events     *settlement.SQLEventLog

	opsServer *http.Server
	rpcServer *http.Server
	wg        sync.WaitGroup

	mu         sync.RWMutex
	lastImport time.Time
	results    []inventory.NodeResult
}

// NewNode wires every component from cfg
func NewNode(cfg *config.Config, logger log.Logger) (*Node, error) {
	metrics, err := metric.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	st, err := storage.NewStorage(cfg.Storage, metrics.GetRegisterer())
	if err != nil {
		return nil, err
	}

	n := &Node{
		cfg:      cfg,
		log:      logger,
		metrics:  metrics,
		storage:  st,
		store:    inventory.NewKVStore(st.GetDatabase()),
		verifier: classify.NewVerifier(logger.Named("classify"), metrics),
	}
	n.exchange = rtb.NewExchange(n.store, decimal.NewFromFloat(cfg.Exchange.FloorPrice), cfg.Settlement.CurrencyScale, logger.Named("rtb"))

	for namespace, key := range cfg.Classify.Trusted {
		if err := n.verifier.Trust(namespace, key); err != nil {
			_ = st.Close()
			return nil, err
		}
	}
	if cfg.Classify.SigningSecret != "" {
		signer, err := classify.DeriveSigner([]byte(cfg.Classify.SigningSecret), cfg.Classify.Namespace)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		n.classifier = classify.NewClassifier(cfg.Classify.Namespace, signer)
		// A node trusts its own claims
		if err := n.verifier.Trust(cfg.Classify.Namespace, signer.PublicKey()); err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	limits := make(map[string]config.NodeConfig, len(cfg.Nodes))
	for _, nc := range cfg.Nodes {
		limits[nc.Name] = nc
		n.nodes = append(n.nodes, inventory.Node{Name: nc.Name, Endpoint: nc.Endpoint, SourceHost: nc.SourceHost})
	}
	importLog := logger.Named("import")
	n.importer = inventory.NewImporter(n.store, inventory.Config{Concurrency: cfg.Import.Concurrency}, importLog, metrics).
		WithDialer(func(node inventory.Node) inventory.Caller {
			nc := limits[node.Name]
			return rpc.NewClient(node.Endpoint,
				rpc.WithTimeout(cfg.RPC.Timeout),
				rpc.WithRetry(cfg.RPC.MaxTries),
				rpc.WithRateLimit(nc.RateLimit, nc.Burst),
				rpc.WithLogger(importLog),
				rpc.WithMetrics(metrics))
		})

	return n, nil
}

func (n *Node) openEventLog(ctx context.Context) (*settlement.SQLEventLog, error) {
	if n.events != nil {
		return n.events, nil
	}
	events, err := settlement.OpenSQLiteEventLog(ctx, n.cfg.Settlement.EventLogPath)
	if err != nil {
		return nil, err
	}
	n.events = events
	return events, nil
}

// Start launches the servers and the import loop
func (n *Node) Start(ctx context.Context) error {
	n.log.Info("starting node",
		log.String("source_host", n.cfg.SourceHost),
		log.String("storage", n.storage.Backend()),
		log.Int("nodes", len(n.nodes)))

	n.opsServer = &http.Server{
		Addr:              n.cfg.Listen.OpsAddr,
		Handler:           n.setupOpsRoutes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	n.rpcServer = &http.Server{
		Addr:              n.cfg.Listen.RPCAddr,
		Handler:           n.setupRPCRoutes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	for name, srv := range map[string]*http.Server{"ops": n.opsServer, "rpc": n.rpcServer} {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.log.Info("server listening", log.String("server", name), log.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				n.log.Error("server error", log.String("server", name), log.Error(err))
			}
		}()
	}

	if len(n.nodes) > 0 {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.runImportLoop(ctx)
		}()
	}
	return nil
}

func (n *Node) runImportLoop(ctx context.Context) {
	ticker := time.NewTicker(n.cfg.Import.Interval)
	defer ticker.Stop()

	n.ImportAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.ImportAll(ctx)
		}
	}
}

// ImportAll runs one import pass over every configured node
func (n *Node) ImportAll(ctx context.Context) {
	results := n.importer.ImportAll(ctx, n.nodes)
	for _, r := range results {
		if r.Err != nil {
			n.log.Warn("node import failed", log.String("node", r.Node), log.Error(r.Err))
		}
	}

	n.mu.Lock()
	n.lastImport = time.Now()
	n.results = results
	n.mu.Unlock()
}

// Settle runs one settlement window to completion and logs the totals
func (n *Node) Settle(ctx context.Context, kind settlement.Kind, first, last int64) error {
	events, err := n.openEventLog(ctx)
	if err != nil {
		return err
	}
	run, err := settlement.NewRun(kind, first, last, n.cfg.Settlement.PageSize)
	if err != nil {
		return err
	}

	res, err := settlement.NewRunner(events, n.log.Named("settlement"), n.metrics).Run(ctx, run)
	if err != nil {
		return err
	}

	value, fee := res.Decimal(n.cfg.Settlement.CurrencyScale)
	n.log.Info("settlement totals",
		log.String("kind", string(kind)),
		log.Int("events", run.Events),
		log.String("event_value", value.String()),
		log.String("license_fee", fee.String()))
	return nil
}

// Shutdown stops the servers and waits for background work
func (n *Node) Shutdown(ctx context.Context) error {
	var errs []error
	for _, srv := range []*http.Server{n.opsServer, n.rpcServer} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	n.wg.Wait()
	return errors.Join(errs...)
}

// Close releases storage and the event log
func (n *Node) Close() {
	if n.events != nil {
		if err := n.events.Close(); err != nil {
			n.log.Warn("close event log", log.Error(err))
		}
	}
	if err := n.storage.Close(); err != nil {
		n.log.Warn("close storage", log.Error(err))
	}
}

// setupOpsRoutes sets up health, metrics and status routes
func (n *Node) setupOpsRoutes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", n.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", n.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/inventory/deleted", n.handleDeleted).Methods(http.MethodGet)
	r.HandleFunc("/openrtb2/auction", n.handleAuction).Methods(http.MethodPost)
	r.Handle("/metrics", promhttp.HandlerFor(n.metrics.GetGatherer(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return r
}

// setupRPCRoutes mounts the JSON-RPC procedures other nodes call
func (n *Node) setupRPCRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	server := rpc.NewServer(n.log.Named("rpc"))
	inventory.RegisterService(server, n.store, n.cfg.SourceHost)
	classify.RegisterService(server, n.verifier, n.classifier)
	return rpc.NewRouter(server, n.cfg.Listen.RPCPath, n.cfg.Listen.AllowOrigins)
}

func (n *Node) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := n.storage.HealthCheck(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "source_host": n.cfg.SourceHost})
}

type nodeStatus struct {
	Name    string `json:"name"`
	Saved   int    `json:"saved"`
	Failed  int    `json:"failed"`
	Deleted int    `json:"deleted"`
	Error   string `json:"error,omitempty"`
}

func (n *Node) handleStatus(w http.ResponseWriter, _ *http.Request) {
	n.mu.RLock()
	status := struct {
		Version    string       `json:"version"`
		Storage    string       `json:"storage"`
		LastImport time.Time    `json:"last_import"`
		Nodes      []nodeStatus `json:"nodes"`
	}{
		Version:    Version,
		Storage:    n.storage.Backend(),
		LastImport: n.lastImport,
		Nodes:      make([]nodeStatus, 0, len(n.results)),
	}
	for _, r := range n.results {
		ns := nodeStatus{Name: r.Node, Saved: r.Saved, Failed: r.Failed, Deleted: r.Deleted}
		if r.Err != nil {
			ns.Error = r.Err.Error()
		}
		status.Nodes = append(status.Nodes, ns)
	}
	n.mu.RUnlock()

	writeJSON(w, http.StatusOK, status)
}

func (n *Node) handleDeleted(w http.ResponseWriter, r *http.Request) {
	campaigns, err := n.store.FetchCampaignsToDelete(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, campaigns)
}

func (n *Node) handleAuction(w http.ResponseWriter, r *http.Request) {
	var req openrtb2.BidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	resp, err := n.exchange.BidRequest(r.Context(), &req)
	switch {
	case errors.Is(err, rtb.ErrEmptyRequest):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	case len(resp.SeatBid) == 0:
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
