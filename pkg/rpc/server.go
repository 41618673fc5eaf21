// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/luxfi/adxfed/pkg/jsonrpc"
	"github.com/luxfi/adxfed/pkg/log"
)

// HandlerFunc serves one procedure. Returning a *jsonrpc.Error controls the
// error code sent back; any other error becomes an internal error.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// incoming is the server-side view of a request; id and params stay raw
type incoming struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Server dispatches JSON-RPC requests to registered procedures
type Server struct {
	mu      sync.RWMutex
	methods map[string]HandlerFunc
	log     log.Logger
}

// NewServer creates an empty procedure table
func NewServer(logger log.Logger) *Server {
	if logger == nil {
		logger = log.NoOp()
	}
	return &Server{
		methods: make(map[string]HandlerFunc),
		log:     logger,
	}
}

// Register binds method to h, replacing any previous handler
func (s *Server) Register(method string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods[method] = h
}

// Dispatch decodes body, runs the procedure and builds the response
func (s *Server) Dispatch(ctx context.Context, body []byte) *jsonrpc.Response {
	var req incoming
	if err := json.Unmarshal(body, &req); err != nil {
		return jsonrpc.NewErrorResponse(nil, jsonrpc.CodeParseError, "parse error")
	}
	if req.JSONRPC != jsonrpc.Version || req.Method == "" || len(req.ID) == 0 {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInvalidRequest, "invalid request")
	}

	s.mu.RLock()
	h, ok := s.methods[req.Method]
	s.mu.RUnlock()
	if !ok {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeMethodNotFound, "method not found: "+req.Method)
	}

	result, err := h(ctx, req.Params)
	if err != nil {
		var rpcErr *jsonrpc.Error
		if errors.As(err, &rpcErr) {
			return jsonrpc.NewErrorResponse(req.ID, rpcErr.Code, rpcErr.Message)
		}
		s.log.Warn("procedure failed", log.String("method", req.Method), log.Error(err))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInternalError, err.Error())
	}

	resp, err := jsonrpc.NewResult(req.ID, result)
	if err != nil {
		s.log.Error("encode result", log.String("method", req.Method), log.Error(err))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInternalError, "encode result")
	}
	return resp
}

// Handle is the gin handler for the RPC endpoint
func (s *Server) Handle(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, jsonrpc.NewErrorResponse(nil, jsonrpc.CodeParseError, "read body"))
		return
	}
	c.JSON(http.StatusOK, s.Dispatch(c.Request.Context(), body))
}

// NewRouter mounts the server at path on a gin engine. allowOrigins enables
// CORS for browser based node dashboards; empty disables it.
func NewRouter(s *Server, path string, allowOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	if len(allowOrigins) > 0 {
		config := cors.DefaultConfig()
		config.AllowOrigins = allowOrigins
		config.AllowMethods = []string{http.MethodPost, http.MethodOptions}
		config.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
		router.Use(cors.New(config))
	}

	router.POST(path, s.Handle)
	return router
}

// DecodeParams unpacks positional params into args. Trailing params may be
// omitted by the caller; extra params are rejected.
func DecodeParams(raw json.RawMessage, args ...any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: "params must be an array"}
	}
	if len(items) > len(args) {
		return &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: "too many params"}
	}
	for i, item := range items {
		if err := json.Unmarshal(item, args[i]); err != nil {
			return &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
		}
	}
	return nil
}
