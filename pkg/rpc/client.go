// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/luxfi/adxfed/pkg/jsonrpc"
	"github.com/luxfi/adxfed/pkg/log"
	"github.com/luxfi/adxfed/pkg/metric"
)

// DefaultTimeout bounds a single call when the caller sets no deadline
const DefaultTimeout = 10 * time.Second

// UserAgent identifies federation nodes to the nodes they call
const UserAgent = "adxfed-rpc/1"

// Client calls procedures on one remote node. Calls are independent: each
// owns its correlation id and response buffer, so a Client may be shared by
// goroutines.
type Client struct {
	endpoint  string
	transport Transport
	timeout   time.Duration
	limiter   *rate.Limiter
	maxTries  uint
	log       log.Logger
	metrics   *metric.Metrics
}

// Option configures a Client
type Option func(*Client)

// WithTransport replaces the default HTTP transport
func WithTransport(t Transport) Option {
	return func(c *Client) { c.transport = t }
}

// WithTimeout bounds every call
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRateLimit paces calls to the node
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond > 0 {
			if burst < 1 {
				burst = 1
			}
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithRetry retries transport failures up to maxTries attempts in total.
// Every attempt is a new request with a new correlation id.
func WithRetry(maxTries uint) Option {
	return func(c *Client) { c.maxTries = maxTries }
}

// WithLogger sets the client logger
func WithLogger(l log.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithMetrics records call outcomes
func WithMetrics(m *metric.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a client for the node listening at endpoint
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		timeout:  DefaultTimeout,
		maxTries: 1,
		log:      log.NoOp(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		t := NewHTTPTransport(0)
		t.SetHeader("User-Agent", UserAgent)
		c.transport = t
	}
	c.log = c.log.With(log.String("endpoint", endpoint))
	return c
}

// Call invokes method with params and returns the raw result
func (c *Client) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if c.maxTries <= 1 {
		return c.call(ctx, method, params)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second

	var (
		attempts int
		lastErr  error
	)
	operation := func() (json.RawMessage, error) {
		attempts++
		result, err := c.call(ctx, method, params)
		lastErr = err
		if err != nil && !IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return result, err
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.maxTries),
	)
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}

	// The context can end while waiting between attempts, in which case
	// the retry loop reports the bare context error.
	var te *TransportError
	if err != nil && ctx.Err() != nil && !errors.As(err, &te) {
		te = &TransportError{Message: fmt.Sprintf("%s after %d attempts", ctx.Err(), attempts), Err: ctx.Err()}
		var last *TransportError
		if errors.As(lastErr, &last) {
			te.Code = last.Code
			te.Message = fmt.Sprintf("%s; last attempt: %s", te.Message, last.Message)
		}
		err = te
	}
	return result, err
}

// CallInto invokes method and decodes the result into out
func (c *Client) CallInto(ctx context.Context, method string, out any, params ...any) error {
	result, err := c.Call(ctx, method, params...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(result, out); err != nil {
		return &jsonrpc.MalformedResponseError{Raw: result, Err: fmt.Errorf("decode %s result: %w", method, err)}
	}
	return nil
}

func (c *Client) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	start := time.Now()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.metrics.ObserveRPC(method, "transport_error", time.Since(start))
			return nil, &TransportError{Message: "rate limit wait: " + err.Error(), Err: err}
		}
	}

	req, err := jsonrpc.NewRequest(method, params...)
	if err != nil {
		return nil, err
	}
	body, err := jsonrpc.Encode(req)
	if err != nil {
		return nil, err
	}

	raw, err := c.transport.Send(ctx, c.endpoint, body)
	if err != nil {
		c.metrics.ObserveRPC(method, "transport_error", time.Since(start))
		te := &TransportError{Message: err.Error(), Err: err}
		var status *StatusError
		if errors.As(err, &status) {
			te.Code = status.StatusCode
		}
		c.log.Debug("call failed",
			log.String("method", method),
			log.String("id", req.ID),
			log.Error(err))
		return nil, te
	}

	resp, err := jsonrpc.Decode(req.ID, raw)
	if err != nil {
		c.metrics.ObserveRPC(method, "protocol_error", time.Since(start))
		c.log.Error("undecodable response",
			log.String("method", method),
			log.String("id", req.ID),
			log.ByteString("payload", truncate(raw, 4096)),
			log.Error(err))
		return nil, err
	}

	if resp.Error != nil {
		c.metrics.ObserveRPC(method, "procedure_error", time.Since(start))
		return nil, &ProcedureError{
			Method:  method,
			Code:    resp.Error.Code,
			Message: resp.Error.Message,
		}
	}

	c.metrics.ObserveRPC(method, "ok", time.Since(start))
	return resp.Result, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
