// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxResponseBytes bounds how much of a node's reply is buffered
const maxResponseBytes = 32 << 20

// Transport performs one blocking request/response exchange
type Transport interface {
	Send(ctx context.Context, url string, body []byte) ([]byte, error)
}

// StatusError is returned by HTTPTransport for non-2xx replies
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// HTTPTransport posts JSON bodies over HTTP
type HTTPTransport struct {
	httpClient *http.Client
	headers    http.Header
}

// NewHTTPTransport creates a transport. A zero timeout leaves the bound to
// the request context.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	if timeout < 0 {
		timeout = 0
	}
	return &HTTPTransport{
		httpClient: &http.Client{Timeout: timeout},
		headers:    http.Header{},
	}
}

// SetHeader adds a header sent with every request
func (t *HTTPTransport) SetHeader(key, value string) {
	t.headers.Set(key, value)
}

// Send posts body to url and returns the response body
func (t *HTTPTransport) Send(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for k, v := range t.headers {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: data}
	}
	return data, nil
}
