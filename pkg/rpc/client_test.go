// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/adxfed/pkg/jsonrpc"
	"github.com/luxfi/adxfed/pkg/log"
	"github.com/luxfi/adxfed/pkg/metric"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type transportFunc func(ctx context.Context, url string, body []byte) ([]byte, error)

func (f transportFunc) Send(ctx context.Context, url string, body []byte) ([]byte, error) {
	return f(ctx, url, body)
}

func newTestNode(t *testing.T) *httptest.Server {
	t.Helper()

	server := NewServer(log.NoOp())
	server.Register("echo", func(_ context.Context, params json.RawMessage) (any, error) {
		var s string
		var n int
		if err := DecodeParams(params, &s, &n); err != nil {
			return nil, err
		}
		return map[string]any{"s": s, "n": n}, nil
	})
	server.Register("reject", func(context.Context, json.RawMessage) (any, error) {
		return nil, &jsonrpc.Error{Code: 4001, Message: "campaigns locked"}
	})
	server.Register("explode", func(context.Context, json.RawMessage) (any, error) {
		return nil, errors.New("database gone")
	})

	ts := httptest.NewServer(NewRouter(server, "/rpc", nil))
	t.Cleanup(ts.Close)
	return ts
}

func TestClientCallRoundTrip(t *testing.T) {
	require := require.New(t)
	ts := newTestNode(t)

	m, err := metric.NewMetrics()
	require.NoError(err)

	client := NewClient(ts.URL+"/rpc", WithMetrics(m))

	var out struct {
		S string `json:"s"`
		N int    `json:"n"`
	}
	require.NoError(client.CallInto(context.Background(), "echo", &out, "hello", 7))
	require.Equal("hello", out.S)
	require.Equal(7, out.N)
}

func TestClientProcedureError(t *testing.T) {
	require := require.New(t)
	client := NewClient(newTestNode(t).URL + "/rpc")

	_, err := client.Call(context.Background(), "reject")
	require.ErrorIs(err, ErrProcedure)
	require.NotErrorIs(err, ErrTransport)

	var procErr *ProcedureError
	require.True(errors.As(err, &procErr))
	require.Equal(4001, procErr.Code)
	require.Equal("campaigns locked", procErr.Message)
	require.False(IsRetryable(err))

	_, err = client.Call(context.Background(), "missing")
	require.True(errors.As(err, &procErr))
	require.Equal(jsonrpc.CodeMethodNotFound, procErr.Code)

	_, err = client.Call(context.Background(), "explode")
	require.True(errors.As(err, &procErr))
	require.Equal(jsonrpc.CodeInternalError, procErr.Code)

	_, err = client.Call(context.Background(), "echo", "a", 1, "extra")
	require.True(errors.As(err, &procErr))
	require.Equal(jsonrpc.CodeInvalidParams, procErr.Code)
}

func TestClientStatusIsTransportError(t *testing.T) {
	require := require.New(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL).Call(context.Background(), "echo")
	require.ErrorIs(err, ErrTransport)

	var te *TransportError
	require.True(errors.As(err, &te))
	require.Equal(http.StatusServiceUnavailable, te.Code)

	var status *StatusError
	require.False(errors.As(err, &status), "transport error types must not leak")
	require.True(IsRetryable(err))
}

func TestClientUnreachableNode(t *testing.T) {
	require := require.New(t)

	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := NewClient(url).Call(context.Background(), "echo")
	var te *TransportError
	require.True(errors.As(err, &te))
	require.Zero(te.Code)
}

func TestClientTimeout(t *testing.T) {
	require := require.New(t)

	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	_, err := NewClient(ts.URL, WithTimeout(50*time.Millisecond)).Call(context.Background(), "slow")
	require.ErrorIs(err, ErrTransport)
	require.ErrorIs(err, context.DeadlineExceeded)
}

func TestClientMismatchedID(t *testing.T) {
	require := require.New(t)

	transport := transportFunc(func(context.Context, string, []byte) ([]byte, error) {
		return []byte(`{"jsonrpc":"2.0","id":"not-yours","result":1}`), nil
	})

	_, err := NewClient("node", WithTransport(transport)).Call(context.Background(), "echo")
	require.ErrorIs(err, jsonrpc.ErrMismatchedID)

	var mismatch *jsonrpc.MismatchedIDError
	require.True(errors.As(err, &mismatch))
	require.Equal("not-yours", mismatch.Got)
	require.NotEmpty(mismatch.Sent)
	require.False(IsRetryable(err))
}

func TestClientMalformedResponse(t *testing.T) {
	transport := transportFunc(func(context.Context, string, []byte) ([]byte, error) {
		return []byte(`<html>bad gateway</html>`), nil
	})

	_, err := NewClient("node", WithTransport(transport)).Call(context.Background(), "echo")
	require.ErrorIs(t, err, jsonrpc.ErrMalformedResponse)
}

// echoTransport answers every request with its own id
func echoTransport(attempts *atomic.Int32, failFirst int32, ids *sync.Map) transportFunc {
	return func(_ context.Context, _ string, body []byte) ([]byte, error) {
		var req jsonrpc.Request
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, err
		}
		if ids != nil {
			ids.Store(req.ID, struct{}{})
		}
		n := attempts.Add(1)
		if n <= failFirst {
			return nil, fmt.Errorf("connection refused")
		}
		return []byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%q,"result":%d}`, req.ID, n)), nil
	}
}

func TestClientRetriesTransportErrors(t *testing.T) {
	require := require.New(t)

	var attempts atomic.Int32
	var ids sync.Map
	client := NewClient("node", WithTransport(echoTransport(&attempts, 2, &ids)), WithRetry(3))

	result, err := client.Call(context.Background(), "echo")
	require.NoError(err)
	require.JSONEq("3", string(result))
	require.EqualValues(3, attempts.Load())

	distinct := 0
	ids.Range(func(any, any) bool { distinct++; return true })
	require.Equal(3, distinct, "each attempt uses a fresh correlation id")
}

func TestClientRetryGivesUp(t *testing.T) {
	require := require.New(t)

	var attempts atomic.Int32
	client := NewClient("node", WithTransport(echoTransport(&attempts, 10, nil)), WithRetry(2))

	_, err := client.Call(context.Background(), "echo")
	require.ErrorIs(err, ErrTransport)
	require.EqualValues(2, attempts.Load())
}

func TestClientRetryDeadlineDuringBackoff(t *testing.T) {
	require := require.New(t)

	var attempts atomic.Int32
	client := NewClient("node", WithTransport(echoTransport(&attempts, 100, nil)), WithRetry(5))

	// The first wait between attempts outlasts the deadline
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.Call(ctx, "echo")

	var te *TransportError
	require.True(errors.As(err, &te), "got %T: %v", err, err)
	require.ErrorIs(err, ErrTransport)
	require.ErrorIs(err, context.DeadlineExceeded)
	require.True(IsRetryable(err))
	require.Contains(te.Message, "connection refused")
	require.EqualValues(1, attempts.Load())
}

func TestClientRetryCanceledDuringBackoff(t *testing.T) {
	require := require.New(t)

	var attempts atomic.Int32
	client := NewClient("node", WithTransport(echoTransport(&attempts, 100, nil)), WithRetry(5))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	_, err := client.Call(ctx, "echo")

	require.ErrorIs(err, ErrTransport)
	require.ErrorIs(err, context.Canceled)
	require.False(IsRetryable(err))
}

func TestHTTPTransportSendsUserAgent(t *testing.T) {
	require := require.New(t)

	agents := make(chan string, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents <- r.Header.Get("User-Agent")
		var req jsonrpc.Request
		_ = json.NewDecoder(r.Body).Decode(&req)
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%q,"result":true}`, req.ID)
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL).Call(context.Background(), "ping")
	require.NoError(err)
	require.Equal(UserAgent, <-agents)
}

func TestClientDoesNotRetryProcedureErrors(t *testing.T) {
	require := require.New(t)

	var attempts atomic.Int32
	transport := transportFunc(func(_ context.Context, _ string, body []byte) ([]byte, error) {
		attempts.Add(1)
		var req jsonrpc.Request
		require.NoError(json.Unmarshal(body, &req))
		return []byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%q,"error":{"code":1,"message":"no"}}`, req.ID)), nil
	})

	_, err := NewClient("node", WithTransport(transport), WithRetry(5)).Call(context.Background(), "echo")
	require.ErrorIs(err, ErrProcedure)
	require.EqualValues(1, attempts.Load())
}

func TestClientConcurrentCalls(t *testing.T) {
	require := require.New(t)
	client := NewClient(newTestNode(t).URL+"/rpc", WithRateLimit(1000, 50))

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var out struct {
				N int `json:"n"`
			}
			if err := client.CallInto(context.Background(), "echo", &out, "x", i); err != nil {
				errs <- err
				return
			}
			if out.N != i {
				errs <- fmt.Errorf("call %d got %d", i, out.N)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(err)
	}
}

func TestServerDispatchInvalidRequests(t *testing.T) {
	require := require.New(t)
	server := NewServer(nil)

	resp := server.Dispatch(context.Background(), []byte(`{nope`))
	require.Equal(jsonrpc.CodeParseError, resp.Error.Code)
	require.JSONEq("null", string(resp.ID))

	resp = server.Dispatch(context.Background(), []byte(`{"jsonrpc":"1.0","id":"1","method":"x"}`))
	require.Equal(jsonrpc.CodeInvalidRequest, resp.Error.Code)
	require.JSONEq(`"1"`, string(resp.ID))
}
