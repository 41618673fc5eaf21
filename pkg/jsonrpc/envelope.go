// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package jsonrpc implements the JSON-RPC 2.0 envelopes exchanged between
// federated exchange nodes: request encoding with fresh correlation ids and
// response decoding with strict id matching.
package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Version is the only protocol version spoken on the wire
const Version = "2.0"

// Standard JSON-RPC 2.0 error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

var ErrEmptyMethod = errors.New("jsonrpc: empty method")

// Request is an outgoing procedure call
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// Response is a decoded reply. Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is the error member of a response
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewID returns a fresh random correlation id
func NewID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate correlation id: %w", err)
	}
	return id.String(), nil
}

// NewRequest builds a request for method with a fresh correlation id
func NewRequest(method string, params ...any) (*Request, error) {
	if method == "" {
		return nil, ErrEmptyMethod
	}
	id, err := NewID()
	if err != nil {
		return nil, err
	}
	if params == nil {
		params = []any{}
	}
	return &Request{
		JSONRPC: Version,
		ID:      id,
		Method:  method,
		Params:  params,
	}, nil
}

// Encode serializes the request envelope
func Encode(req *Request) ([]byte, error) {
	if req.Method == "" {
		return nil, ErrEmptyMethod
	}
	if req.Params == nil {
		req.Params = []any{}
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", req.Method, err)
	}
	return data, nil
}

// Decode parses a response to the request carrying sentID. The id is matched
// before the result or error member is looked at.
func Decode(sentID string, data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, malformed(data, err)
	}
	if resp.JSONRPC != Version {
		return nil, malformed(data, fmt.Errorf("unsupported version %q", resp.JSONRPC))
	}
	if len(resp.ID) == 0 {
		return nil, malformed(data, errors.New("missing id"))
	}

	if got := idText(resp.ID); got != sentID {
		return nil, &MismatchedIDError{Sent: sentID, Got: got}
	}

	hasResult := len(resp.Result) > 0
	hasError := resp.Error != nil
	if hasResult == hasError {
		return nil, malformed(data, errors.New("exactly one of result and error must be present"))
	}
	return &resp, nil
}

// Err returns the error member as a Go error, or nil for a success response
func (r *Response) Err() error {
	if r.Error == nil {
		return nil
	}
	return r.Error
}

// NewResult builds a success response for id
func NewResult(id json.RawMessage, v any) (*Response, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &Response{JSONRPC: Version, ID: id, Result: raw}, nil
}

// NewErrorResponse builds an error response for id
func NewErrorResponse(id json.RawMessage, code int, message string) *Response {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return &Response{
		JSONRPC: Version,
		ID:      id,
		Error:   &Error{Code: code, Message: message},
	}
}

// idText renders a raw id: strings are unquoted, anything else keeps its JSON text
func idText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}
