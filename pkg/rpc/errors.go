// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrTransport = errors.New("rpc: transport failure")
	ErrProcedure = errors.New("rpc: remote procedure error")
)

// TransportError means the node could not be reached or answered outside the
// protocol: refused connection, timeout, TLS failure, non-2xx status.
// Callers may retry it with backoff.
type TransportError struct {
	Message string
	Code    int // HTTP status when the node answered, 0 otherwise
	Err     error
}

func (e *TransportError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: %s (status %d)", ErrTransport, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", ErrTransport, e.Message)
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// Unwrap only exposes context cancellation so the transport's own error
// types stay hidden from callers.
func (e *TransportError) Unwrap() error {
	if errors.Is(e.Err, context.Canceled) {
		return context.Canceled
	}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return context.DeadlineExceeded
	}
	return nil
}

// ProcedureError means the node answered with a well formed envelope that
// rejected the call.
type ProcedureError struct {
	Method  string
	Code    int
	Message string
}

func (e *ProcedureError) Error() string {
	return fmt.Sprintf("%s: %s: %d %s", ErrProcedure, e.Method, e.Code, e.Message)
}

func (e *ProcedureError) Is(target error) bool {
	return target == ErrProcedure
}

// IsRetryable reports whether err is worth retrying with a fresh request
func IsRetryable(err error) bool {
	var te *TransportError
	if !errors.As(err, &te) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}
