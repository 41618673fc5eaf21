// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedResponse = errors.New("jsonrpc: malformed response")
	ErrMismatchedID      = errors.New("jsonrpc: mismatched correlation id")
)

// MalformedResponseError keeps the raw payload for diagnosis
type MalformedResponseError struct {
	Raw []byte
	Err error
}

func malformed(raw []byte, err error) *MalformedResponseError {
	return &MalformedResponseError{Raw: append([]byte(nil), raw...), Err: err}
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: %v", ErrMalformedResponse, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

func (e *MalformedResponseError) Is(target error) bool {
	return target == ErrMalformedResponse
}

// MismatchedIDError reports a response answering a different request
type MismatchedIDError struct {
	Sent string
	Got  string
}

func (e *MismatchedIDError) Error() string {
	return fmt.Sprintf("%s: sent %q, got %q", ErrMismatchedID, e.Sent, e.Got)
}

func (e *MismatchedIDError) Is(target error) bool {
	return target == ErrMismatchedID
}
