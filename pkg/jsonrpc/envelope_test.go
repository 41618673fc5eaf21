// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func respond(t *testing.T, id string, result any) []byte {
	t.Helper()
	rawID, err := json.Marshal(id)
	require.NoError(t, err)
	resp, err := NewResult(rawID, result)
	require.NoError(t, err)
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	return data
}

func TestNewRequestEncode(t *testing.T) {
	require := require.New(t)

	req, err := NewRequest("inventory_list", "host-a", 3)
	require.NoError(err)
	require.Equal(Version, req.JSONRPC)
	require.Len(req.ID, 36)

	data, err := Encode(req)
	require.NoError(err)

	var wire map[string]any
	require.NoError(json.Unmarshal(data, &wire))
	require.Equal("2.0", wire["jsonrpc"])
	require.Equal(req.ID, wire["id"])
	require.Equal("inventory_list", wire["method"])
	require.Equal([]any{"host-a", 3.0}, wire["params"])
}

func TestEncodeWithoutParamsSendsEmptyArray(t *testing.T) {
	require := require.New(t)

	req, err := NewRequest("ping")
	require.NoError(err)
	data, err := Encode(req)
	require.NoError(err)
	require.Contains(string(data), `"params":[]`)
}

func TestNewRequestRejectsEmptyMethod(t *testing.T) {
	_, err := NewRequest("")
	require.ErrorIs(t, err, ErrEmptyMethod)
}

func TestRequestIDsAreUnique(t *testing.T) {
	require := require.New(t)

	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		req, err := NewRequest("ping")
		require.NoError(err)
		_, dup := seen[req.ID]
		require.False(dup)
		seen[req.ID] = struct{}{}
	}
}

func TestDecodeMatchingID(t *testing.T) {
	require := require.New(t)

	req, err := NewRequest("inventory_list")
	require.NoError(err)

	resp, err := Decode(req.ID, respond(t, req.ID, map[string]int{"count": 2}))
	require.NoError(err)
	require.NoError(resp.Err())
	require.JSONEq(`{"count":2}`, string(resp.Result))
}

func TestDecodeNullResultIsSuccess(t *testing.T) {
	require := require.New(t)

	resp, err := Decode("abc", []byte(`{"jsonrpc":"2.0","id":"abc","result":null}`))
	require.NoError(err)
	require.Nil(resp.Error)
}

func TestDecodeMismatchedID(t *testing.T) {
	require := require.New(t)

	_, err := Decode("sent-1", respond(t, "other-2", true))
	require.ErrorIs(err, ErrMismatchedID)

	var mismatch *MismatchedIDError
	require.True(errors.As(err, &mismatch))
	require.Equal("sent-1", mismatch.Sent)
	require.Equal("other-2", mismatch.Got)
}

func TestDecodeNumericIDKeepsJSONText(t *testing.T) {
	var mismatch *MismatchedIDError
	_, err := Decode("7", []byte(`{"jsonrpc":"2.0","id":8,"result":1}`))
	require.True(t, errors.As(err, &mismatch))
	require.Equal(t, "8", mismatch.Got)
}

func TestDecodeChecksIDBeforeBody(t *testing.T) {
	// both result and error present would be malformed, but the id wins
	_, err := Decode("a", []byte(`{"jsonrpc":"2.0","id":"b","result":1,"error":{"code":1,"message":"x"}}`))
	require.ErrorIs(t, err, ErrMismatchedID)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `<html>502</html>`},
		{"wrong version", `{"jsonrpc":"1.0","id":"a","result":1}`},
		{"missing id", `{"jsonrpc":"2.0","result":1}`},
		{"neither member", `{"jsonrpc":"2.0","id":"a"}`},
		{"both members", `{"jsonrpc":"2.0","id":"a","result":1,"error":{"code":1,"message":"x"}}`},
		{"array", `[1,2]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			_, err := Decode("a", []byte(tt.payload))
			require.ErrorIs(err, ErrMalformedResponse)

			var malformed *MalformedResponseError
			require.True(errors.As(err, &malformed))
			require.Equal(tt.payload, string(malformed.Raw))
		})
	}
}

func TestDecodeErrorMember(t *testing.T) {
	require := require.New(t)

	resp, err := Decode("a", []byte(`{"jsonrpc":"2.0","id":"a","error":{"code":-32601,"message":"no such method"}}`))
	require.NoError(err)

	var rpcErr *Error
	require.True(errors.As(resp.Err(), &rpcErr))
	require.Equal(CodeMethodNotFound, rpcErr.Code)
	require.Equal("no such method", rpcErr.Message)
}

func TestRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("matching id always decodes", prop.ForAll(
		func(method string, value string) bool {
			if method == "" {
				return true
			}
			req, err := NewRequest(method, value)
			if err != nil {
				return false
			}
			resp, err := Decode(req.ID, respond(t, req.ID, value))
			if err != nil {
				return false
			}
			var got string
			return json.Unmarshal(resp.Result, &got) == nil && got == value
		},
		gen.AlphaString(),
		gen.AnyString(),
	))

	properties.Property("different id always mismatches", prop.ForAll(
		func(other string) bool {
			req, err := NewRequest("ping")
			if err != nil || other == req.ID {
				return true
			}
			_, err = Decode(req.ID, respond(t, other, 1))
			var mismatch *MismatchedIDError
			return errors.As(err, &mismatch) && mismatch.Sent == req.ID && mismatch.Got == other
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
