// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package classify

import (
	"context"
	"encoding/json"

	"github.com/luxfi/adxfed/pkg/jsonrpc"
	"github.com/luxfi/adxfed/pkg/rpc"
)

const (
	// MethodFilterTrusted takes [classifications] and returns the trusted ones
	MethodFilterTrusted = "classification_filter_trusted"
	// MethodPublicKey returns this node's classifier namespace and key
	MethodPublicKey = "classification_public_key"
)

// KeyInfo publishes a classifier's verification key
type KeyInfo struct {
	Namespace string `json:"namespace"`
	PublicKey string `json:"public_key"`
}

// PublicKey returns the hex encoded key claims are signed with
func (c *Classifier) PublicKey() string {
	return c.signer.PublicKey()
}

// RegisterService exposes the verifier, and the local classifier when one is
// configured, on an rpc server.
func RegisterService(s *rpc.Server, v *Verifier, local *Classifier) {
	s.Register(MethodFilterTrusted, func(_ context.Context, params json.RawMessage) (any, error) {
		var cs []Classification
		if err := rpc.DecodeParams(params, &cs); err != nil {
			return nil, err
		}
		return v.FilterTrusted(cs), nil
	})

	s.Register(MethodPublicKey, func(context.Context, json.RawMessage) (any, error) {
		if local == nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeMethodNotFound, Message: "no local classifier"}
		}
		return KeyInfo{Namespace: local.Namespace(), PublicKey: local.PublicKey()}, nil
	})
}
