// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package classify

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/luxfi/adxfed/pkg/log"
	"github.com/luxfi/adxfed/pkg/metric"
)

// Verifier is the trust store of classifier public keys, one per namespace
type Verifier struct {
	mu      sync.RWMutex
	keys    map[string]string // namespace -> public key hex
	log     log.Logger
	metrics *metric.Metrics
}

// NewVerifier creates an empty trust store
func NewVerifier(logger log.Logger, metrics *metric.Metrics) *Verifier {
	if logger == nil {
		logger = log.NoOp()
	}
	return &Verifier{
		keys:    make(map[string]string),
		log:     logger,
		metrics: metrics,
	}
}

// Trust registers the public key for namespace
func (v *Verifier) Trust(namespace, publicKeyHex string) error {
	pub, err := hex.DecodeString(publicKeyHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: namespace %s", ErrInvalidKey, namespace)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.keys[namespace] = publicKeyHex
	return nil
}

// Revoke drops trust in namespace
func (v *Verifier) Revoke(namespace string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.keys, namespace)
}

// PublicKey returns the trusted key for namespace
func (v *Verifier) PublicKey(namespace string) (string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	key, ok := v.keys[namespace]
	return key, ok
}

// Verify reports whether c carries a valid signature from its namespace's
// trusted key. Unsigned classifications and unknown namespaces never verify.
func (v *Verifier) Verify(c Classification) bool {
	if !c.IsSigned() {
		v.metrics.ObserveSignature(false)
		return false
	}
	key, ok := v.PublicKey(c.Namespace)
	if !ok {
		v.metrics.ObserveSignature(false)
		return false
	}
	valid := Verify(key, c.Signature, c.Keywords(), c.BannerID)
	v.metrics.ObserveSignature(valid)
	return valid
}

// FilterTrusted keeps only the classifications that verify
func (v *Verifier) FilterTrusted(cs []Classification) []Classification {
	trusted := make([]Classification, 0, len(cs))
	for _, c := range cs {
		if v.Verify(c) {
			trusted = append(trusted, c)
			continue
		}
		v.log.Warn("rejected untrusted classification",
			log.String("namespace", c.Namespace),
			log.String("banner_id", c.BannerID),
			log.String("keyword", c.Keyword()))
	}
	return trusted
}
