// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package classify

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/luxfi/crypto/hashing"
	"golang.org/x/crypto/hkdf"
)

const (
	keywordDelimiter  = "_"
	bannerIDDelimiter = "."

	// SignatureHexLength is the length of a hex encoded Ed25519 signature
	SignatureHexLength = 2 * ed25519.SignatureSize

	hkdfInfoPrefix = "adxfed/classification/"
)

var ErrInvalidKey = errors.New("invalid classifier key")

// MessageHash builds the signed message: the lowercase hex SHA-256 of the
// keywords joined by "_", a ".", and the banner id. Signatures are portable
// across nodes, so this construction must not change.
func MessageHash(keywords []string, bannerID string) []byte {
	sum := hashing.ComputeHash256([]byte(strings.Join(keywords, keywordDelimiter) + bannerIDDelimiter + bannerID))
	out := make([]byte, hex.EncodedLen(len(sum)))
	hex.Encode(out, sum)
	return out
}

// Signer signs classification messages with an Ed25519 key
type Signer struct {
	privKey ed25519.PrivateKey
	pubKey  ed25519.PublicKey
}

// GenerateSigner creates a signer with a random key
func GenerateSigner() (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("key generation failed: %w", err)
	}
	return &Signer{privKey: priv, pubKey: pub}, nil
}

// NewSigner wraps an existing private key
func NewSigner(priv ed25519.PrivateKey) (*Signer, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: private key size %d", ErrInvalidKey, len(priv))
	}
	return &Signer{
		privKey: priv,
		pubKey:  priv.Public().(ed25519.PublicKey),
	}, nil
}

// NewSignerFromSeedHex builds a signer from a hex encoded 32-byte seed
func NewSignerFromSeedHex(seedHex string) (*Signer, error) {
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed size %d", ErrInvalidKey, len(seed))
	}
	return NewSigner(ed25519.NewKeyFromSeed(seed))
}

// DeriveSigner derives a per-namespace key from a master secret with
// HKDF-SHA256, so one operator secret can back several classifiers.
func DeriveSigner(masterSecret []byte, namespace string) (*Signer, error) {
	if len(masterSecret) < 16 {
		return nil, fmt.Errorf("%w: master secret shorter than 16 bytes", ErrInvalidKey)
	}
	if namespace == "" {
		return nil, fmt.Errorf("%w: empty namespace", ErrInvalidKey)
	}
	seed := make([]byte, ed25519.SeedSize)
	r := hkdf.New(sha256.New, masterSecret, nil, []byte(hkdfInfoPrefix+namespace))
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, fmt.Errorf("derive seed: %w", err)
	}
	return NewSigner(ed25519.NewKeyFromSeed(seed))
}

// PublicKey returns the hex encoded public key
func (s *Signer) PublicKey() string {
	return hex.EncodeToString(s.pubKey)
}

// Sign signs the message derived from keywords and bannerID
func (s *Signer) Sign(keywords []string, bannerID string) string {
	return hex.EncodeToString(ed25519.Sign(s.privKey, MessageHash(keywords, bannerID)))
}

// SignClassification attaches a signature to an unsigned classification
func (s *Signer) SignClassification(c *Classification) error {
	if c.IsSigned() {
		return ErrAlreadySigned
	}
	c.Signature = s.Sign(c.Keywords(), c.BannerID)
	return nil
}

// Verify checks a detached signature. It never fails loudly: malformed hex,
// keys or signatures of the wrong size all yield false.
func Verify(publicKeyHex, signatureHex string, keywords []string, bannerID string) bool {
	if len(signatureHex) != SignatureHexLength {
		return false
	}
	pub, err := hex.DecodeString(publicKeyHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), MessageHash(keywords, bannerID), sig)
}
