// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package classify issues and verifies signed content-classification claims
// about banners. A claim is a keyword of the form
// namespace:publisherId[:siteId]:status signed with the classifier's Ed25519 key.
package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAlreadySigned = errors.New("classification already signed")
	ErrInvalidStatus = errors.New("invalid classification status")
	ErrMissingField  = errors.New("classification field missing")
)

// Status is the policy decision for a banner
type Status int

const (
	StatusUnclassified Status = iota
	StatusApproved
	StatusRejected
)

// String renders the status the way it appears inside a keyword
func (s Status) String() string {
	switch s {
	case StatusApproved:
		return "1"
	case StatusRejected:
		return "0"
	default:
		return "unclassified"
	}
}

// ParseStatus accepts keyword renderings and their long names
func ParseStatus(s string) (Status, error) {
	switch s {
	case "1", "true", "approved":
		return StatusApproved, nil
	case "0", "false", "rejected":
		return StatusRejected, nil
	case "unclassified", "":
		return StatusUnclassified, nil
	}
	return StatusUnclassified, fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var text string
	switch v := raw.(type) {
	case bool:
		text = fmt.Sprint(v)
	case float64:
		text = fmt.Sprint(v)
	case string:
		text = v
	default:
		return fmt.Errorf("%w: %s", ErrInvalidStatus, data)
	}
	parsed, err := ParseStatus(text)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Classification is one classifier's claim about a banner for a publisher
// (and optionally a single site of that publisher).
type Classification struct {
	Namespace   string `json:"namespace"`
	PublisherID string `json:"publisher_id"`
	BannerID    string `json:"banner_id"`
	Status      Status `json:"status"`
	SiteID      string `json:"site_id,omitempty"`
	Signature   string `json:"signature,omitempty"`
}

// Claim is the form a classification travels in between nodes
type Claim struct {
	Keyword   string `json:"keyword"`
	Signature string `json:"signature"`
}

// Validate checks the identity fields
func (c *Classification) Validate() error {
	switch {
	case c.Namespace == "":
		return fmt.Errorf("%w: namespace", ErrMissingField)
	case c.PublisherID == "":
		return fmt.Errorf("%w: publisher_id", ErrMissingField)
	case c.BannerID == "":
		return fmt.Errorf("%w: banner_id", ErrMissingField)
	}
	return nil
}

// Keyword derives namespace:publisherId[:siteId]:status
func (c *Classification) Keyword() string {
	parts := []string{c.Namespace, c.PublisherID}
	if c.SiteID != "" {
		parts = append(parts, c.SiteID)
	}
	parts = append(parts, c.Status.String())
	return strings.Join(parts, ":")
}

// Keywords lists the keywords covered by the signature, in signing order
func (c *Classification) Keywords() []string {
	return []string{c.Keyword()}
}

// IsSigned reports whether a signature has been attached
func (c *Classification) IsSigned() bool {
	return c.Signature != ""
}

// Claim returns the wire form of the classification
func (c *Classification) Claim() Claim {
	return Claim{Keyword: c.Keyword(), Signature: c.Signature}
}

// Classifier records local policy decisions and signs them
type Classifier struct {
	namespace string
	signer    *Signer
}

// NewClassifier creates a classifier issuing claims under namespace
func NewClassifier(namespace string, signer *Signer) *Classifier {
	return &Classifier{namespace: namespace, signer: signer}
}

// Namespace returns the classifier namespace
func (c *Classifier) Namespace() string {
	return c.namespace
}

// Classify records an unsigned decision. It must be signed with Issue or a
// Signer before any consumer trusts it.
func (c *Classifier) Classify(publisherID, siteID, bannerID string, status Status) Classification {
	return Classification{
		Namespace:   c.namespace,
		PublisherID: publisherID,
		SiteID:      siteID,
		BannerID:    bannerID,
		Status:      status,
	}
}

// Issue records a decision and signs it
func (c *Classifier) Issue(publisherID, siteID, bannerID string, status Status) (Classification, error) {
	cl := c.Classify(publisherID, siteID, bannerID, status)
	if err := cl.Validate(); err != nil {
		return Classification{}, err
	}
	if err := c.signer.SignClassification(&cl); err != nil {
		return Classification{}, err
	}
	return cl, nil
}
