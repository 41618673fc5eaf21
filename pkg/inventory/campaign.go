// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package inventory imports campaign snapshots from demand nodes and keeps
// them in a keyed store.
package inventory

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidCampaign = errors.New("invalid campaign")
	ErrInvalidBanner   = errors.New("invalid banner")
)

// BannerType is the kind of creative a banner serves
type BannerType string

const (
	BannerImage  BannerType = "image"
	BannerHTML   BannerType = "html"
	BannerDirect BannerType = "direct"
	BannerModel  BannerType = "model"
	BannerVideo  BannerType = "video"
)

// Valid reports whether t is a known banner type
func (t BannerType) Valid() bool {
	switch t {
	case BannerImage, BannerHTML, BannerDirect, BannerModel, BannerVideo:
		return true
	}
	return false
}

// Targeting holds keyword requirements and exclusions by category
type Targeting struct {
	Requires map[string][]string `json:"requires,omitempty"`
	Excludes map[string][]string `json:"excludes,omitempty"`
}

// Banner is one creative of a campaign
type Banner struct {
	ID         string     `json:"id"`
	CampaignID string     `json:"campaign_id,omitempty"`
	ServeURL   string     `json:"serve_url"`
	ClickURL   string     `json:"click_url"`
	ViewURL    string     `json:"view_url"`
	Type       BannerType `json:"type"`
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	Checksum   string     `json:"checksum,omitempty"`
}

// Campaign is an advertiser campaign as published by its demand node.
// Money values are integers in the smallest currency unit.
type Campaign struct {
	ID         string     `json:"id"`
	SourceHost string     `json:"source_host,omitempty"`
	LandingURL string     `json:"landing_url"`
	DateStart  time.Time  `json:"date_start"`
	DateEnd    *time.Time `json:"date_end,omitempty"`
	Banners    []Banner   `json:"banners"`
	Budget     int64      `json:"budget"`
	MaxCPC     int64      `json:"max_cpc"`
	MaxCPM     int64      `json:"max_cpm"`
	Targeting  Targeting  `json:"targeting"`

	// DeletedAt is set locally when the campaign vanished from its node
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// NewBanner validates a banner
func NewBanner(b Banner) (Banner, error) {
	if b.ID == "" {
		return Banner{}, fmt.Errorf("%w: missing id", ErrInvalidBanner)
	}
	if !b.Type.Valid() {
		return Banner{}, fmt.Errorf("%w %s: unknown type %q", ErrInvalidBanner, b.ID, b.Type)
	}
	for name, u := range map[string]string{"serve_url": b.ServeURL, "click_url": b.ClickURL, "view_url": b.ViewURL} {
		if err := checkURL(u); err != nil {
			return Banner{}, fmt.Errorf("%w %s: %s: %v", ErrInvalidBanner, b.ID, name, err)
		}
	}
	if b.Width < 0 || b.Height < 0 {
		return Banner{}, fmt.Errorf("%w %s: negative size %dx%d", ErrInvalidBanner, b.ID, b.Width, b.Height)
	}
	// Direct links carry no creative and may be 0x0
	if b.Type != BannerDirect && (b.Width == 0 || b.Height == 0) {
		return Banner{}, fmt.Errorf("%w %s: size %dx%d", ErrInvalidBanner, b.ID, b.Width, b.Height)
	}
	return b, nil
}

// NewCampaign validates a campaign and its banners. Banners without a
// campaign id are attached to the campaign.
func NewCampaign(c Campaign) (Campaign, error) {
	if c.ID == "" {
		return Campaign{}, fmt.Errorf("%w: missing id", ErrInvalidCampaign)
	}
	if c.SourceHost == "" {
		return Campaign{}, fmt.Errorf("%w %s: missing source host", ErrInvalidCampaign, c.ID)
	}
	if err := checkURL(c.LandingURL); err != nil {
		return Campaign{}, fmt.Errorf("%w %s: landing_url: %v", ErrInvalidCampaign, c.ID, err)
	}
	if c.DateStart.IsZero() {
		return Campaign{}, fmt.Errorf("%w %s: missing start date", ErrInvalidCampaign, c.ID)
	}
	if c.DateEnd != nil && c.DateEnd.Before(c.DateStart) {
		return Campaign{}, fmt.Errorf("%w %s: ends before it starts", ErrInvalidCampaign, c.ID)
	}
	if c.Budget < 0 || c.MaxCPC < 0 || c.MaxCPM < 0 {
		return Campaign{}, fmt.Errorf("%w %s: negative money value", ErrInvalidCampaign, c.ID)
	}

	banners := make([]Banner, 0, len(c.Banners))
	for _, b := range c.Banners {
		if b.CampaignID == "" {
			b.CampaignID = c.ID
		}
		if b.CampaignID != c.ID {
			return Campaign{}, fmt.Errorf("%w %s: banner %s belongs to campaign %s", ErrInvalidCampaign, c.ID, b.ID, b.CampaignID)
		}
		valid, err := NewBanner(b)
		if err != nil {
			return Campaign{}, fmt.Errorf("%w %s: %w", ErrInvalidCampaign, c.ID, err)
		}
		banners = append(banners, valid)
	}
	c.Banners = banners
	return c, nil
}

// Active reports whether the campaign can serve at t
func (c *Campaign) Active(t time.Time) bool {
	if c.DeletedAt != nil || t.Before(c.DateStart) {
		return false
	}
	return c.DateEnd == nil || c.DateEnd.After(t)
}

// BudgetAmount renders the budget in currency units with the given number of
// decimal places in the smallest unit.
func (c *Campaign) BudgetAmount(scale int32) decimal.Decimal {
	return decimal.New(c.Budget, -scale)
}

func checkURL(raw string) error {
	if raw == "" {
		return errors.New("missing")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
