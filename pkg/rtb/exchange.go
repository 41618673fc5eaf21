// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package rtb answers OpenRTB bid requests from imported inventory.
package rtb

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/shopspring/decimal"

	"github.com/luxfi/adxfed/pkg/inventory"
	"github.com/luxfi/adxfed/pkg/log"
)

// ErrEmptyRequest is returned for a bid request without an id or impressions
var ErrEmptyRequest = errors.New("bid request has no id or impressions")

// Exchange runs a first price auction per impression over the active
// campaigns of a store.
type Exchange struct {
	store inventory.Store
	scale int32
	log   log.Logger
	now   func() time.Time

	// FloorPrice applies when an impression carries no bid floor
	FloorPrice decimal.Decimal
}

// NewExchange creates an exchange over store. scale is the number of decimals
// of the smallest money unit campaigns price their MaxCPM in.
func NewExchange(store inventory.Store, floor decimal.Decimal, scale int32, logger log.Logger) *Exchange {
	if logger == nil {
		logger = log.NoOp()
	}
	return &Exchange{
		store:      store,
		scale:      scale,
		log:        logger,
		now:        time.Now,
		FloorPrice: floor,
	}
}

// BidRequest answers req with at most one winning bid per impression
func (e *Exchange) BidRequest(ctx context.Context, req *openrtb2.BidRequest) (*openrtb2.BidResponse, error) {
	if req == nil || req.ID == "" || len(req.Imp) == 0 {
		return nil, ErrEmptyRequest
	}

	campaigns, err := e.store.FetchActiveCampaigns(ctx)
	if err != nil {
		return nil, err
	}
	now := e.now()

	var bids []openrtb2.Bid
	for _, imp := range req.Imp {
		if winner, ok := e.runAuction(campaigns, imp, req, now); ok {
			bids = append(bids, winner)
		}
	}

	resp := e.buildResponse(req, bids)
	e.log.Debug("bid request",
		log.String("id", req.ID),
		log.Int("imps", len(req.Imp)),
		log.Int("bids", len(bids)))
	return resp, nil
}

// runAuction picks the highest priced eligible banner for imp
func (e *Exchange) runAuction(campaigns []inventory.Campaign, imp openrtb2.Imp, req *openrtb2.BidRequest, now time.Time) (openrtb2.Bid, bool) {
	floor := e.FloorPrice.InexactFloat64()
	if imp.BidFloor > 0 {
		floor = imp.BidFloor
	}

	var (
		winner openrtb2.Bid
		found  bool
	)
	for _, c := range campaigns {
		if !c.Active(now) {
			continue
		}
		for _, b := range c.Banners {
			if !fits(b, imp) {
				continue
			}
			bid := b.OpenRTBBid(c, imp.ID, e.scale)
			if bid.Price < floor || !checkBrandSafety(bid, req) {
				continue
			}
			if !found || bid.Price > winner.Price {
				winner, found = bid, true
			}
		}
	}
	return winner, found
}

// fits reports whether b can fill imp
func fits(b inventory.Banner, imp openrtb2.Imp) bool {
	switch {
	case b.Type == inventory.BannerVideo:
		return imp.Video != nil
	case imp.Banner != nil:
		if b.Type == inventory.BannerDirect {
			return false
		}
		if len(imp.Banner.Format) > 0 {
			for _, f := range imp.Banner.Format {
				if sizeMatches(b, &f.W, &f.H) {
					return true
				}
			}
			return false
		}
		return sizeMatches(b, imp.Banner.W, imp.Banner.H)
	case imp.Native != nil:
		return b.Type == inventory.BannerDirect
	}
	return false
}

// sizeMatches treats an unset dimension as any size
func sizeMatches(b inventory.Banner, w, h *int64) bool {
	if w != nil && *w > 0 && *w != int64(b.Width) {
		return false
	}
	if h != nil && *h > 0 && *h != int64(b.Height) {
		return false
	}
	return true
}

// checkBrandSafety drops bids for blocked advertisers
func checkBrandSafety(bid openrtb2.Bid, req *openrtb2.BidRequest) bool {
	for _, domain := range bid.ADomain {
		if slices.Contains(req.BAdv, domain) {
			return false
		}
	}
	return true
}

func (e *Exchange) buildResponse(req *openrtb2.BidRequest, bids []openrtb2.Bid) *openrtb2.BidResponse {
	if len(bids) == 0 {
		return &openrtb2.BidResponse{ID: req.ID}
	}
	return &openrtb2.BidResponse{
		ID:      req.ID,
		BidID:   bids[0].ID,
		Cur:     "USD",
		SeatBid: []openrtb2.SeatBid{{Bid: bids}},
	}
}
