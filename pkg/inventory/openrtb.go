// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package inventory

import (
	"fmt"
	"net/url"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/shopspring/decimal"
)

// OpenRTBBid renders b as a bid on impression impID so imported inventory can
// take part in the supply side auction. The price is the campaign's MaxCPM in
// currency units, where scale is the number of decimals of the smallest unit.
func (b Banner) OpenRTBBid(c Campaign, impID string, scale int32) openrtb2.Bid {
	bid := openrtb2.Bid{
		ID:    fmt.Sprintf("%s-%s", b.ID, impID),
		ImpID: impID,
		Price: decimal.New(c.MaxCPM, -scale).InexactFloat64(),
		AdID:  b.ID,
		CID:   c.ID,
		CrID:  b.ID,
		NURL:  b.ViewURL,
		W:     int64(b.Width),
		H:     int64(b.Height),
		MType: markupType(b.Type),
	}
	if u, err := url.Parse(c.LandingURL); err == nil && u.Hostname() != "" {
		bid.ADomain = []string{u.Hostname()}
	}

	switch b.Type {
	case BannerImage:
		bid.IURL = b.ServeURL
		bid.AdM = fmt.Sprintf(`<a href="%s"><img src="%s" width="%d" height="%d"></a>`, b.ClickURL, b.ServeURL, b.Width, b.Height)
	case BannerVideo:
		bid.AdM = fmt.Sprintf(`<video src="%s" width="%d" height="%d" autoplay muted></video>`, b.ServeURL, b.Width, b.Height)
	case BannerDirect:
		bid.AdM = b.ClickURL
	default:
		bid.AdM = fmt.Sprintf(`<iframe src="%s" width="%d" height="%d" frameborder="0"></iframe>`, b.ServeURL, b.Width, b.Height)
	}
	return bid
}

func markupType(t BannerType) openrtb2.MarkupType {
	if t == BannerVideo {
		return openrtb2.MarkupVideo
	}
	return openrtb2.MarkupBanner
}
