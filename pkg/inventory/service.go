// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package inventory

import (
	"context"
	"encoding/json"

	"github.com/luxfi/adxfed/pkg/rpc"
)

// RegisterService publishes the active campaigns of sourceHost under
// MethodInventoryList, so other nodes can import this node's inventory.
func RegisterService(s *rpc.Server, store Store, sourceHost string) {
	s.Register(MethodInventoryList, func(ctx context.Context, _ json.RawMessage) (any, error) {
		active, err := store.FetchActiveCampaigns(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]Campaign, 0, len(active))
		for _, c := range active {
			if c.SourceHost != sourceHost {
				continue
			}
			c.SourceHost = ""
			out = append(out, c)
		}
		return out, nil
	})
}
