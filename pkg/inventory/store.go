// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/luxfi/database"

	"github.com/luxfi/adxfed/pkg/storage"
)

const campaignPrefix = "campaign/"

// Store persists imported campaigns. Save upserts by (SourceHost, ID) and is
// the unit of atomicity.
type Store interface {
	Save(ctx context.Context, c Campaign) error
	FetchActiveCampaigns(ctx context.Context) ([]Campaign, error)
	FetchCampaignsToDelete(ctx context.Context) ([]Campaign, error)
	MarkDeleted(ctx context.Context, sourceHost string, keep []string) (int, error)
}

// KVStore keeps campaigns as JSON documents in a luxfi database
type KVStore struct {
	// mu orders writes against scans; memdb iterators read the live map
	mu  sync.RWMutex
	db  database.Database
	now func() time.Time
}

// NewKVStore creates a store on db
func NewKVStore(db database.Database) *KVStore {
	return &KVStore{db: db, now: time.Now}
}

func campaignKey(sourceHost, id string) []byte {
	return []byte(campaignPrefix + url.PathEscape(sourceHost) + "/" + url.PathEscape(id))
}

func hostPrefix(sourceHost string) []byte {
	return []byte(campaignPrefix + url.PathEscape(sourceHost) + "/")
}

// Save writes c, replacing any campaign with the same identity
func (s *KVStore) Save(ctx context.Context, c Campaign) error {
	if c.SourceHost == "" || c.ID == "" {
		return fmt.Errorf("%w: campaign identity incomplete", ErrInvalidCampaign)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode campaign %s: %w", c.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Put(campaignKey(c.SourceHost, c.ID), data)
}

// Get loads one campaign
func (s *KVStore) Get(ctx context.Context, sourceHost, id string) (Campaign, error) {
	if err := ctx.Err(); err != nil {
		return Campaign{}, err
	}
	s.mu.RLock()
	data, err := s.db.Get(campaignKey(sourceHost, id))
	s.mu.RUnlock()
	if err != nil {
		return Campaign{}, err
	}
	var c Campaign
	if err := json.Unmarshal(data, &c); err != nil {
		return Campaign{}, fmt.Errorf("decode campaign %s: %w", id, err)
	}
	return c, nil
}

// FetchActiveCampaigns returns campaigns that are live at the current time
func (s *KVStore) FetchActiveCampaigns(ctx context.Context) ([]Campaign, error) {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(ctx, []byte(campaignPrefix), func(c *Campaign) bool {
		return c.Active(now)
	})
}

// FetchCampaignsToDelete returns campaigns marked deleted
func (s *KVStore) FetchCampaignsToDelete(ctx context.Context) ([]Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(ctx, []byte(campaignPrefix), func(c *Campaign) bool {
		return c.DeletedAt != nil
	})
}

// MarkDeleted flags every live campaign of sourceHost whose id is not in
// keep. All flags are written in one batch.
func (s *KVStore) MarkDeleted(ctx context.Context, sourceHost string, keep []string) (int, error) {
	kept := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		kept[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stale, err := s.collect(ctx, hostPrefix(sourceHost), func(c *Campaign) bool {
		_, ok := kept[c.ID]
		return !ok && c.DeletedAt == nil
	})
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	now := s.now().UTC()
	batch := s.db.NewBatch()
	for i := range stale {
		stale[i].DeletedAt = &now
		data, err := json.Marshal(stale[i])
		if err != nil {
			return 0, fmt.Errorf("encode campaign %s: %w", stale[i].ID, err)
		}
		if err := batch.Put(campaignKey(sourceHost, stale[i].ID), data); err != nil {
			return 0, err
		}
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := batch.Write(); err != nil {
		return 0, err
	}
	return len(stale), nil
}

// collect runs with s.mu held
func (s *KVStore) collect(ctx context.Context, prefix []byte, keep func(*Campaign) bool) ([]Campaign, error) {
	var out []Campaign
	err := storage.Scan(ctx, s.db, prefix, func(key, value []byte) error {
		var c Campaign
		if err := json.Unmarshal(value, &c); err != nil {
			return fmt.Errorf("decode %s: %w", strings.TrimPrefix(string(key), campaignPrefix), err)
		}
		if keep(&c) {
			out = append(out, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// IsNotFound reports whether err means the campaign does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, database.ErrNotFound)
}
