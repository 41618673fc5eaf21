// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package storage opens the luxfi key-value database the inventory store is
// built on, with memory, badger and redis backends.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/luxfi/database"
	"github.com/luxfi/database/badgerdb"
	"github.com/luxfi/database/memdb"
	"github.com/prometheus/client_golang/prometheus"
)

var ErrUnknownBackend = errors.New("unknown storage backend")

// Storage wraps luxfi's database interface
type Storage struct {
	db      database.Database
	backend string
}

// NewStorage opens the backend named by cfg.Type. Badger registers its
// metrics on reg, which may be nil.
func NewStorage(cfg Config, reg prometheus.Registerer) (*Storage, error) {
	var (
		db  database.Database
		err error
	)

	backend := cfg.Type
	switch backend {
	case "memory", "":
		backend = "memory"
		db = memdb.New()
	case "badger":
		db, err = badgerdb.New(cfg.Path, nil, "", reg)
	case "redis":
		db, err = NewRedisDB(cfg.RedisAddr, cfg.RedisDB, cfg.KeyPrefix)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", backend, err)
	}

	return &Storage{db: db, backend: backend}, nil
}

// Backend names the storage engine
func (s *Storage) Backend() string {
	return s.backend
}

// HealthCheck reports whether the database can serve requests
func (s *Storage) HealthCheck(ctx context.Context) error {
	_, err := s.db.HealthCheck(ctx)
	return err
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}

// GetDatabase returns the underlying database
func (s *Storage) GetDatabase() database.Database {
	return s.db
}

// Scan calls fn for every key under prefix in ascending order. It stops at
// the first error returned by fn or when ctx is done.
func Scan(ctx context.Context, db database.Iteratee, prefix []byte, fn func(key, value []byte) error) error {
	it := db.NewIteratorWithPrefix(prefix)
	defer it.Release()

	for it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(it.Key(), it.Value()); err != nil {
			return err
		}
	}
	return it.Error()
}
