// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package storage

// Config selects and configures a storage backend
type Config struct {
	// Type is one of memory, badger or redis
	Type string `yaml:"type"`

	// Path is the badger data directory
	Path string `yaml:"path"`

	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`
	// KeyPrefix namespaces every redis key so several nodes can share a server
	KeyPrefix string `yaml:"key_prefix"`
}
