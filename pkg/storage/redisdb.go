// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package storage

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/luxfi/database"
	"github.com/redis/go-redis/v9"
)

const redisScanCount = 256

var _ database.Database = (*RedisDB)(nil)

// RedisDB stores keys on a redis server, optionally under a key prefix.
// database.Database carries no context, so every command runs under the
// client's own dial, read and write timeouts.
type RedisDB struct {
	client *redis.Client
	prefix string
}

// NewRedisDB connects to addr and checks the connection
func NewRedisDB(addr string, db int, prefix string) (*RedisDB, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRedisDBWithClient(client, prefix), nil
}

// NewRedisDBWithClient wraps an existing client
func NewRedisDBWithClient(client *redis.Client, prefix string) *RedisDB {
	return &RedisDB{client: client, prefix: prefix}
}

func (r *RedisDB) key(k []byte) string {
	return r.prefix + string(k)
}

func (r *RedisDB) Has(key []byte) (bool, error) {
	n, err := r.client.Exists(context.Background(), r.key(key)).Result()
	if err != nil {
		return false, mapRedisErr(err)
	}
	return n > 0, nil
}

func (r *RedisDB) Get(key []byte) ([]byte, error) {
	v, err := r.client.Get(context.Background(), r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, database.ErrNotFound
	}
	return v, mapRedisErr(err)
}

func (r *RedisDB) Put(key, value []byte) error {
	return mapRedisErr(r.client.Set(context.Background(), r.key(key), value, 0).Err())
}

func (r *RedisDB) Delete(key []byte) error {
	return mapRedisErr(r.client.Del(context.Background(), r.key(key)).Err())
}

func (r *RedisDB) NewBatch() database.Batch {
	return &redisBatch{db: r}
}

func (r *RedisDB) NewIterator() database.Iterator {
	return r.NewIteratorWithStartAndPrefix(nil, nil)
}

func (r *RedisDB) NewIteratorWithStart(start []byte) database.Iterator {
	return r.NewIteratorWithStartAndPrefix(start, nil)
}

func (r *RedisDB) NewIteratorWithPrefix(prefix []byte) database.Iterator {
	return r.NewIteratorWithStartAndPrefix(nil, prefix)
}

// NewIteratorWithStartAndPrefix collects matching keys with SCAN, sorts them
// and reads their values with MGET. The iterator walks that snapshot; keys
// deleted between the two steps are skipped.
func (r *RedisDB) NewIteratorWithStartAndPrefix(start, prefix []byte) database.Iterator {
	ctx := context.Background()
	pattern := escapeGlob(r.key(prefix)) + "*"

	var keys []string
	iter := r.client.Scan(ctx, 0, pattern, redisScanCount).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		if len(start) > 0 && strings.TrimPrefix(k, r.prefix) < string(start) {
			continue
		}
		keys = append(keys, k)
	}
	if err := iter.Err(); err != nil {
		return &database.IteratorError{Err: mapRedisErr(err)}
	}
	slices.Sort(keys)

	it := &snapshotIterator{pos: -1}
	for chunk := range slices.Chunk(keys, redisScanCount) {
		values, err := r.client.MGet(ctx, chunk...).Result()
		if err != nil {
			return &database.IteratorError{Err: mapRedisErr(err)}
		}
		for i, v := range values {
			s, ok := v.(string)
			if !ok {
				continue
			}
			it.keys = append(it.keys, []byte(strings.TrimPrefix(chunk[i], r.prefix)))
			it.values = append(it.values, []byte(s))
		}
	}
	return it
}

// Compact is a no-op, redis manages its own memory
func (r *RedisDB) Compact([]byte, []byte) error {
	return nil
}

func (r *RedisDB) Close() error {
	return mapRedisErr(r.client.Close())
}

func (r *RedisDB) HealthCheck(ctx context.Context) (interface{}, error) {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return nil, mapRedisErr(err)
	}
	return nil, nil
}

type redisBatch struct {
	database.BatchOps
	db *RedisDB
}

// Write sends the batch as a MULTI/EXEC transaction
func (b *redisBatch) Write() error {
	if len(b.Ops) == 0 {
		return nil
	}
	ctx := context.Background()
	_, err := b.db.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range b.Ops {
			if op.Delete {
				pipe.Del(ctx, b.db.key(op.Key))
				continue
			}
			pipe.Set(ctx, b.db.key(op.Key), op.Value, 0)
		}
		return nil
	})
	return mapRedisErr(err)
}

func (b *redisBatch) Inner() database.Batch {
	return b
}

// snapshotIterator walks keys and values read up front
type snapshotIterator struct {
	keys   [][]byte
	values [][]byte
	pos    int
}

func (it *snapshotIterator) Next() bool {
	if it.pos+1 >= len(it.keys) {
		it.pos = len(it.keys)
		return false
	}
	it.pos++
	return true
}

func (*snapshotIterator) Error() error {
	return nil
}

func (it *snapshotIterator) Key() []byte {
	if it.pos < 0 || it.pos >= len(it.keys) {
		return nil
	}
	return it.keys[it.pos]
}

func (it *snapshotIterator) Value() []byte {
	if it.pos < 0 || it.pos >= len(it.values) {
		return nil
	}
	return it.values[it.pos]
}

func (it *snapshotIterator) Release() {
	it.keys, it.values = nil, nil
}

func escapeGlob(s string) string {
	var sb strings.Builder
	for _, c := range []byte(s) {
		switch c {
		case '*', '?', '[', ']', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func mapRedisErr(err error) error {
	if errors.Is(err, redis.ErrClosed) {
		return database.ErrClosed
	}
	return err
}

