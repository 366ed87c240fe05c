// Package cache implements a write-through front end over a Redis-
// compatible key-value cache: a hit serves straight from Redis, a miss
// falls through to Store and backfills the cache with what it finds.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/barnstore/barnstore/internal/wireclient"
)

// MaxPayloadSize bounds what Cache will forward from Store into a
// response: a needle larger than this is rejected as TooBig rather
// than returned and cached. The payload is still read in full from
// Store before its size is checked.
const MaxPayloadSize = 1 << 20

// connectTimeout mirrors the reference client's redisConnectWithTimeout
// call of 1 second, 500000 microseconds.
const connectTimeout = 1500 * time.Millisecond

var (
	// ErrCacheMiss is returned by a kvStore.Get on a miss.
	ErrCacheMiss = errors.New("cache: miss")

	// ErrRedisErr wraps any failure talking to the Redis backend.
	ErrRedisErr = errors.New("cache: redis error")

	// ErrTooBig is returned when Store reports a payload larger than
	// MaxPayloadSize: Cache refuses to return or cache it.
	ErrTooBig = errors.New("cache: too big")

	// ErrStoreUnreachable wraps a transport-level failure dialing,
	// writing to, or reading from Store on a cache miss — never a
	// response Store actually sent. Surfaced on the wire as Unknown,
	// matching the original's outer catch(std::exception&) around the
	// TcpStream.
	ErrStoreUnreachable = errors.New("cache: store unreachable")
)

// StoreRejected wraps a genuine "err <reason>" response line from
// Store, carrying its reason so callers can forward it verbatim
// instead of parsing it back out of an error message.
type StoreRejected struct {
	Reason string
}

func (e *StoreRejected) Error() string {
	return fmt.Sprintf("cache: store rejected: %s", e.Reason)
}

// kvStore is the subset of Redis's GET/SET/DEL behavior Cache depends
// on, narrowed to an interface so tests can substitute a fake in place
// of a real Redis server.
type kvStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) error
}

// redisKV adapts *redis.Client to kvStore, translating redis.Nil into
// ErrCacheMiss so callers never need to import go-redis directly.
type redisKV struct {
	client *redis.Client
}

func (r redisKV) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return b, err
}

func (r redisKV) Set(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, key, value, 0).Err()
}

func (r redisKV) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Cache fronts Store with a Redis-compatible key-value cache.
type Cache struct {
	kv        kvStore
	client    *redis.Client
	storeAddr string
}

// Open builds a Cache against a Redis server at redisAddr and a Store
// at storeAddr, using connectTimeout for Redis dial/read/write.
func Open(redisAddr, storeAddr string) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:         redisAddr,
		DialTimeout:  connectTimeout,
		ReadTimeout:  connectTimeout,
		WriteTimeout: connectTimeout,
	})
	return &Cache{
		kv:        redisKV{client: client},
		client:    client,
		storeAddr: storeAddr,
	}
}

// openWithStore builds a Cache over an arbitrary kvStore, used by tests
// to substitute a fake in place of a real Redis connection.
func openWithStore(kv kvStore, storeAddr string) *Cache {
	return &Cache{kv: kv, storeAddr: storeAddr}
}

// Get returns needleId's payload, serving from the cache on a hit and
// falling through to Store (then backfilling the cache) on a miss.
func (c *Cache) Get(ctx context.Context, needleID uint64) ([]byte, error) {
	key := strconv.FormatUint(needleID, 10)

	payload, err := c.kv.Get(ctx, key)
	if err == nil {
		return payload, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		return nil, fmt.Errorf("%w: %v", ErrRedisErr, err)
	}

	resp, err := wireclient.Get(c.storeAddr, needleID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnreachable, err)
	}
	if !resp.OK {
		return nil, &StoreRejected{Reason: resp.Reason}
	}
	if resp.Size > MaxPayloadSize {
		return nil, ErrTooBig
	}

	// A failure to backfill must not fail the read: the payload was
	// already fetched successfully from Store, so the error is only logged.
	if err := c.kv.Set(ctx, key, resp.Payload); err != nil {
		log.Printf("cache: backfill needle %d: %v", needleID, err)
	}
	return resp.Payload, nil
}

// Remove deletes needleId from the cache. It does not invalidate Store
// or the Directory ledger: a separate Directory.Remove is required to
// delete the underlying blob.
func (c *Cache) Remove(ctx context.Context, needleID uint64) error {
	key := strconv.FormatUint(needleID, 10)
	if err := c.kv.Del(ctx, key); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisErr, err)
	}
	return nil
}

// Close releases the Redis client's connections.
func (c *Cache) Close() error {
	return c.client.Close()
}
