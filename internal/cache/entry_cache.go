package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// EntryListKey prefixes the JSON-encoded newest-first entry list. The list
// is stored under EntryListKeyAt(generation).
const EntryListKey = "guestbook:entries"

// EntryListGenerationKey is incremented after every entry write.
const EntryListGenerationKey = "guestbook:entries:gen"

const DefaultEntryListTTL = 30 * time.Second

type EntryCache struct {
	client *redis.Client
	ttl    time.Duration
}

func EntryListKeyAt(generation int64) string {
	return fmt.Sprintf("%s:%d", EntryListKey, generation)
}

func NewEntryCache(client *redis.Client, ttl time.Duration) *EntryCache {
	if ttl <= 0 {
		ttl = DefaultEntryListTTL
	}
	return &EntryCache{client: client, ttl: ttl}
}

// Get returns nil, nil on a cache miss.
func (c *EntryCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores data as JSON with the cache TTL.
func (c *EntryCache) Set(ctx context.Context, key string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, jsonData, c.ttl).Err()
}

// Generation returns the current entry list generation, 0 before the first
// write.
func (c *EntryCache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, EntryListGenerationKey).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return gen, err
}

// Bump moves the entry list to a new generation. A list cached under an
// older generation is never read again and expires with its TTL.
func (c *EntryCache) Bump(ctx context.Context) error {
	return c.client.Incr(ctx, EntryListGenerationKey).Err()
}
