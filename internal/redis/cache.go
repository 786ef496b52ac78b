package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"medportal/internal/domain/artifact"
	"medportal/internal/identity"
)

// Cache key pattern:
// - artifacts:{role}:{wallet} - artifact list as seen by that wallet

// ListCache caches per-wallet artifact lists.
type ListCache struct {
	client goredis.Cmdable
	ttl    time.Duration
}

func NewListCache(client goredis.Cmdable, ttl time.Duration) *ListCache {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &ListCache{client: client, ttl: ttl}
}

func listKey(role identity.Role, wallet string) string {
	return fmt.Sprintf("artifacts:%s:%s", role, wallet)
}

// Get returns the cached list. ok is false on a cache miss.
func (c *ListCache) Get(ctx context.Context, role identity.Role, wallet string) (records []artifact.Record, ok bool, err error) {
	data, err := c.client.Get(ctx, listKey(role, wallet)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, false, err
	}
	return records, true, nil
}

func (c *ListCache) Set(ctx context.Context, role identity.Role, wallet string, records []artifact.Record) error {
	if records == nil {
		records = []artifact.Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, listKey(role, wallet), data, c.ttl).Err()
}

// Invalidate drops the cached lists that contain r: the producer's doctor view
// and the recipient's patient view.
func (c *ListCache) Invalidate(ctx context.Context, r artifact.Record) error {
	return c.client.Del(ctx,
		listKey(identity.RoleDoctor, r.ProducerID),
		listKey(identity.RolePatient, r.RecipientID),
	).Err()
}
