package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/settld/settld/internal/domain"
)

// PendingStore implements domain.PendingResolutionStore using Redis string
// values with a TTL. GETDEL makes Take atomic, so a callback token can be
// consumed exactly once even across engine replicas.
//
// Key schema:
//
//	resolution:pending:{token} - JSON-serialized PendingResolution
type PendingStore struct {
	rdb *redis.Client
}

// NewPendingStore creates a PendingStore backed by the given Client.
func NewPendingStore(c *Client) *PendingStore {
	return &PendingStore{rdb: c.Underlying()}
}

func pendingKey(token string) string {
	return "resolution:pending:" + token
}

// Put records a pending resolution under its token. The entry expires after
// ttl, after which the market becomes requestable again.
func (ps *PendingStore) Put(ctx context.Context, p domain.PendingResolution, ttl time.Duration) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("redis: marshal pending resolution %s: %w", p.Token, err)
	}
	if err := ps.rdb.Set(ctx, pendingKey(p.Token), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: put pending resolution %s: %w", p.Token, err)
	}
	return nil
}

// Take atomically removes and returns the pending resolution for a token.
// Unknown or expired tokens yield domain.ErrRequestUnknown.
func (ps *PendingStore) Take(ctx context.Context, token string) (domain.PendingResolution, error) {
	data, err := ps.rdb.GetDel(ctx, pendingKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.PendingResolution{}, domain.ErrRequestUnknown
		}
		return domain.PendingResolution{}, fmt.Errorf("redis: take pending resolution %s: %w", token, err)
	}

	var p domain.PendingResolution
	if err := json.Unmarshal(data, &p); err != nil {
		return domain.PendingResolution{}, fmt.Errorf("redis: unmarshal pending resolution %s: %w", token, err)
	}
	return p, nil
}

// Compile-time interface check.
var _ domain.PendingResolutionStore = (*PendingStore)(nil)
