package approver

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pesio-ai/be-plt-approvals/internal/domain"
	"github.com/pesio-ai/be-plt-approvals/internal/logger"
)

const cacheKeyPrefix = "approvals:membership"

// CachedDirectory is a Redis read-through cache in front of another Directory.
// Cache errors are logged and fall through to the inner directory.
type CachedDirectory struct {
	inner  Directory
	client redis.Cmdable
	ttl    time.Duration
	log    *logger.Logger
}

// NewCachedDirectory wraps inner with a Redis cache.
func NewCachedDirectory(inner Directory, client redis.Cmdable, ttl time.Duration, log *logger.Logger) *CachedDirectory {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedDirectory{inner: inner, client: client, ttl: ttl, log: log}
}

func (d *CachedDirectory) Lookup(ctx context.Context, orgID string, actor domain.Actor) (domain.Membership, error) {
	key := cacheKey(orgID, actor.ID)

	data, err := d.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var m domain.Membership
		if jsonErr := json.Unmarshal(data, &m); jsonErr == nil {
			return m, nil
		}
		d.log.Warn().Str("key", key).Msg("Discarding undecodable membership cache entry")
	case !stderrors.Is(err, redis.Nil):
		d.log.Debug().Err(err).Str("key", key).Msg("Membership cache read failed")
	}

	m, err := d.inner.Lookup(ctx, orgID, actor)
	if err != nil {
		return domain.Membership{}, err
	}

	if encoded, err := json.Marshal(m); err == nil {
		if err := d.client.Set(ctx, key, encoded, d.ttl).Err(); err != nil {
			d.log.Debug().Err(err).Str("key", key).Msg("Membership cache write failed")
		}
	}
	return m, nil
}

// Invalidate drops a cached membership, e.g. after a role change.
func (d *CachedDirectory) Invalidate(ctx context.Context, orgID, actorID string) error {
	return d.client.Del(ctx, cacheKey(orgID, actorID)).Err()
}

func cacheKey(orgID, actorID string) string {
	return fmt.Sprintf("%s:%s:%s", cacheKeyPrefix, orgID, actorID)
}
