package directory

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cached memoizes successful lookups for ttl. Misses and errors are not cached.
type Cached struct {
	inner Directory
	lru   *expirable.LRU[string, Profile]
}

func NewCached(inner Directory, size int, ttl time.Duration) *Cached {
	return &Cached{inner: inner, lru: expirable.NewLRU[string, Profile](size, nil, ttl)}
}

func (c *Cached) Profile(ctx context.Context, userID string) (Profile, error) {
	if p, ok := c.lru.Get(userID); ok {
		return p, nil
	}
	p, err := c.inner.Profile(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	c.lru.Add(userID, p)
	return p, nil
}

// Invalidate drops userID after a profile edit.
func (c *Cached) Invalidate(userID string) {
	c.lru.Remove(userID)
}
