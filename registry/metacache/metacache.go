// Package metacache is a read-through TTL cache of token metadata for
// read-heavy consumers of the registry.
package metacache

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	gocache "github.com/patrickmn/go-cache"

	"xdao.co/tokenreg/address"
	"xdao.co/tokenreg/internal/logging"
	"xdao.co/tokenreg/record"
)

const (
	DefaultExpiration      = 1 * time.Minute
	DefaultCleanupInterval = 5 * time.Minute
)

// TokenLookup is satisfied by registry.Service and grpcapi.Client.
type TokenLookup interface {
	Token(ctx context.Context, token address.Address) (record.Token, error)
}

// Cache serves token records from memory, falling through to the lookup on a
// miss. Failed lookups are never cached.
type Cache struct {
	lookup TokenLookup
	ttl    time.Duration
	cache  *gocache.Cache
}

// New returns a Cache over lookup. Entries live for ttl; a non-positive ttl
// selects DefaultExpiration.
func New(lookup TokenLookup, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultExpiration
	}
	return &Cache{
		lookup: lookup,
		ttl:    ttl,
		cache:  gocache.New(ttl, DefaultCleanupInterval),
	}
}

// Token returns the cached record for token, loading it on a miss.
func (c *Cache) Token(ctx context.Context, token address.Address) (record.Token, error) {
	key := token.String()
	logger := logr.FromContextOrDiscard(ctx)
	if v, found := c.cache.Get(key); found {
		if tok, ok := v.(record.Token); ok {
			logger.V(logging.TRACE).Info("Token cache hit", "token", key)
			return tok, nil
		}
		logger.Error(nil, "Wrong type in token cache", "token", key)
		c.cache.Delete(key)
	}

	tok, err := c.lookup.Token(ctx, token)
	if err != nil {
		return record.Token{}, err
	}
	c.cache.Set(key, tok, c.ttl)
	logger.V(logging.TRACE).Info("Token cache fill", "token", key)
	return tok, nil
}

// Invalidate drops cached entries for tokens, typically after an update.
func (c *Cache) Invalidate(tokens ...address.Address) {
	for _, t := range tokens {
		c.cache.Delete(t.String())
	}
}

// Flush drops every entry.
func (c *Cache) Flush() { c.cache.Flush() }

// Len reports the number of cached entries, expired ones included until the
// next cleanup.
func (c *Cache) Len() int { return c.cache.ItemCount() }
