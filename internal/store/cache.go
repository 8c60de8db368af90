package store

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"adreport/internal/model"
)

const (
	defaultDirectoryCacheSize = 64
	defaultDirectoryCacheTTL  = 10 * time.Minute
)

// CachedDirectory keeps resolved ad networks in an expiring LRU in front of
// another Directory. Misses are never cached.
type CachedDirectory struct {
	next  Directory
	cache *expirable.LRU[string, model.AdNetwork]
}

func NewCachedDirectory(next Directory, size int, ttl time.Duration) *CachedDirectory {
	if size <= 0 {
		size = defaultDirectoryCacheSize
	}
	if ttl <= 0 {
		ttl = defaultDirectoryCacheTTL
	}
	return &CachedDirectory{
		next:  next,
		cache: expirable.NewLRU[string, model.AdNetwork](size, nil, ttl),
	}
}

func (d *CachedDirectory) ResolveAdNetwork(ctx context.Context, name string) (model.AdNetwork, error) {
	key := strings.TrimSpace(name)
	if network, ok := d.cache.Get(key); ok {
		return network, nil
	}

	network, err := d.next.ResolveAdNetwork(ctx, key)
	if err != nil {
		return model.AdNetwork{}, err
	}
	d.cache.Add(key, network)
	return network, nil
}

// Purge drops every cached descriptor, e.g. after re-seeding.
func (d *CachedDirectory) Purge() {
	d.cache.Purge()
}

var _ Directory = (*CachedDirectory)(nil)
