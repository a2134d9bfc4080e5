package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	listingsVersionKey = "listings:ver"

	browseKeyPrefix = "listings:browse:%d:%d:%d:%s:%s"
)

// BrowseTTL bounds staleness of cached browse pages. Writes also bump the
// listings version, so the TTL is a backstop, not the primary invalidation.
const BrowseTTL = 30 * time.Second

// ListingsVersion returns the current listings cache generation. Every write
// to a listing bumps it, orphaning all previously cached browse pages.
func ListingsVersion(ctx context.Context) int64 {
	if client == nil {
		return 0
	}
	v, err := client.Get(ctx, listingsVersionKey).Int64()
	if err != nil {
		return 0
	}
	return v
}

// BumpListingsVersion invalidates all cached browse pages by advancing the
// listings cache generation.
func BumpListingsVersion(ctx context.Context) {
	if client != nil {
		client.Incr(ctx, listingsVersionKey)
	}
}

// BrowseKey builds the cache key for a non-proximity listing page.
func BrowseKey(version int64, page, pageSize int, category, search string) string {
	return fmt.Sprintf(browseKeyPrefix, version, page, pageSize, category, search)
}
