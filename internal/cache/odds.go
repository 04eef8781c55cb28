package cache

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pickforge/internal/domain"
)

type entry struct {
	snapshot  domain.OddsSnapshot
	expiresAt time.Time
}

// OddsCache keeps normalized odds snapshots per request fingerprint.
// Entries are evicted lazily when a lookup finds them expired; there is no
// size bound because the fingerprint space is league x region x markets.
type OddsCache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// NewOddsCache creates a cache reading time from now. A nil clock uses time.Now.
func NewOddsCache(now func() time.Time) *OddsCache {
	if now == nil {
		now = time.Now
	}
	return &OddsCache{
		entries: make(map[string]entry),
		now:     now,
	}
}

// Fingerprint builds the cache key for an odds request. Markets are
// canonicalized and sorted so equivalent requests share a slot.
func Fingerprint(league domain.League, region domain.Region, markets string) string {
	parsed := domain.ParseMarkets(markets)
	if len(parsed) == 0 {
		parsed = domain.ParseMarkets(domain.DefaultMarkets)
	}
	keys := make([]string, len(parsed))
	for i, m := range parsed {
		keys[i] = string(m)
	}
	sort.Strings(keys)
	return strings.Join([]string{string(league), string(region), strings.Join(keys, ",")}, "|")
}

// Get returns the snapshot stored under key if it has not expired
func (c *OddsCache) Get(key string) (domain.OddsSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.OddsSnapshot{}, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return domain.OddsSnapshot{}, false
	}
	return e.snapshot, true
}

// Put stores a snapshot for ttl. Non-positive ttls are ignored.
func (c *OddsCache) Put(key string, snapshot domain.OddsSnapshot, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry{
		snapshot:  snapshot,
		expiresAt: c.now().Add(ttl),
	}
}

// Len returns the number of stored entries, expired or not
func (c *OddsCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
