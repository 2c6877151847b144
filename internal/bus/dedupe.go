package bus

import (
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DedupeCache remembers recently seen keys so redelivered relay requests
// are only processed once.
//
// IsDuplicate returns true if the key was seen within the TTL window.
// Past maxSize, the least recently used key is evicted.
type DedupeCache struct {
	lru *expirable.LRU[string, struct{}]
}

// NewDedupeCache creates a new dedup cache.
// Defaults: ttl=20min, maxSize=5000.
func NewDedupeCache(ttl time.Duration, maxSize int) *DedupeCache {
	if ttl <= 0 {
		ttl = 20 * time.Minute
	}
	if maxSize <= 0 {
		maxSize = 5000
	}
	return &DedupeCache{lru: expirable.NewLRU[string, struct{}](maxSize, nil, ttl)}
}

// RequestKey builds the dedupe key for a session request.
func RequestKey(topic string, id int64) string {
	return fmt.Sprintf("%s:%d", topic, id)
}

// IsDuplicate returns true if key was already seen within the TTL window.
// If not a duplicate, records the key for future checks.
func (d *DedupeCache) IsDuplicate(key string) bool {
	if _, ok := d.lru.Get(key); ok {
		return true
	}
	d.lru.Add(key, struct{}{})
	return false
}

// Forget drops key so a later delivery is processed again.
func (d *DedupeCache) Forget(key string) {
	d.lru.Remove(key)
}

// Len returns the number of live keys.
func (d *DedupeCache) Len() int {
	return d.lru.Len()
}
