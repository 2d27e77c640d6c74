// Package cache holds helpers shared by the question set caches.
package cache

import (
	"math/rand"
	"sync"
	"time"
)

// Expiry hands out TTLs of base plus up to a tenth of base, so entries filled together
// do not all expire together. It is safe for concurrent use.
type Expiry struct {
	base time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewExpiry(base time.Duration) *Expiry {
	return &Expiry{base: base, rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Next returns the TTL for a fresh entry. A non-positive base yields 0.
func (e *Expiry) Next() time.Duration {
	if e.base <= 0 {
		return 0
	}
	spread := int64(e.base) / 10
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.base + time.Duration(e.rnd.Int63n(spread+1))
}
