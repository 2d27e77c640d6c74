package memory

import (
	"context"
	"sync"
	"time"

	"brainbrawler-service/internal/domain"
	"brainbrawler-service/internal/infra/cache"
	"golang.org/x/sync/singleflight"
)

// QuestionSetLoader fetches question banks from a backing store (e.g., Postgres).
type QuestionSetLoader interface {
	LoadQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error)
}

// QuestionSetRepository keeps loaded question sets in process memory until they expire.
// Concurrent misses for one set share a single load.
type QuestionSetRepository struct {
	loader QuestionSetLoader
	expiry *cache.Expiry
	clock  func() time.Time
	sf     singleflight.Group

	mu      sync.RWMutex
	entries map[string]entry
}

type entry struct {
	set       domain.QuestionSet
	expiresAt time.Time
}

func NewQuestionSetRepository(loader QuestionSetLoader, ttl time.Duration) *QuestionSetRepository {
	return &QuestionSetRepository{
		loader:  loader,
		expiry:  cache.NewExpiry(ttl),
		clock:   time.Now,
		entries: make(map[string]entry),
	}
}

func (r *QuestionSetRepository) GetQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error) {
	if set, ok := r.fresh(setID); ok {
		return set, nil
	}

	result, err, _ := r.sf.Do(setID, func() (interface{}, error) {
		if set, ok := r.fresh(setID); ok {
			return set, nil
		}
		set, err := r.loader.LoadQuestionSet(ctx, setID)
		if err != nil {
			// Misses are not cached; a set added later shows up on the next read.
			return domain.QuestionSet{}, err
		}
		r.mu.Lock()
		r.entries[setID] = entry{set: set, expiresAt: r.clock().Add(r.expiry.Next())}
		r.mu.Unlock()
		return set, nil
	})
	if err != nil {
		return domain.QuestionSet{}, err
	}
	return result.(domain.QuestionSet), nil
}

// Invalidate forgets a cached set so the next read goes to the loader.
func (r *QuestionSetRepository) Invalidate(setID string) {
	r.mu.Lock()
	delete(r.entries, setID)
	r.mu.Unlock()
}

func (r *QuestionSetRepository) fresh(setID string) (domain.QuestionSet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[setID]
	if !ok || !e.expiresAt.After(r.clock()) {
		return domain.QuestionSet{}, false
	}
	return e.set, true
}
