package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"brainbrawler-service/internal/domain"
	"brainbrawler-service/internal/infra/cache"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuestionSetLoader fetches question banks from a backing store (e.g., Postgres).
type QuestionSetLoader interface {
	LoadQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error)
}

// QuestionSetRepository caches whole question sets in Redis and falls back to a loader on miss.
// Sets are stored as JSON: SET questionset:{setID} {json} EX ttl
type QuestionSetRepository struct {
	client *redis.Client
	loader QuestionSetLoader
	expiry *cache.Expiry
	sf     singleflight.Group
}

func NewQuestionSetRepository(client *redis.Client, loader QuestionSetLoader, ttl time.Duration) *QuestionSetRepository {
	return &QuestionSetRepository{
		client: client,
		loader: loader,
		expiry: cache.NewExpiry(ttl),
	}
}

func (r *QuestionSetRepository) GetQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error) {
	if set, ok := r.cached(ctx, setID); ok {
		return set, nil
	}

	result, err, _ := r.sf.Do(setID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if set, ok := r.cached(ctx, setID); ok {
			return set, nil
		}

		set, err := r.loader.LoadQuestionSet(ctx, setID)
		if err != nil {
			return domain.QuestionSet{}, err
		}

		blob, err := json.Marshal(set)
		if err == nil {
			err = r.client.Set(ctx, r.key(setID), blob, r.expiry.Next()).Err()
		}
		if err != nil {
			// The loaded set is still good; only the cache fill failed.
			log.Printf("warning: cache question set %s: %v", setID, err)
		}
		return set, nil
	})
	if err != nil {
		return domain.QuestionSet{}, err
	}
	return result.(domain.QuestionSet), nil
}

func (r *QuestionSetRepository) cached(ctx context.Context, setID string) (domain.QuestionSet, bool) {
	blob, err := r.client.Get(ctx, r.key(setID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("warning: read cached question set %s: %v", setID, err)
		}
		return domain.QuestionSet{}, false
	}
	var set domain.QuestionSet
	if err := json.Unmarshal(blob, &set); err != nil {
		log.Printf("warning: decode cached question set %s: %v", setID, err)
		return domain.QuestionSet{}, false
	}
	return set, true
}

// Invalidate drops a cached set so the next read goes to the loader.
func (r *QuestionSetRepository) Invalidate(ctx context.Context, setID string) error {
	return r.client.Del(ctx, r.key(setID)).Err()
}

func (r *QuestionSetRepository) key(setID string) string {
	return "questionset:" + setID
}
