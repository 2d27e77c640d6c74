package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"brainbrawler-service/internal/domain"
)

func TestQuestionSetRepositoryCaches(t *testing.T) {
	loader := &countingLoader{
		QuestionSetLoader: NewStaticQuestionSetLoader(map[string]domain.QuestionSet{
			"set-1": sampleSet(),
		}),
	}
	repo := NewQuestionSetRepository(loader, time.Minute)

	if _, err := repo.GetQuestionSet(context.Background(), "set-1"); err != nil {
		t.Fatalf("get set: %v", err)
	}
	if loader.count() != 1 {
		t.Fatalf("expected loader once, got %d", loader.count())
	}

	if _, err := repo.GetQuestionSet(context.Background(), "set-1"); err != nil {
		t.Fatalf("get set 2: %v", err)
	}
	if loader.count() != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.count())
	}
}

func TestQuestionSetRepositoryRefreshesAfterTTL(t *testing.T) {
	loader := &countingLoader{
		QuestionSetLoader: NewStaticQuestionSetLoader(map[string]domain.QuestionSet{"set-1": sampleSet()}),
	}
	repo := NewQuestionSetRepository(loader, time.Minute)
	now := time.Now()
	repo.clock = func() time.Time { return now }

	_, _ = repo.GetQuestionSet(context.Background(), "set-1")
	now = now.Add(2 * time.Minute)
	_, _ = repo.GetQuestionSet(context.Background(), "set-1")
	if loader.count() != 2 {
		t.Fatalf("expected reload after expiry, loader calls %d", loader.count())
	}
}

func TestQuestionSetRepositoryInvalidate(t *testing.T) {
	loader := &countingLoader{
		QuestionSetLoader: NewStaticQuestionSetLoader(map[string]domain.QuestionSet{"set-1": sampleSet()}),
	}
	repo := NewQuestionSetRepository(loader, time.Hour)

	_, _ = repo.GetQuestionSet(context.Background(), "set-1")
	repo.Invalidate("set-1")
	_, _ = repo.GetQuestionSet(context.Background(), "set-1")
	if loader.count() != 2 {
		t.Fatalf("expected reload after invalidate, loader calls %d", loader.count())
	}
}

func TestQuestionSetRepositoryUnknownSet(t *testing.T) {
	repo := NewQuestionSetRepository(NewStaticQuestionSetLoader(nil), time.Minute)
	_, err := repo.GetQuestionSet(context.Background(), "missing")
	if !errors.Is(err, domain.ErrQuestionSetNotFound) || !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

type countingLoader struct {
	QuestionSetLoader
	mu    sync.Mutex
	calls int
}

func (l *countingLoader) LoadQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	return l.QuestionSetLoader.LoadQuestionSet(ctx, setID)
}

func (l *countingLoader) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func sampleSet() domain.QuestionSet {
	return domain.QuestionSet{
		ID:    "set-1",
		Title: "Warmup",
		Questions: []domain.Question{
			{
				ID:   "q1",
				Text: "What is 2 + 2?",
				Options: []domain.Option{
					{ID: "0", Text: "3"},
					{ID: "1", Text: "4"},
					{ID: "2", Text: "5"},
					{ID: "3", Text: "22"},
				},
				CorrectOptionID:  "1",
				TimeLimitSeconds: 30,
				Points:           100,
			},
		},
	}
}
