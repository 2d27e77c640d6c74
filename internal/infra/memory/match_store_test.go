package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"brainbrawler-service/internal/domain"
)

func TestMatchStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMatchStore(NewStaticQuestionSetLoader(map[string]domain.QuestionSet{"set-1": sampleSet()}))

	rec := domain.MatchRecord{
		ID:            "m1",
		Code:          "ABC123",
		QuestionSetID: "set-1",
		Status:        domain.StatusWaiting,
		Players:       []domain.PlayerRecord{{ID: "alice", Username: "Alice", IsHost: true}},
	}
	if err := store.CreateMatchRecord(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.AppendPlayer(ctx, "m1", domain.PlayerRecord{ID: "bob", Username: "Bob"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	// Appending twice keeps a single roster entry.
	_ = store.AppendPlayer(ctx, "m1", domain.PlayerRecord{ID: "bob", Username: "Bob"})
	if err := store.UpdatePlayerScore(ctx, "m1", "bob", -25); err != nil {
		t.Fatalf("score: %v", err)
	}
	if err := store.UpdateMatchStatus(ctx, "m1", domain.StatusInProgress, time.Now()); err != nil {
		t.Fatalf("status: %v", err)
	}
	if err := store.UpdateCurrentRound(ctx, "m1", 0); err != nil {
		t.Fatalf("round: %v", err)
	}

	stored, err := store.LoadMatchByCode(ctx, "abc123")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if stored.Record.Status != domain.StatusInProgress || stored.Record.StartedAt == nil {
		t.Fatalf("unexpected status %+v", stored.Record)
	}
	if len(stored.Record.Players) != 2 || stored.Record.Players[1].Score != -25 {
		t.Fatalf("unexpected roster %+v", stored.Record.Players)
	}
	if len(stored.QuestionSet.Questions) != 1 {
		t.Fatalf("expected question set resolved, got %+v", stored.QuestionSet)
	}
}

func TestMatchStoreMissing(t *testing.T) {
	store := NewMatchStore(NewStaticQuestionSetLoader(nil))
	if _, err := store.LoadMatchByCode(context.Background(), "NOPE00"); !errors.Is(err, domain.ErrMatchNotFound) {
		t.Fatalf("expected match not found, got %v", err)
	}
	if err := store.UpdatePlayerScore(context.Background(), "m1", "p", 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMatchStoreRemovePlayerAndCodes(t *testing.T) {
	ctx := context.Background()
	store := NewMatchStore(NewStaticQuestionSetLoader(map[string]domain.QuestionSet{"set-1": sampleSet()}))
	_ = store.CreateMatchRecord(ctx, domain.MatchRecord{
		ID:            "m1",
		Code:          "ABC123",
		QuestionSetID: "set-1",
		Players: []domain.PlayerRecord{
			{ID: "alice", Username: "Alice", IsHost: true},
			{ID: "bob", Username: "Bob"},
		},
	})

	if err := store.RemovePlayer(ctx, "m1", "bob"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := store.RemovePlayer(ctx, "m1", "bob"); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("expected player not found, got %v", err)
	}
	rec, _ := store.Record("m1")
	if len(rec.Players) != 1 || rec.Players[0].ID != "alice" {
		t.Fatalf("unexpected roster %+v", rec.Players)
	}

	if inUse, _ := store.CodeInUse(ctx, "abc123"); !inUse {
		t.Fatalf("expected stored code to be in use")
	}
	if inUse, _ := store.CodeInUse(ctx, "ZZZ999"); inUse {
		t.Fatalf("unknown code reported in use")
	}
}
