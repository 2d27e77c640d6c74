package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"brainbrawler-service/internal/domain"
)

// MatchStore is an in-memory implementation of app.MatchStore. It resolves question sets
// through a loader so lazy loads return the same shape the Postgres store does.
type MatchStore struct {
	loader QuestionSetLoader

	mu     sync.RWMutex
	byID   map[string]*domain.MatchRecord
	byCode map[string]string
}

func NewMatchStore(loader QuestionSetLoader) *MatchStore {
	return &MatchStore{
		loader: loader,
		byID:   make(map[string]*domain.MatchRecord),
		byCode: make(map[string]string),
	}
}

func (s *MatchStore) LoadMatchByCode(ctx context.Context, code string) (domain.StoredMatch, error) {
	s.mu.RLock()
	id, ok := s.byCode[strings.ToUpper(code)]
	var rec domain.MatchRecord
	if ok {
		rec = cloneRecord(*s.byID[id])
	}
	s.mu.RUnlock()
	if !ok {
		return domain.StoredMatch{}, domain.ErrMatchNotFound
	}

	set, err := s.loader.LoadQuestionSet(ctx, rec.QuestionSetID)
	if err != nil {
		return domain.StoredMatch{}, err
	}
	return domain.StoredMatch{Record: rec, QuestionSet: set}, nil
}

func (s *MatchStore) CreateMatchRecord(_ context.Context, rec domain.MatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := cloneRecord(rec)
	s.byID[rec.ID] = &stored
	s.byCode[strings.ToUpper(rec.Code)] = rec.ID
	return nil
}

func (s *MatchStore) UpdateMatchStatus(_ context.Context, matchID string, status domain.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[matchID]
	if !ok {
		return domain.ErrMatchNotFound
	}
	rec.Status = status
	switch status {
	case domain.StatusInProgress:
		rec.StartedAt = &at
		rec.EndedAt = nil
	case domain.StatusFinished:
		rec.EndedAt = &at
	case domain.StatusWaiting:
		rec.CurrentRound = 0
		rec.StartedAt = nil
		rec.EndedAt = nil
	}
	return nil
}

func (s *MatchStore) UpdateCurrentRound(_ context.Context, matchID string, round int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[matchID]
	if !ok {
		return domain.ErrMatchNotFound
	}
	rec.CurrentRound = round
	return nil
}

func (s *MatchStore) UpdatePlayerScore(_ context.Context, matchID, playerID string, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[matchID]
	if !ok {
		return domain.ErrMatchNotFound
	}
	for i := range rec.Players {
		if rec.Players[i].ID == playerID {
			rec.Players[i].Score = score
			return nil
		}
	}
	return domain.ErrPlayerNotFound
}

func (s *MatchStore) AppendPlayer(_ context.Context, matchID string, p domain.PlayerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[matchID]
	if !ok {
		return domain.ErrMatchNotFound
	}
	for _, existing := range rec.Players {
		if existing.ID == p.ID {
			return nil
		}
	}
	rec.Players = append(rec.Players, p)
	return nil
}

func (s *MatchStore) RemovePlayer(_ context.Context, matchID, playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[matchID]
	if !ok {
		return domain.ErrMatchNotFound
	}
	for i := range rec.Players {
		if rec.Players[i].ID == playerID {
			rec.Players = append(rec.Players[:i], rec.Players[i+1:]...)
			return nil
		}
	}
	return domain.ErrPlayerNotFound
}

func (s *MatchStore) CodeInUse(_ context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byCode[strings.ToUpper(code)]
	return ok, nil
}

// Record returns a copy of the stored record, for inspection in tests and tooling.
func (s *MatchStore) Record(matchID string) (domain.MatchRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[matchID]
	if !ok {
		return domain.MatchRecord{}, false
	}
	return cloneRecord(*rec), true
}

func cloneRecord(rec domain.MatchRecord) domain.MatchRecord {
	players := make([]domain.PlayerRecord, len(rec.Players))
	copy(players, rec.Players)
	rec.Players = players
	return rec
}
