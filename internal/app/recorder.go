package app

import (
	"context"
	"log"
	"time"

	"brainbrawler-service/internal/domain"
)

// write is one best-effort durability operation against the match store.
type write struct {
	name string
	fn   func(ctx context.Context, store MatchStore) error
}

// recorder applies writes in FIFO order on a single goroutine, so a match record is always
// created before its updates land. Writes never block gameplay: a full queue drops them.
type recorder struct {
	store   MatchStore
	queue   chan write
	timeout time.Duration
	done    chan struct{}
}

func newRecorder(store MatchStore, size int, timeout time.Duration) *recorder {
	return &recorder{
		store:   store,
		queue:   make(chan write, size),
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

func (r *recorder) enqueue(writes ...write) {
	for _, w := range writes {
		select {
		case r.queue <- w:
		default:
			log.Printf("persistence queue full, dropping %s", w.name)
		}
	}
}

// run drains the queue until ctx is canceled, then flushes what is already queued.
func (r *recorder) run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case w := <-r.queue:
			r.apply(w)
		case <-ctx.Done():
			for {
				select {
				case w := <-r.queue:
					r.apply(w)
				default:
					return
				}
			}
		}
	}
}

func (r *recorder) apply(w write) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := w.fn(ctx, r.store); err != nil {
		log.Printf("warning: %s failed: %v", w.name, err)
	}
}

func createRecordWrite(rec domain.MatchRecord) write {
	return write{
		name: "create match " + rec.Code,
		fn: func(ctx context.Context, s MatchStore) error {
			return s.CreateMatchRecord(ctx, rec)
		},
	}
}

func statusWrite(matchID string, status domain.Status, at time.Time) write {
	return write{
		name: "update status of " + matchID,
		fn: func(ctx context.Context, s MatchStore) error {
			return s.UpdateMatchStatus(ctx, matchID, status, at)
		},
	}
}

func roundWrite(matchID string, round int) write {
	return write{
		name: "update round of " + matchID,
		fn: func(ctx context.Context, s MatchStore) error {
			return s.UpdateCurrentRound(ctx, matchID, round)
		},
	}
}

func scoreWrite(matchID, playerID string, score int) write {
	return write{
		name: "update score of " + playerID + " in " + matchID,
		fn: func(ctx context.Context, s MatchStore) error {
			return s.UpdatePlayerScore(ctx, matchID, playerID, score)
		},
	}
}

func appendPlayerWrite(matchID string, p domain.PlayerRecord) write {
	return write{
		name: "append player " + p.ID + " to " + matchID,
		fn: func(ctx context.Context, s MatchStore) error {
			return s.AppendPlayer(ctx, matchID, p)
		},
	}
}

func removePlayerWrite(matchID, playerID string) write {
	return write{
		name: "remove player " + playerID + " from " + matchID,
		fn: func(ctx context.Context, s MatchStore) error {
			return s.RemovePlayer(ctx, matchID, playerID)
		},
	}
}

// scoreWritesLocked snapshots every player's score for the store.
func (m *Match) scoreWritesLocked() []write {
	writes := make([]write, 0, len(m.players))
	for _, p := range m.players {
		writes = append(writes, scoreWrite(m.id, p.id, p.score))
	}
	return writes
}
