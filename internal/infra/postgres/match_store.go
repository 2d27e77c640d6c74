package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"brainbrawler-service/internal/domain"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// MatchQuestionSetLoader resolves the question set a stored match was created from.
type MatchQuestionSetLoader interface {
	LoadQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error)
}

// MatchStore persists matches and their rosters in Postgres.
type MatchStore struct {
	pool   *pgxpool.Pool
	loader MatchQuestionSetLoader
}

func NewMatchStore(pool *pgxpool.Pool, loader MatchQuestionSetLoader) *MatchStore {
	return &MatchStore{pool: pool, loader: loader}
}

func (s *MatchStore) LoadMatchByCode(ctx context.Context, code string) (domain.StoredMatch, error) {
	var (
		rec      domain.MatchRecord
		status   string
		settings []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, code, question_set_id, status, current_round, settings, created_at, started_at, ended_at
		FROM matches WHERE code=$1`, strings.ToUpper(code)).
		Scan(&rec.ID, &rec.Code, &rec.QuestionSetID, &status, &rec.CurrentRound, &settings,
			&rec.CreatedAt, &rec.StartedAt, &rec.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.StoredMatch{}, domain.ErrMatchNotFound
	}
	if err != nil {
		return domain.StoredMatch{}, fmt.Errorf("load match: %w", err)
	}
	rec.Status = domain.Status(status)
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &rec.Settings); err != nil {
			return domain.StoredMatch{}, fmt.Errorf("unmarshal settings: %w", err)
		}
	}

	rows, err := s.pool.Query(ctx, `
		SELECT player_id, username, score, is_host, joined_at
		FROM match_players WHERE match_id=$1 ORDER BY joined_at, player_id`, rec.ID)
	if err != nil {
		return domain.StoredMatch{}, fmt.Errorf("load players: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p domain.PlayerRecord
		if err := rows.Scan(&p.ID, &p.Username, &p.Score, &p.IsHost, &p.JoinedAt); err != nil {
			return domain.StoredMatch{}, fmt.Errorf("scan player: %w", err)
		}
		rec.Players = append(rec.Players, p)
	}
	if err := rows.Err(); err != nil {
		return domain.StoredMatch{}, fmt.Errorf("load players: %w", err)
	}

	set, err := s.loader.LoadQuestionSet(ctx, rec.QuestionSetID)
	if err != nil {
		return domain.StoredMatch{}, err
	}
	return domain.StoredMatch{Record: rec, QuestionSet: set}, nil
}

func (s *MatchStore) CreateMatchRecord(ctx context.Context, rec domain.MatchRecord) error {
	settings, err := json.Marshal(rec.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO matches (id, code, question_set_id, status, current_round, settings, created_at)
			VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)`,
			rec.ID, strings.ToUpper(rec.Code), rec.QuestionSetID, string(rec.Status), rec.CurrentRound, string(settings), createdAt)
		if err != nil {
			return fmt.Errorf("insert match: %w", err)
		}
		for _, p := range rec.Players {
			if err := insertPlayer(ctx, tx, rec.ID, p); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *MatchStore) UpdateMatchStatus(ctx context.Context, matchID string, status domain.Status, at time.Time) error {
	var (
		query string
		args  = []any{matchID, string(status)}
	)
	switch status {
	case domain.StatusInProgress:
		query = `UPDATE matches SET status=$2, started_at=$3, ended_at=NULL WHERE id=$1`
		args = append(args, at)
	case domain.StatusFinished:
		query = `UPDATE matches SET status=$2, ended_at=$3 WHERE id=$1`
		args = append(args, at)
	default:
		query = `UPDATE matches SET status=$2, current_round=0, started_at=NULL, ended_at=NULL WHERE id=$1`
	}
	return s.exec(ctx, "update status", query, args...)
}

func (s *MatchStore) UpdateCurrentRound(ctx context.Context, matchID string, round int) error {
	return s.exec(ctx, "update round", `UPDATE matches SET current_round=$2 WHERE id=$1`, matchID, round)
}

func (s *MatchStore) UpdatePlayerScore(ctx context.Context, matchID, playerID string, score int) error {
	tag, err := s.pool.Exec(ctx, `UPDATE match_players SET score=$3 WHERE match_id=$1 AND player_id=$2`, matchID, playerID, score)
	if err != nil {
		return fmt.Errorf("update score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPlayerNotFound
	}
	return nil
}

func (s *MatchStore) AppendPlayer(ctx context.Context, matchID string, p domain.PlayerRecord) error {
	return insertPlayer(ctx, s.pool, matchID, p)
}

func (s *MatchStore) RemovePlayer(ctx context.Context, matchID, playerID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM match_players WHERE match_id=$1 AND player_id=$2`, matchID, playerID)
	if err != nil {
		return fmt.Errorf("remove player: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPlayerNotFound
	}
	return nil
}

func (s *MatchStore) CodeInUse(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM matches WHERE code=$1)`, strings.ToUpper(code)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check code: %w", err)
	}
	return exists, nil
}

func (s *MatchStore) exec(ctx context.Context, op, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMatchNotFound
	}
	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func insertPlayer(ctx context.Context, db execer, matchID string, p domain.PlayerRecord) error {
	joinedAt := p.JoinedAt
	if joinedAt.IsZero() {
		joinedAt = time.Now()
	}
	_, err := db.Exec(ctx, `
		INSERT INTO match_players (match_id, player_id, username, score, is_host, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (match_id, player_id) DO NOTHING`,
		matchID, p.ID, p.Username, p.Score, p.IsHost, joinedAt)
	if err != nil {
		return fmt.Errorf("insert player %s: %w", p.ID, err)
	}
	return nil
}
