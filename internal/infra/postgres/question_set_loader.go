package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"brainbrawler-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuestionSetLoader loads question sets and their ordered questions from Postgres.
type QuestionSetLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionSetLoader(pool *pgxpool.Pool) *QuestionSetLoader {
	return &QuestionSetLoader{pool: pool}
}

func (l *QuestionSetLoader) LoadQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error) {
	set := domain.QuestionSet{ID: setID}
	err := l.pool.QueryRow(ctx, `SELECT title FROM question_sets WHERE id=$1`, setID).Scan(&set.Title)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuestionSet{}, domain.ErrQuestionSetNotFound
	}
	if err != nil {
		return domain.QuestionSet{}, fmt.Errorf("load question set: %w", err)
	}

	rows, err := l.pool.Query(ctx, `
		SELECT id, text, options, correct_option_id, time_limit_seconds, points
		FROM questions WHERE set_id=$1 ORDER BY position, id`, setID)
	if err != nil {
		return domain.QuestionSet{}, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			q   domain.Question
			raw []byte
		)
		if err := rows.Scan(&q.ID, &q.Text, &raw, &q.CorrectOptionID, &q.TimeLimitSeconds, &q.Points); err != nil {
			return domain.QuestionSet{}, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal(raw, &q.Options); err != nil {
			return domain.QuestionSet{}, fmt.Errorf("unmarshal options of %s: %w", q.ID, err)
		}
		set.Questions = append(set.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return domain.QuestionSet{}, fmt.Errorf("load questions: %w", err)
	}
	return set, nil
}
