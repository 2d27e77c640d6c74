package memory

import (
	"context"

	"brainbrawler-service/internal/domain"
)

// StaticQuestionSetLoader serves a fixed set of question banks, for running without Postgres.
type StaticQuestionSetLoader struct {
	sets map[string]domain.QuestionSet
}

func NewStaticQuestionSetLoader(sets map[string]domain.QuestionSet) *StaticQuestionSetLoader {
	return &StaticQuestionSetLoader{sets: sets}
}

func (l *StaticQuestionSetLoader) LoadQuestionSet(_ context.Context, setID string) (domain.QuestionSet, error) {
	set, ok := l.sets[setID]
	if !ok {
		return domain.QuestionSet{}, domain.ErrQuestionSetNotFound
	}
	return set, nil
}
