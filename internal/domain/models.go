package domain

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a match.
type Status string

const (
	StatusWaiting    Status = "WAITING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusFinished   Status = "FINISHED"
)

const (
	// DefaultPoints applies to questions stored without a point value.
	DefaultPoints = 100
	// DefaultTimeLimitSeconds applies to questions stored without a time limit.
	DefaultTimeLimitSeconds = 30
	// OptionsPerQuestion is the number of answer options every question carries.
	OptionsPerQuestion = 4
)

// Option is one selectable answer of a question. IDs are stable per question, not positional.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID               string   `json:"id"`
	Text             string   `json:"text"`
	Options          []Option `json:"options"`
	CorrectOptionID  string   `json:"correctOptionId"`
	TimeLimitSeconds int      `json:"timeLimitSeconds"`
	Points           int      `json:"points"`
}

// OptionText returns the text of the option with the given id.
func (q Question) OptionText(optionID string) (string, bool) {
	for _, opt := range q.Options {
		if opt.ID == optionID {
			return opt.Text, true
		}
	}
	return "", false
}

// Validate checks that the question can be played: four options with distinct ids, one of
// which is the correct answer.
func (q Question) Validate() error {
	if len(q.Options) != OptionsPerQuestion {
		return fmt.Errorf("%w: question %s has %d options, want %d", ErrMalformedQuestion, q.ID, len(q.Options), OptionsPerQuestion)
	}
	seen := make(map[string]struct{}, len(q.Options))
	for _, opt := range q.Options {
		if opt.ID == "" {
			return fmt.Errorf("%w: question %s has an option without id", ErrMalformedQuestion, q.ID)
		}
		if _, dup := seen[opt.ID]; dup {
			return fmt.Errorf("%w: question %s repeats option %s", ErrMalformedQuestion, q.ID, opt.ID)
		}
		seen[opt.ID] = struct{}{}
	}
	if _, ok := seen[q.CorrectOptionID]; !ok {
		return fmt.Errorf("%w: question %s names unknown correct option %q", ErrMalformedQuestion, q.ID, q.CorrectOptionID)
	}
	return nil
}

// Public strips the correct answer so the question can be shown to players.
func (q Question) Public() QuestionView {
	opts := make([]Option, len(q.Options))
	copy(opts, q.Options)
	return QuestionView{
		ID:               q.ID,
		Text:             q.Text,
		Options:          opts,
		TimeLimitSeconds: q.TimeLimitSeconds,
		Points:           q.Points,
	}
}

// QuestionView is the player-facing form of a question.
type QuestionView struct {
	ID               string   `json:"id"`
	Text             string   `json:"text"`
	Options          []Option `json:"options"`
	TimeLimitSeconds int      `json:"timeLimitSeconds"`
	Points           int      `json:"points"`
}

// QuestionSet is an ordered bank of questions a match is played from.
type QuestionSet struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Settings are the host-chosen knobs of a match.
type Settings struct {
	// TimePerQuestion overrides every question's time limit when positive.
	TimePerQuestion int `json:"timePerQuestion,omitempty"`
	// TotalRounds truncates the question sequence when positive.
	TotalRounds int `json:"totalRounds,omitempty"`
	// StreakBonus multiplies correct-answer points by the running streak.
	StreakBonus bool `json:"streakBonus,omitempty"`
}

// PlayerView is a snapshot-friendly view of a match participant.
type PlayerView struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Score     int    `json:"score"`
	Connected bool   `json:"connected"`
	IsHost    bool   `json:"isHost"`
}

// MatchSnapshot is a consistent, immutable copy of a match's state.
type MatchSnapshot struct {
	ID                   string        `json:"id"`
	Code                 string        `json:"code"`
	HostPlayerID         string        `json:"hostPlayerId"`
	Status               Status        `json:"status"`
	Players              []PlayerView  `json:"players"`
	CurrentQuestionIndex int           `json:"currentQuestionIndex"`
	CurrentQuestion      *QuestionView `json:"currentQuestion,omitempty"`
	TimeRemainingSeconds int           `json:"timeRemaining"`
	TotalQuestions       int           `json:"totalQuestions"`
	AnsweredCount        int           `json:"answeredCount"`
	Settings             Settings      `json:"settings"`
}

// Player returns the roster entry with the given id.
func (s MatchSnapshot) Player(id string) (PlayerView, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return PlayerView{}, false
}

// Breakdown itemizes how the points of one answer were computed.
type Breakdown struct {
	BasePoints int `json:"basePoints"`
	TimeBonus  int `json:"timeBonus"`
	Penalty    int `json:"penalty"`
	// Extra points from the streak multiplier, when the match enables it.
	StreakBonus int `json:"streakBonus,omitempty"`
}

// ScoreResult summarizes the outcome of a submission for a single player.
type ScoreResult struct {
	PlayerID      string    `json:"playerId"`
	QuestionID    string    `json:"questionId"`
	Correct       bool      `json:"correct"`
	Points        int       `json:"score"`
	NewTotalScore int       `json:"newTotalScore"`
	AllAnswered   bool      `json:"allAnswered"`
	Breakdown     Breakdown `json:"breakdown"`
}

// PlayerRecord is the durable form of a roster entry.
type PlayerRecord struct {
	ID       string
	Username string
	Score    int
	IsHost   bool
	JoinedAt time.Time
}

// MatchRecord is what the persistence store knows about a match.
type MatchRecord struct {
	ID            string
	Code          string
	QuestionSetID string
	Status        Status
	CurrentRound  int
	Settings      Settings
	Players       []PlayerRecord
	CreatedAt     time.Time
	StartedAt     *time.Time
	EndedAt       *time.Time
}

// StoredMatch is a match record resolved together with its question set.
type StoredMatch struct {
	Record      MatchRecord
	QuestionSet QuestionSet
}
