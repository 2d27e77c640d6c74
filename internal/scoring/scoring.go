// Package scoring turns an answer into points: base points plus a speed bonus for correct
// answers, a flat penalty for wrong ones.
package scoring

import (
	"math"

	"brainbrawler-service/internal/domain"
)

// DefaultPenalty is deducted for a wrong answer or a missed question.
const DefaultPenalty = 25

const maxStreakMultiplier = 2.0

// tier maps an upper bound on the share of the window used (exclusive, percent) to a bonus share.
type tier struct {
	below        float64
	bonusPercent int
}

var bonusTiers = []tier{
	{below: 10, bonusPercent: 50},
	{below: 25, bonusPercent: 40},
	{below: 40, bonusPercent: 30},
	{below: 60, bonusPercent: 20},
	{below: 80, bonusPercent: 10},
}

// Engine scores answers. The zero value uses DefaultPenalty for both wrong and missed answers.
type Engine struct {
	Penalty     int
	MissPenalty int
}

// Outcome is the scoring side of a submission.
type Outcome struct {
	Correct   bool
	Points    int
	Breakdown domain.Breakdown
}

// Score computes the points for one answer to q.
func (e Engine) Score(q domain.Question, optionID string, timeUsedSeconds float64) Outcome {
	if optionID != q.CorrectOptionID {
		penalty := orDefault(e.Penalty)
		return Outcome{
			Correct:   false,
			Points:    -penalty,
			Breakdown: domain.Breakdown{Penalty: penalty},
		}
	}

	base := q.Points
	bonus := TimeBonus(base, timeUsedSeconds, q.TimeLimitSeconds)
	return Outcome{
		Correct:   true,
		Points:    base + bonus,
		Breakdown: domain.Breakdown{BasePoints: base, TimeBonus: bonus},
	}
}

// Missed returns the outcome for a player who let the timer run out.
func (e Engine) Missed() Outcome {
	penalty := orDefault(e.MissPenalty)
	return Outcome{Points: -penalty, Breakdown: domain.Breakdown{Penalty: penalty}}
}

func orDefault(penalty int) int {
	if penalty <= 0 {
		return DefaultPenalty
	}
	return penalty
}

// BonusPercent returns the share of base points awarded for answering after timeUsed of limit seconds.
func BonusPercent(timeUsedSeconds float64, limitSeconds int) int {
	if limitSeconds <= 0 {
		return 0
	}
	if timeUsedSeconds < 0 {
		timeUsedSeconds = 0
	}
	pct := timeUsedSeconds / float64(limitSeconds) * 100
	for _, t := range bonusTiers {
		if pct < t.below {
			return t.bonusPercent
		}
	}
	return 0
}

// TimeBonus returns the rounded speed bonus for base points.
func TimeBonus(base int, timeUsedSeconds float64, limitSeconds int) int {
	pct := BonusPercent(timeUsedSeconds, limitSeconds)
	return int(math.Round(float64(base*pct) / 100))
}

// StreakBonus multiplies score by 1.1 per consecutive correct answer past the first, capped at 2x.
func StreakBonus(score, streak int) int {
	if streak <= 1 {
		return score
	}
	multiplier := math.Min(1+float64(streak-1)*0.1, maxStreakMultiplier)
	return int(math.Round(float64(score) * multiplier))
}
