package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"brainbrawler-service/internal/domain"
	"brainbrawler-service/internal/scoring"
)

// StartMatch shuffles the questions and opens the first one. Starting a running match is a no-op.
func (c *Coordinator) StartMatch(ctx context.Context, code string) (domain.MatchSnapshot, error) {
	m, err := c.lookup(ctx, NormalizeCode(code))
	if err != nil {
		return domain.MatchSnapshot{}, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return domain.MatchSnapshot{}, domain.ErrMatchNotFound
	}
	switch m.status {
	case domain.StatusInProgress:
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap, nil
	case domain.StatusWaiting:
	default:
		m.mu.Unlock()
		return domain.MatchSnapshot{}, domain.ErrMatchNotWaiting
	}

	c.opts.Shuffle(len(m.questions), func(i, j int) {
		m.questions[i], m.questions[j] = m.questions[j], m.questions[i]
	})
	for _, p := range m.players {
		p.streak = 0
	}
	m.current = 0
	m.touchLocked()

	writes := []write{statusWrite(m.id, domain.StatusInProgress, m.now())}
	var snap domain.MatchSnapshot
	if len(m.questions) == 0 {
		writes = append(writes, c.finishLocked(m)...)
		snap = m.snapshotLocked()
		m.publishLocked(domain.EventGameOver, snap)
	} else {
		m.status = domain.StatusInProgress
		c.armQuestionLocked(m)
		snap = m.snapshotLocked()
		m.publishLocked(domain.EventGameStarted, snap)
		log.Printf("match %s started with %d players", m.code, len(m.players))
	}
	m.mu.Unlock()

	c.recorder.enqueue(writes...)
	return snap, nil
}

// Advance moves to the next question or finishes the match. It serves both the manual
// host skip and the timer path, so there is a single transition to reason about.
func (c *Coordinator) Advance(ctx context.Context, code string) (domain.MatchSnapshot, error) {
	m, err := c.lookup(ctx, NormalizeCode(code))
	if err != nil {
		return domain.MatchSnapshot{}, err
	}
	return c.advance(m, 0, false)
}

var errStaleAdvance = errors.New("advance belongs to a previous question")

// advance runs the transition. Scheduled advances carry the epoch of the question they were
// armed for and give up if the match has moved on since.
func (c *Coordinator) advance(m *Match, epoch uint64, scheduled bool) (domain.MatchSnapshot, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return domain.MatchSnapshot{}, domain.ErrMatchNotFound
	}
	if scheduled && m.epoch != epoch {
		m.mu.Unlock()
		return domain.MatchSnapshot{}, errStaleAdvance
	}
	if m.status != domain.StatusInProgress {
		m.mu.Unlock()
		return domain.MatchSnapshot{}, domain.ErrNoActiveQuestion
	}

	writes := c.advanceLocked(m)
	snap := m.snapshotLocked()
	if snap.Status == domain.StatusFinished {
		m.publishLocked(domain.EventGameOver, snap)
	} else {
		m.publishLocked(domain.EventNextQuestion, snap)
	}
	m.mu.Unlock()

	c.recorder.enqueue(writes...)
	return snap, nil
}

func (c *Coordinator) advanceLocked(m *Match) []write {
	m.stopTimerLocked()
	m.answered = make(map[string]struct{})
	m.touchLocked()

	if m.current+1 < len(m.questions) {
		m.current++
		c.armQuestionLocked(m)
		return []write{roundWrite(m.id, m.current)}
	}
	return c.finishLocked(m)
}

func (c *Coordinator) finishLocked(m *Match) []write {
	m.stopTimerLocked()
	m.status = domain.StatusFinished
	m.remaining = 0
	log.Printf("match %s finished", m.code)
	writes := []write{statusWrite(m.id, domain.StatusFinished, m.now())}
	return append(writes, m.scoreWritesLocked()...)
}

// armQuestionLocked opens the answer window for the current question and starts its
// countdown, replacing any previous timer.
func (c *Coordinator) armQuestionLocked(m *Match) {
	m.stopTimerLocked()
	m.answered = make(map[string]struct{})
	m.remaining = m.questions[m.current].TimeLimitSeconds
	m.windowOpen = true

	ctx, cancel := context.WithCancel(c.root)
	m.timerCtx = ctx
	m.cancelTimer = cancel
	go c.runTimer(ctx, m, m.epoch)
}

func (c *Coordinator) runTimer(ctx context.Context, m *Match, epoch uint64) {
	ticker := time.NewTicker(c.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if done := c.tick(m, epoch); done {
			return
		}
	}
}

// tick decrements the countdown and handles expiry. It reports whether the timer should stop.
func (c *Coordinator) tick(m *Match, epoch uint64) bool {
	m.mu.Lock()
	if m.closed || m.epoch != epoch || !m.windowOpen {
		m.mu.Unlock()
		return true
	}

	m.remaining--
	if m.remaining > 0 {
		m.publishLocked(domain.EventTimerTick, domain.Tick{QuestionIndex: m.current, TimeRemaining: m.remaining})
		m.mu.Unlock()
		return false
	}

	m.remaining = 0
	missed := c.engine.Missed()
	var writes []write
	for _, p := range m.players {
		if _, ok := m.answered[p.id]; ok {
			continue
		}
		p.score += missed.Points
		p.streak = 0
		writes = append(writes, scoreWrite(m.id, p.id, p.score))
	}
	m.touchLocked()
	m.publishLocked(domain.EventTimeExpired, nil)
	m.publishLocked(domain.EventPlayersUpdated, m.rosterLocked())
	c.concludeLocked(m)
	m.mu.Unlock()

	c.recorder.enqueue(writes...)
	return true
}

// concludeLocked closes the answer window, reveals the answer and schedules the grace-delayed
// advance. Only the caller that flips the window shut gets here, so each question advances once.
func (c *Coordinator) concludeLocked(m *Match) {
	q, ok := m.currentQuestionLocked()
	if !ok || !m.windowOpen {
		return
	}
	m.windowOpen = false

	text, found := q.OptionText(q.CorrectOptionID)
	if !found {
		text = "Unknown"
	}
	m.publishLocked(domain.EventCorrectAnswerReveal, domain.Reveal{
		QuestionID:        q.ID,
		CorrectAnswerID:   q.CorrectOptionID,
		CorrectAnswerText: text,
	})

	go c.advanceAfterGrace(m.timerCtx, m, m.epoch)
}

func (c *Coordinator) advanceAfterGrace(ctx context.Context, m *Match, epoch uint64) {
	t := time.NewTimer(c.opts.GracePeriod)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return
	case <-t.C:
	}
	if _, err := c.advance(m, epoch, true); err != nil && !errors.Is(err, errStaleAdvance) && !errors.Is(err, domain.ErrMatchNotFound) {
		log.Printf("match %s scheduled advance: %v", m.code, err)
	}
}

// SubmitAnswer scores one player's answer to the current question. A repeated answer returns
// ErrDuplicateAnswer and changes nothing. A negative or non-finite time is rejected before
// it can claim a speed bonus.
func (c *Coordinator) SubmitAnswer(ctx context.Context, code, playerID, optionID string, timeUsedSeconds float64) (domain.ScoreResult, error) {
	if math.IsNaN(timeUsedSeconds) || math.IsInf(timeUsedSeconds, 0) || timeUsedSeconds < 0 {
		return domain.ScoreResult{}, fmt.Errorf("%w: time used must be a non-negative number", domain.ErrInvalidRequest)
	}
	m, err := c.lookup(ctx, NormalizeCode(code))
	if err != nil {
		return domain.ScoreResult{}, err
	}
	playerID = strings.TrimSpace(playerID)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return domain.ScoreResult{}, domain.ErrMatchNotFound
	}
	q, ok := m.currentQuestionLocked()
	if !ok {
		m.mu.Unlock()
		return domain.ScoreResult{}, domain.ErrNoActiveQuestion
	}
	p, ok := m.roster[playerID]
	if !ok {
		m.mu.Unlock()
		return domain.ScoreResult{}, domain.ErrPlayerNotFound
	}
	if _, dup := m.answered[playerID]; dup {
		m.mu.Unlock()
		return domain.ScoreResult{}, domain.ErrDuplicateAnswer
	}
	if !m.windowOpen {
		m.mu.Unlock()
		return domain.ScoreResult{}, domain.ErrQuestionClosed
	}

	m.answered[playerID] = struct{}{}
	out := c.engine.Score(q, optionID, timeUsedSeconds)
	points := out.Points
	breakdown := out.Breakdown
	if out.Correct {
		p.streak++
		if m.settings.StreakBonus {
			points = scoring.StreakBonus(points, p.streak)
			breakdown.StreakBonus = points - out.Points
		}
	} else {
		p.streak = 0
	}
	p.score += points
	m.touchLocked()

	result := domain.ScoreResult{
		PlayerID:      playerID,
		QuestionID:    q.ID,
		Correct:       out.Correct,
		Points:        points,
		NewTotalScore: p.score,
		AllAnswered:   m.allAnsweredLocked(),
		Breakdown:     breakdown,
	}
	m.unicastLocked(playerID, domain.EventAnswerResult, result)
	m.publishLocked(domain.EventPlayersUpdated, m.rosterLocked())
	if result.AllAnswered {
		c.concludeLocked(m)
	}
	m.mu.Unlock()

	c.recorder.enqueue(scoreWrite(m.id, playerID, result.NewTotalScore))
	return result, nil
}
