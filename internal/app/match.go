package app

import (
	"context"
	"sync"
	"time"

	"brainbrawler-service/internal/domain"
)

// Match is the live, in-memory state of one match. Every field below mu is guarded by it.
type Match struct {
	id            string
	code          string
	hostID        string
	questionSetID string
	settings      domain.Settings
	now           func() time.Time

	mu           sync.Mutex
	status       domain.Status
	players      []*player
	roster       map[string]*player
	questions    []domain.Question
	current      int
	answered     map[string]struct{}
	remaining    int
	windowOpen   bool
	epoch        uint64
	timerCtx     context.Context
	cancelTimer  context.CancelFunc
	closed       bool
	lastActivity time.Time
	subscribers  map[chan domain.Event]struct{}
}

type player struct {
	id        string
	username  string
	score     int
	connected bool
	streak    int
	joinedAt  time.Time
}

func newMatch(id, code, hostID, questionSetID string, settings domain.Settings, questions []domain.Question, now func() time.Time) *Match {
	return &Match{
		id:            id,
		code:          code,
		hostID:        hostID,
		questionSetID: questionSetID,
		settings:      settings,
		now:           now,
		status:        domain.StatusWaiting,
		roster:        make(map[string]*player),
		questions:     questions,
		answered:      make(map[string]struct{}),
		lastActivity:  now(),
		subscribers:   make(map[chan domain.Event]struct{}),
	}
}

// Code returns the join code of the match.
func (m *Match) Code() string {
	return m.code
}

// Snapshot returns a consistent copy of the match state.
func (m *Match) Snapshot() domain.MatchSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Match) addPlayerLocked(id, username string, connected bool) *player {
	p := &player{
		id:        id,
		username:  username,
		connected: connected,
		joinedAt:  m.now(),
	}
	m.players = append(m.players, p)
	m.roster[id] = p
	return p
}

func (m *Match) removePlayerLocked(id string) bool {
	if _, ok := m.roster[id]; !ok {
		return false
	}
	delete(m.roster, id)
	delete(m.answered, id)
	kept := m.players[:0]
	for _, p := range m.players {
		if p.id != id {
			kept = append(kept, p)
		}
	}
	m.players = kept
	return true
}

func (m *Match) currentQuestionLocked() (domain.Question, bool) {
	if m.status != domain.StatusInProgress || m.current >= len(m.questions) {
		return domain.Question{}, false
	}
	return m.questions[m.current], true
}

func (m *Match) allAnsweredLocked() bool {
	return len(m.players) > 0 && len(m.answered) == len(m.players)
}

func (m *Match) anyConnectedLocked() bool {
	for _, p := range m.players {
		if p.connected {
			return true
		}
	}
	return false
}

func (m *Match) touchLocked() {
	m.lastActivity = m.now()
}

// stopTimerLocked cancels the running countdown and any pending grace advance.
// Bumping the epoch turns callbacks that already passed the cancel check into no-ops.
func (m *Match) stopTimerLocked() {
	if m.cancelTimer != nil {
		m.cancelTimer()
		m.cancelTimer = nil
		m.timerCtx = nil
	}
	m.epoch++
	m.windowOpen = false
}

// resetForRematchLocked moves a finished match back to the lobby, keeping its roster.
func (m *Match) resetForRematchLocked() {
	m.stopTimerLocked()
	m.status = domain.StatusWaiting
	m.current = 0
	m.remaining = 0
	m.answered = make(map[string]struct{})
	for _, p := range m.players {
		p.score = 0
		p.streak = 0
	}
}

func (m *Match) closeLocked() {
	m.stopTimerLocked()
	m.closed = true
	for ch := range m.subscribers {
		delete(m.subscribers, ch)
		close(ch)
	}
}

func (m *Match) rosterLocked() []domain.PlayerView {
	views := make([]domain.PlayerView, 0, len(m.players))
	for _, p := range m.players {
		views = append(views, domain.PlayerView{
			ID:        p.id,
			Username:  p.username,
			Score:     p.score,
			Connected: p.connected,
			IsHost:    p.id == m.hostID,
		})
	}
	return views
}

func (m *Match) snapshotLocked() domain.MatchSnapshot {
	snap := domain.MatchSnapshot{
		ID:                   m.id,
		Code:                 m.code,
		HostPlayerID:         m.hostID,
		Status:               m.status,
		Players:              m.rosterLocked(),
		CurrentQuestionIndex: m.current,
		TimeRemainingSeconds: m.remaining,
		TotalQuestions:       len(m.questions),
		AnsweredCount:        len(m.answered),
		Settings:             m.settings,
	}
	if q, ok := m.currentQuestionLocked(); ok {
		view := q.Public()
		snap.CurrentQuestion = &view
	}
	return snap
}

func (m *Match) subscribe() (<-chan domain.Event, func(), bool) {
	ch := make(chan domain.Event, 32)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, nil, false
	}
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		if _, ok := m.subscribers[ch]; ok {
			delete(m.subscribers, ch)
			close(ch)
		}
		m.mu.Unlock()
	}
	return ch, cancel, true
}

func (m *Match) publishLocked(eventType domain.EventType, payload any) {
	m.deliverLocked(domain.Event{Type: eventType, MatchCode: m.code, Payload: payload})
}

func (m *Match) unicastLocked(playerID string, eventType domain.EventType, payload any) {
	m.deliverLocked(domain.Event{Type: eventType, MatchCode: m.code, PlayerID: playerID, Payload: payload})
}

// deliverLocked fans ev out without blocking. When a subscriber's buffer is full, the oldest
// superseded event (a tick or a roster update) makes room. A subscriber whose buffer holds
// nothing it can lose is closed; its client resyncs from the snapshot on rejoin.
func (m *Match) deliverLocked(ev domain.Event) {
	for ch := range m.subscribers {
		select {
		case ch <- ev:
			continue
		default:
		}
		if !makeRoom(ch) {
			delete(m.subscribers, ch)
			close(ch)
			continue
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

// makeRoom drops the oldest superseded event from a full buffer, keeping the order of the rest.
// Only the subscriber reads concurrently, so the buffer can only shrink while this runs.
func makeRoom(ch chan domain.Event) bool {
	queued := make([]domain.Event, 0, cap(ch))
	for drained := false; !drained; {
		select {
		case ev := <-ch:
			queued = append(queued, ev)
		default:
			drained = true
		}
	}

	dropped := len(queued) < cap(ch)
	for _, ev := range queued {
		if !dropped && supersedable(ev.Type) {
			dropped = true
			continue
		}
		ch <- ev
	}
	return dropped
}

// supersedable events carry state that a later event of the same kind fully replaces.
func supersedable(t domain.EventType) bool {
	switch t {
	case domain.EventTimerTick, domain.EventPlayersUpdated, domain.EventPlayerJoined, domain.EventPlayerLeft:
		return true
	}
	return false
}

func (m *Match) recordLocked() domain.MatchRecord {
	players := make([]domain.PlayerRecord, 0, len(m.players))
	for _, p := range m.players {
		players = append(players, domain.PlayerRecord{
			ID:       p.id,
			Username: p.username,
			Score:    p.score,
			IsHost:   p.id == m.hostID,
			JoinedAt: p.joinedAt,
		})
	}
	return domain.MatchRecord{
		ID:            m.id,
		Code:          m.code,
		QuestionSetID: m.questionSetID,
		Status:        m.status,
		CurrentRound:  m.current,
		Settings:      m.settings,
		Players:       players,
		CreatedAt:     m.now(),
	}
}

// prepareQuestions applies stored defaults and the match settings to a question bank.
func prepareQuestions(bank []domain.Question, settings domain.Settings) []domain.Question {
	questions := make([]domain.Question, 0, len(bank))
	for _, q := range bank {
		if q.Points == 0 {
			q.Points = domain.DefaultPoints
		}
		if q.TimeLimitSeconds <= 0 {
			q.TimeLimitSeconds = domain.DefaultTimeLimitSeconds
		}
		if settings.TimePerQuestion > 0 {
			q.TimeLimitSeconds = settings.TimePerQuestion
		}
		questions = append(questions, q)
	}
	if settings.TotalRounds > 0 && settings.TotalRounds < len(questions) {
		questions = questions[:settings.TotalRounds]
	}
	return questions
}
