package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"brainbrawler-service/internal/domain"
	"brainbrawler-service/internal/scoring"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// MatchStore is the durable record of matches. Reads back lazy loads; writes are best-effort.
type MatchStore interface {
	LoadMatchByCode(ctx context.Context, code string) (domain.StoredMatch, error)
	CreateMatchRecord(ctx context.Context, rec domain.MatchRecord) error
	UpdateMatchStatus(ctx context.Context, matchID string, status domain.Status, at time.Time) error
	UpdateCurrentRound(ctx context.Context, matchID string, round int) error
	UpdatePlayerScore(ctx context.Context, matchID, playerID string, score int) error
	AppendPlayer(ctx context.Context, matchID string, p domain.PlayerRecord) error
	RemovePlayer(ctx context.Context, matchID, playerID string) error
	// CodeInUse reports whether any stored match, live or finished, holds the code.
	CodeInUse(ctx context.Context, code string) (bool, error)
}

// QuestionSetRepository loads question banks (from cache/backing store).
type QuestionSetRepository interface {
	GetQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error)
}

// CodeReserver claims join codes across service instances. Optional.
type CodeReserver interface {
	Reserve(ctx context.Context, code string) (bool, error)
	Release(ctx context.Context, code string) error
}

// Options tune the coordinator. Zero values fall back to the defaults below.
type Options struct {
	DefaultQuestionSetID string
	TickInterval         time.Duration
	GracePeriod          time.Duration
	WrongAnswerPenalty   int
	TimeoutPenalty       int
	CodeAttempts         int
	WriteQueue           int
	WriteTimeout         time.Duration
	CodeReserver         CodeReserver

	// Shuffle permutes question order at start; defaults to math/rand.Shuffle.
	Shuffle func(n int, swap func(i, j int))
	// Now is the clock used for activity and persistence timestamps.
	Now func() time.Time
}

const (
	defaultTickInterval = time.Second
	defaultGracePeriod  = 3 * time.Second
	defaultCodeAttempts = 10
	defaultWriteQueue   = 1024
	defaultWriteTimeout = 5 * time.Second
	maxJoinAttempts     = 3
)

func (o Options) withDefaults() Options {
	if o.TickInterval <= 0 {
		o.TickInterval = defaultTickInterval
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = defaultGracePeriod
	}
	if o.CodeAttempts <= 0 {
		o.CodeAttempts = defaultCodeAttempts
	}
	if o.WriteQueue <= 0 {
		o.WriteQueue = defaultWriteQueue
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.Shuffle == nil {
		o.Shuffle = rand.Shuffle
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// CreateMatchRequest describes a new match.
type CreateMatchRequest struct {
	HostID        string
	HostName      string
	QuestionSetID string
	Settings      domain.Settings
}

// Coordinator is the live match registry. It owns every in-memory match and its timer.
type Coordinator struct {
	store     MatchStore
	questions QuestionSetRepository
	codes     CodeReserver
	opts      Options
	engine    scoring.Engine
	recorder  *recorder
	sf        singleflight.Group

	root   context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	matches map[string]*Match
}

// NewCoordinator builds a coordinator and starts its persistence writer.
// Call Shutdown to stop timers and flush queued writes.
func NewCoordinator(store MatchStore, questions QuestionSetRepository, opts Options) *Coordinator {
	opts = opts.withDefaults()
	root, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		store:     store,
		questions: questions,
		codes:     opts.CodeReserver,
		opts:      opts,
		engine:    scoring.Engine{Penalty: opts.WrongAnswerPenalty, MissPenalty: opts.TimeoutPenalty},
		recorder:  newRecorder(store, opts.WriteQueue, opts.WriteTimeout),
		root:      root,
		cancel:    cancel,
		matches:   make(map[string]*Match),
	}
	go c.recorder.run(root)
	return c
}

// Shutdown cancels every timer and waits for queued persistence writes to flush.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.cancel()
	select {
	case <-c.recorder.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateMatch allocates a code, loads the question set and registers a waiting match hosted by the caller.
func (c *Coordinator) CreateMatch(ctx context.Context, req CreateMatchRequest) (domain.MatchSnapshot, error) {
	req.HostID = strings.TrimSpace(req.HostID)
	req.HostName = strings.TrimSpace(req.HostName)
	if req.HostID == "" || req.HostName == "" {
		return domain.MatchSnapshot{}, fmt.Errorf("%w: host id and name are required", domain.ErrInvalidRequest)
	}
	if req.Settings.TimePerQuestion < 0 || req.Settings.TotalRounds < 0 {
		return domain.MatchSnapshot{}, fmt.Errorf("%w: settings must not be negative", domain.ErrInvalidRequest)
	}

	setID := req.QuestionSetID
	if setID == "" {
		setID = c.opts.DefaultQuestionSetID
	}
	if setID == "" {
		return domain.MatchSnapshot{}, domain.ErrNoQuestionSet
	}
	set, err := c.questions.GetQuestionSet(ctx, setID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.MatchSnapshot{}, err
		}
		return domain.MatchSnapshot{}, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	questions := prepareQuestions(set.Questions, req.Settings)
	if len(questions) == 0 {
		return domain.MatchSnapshot{}, fmt.Errorf("%w: question set %q is empty", domain.ErrNoQuestionSet, setID)
	}
	for _, q := range questions {
		if err := q.Validate(); err != nil {
			return domain.MatchSnapshot{}, err
		}
	}

	code, err := c.allocateCode(ctx)
	if err != nil {
		return domain.MatchSnapshot{}, err
	}

	m := newMatch(uuid.NewString(), code, req.HostID, set.ID, req.Settings, questions, c.opts.Now)

	m.mu.Lock()
	m.addPlayerLocked(req.HostID, req.HostName, true)
	rec := m.recordLocked()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	c.mu.Lock()
	c.matches[code] = m
	c.mu.Unlock()

	c.recorder.enqueue(createRecordWrite(rec))
	log.Printf("match %s created by %s with %d questions", code, req.HostID, len(questions))
	return snap, nil
}

// allocateCode picks a code that is free locally and, when configured, across instances.
func (c *Coordinator) allocateCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < c.opts.CodeAttempts; attempt++ {
		code, err := GenerateCode()
		if err != nil {
			return "", err
		}

		c.mu.RLock()
		_, taken := c.matches[code]
		c.mu.RUnlock()
		if taken {
			continue
		}

		// Evicted and emptied matches keep their code in the store.
		inUse, err := c.store.CodeInUse(ctx, code)
		if err != nil {
			log.Printf("warning: stored code check for %s failed: %v", code, err)
		} else if inUse {
			continue
		}

		if c.codes != nil {
			ok, err := c.codes.Reserve(ctx, code)
			if err != nil {
				log.Printf("warning: code reservation for %s failed, using local check only: %v", code, err)
			} else if !ok {
				continue
			}
		}

		c.mu.Lock()
		_, taken = c.matches[code]
		if !taken {
			// Hold the slot until CreateMatch registers the real match.
			c.matches[code] = nil
		}
		c.mu.Unlock()
		if !taken {
			return code, nil
		}
	}
	return "", domain.ErrCodeSpaceExhausted
}

// JoinMatch admits a player, rejoins a returning one, or resets a finished match for a rematch.
func (c *Coordinator) JoinMatch(ctx context.Context, code, playerID, username string) (domain.MatchSnapshot, error) {
	code = NormalizeCode(code)
	playerID = strings.TrimSpace(playerID)
	username = strings.TrimSpace(username)
	if code == "" || playerID == "" || username == "" {
		return domain.MatchSnapshot{}, fmt.Errorf("%w: code, player id and username are required", domain.ErrInvalidRequest)
	}

	for attempt := 0; attempt < maxJoinAttempts; attempt++ {
		m, err := c.lookup(ctx, code)
		if err != nil {
			return domain.MatchSnapshot{}, err
		}
		snap, writes, err := c.join(m, playerID, username)
		if errors.Is(err, errMatchClosed) {
			// Emptied and deregistered between lookup and lock; look it up again.
			continue
		}
		c.recorder.enqueue(writes...)
		return snap, err
	}
	return domain.MatchSnapshot{}, domain.ErrMatchNotFound
}

var errMatchClosed = errors.New("match closed")

func (c *Coordinator) join(m *Match, playerID, username string) (domain.MatchSnapshot, []write, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return domain.MatchSnapshot{}, nil, errMatchClosed
	}

	var writes []write
	if m.status == domain.StatusFinished {
		m.resetForRematchLocked()
		writes = append(writes, statusWrite(m.id, domain.StatusWaiting, m.now()))
		writes = append(writes, m.scoreWritesLocked()...)
		log.Printf("match %s reset for rematch", m.code)
	}

	if m.status != domain.StatusWaiting && m.status != domain.StatusInProgress {
		return domain.MatchSnapshot{}, writes, domain.ErrMatchNotJoinable
	}

	m.touchLocked()
	if p, ok := m.roster[playerID]; ok {
		p.connected = true
		m.publishLocked(domain.EventPlayerJoined, m.rosterLocked())
		return m.snapshotLocked(), writes, nil
	}

	if m.status != domain.StatusWaiting {
		return domain.MatchSnapshot{}, writes, domain.ErrMatchStarted
	}

	p := m.addPlayerLocked(playerID, username, true)
	writes = append(writes, appendPlayerWrite(m.id, domain.PlayerRecord{
		ID:       p.id,
		Username: p.username,
		JoinedAt: p.joinedAt,
	}))
	m.publishLocked(domain.EventPlayerJoined, m.rosterLocked())
	return m.snapshotLocked(), writes, nil
}

// GetMatch returns the current state of a match, loading it from storage if needed.
func (c *Coordinator) GetMatch(ctx context.Context, code string) (domain.MatchSnapshot, error) {
	m, err := c.lookup(ctx, NormalizeCode(code))
	if err != nil {
		return domain.MatchSnapshot{}, err
	}
	return m.Snapshot(), nil
}

// Subscribe returns a channel that receives the match's events.
// The caller must invoke the returned cancel function to avoid leaks.
func (c *Coordinator) Subscribe(ctx context.Context, code string) (<-chan domain.Event, func(), error) {
	m, err := c.lookup(ctx, NormalizeCode(code))
	if err != nil {
		return nil, nil, err
	}
	ch, cancel, ok := m.subscribe()
	if !ok {
		return nil, nil, domain.ErrMatchNotFound
	}
	return ch, cancel, nil
}

// RemovePlayer drops a player from the roster and the stored record. An emptied match is
// deregistered, its timer canceled, and it is no longer loadable.
func (c *Coordinator) RemovePlayer(_ context.Context, code, playerID string) error {
	code = NormalizeCode(code)

	c.mu.Lock()
	m := c.matches[code]
	if m == nil {
		c.mu.Unlock()
		return domain.ErrMatchNotFound
	}

	m.mu.Lock()
	if !m.removePlayerLocked(playerID) {
		m.mu.Unlock()
		c.mu.Unlock()
		return domain.ErrPlayerNotFound
	}
	m.touchLocked()
	removal := removePlayerWrite(m.id, playerID)

	if len(m.players) == 0 {
		m.closeLocked()
		delete(c.matches, code)
		m.mu.Unlock()
		c.mu.Unlock()
		c.recorder.enqueue(removal)
		c.releaseCode(code)
		log.Printf("match %s closed, roster empty", code)
		return nil
	}
	c.mu.Unlock()

	m.publishLocked(domain.EventPlayerLeft, m.rosterLocked())
	if m.status == domain.StatusInProgress && m.windowOpen && m.allAnsweredLocked() {
		c.concludeLocked(m)
	}
	m.mu.Unlock()

	c.recorder.enqueue(removal)
	return nil
}

// Disconnect marks a player offline. Offline players still count toward completion.
func (c *Coordinator) Disconnect(code, playerID string) {
	c.mu.RLock()
	m := c.matches[NormalizeCode(code)]
	c.mu.RUnlock()
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.roster[playerID]
	if !ok || !p.connected {
		return
	}
	p.connected = false
	m.touchLocked()
	m.publishLocked(domain.EventPlayersUpdated, m.rosterLocked())
}

// EvictIdle drops matches from memory that are not running, have nobody connected and have
// been idle longer than maxIdle. Their durable record stays; a later lookup reloads them.
func (c *Coordinator) EvictIdle(maxIdle time.Duration) int {
	now := c.opts.Now()
	var evicted []string

	c.mu.Lock()
	for code, m := range c.matches {
		if m == nil {
			continue
		}
		m.mu.Lock()
		if m.status != domain.StatusInProgress && !m.anyConnectedLocked() && now.Sub(m.lastActivity) > maxIdle {
			m.closeLocked()
			delete(c.matches, code)
			evicted = append(evicted, code)
		}
		m.mu.Unlock()
	}
	c.mu.Unlock()

	for _, code := range evicted {
		c.releaseCode(code)
	}
	return len(evicted)
}

// LiveMatches reports how many matches are held in memory.
func (c *Coordinator) LiveMatches() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, m := range c.matches {
		if m != nil {
			n++
		}
	}
	return n
}

func (c *Coordinator) releaseCode(code string) {
	if c.codes == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.WriteTimeout)
	defer cancel()
	if err := c.codes.Release(ctx, code); err != nil {
		log.Printf("warning: release code %s: %v", code, err)
	}
}

// lookup returns the live match for code, lazily loading it from the store.
func (c *Coordinator) lookup(ctx context.Context, code string) (*Match, error) {
	c.mu.RLock()
	m := c.matches[code]
	c.mu.RUnlock()
	if m != nil {
		return m, nil
	}

	result, err, _ := c.sf.Do(code, func() (interface{}, error) {
		c.mu.RLock()
		m := c.matches[code]
		c.mu.RUnlock()
		if m != nil {
			return m, nil
		}
		return c.load(ctx, code)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Match), nil
}

func (c *Coordinator) load(ctx context.Context, code string) (*Match, error) {
	stored, err := c.store.LoadMatchByCode(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrMatchNotFound
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}

	rec := stored.Record
	if len(rec.Players) == 0 {
		// Emptied matches left the registry for good; only their history remains.
		return nil, domain.ErrMatchNotFound
	}
	hostID := ""
	for _, p := range rec.Players {
		if p.IsHost {
			hostID = p.ID
			break
		}
	}

	m := newMatch(rec.ID, NormalizeCode(rec.Code), hostID, rec.QuestionSetID, rec.Settings,
		prepareQuestions(stored.QuestionSet.Questions, rec.Settings), c.opts.Now)

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing := c.matches[code]; existing != nil {
		return existing, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range rec.Players {
		loaded := m.addPlayerLocked(p.ID, p.Username, false)
		loaded.score = p.Score
		if !p.JoinedAt.IsZero() {
			loaded.joinedAt = p.JoinedAt
		}
	}
	m.status = rec.Status
	if rec.CurrentRound > 0 && rec.CurrentRound < len(m.questions) {
		m.current = rec.CurrentRound
	}
	if m.status == domain.StatusInProgress {
		if len(m.questions) == 0 {
			m.status = domain.StatusFinished
		} else {
			// The old window died with the previous process; restart the current question.
			c.armQuestionLocked(m)
		}
	}
	c.matches[code] = m
	log.Printf("match %s loaded from store with status %s", code, m.status)
	return m, nil
}
