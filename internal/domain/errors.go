package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is the category of every lookup miss.
	ErrNotFound = errors.New("not found")
	// ErrConflict is the category of every operation declined because of match state.
	ErrConflict = errors.New("conflict")
)

var (
	// ErrMatchNotFound is returned when no match with the code exists in memory or storage.
	ErrMatchNotFound = fmt.Errorf("match %w", ErrNotFound)
	// ErrPlayerNotFound is returned when a player is not on the match roster.
	ErrPlayerNotFound = fmt.Errorf("player %w in match", ErrNotFound)
	// ErrQuestionSetNotFound indicates the question set could not be loaded.
	ErrQuestionSetNotFound = fmt.Errorf("question set %w", ErrNotFound)

	// ErrMatchNotJoinable is returned when a match accepts neither new nor returning players.
	ErrMatchNotJoinable = fmt.Errorf("%w: match is not joinable", ErrConflict)
	// ErrMatchStarted is returned when a new player tries to join a running match.
	ErrMatchStarted = fmt.Errorf("%w: match already started", ErrConflict)
	// ErrMatchNotWaiting is returned when starting a match that is not waiting for players.
	ErrMatchNotWaiting = fmt.Errorf("%w: match is not waiting", ErrConflict)
	// ErrNoActiveQuestion is returned when answering or skipping outside a running match.
	ErrNoActiveQuestion = fmt.Errorf("%w: no active question", ErrConflict)
	// ErrQuestionClosed is returned for answers arriving after the window concluded.
	ErrQuestionClosed = fmt.Errorf("%w: question window closed", ErrConflict)

	// ErrDuplicateAnswer signals a repeated submission; callers treat it as a silent no-op.
	ErrDuplicateAnswer = errors.New("answer already submitted")
	// ErrNoQuestionSet is returned when no question set was supplied and none is configured.
	ErrNoQuestionSet = errors.New("no question set available")
	// ErrMalformedQuestion marks a stored question that cannot be played.
	ErrMalformedQuestion = fmt.Errorf("%w: malformed question", ErrNoQuestionSet)
	// ErrCodeSpaceExhausted is returned when no free join code was found.
	ErrCodeSpaceExhausted = errors.New("could not allocate a unique match code")
	// ErrInvalidRequest marks malformed input.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrStoreUnavailable wraps unexpected persistence failures.
	ErrStoreUnavailable = errors.New("persistence store unavailable")
)
