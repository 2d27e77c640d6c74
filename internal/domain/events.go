package domain

// EventType names a coordinator state change delivered to clients.
type EventType string

const (
	EventPlayerJoined        EventType = "player_joined"
	EventPlayerLeft          EventType = "player_left"
	EventGameStarted         EventType = "game_started"
	EventNextQuestion        EventType = "next_question"
	EventGameOver            EventType = "game_over"
	EventAnswerResult        EventType = "answer_result"
	EventPlayersUpdated      EventType = "players_updated"
	EventCorrectAnswerReveal EventType = "correct_answer_reveal"
	EventTimeExpired         EventType = "time_expired"
	EventTimerTick           EventType = "timer_update"
)

// Event is emitted by the coordinator. A non-empty PlayerID makes it unicast.
type Event struct {
	Type      EventType `json:"type"`
	MatchCode string    `json:"matchCode"`
	PlayerID  string    `json:"playerId,omitempty"`
	Payload   any       `json:"payload,omitempty"`
}

// For reports whether the event should be delivered to the given player.
func (e Event) For(playerID string) bool {
	return e.PlayerID == "" || e.PlayerID == playerID
}

// Reveal is the payload of EventCorrectAnswerReveal.
type Reveal struct {
	QuestionID        string `json:"questionId"`
	CorrectAnswerID   string `json:"correctAnswerId"`
	CorrectAnswerText string `json:"correctAnswerText"`
}

// Tick is the payload of EventTimerTick.
type Tick struct {
	QuestionIndex int `json:"questionIndex"`
	TimeRemaining int `json:"timeRemaining"`
}
