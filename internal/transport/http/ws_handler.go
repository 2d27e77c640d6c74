package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"brainbrawler-service/internal/app"
	"brainbrawler-service/internal/domain"
	"github.com/gorilla/websocket"
)

// Message types a client may send.
const (
	msgStart  = "start"
	msgAnswer = "answer"
	msgNext   = "next"
	msgLeave  = "leave"
)

type WSHandler struct {
	coord    *app.Coordinator
	upgrader websocket.Upgrader
}

func NewWSHandler(coord *app.Coordinator) *WSHandler {
	return &WSHandler{
		coord: coord,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	OptionID string  `json:"optionId"`
	TimeUsed float64 `json:"timeUsed"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS joins the caller to a match, streams the match's events to them and
// accepts gameplay commands over the same socket.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	code := app.NormalizeCode(r.URL.Query().Get("code"))
	playerID := r.URL.Query().Get("playerId")
	username := r.URL.Query().Get("name")
	if code == "" || playerID == "" || username == "" {
		http.Error(w, "missing code, playerId, or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	// Subscribe before joining so nothing published in between is missed. The buffered
	// channel holds those events until the snapshot below has gone out.
	events, cancel, err := h.coord.Subscribe(ctx, code)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	defer cancel()

	joined, err := h.coord.JoinMatch(ctx, code, playerID, username)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error for %s in %s: %v", playerID, code, err)
				return
			}
		}
	}()

	send <- outboundMessage{Type: "joined", Payload: joined}

	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					// Match closed; unblock the reader so the handler can return.
					_ = conn.Close()
					return
				}
				if !ev.For(playerID) {
					continue
				}
				select {
				case send <- outboundMessage{Type: string(ev.Type), Payload: ev.Payload}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	left := false
	for !left {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		var reply *outboundMessage
		reply, left = h.dispatch(ctx, code, playerID, inbound)
		if reply != nil {
			send <- *reply
		}
	}

	if !left {
		h.coord.Disconnect(code, playerID)
	}
	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}

// dispatch runs one client command. It returns an optional direct reply and whether the
// player left the match.
func (h *WSHandler) dispatch(ctx context.Context, code, playerID string, in inboundMessage) (*outboundMessage, bool) {
	var err error
	switch in.Type {
	case msgStart:
		_, err = h.coord.StartMatch(ctx, code)
	case msgNext:
		_, err = h.coord.Advance(ctx, code)
	case msgAnswer:
		var payload answerPayload
		if jsonErr := json.Unmarshal(in.Payload, &payload); jsonErr != nil {
			return &outboundMessage{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}, false
		}
		// The scored result reaches the player as an answer_result event.
		_, err = h.coord.SubmitAnswer(ctx, code, playerID, payload.OptionID, payload.TimeUsed)
		if errors.Is(err, domain.ErrDuplicateAnswer) {
			err = nil
		}
	case msgLeave:
		if err := h.coord.RemovePlayer(ctx, code, playerID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			log.Printf("ws leave for %s in %s: %v", playerID, code, err)
		}
		return nil, true
	default:
		return &outboundMessage{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}, false
	}
	if err != nil {
		msg := errorMessage(err)
		return &msg, false
	}
	return nil, false
}

func errorMessage(err error) outboundMessage {
	msg := err.Error()
	if statusFor(err) >= http.StatusInternalServerError {
		log.Printf("ws command failed: %v", err)
		msg = "internal error"
	}
	return outboundMessage{Type: "error", Payload: errorPayload{Message: msg}}
}
