package http

import (
	"errors"
	"net/http"

	"brainbrawler-service/internal/app"
	"brainbrawler-service/internal/domain"
	"github.com/go-chi/chi/v5"
)

type matchHandlers struct {
	coord *app.Coordinator
}

type createMatchRequest struct {
	HostID        string          `json:"hostId"`
	HostName      string          `json:"hostName"`
	QuestionSetID string          `json:"questionSetId"`
	Settings      domain.Settings `json:"settings"`
}

type joinRequest struct {
	PlayerID string `json:"playerId"`
	Username string `json:"username"`
}

type answerRequest struct {
	PlayerID string  `json:"playerId"`
	OptionID string  `json:"optionId"`
	TimeUsed float64 `json:"timeUsed"`
}

type duplicateResponse struct {
	Duplicate bool `json:"duplicate"`
}

func (h *matchHandlers) create(w http.ResponseWriter, r *http.Request) {
	var req createMatchRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	snap, err := h.coord.CreateMatch(r.Context(), app.CreateMatchRequest{
		HostID:        req.HostID,
		HostName:      req.HostName,
		QuestionSetID: req.QuestionSetID,
		Settings:      req.Settings,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (h *matchHandlers) get(w http.ResponseWriter, r *http.Request) {
	snap, err := h.coord.GetMatch(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *matchHandlers) join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	snap, err := h.coord.JoinMatch(r.Context(), chi.URLParam(r, "code"), req.PlayerID, req.Username)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *matchHandlers) start(w http.ResponseWriter, r *http.Request) {
	snap, err := h.coord.StartMatch(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *matchHandlers) next(w http.ResponseWriter, r *http.Request) {
	snap, err := h.coord.Advance(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *matchHandlers) answer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.coord.SubmitAnswer(r.Context(), chi.URLParam(r, "code"), req.PlayerID, req.OptionID, req.TimeUsed)
	if errors.Is(err, domain.ErrDuplicateAnswer) {
		writeJSON(w, http.StatusOK, duplicateResponse{Duplicate: true})
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *matchHandlers) removePlayer(w http.ResponseWriter, r *http.Request) {
	if err := h.coord.RemovePlayer(r.Context(), chi.URLParam(r, "code"), chi.URLParam(r, "playerID")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
