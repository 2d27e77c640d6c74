package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"brainbrawler-service/internal/domain"
)

func TestMatchRoutes(t *testing.T) {
	router := NewRouter(newTestCoordinator(t), nil)

	rec := do(t, router, http.MethodPost, "/api/matches", `{"hostId":"alice","hostName":"Alice","settings":{"totalRounds":1}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body)
	}
	var snap domain.MatchSnapshot
	decode(t, rec, &snap)
	if snap.Status != domain.StatusWaiting || snap.TotalQuestions != 1 || snap.HostPlayerID != "alice" {
		t.Fatalf("unexpected created match %+v", snap)
	}
	base := "/api/matches/" + snap.Code

	rec = do(t, router, http.MethodPost, base+"/join", `{"playerId":"bob","username":"Bob"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("join: expected 200, got %d: %s", rec.Code, rec.Body)
	}

	rec = do(t, router, http.MethodPost, base+"/start", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d: %s", rec.Code, rec.Body)
	}

	rec = do(t, router, http.MethodPost, base+"/join", `{"playerId":"carol","username":"Carol"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("late join: expected 409, got %d", rec.Code)
	}

	rec = do(t, router, http.MethodPost, base+"/answers", `{"playerId":"bob","optionId":"1","timeUsed":2}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("answer: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var res domain.ScoreResult
	decode(t, rec, &res)
	if !res.Correct || res.Points != 150 || res.NewTotalScore != 150 {
		t.Fatalf("unexpected score %+v", res)
	}

	rec = do(t, router, http.MethodPost, base+"/answers", `{"playerId":"bob","optionId":"0","timeUsed":4}`)
	var dup duplicateResponse
	decode(t, rec, &dup)
	if rec.Code != http.StatusOK || !dup.Duplicate {
		t.Fatalf("duplicate: expected 200 duplicate, got %d %+v", rec.Code, dup)
	}

	rec = do(t, router, http.MethodPost, base+"/next", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("next: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	decode(t, rec, &snap)
	if snap.Status != domain.StatusFinished {
		t.Fatalf("single round match should finish on next, got %s", snap.Status)
	}

	rec = do(t, router, http.MethodGet, base, "")
	decode(t, rec, &snap)
	if bob, _ := snap.Player("bob"); rec.Code != http.StatusOK || bob.Score != 150 {
		t.Fatalf("get: unexpected %d %+v", rec.Code, snap)
	}

	rec = do(t, router, http.MethodDelete, base+"/players/bob", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("remove: expected 204, got %d", rec.Code)
	}
	rec = do(t, router, http.MethodDelete, base+"/players/bob", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second remove: expected 404, got %d", rec.Code)
	}
}

func TestMatchRouteErrors(t *testing.T) {
	router := NewRouter(newTestCoordinator(t), nil)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"bad body", http.MethodPost, "/api/matches", `{`, http.StatusBadRequest},
		{"missing host", http.MethodPost, "/api/matches", `{"hostId":"alice"}`, http.StatusBadRequest},
		{"unknown set", http.MethodPost, "/api/matches", `{"hostId":"a","hostName":"A","questionSetId":"nope"}`, http.StatusNotFound},
		{"unknown match", http.MethodGet, "/api/matches/NOPE00", "", http.StatusNotFound},
		{"start unknown", http.MethodPost, "/api/matches/NOPE00/start", "", http.StatusNotFound},
		{"answer unknown", http.MethodPost, "/api/matches/NOPE00/answers", `{"playerId":"a","optionId":"1"}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, router, tc.method, tc.path, tc.body)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		domain.ErrMatchNotFound:      http.StatusNotFound,
		domain.ErrQuestionClosed:     http.StatusConflict,
		domain.ErrInvalidRequest:     http.StatusBadRequest,
		domain.ErrNoQuestionSet:      http.StatusUnprocessableEntity,
		domain.ErrMalformedQuestion:  http.StatusUnprocessableEntity,
		domain.ErrCodeSpaceExhausted: http.StatusServiceUnavailable,
		errors.New("boom"):           http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := statusFor(err); got != want {
			t.Fatalf("statusFor(%v) = %d, want %d", err, got, want)
		}
	}
}

func TestHealth(t *testing.T) {
	checks := map[string]HealthCheck{
		"redis": func(context.Context) error { return nil },
	}
	rec := do(t, NewRouter(newTestCoordinator(t), checks), http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected healthy, got %d", rec.Code)
	}

	checks["postgres"] = func(context.Context) error { return errors.New("down") }
	rec = do(t, NewRouter(newTestCoordinator(t), checks), http.MethodGet, "/healthz", "")
	var body map[string]string
	decode(t, rec, &body)
	if rec.Code != http.StatusServiceUnavailable || body["postgres"] != "error" || body["redis"] != "ok" {
		t.Fatalf("unexpected health %d %v", rec.Code, body)
	}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}
