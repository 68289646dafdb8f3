package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"campus-quiz-service/internal/app"
	"campus-quiz-service/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type WSHandler struct {
	attempts *app.AttemptService
	boards   *app.ScoreboardService
	upgrader websocket.Upgrader
	// until reports how long before a deadline fires.
	until func(time.Time) time.Duration
}

func NewWSHandler(attempts *app.AttemptService, boards *app.ScoreboardService) *WSHandler {
	return &WSHandler{
		attempts: attempts,
		boards:   boards,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		until: time.Until,
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID string             `json:"questionId"`
	Answer     domain.AnswerValue `json:"answer"`
}

type submittedPayload struct {
	Attempt domain.Attempt `json:"attempt"`
	Reason  string         `json:"reason"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

const (
	reasonManual = "manual"
	reasonTimeUp = "time-up"
)

func errorMessage(err error) outboundMessage[any] {
	if statusFor(err) == http.StatusInternalServerError {
		return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "internal error"}}
	}
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
}

// rejectUpgrade answers a bad request before the connection is upgraded.
func rejectUpgrade(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if errors.Is(err, errUnauthenticated) {
		status = http.StatusUnauthorized
	}
	http.Error(w, err.Error(), status)
}

// ServeAttempt starts or resumes an attempt and runs it over a websocket until the client
// leaves. When the quiz has a time limit the attempt is submitted at its deadline.
func (h *WSHandler) ServeAttempt(w http.ResponseWriter, r *http.Request) {
	user, err := identityFrom(r, true)
	if err != nil {
		rejectUpgrade(w, err)
		return
	}
	quizID := r.URL.Query().Get("quizId")
	if quizID == "" {
		rejectUpgrade(w, &domain.ValidationError{Field: "quizId", Reason: "is required"})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	ctx := r.Context()
	started, err := h.attempts.StartAttempt(ctx, quizID, user)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	attemptID := started.Attempt.ID

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	timerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Warn().Err(err).Str("attemptId", attemptID).Msg("ws write error")
				return
			}
		}
	}()

	emit := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-closeSignals:
		}
	}

	// The timer reports at most once and stays quiet after a manual submit. Every manual
	// submit gets a reply carrying the reason the attempt was first closed with.
	var (
		submitMu    sync.Mutex
		firstReason string
	)
	submit := func(ctx context.Context, reason string) {
		if _, err := h.attempts.SubmitAttempt(ctx, attemptID); err != nil {
			emit(errorMessage(err))
			return
		}
		attempt, err := h.attempts.GetAttempt(ctx, attemptID, user)
		if err != nil {
			emit(errorMessage(err))
			return
		}
		submitMu.Lock()
		already := firstReason != ""
		if !already {
			firstReason = reason
		}
		closedBy := firstReason
		submitMu.Unlock()
		if already && reason == reasonTimeUp {
			return
		}
		emit(outboundMessage[any]{Type: "submitted", Payload: submittedPayload{Attempt: attempt, Reason: closedBy}})
	}

	go func() {
		defer close(timerDone)
		expiresAt := started.Attempt.ExpiresAt
		if expiresAt == nil {
			return
		}
		timer := time.NewTimer(h.until(*expiresAt))
		defer timer.Stop()
		select {
		case <-timer.C:
			log.Info().Str("attemptId", attemptID).Msg("attempt time is up")
			submit(context.Background(), reasonTimeUp)
		case <-closeSignals:
		}
	}()

	emit(outboundMessage[any]{Type: "started", Payload: started})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}})
				continue
			}
			attempt, err := h.attempts.RecordAnswer(ctx, attemptID, user, payload.QuestionID, payload.Answer)
			if err != nil {
				emit(errorMessage(err))
				continue
			}
			emit(outboundMessage[any]{Type: "answerRecorded", Payload: attempt})
		case "submit":
			submit(ctx, reasonManual)
		default:
			emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}

	close(closeSignals)
	<-timerDone
	close(send)
	<-writerDone
}

// ServeScoreboard streams the live scoreboard of a quiz until the client leaves.
func (h *WSHandler) ServeScoreboard(w http.ResponseWriter, r *http.Request) {
	if _, err := identityFrom(r, true); err != nil {
		rejectUpgrade(w, err)
		return
	}
	quizID := r.URL.Query().Get("quizId")
	if quizID == "" {
		rejectUpgrade(w, &domain.ValidationError{Field: "quizId", Reason: "is required"})
		return
	}
	updates, cancel, err := h.boards.Watch(r.Context(), quizID)
	if err != nil {
		rejectUpgrade(w, err)
		return
	}
	defer h.boards.Release(quizID)
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case board, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(outboundMessage[domain.Scoreboard]{Type: "scoreboard", Payload: board}); err != nil {
				log.Warn().Err(err).Str("quizId", quizID).Msg("ws write error")
				return
			}
		case <-readerDone:
			return
		}
	}
}
