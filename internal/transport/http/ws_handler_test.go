package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialWS(t *testing.T, server *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + path
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestWebSocketAttemptFlow(t *testing.T) {
	env := newTestEnv(t)
	quiz := env.createQuiz(t, nil)
	server := httptest.NewServer(env.router)
	defer server.Close()

	conn := dialWS(t, server, "/ws/attempt?quizId="+quiz.ID+"&userId=u1&name=Alice")
	defer conn.Close()

	_, payload := readNext(conn, t, "started")
	if payload["resumed"] != false {
		t.Fatalf("expected a fresh attempt, got %v", payload)
	}

	answer := map[string]any{
		"type": "answer",
		"payload": map[string]any{
			"questionId": "q1",
			"answer":     "4",
		},
	}
	if err := conn.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}
	readNext(conn, t, "answerRecorded")

	bad := map[string]any{"type": "answer", "payload": map[string]any{"questionId": "q9", "answer": "4"}}
	if err := conn.WriteJSON(bad); err != nil {
		t.Fatalf("write answer: %v", err)
	}
	readNext(conn, t, "error")

	if err := conn.WriteJSON(map[string]any{"type": "submit"}); err != nil {
		t.Fatalf("write submit: %v", err)
	}
	_, payload = readNext(conn, t, "submitted")
	if payload["reason"] != reasonManual {
		t.Fatalf("expected manual submission, got %v", payload["reason"])
	}
	attempt, _ := payload["attempt"].(map[string]any)
	if attempt["score"] != float64(2) || attempt["status"] != "completed" {
		t.Fatalf("expected a completed attempt scoring 2, got %v", attempt)
	}
}

func TestWebSocketSubmitsWhenTimeIsUp(t *testing.T) {
	env := newTestEnv(t)
	quiz := env.createQuiz(t, func(b map[string]any) { b["timeLimit"] = 1 })
	env.ws.until = func(time.Time) time.Duration { return 20 * time.Millisecond }
	server := httptest.NewServer(env.router)
	defer server.Close()

	conn := dialWS(t, server, "/ws/attempt?quizId="+quiz.ID+"&userId=u1&name=Alice")
	defer conn.Close()

	_, payload := readNext(conn, t, "started")
	attempt, _ := payload["attempt"].(map[string]any)
	if attempt["expiresAt"] == nil {
		t.Fatalf("expected a deadline on a timed attempt, got %v", attempt)
	}

	_, payload = readNext(conn, t, "submitted")
	if payload["reason"] != reasonTimeUp {
		t.Fatalf("expected time-up submission, got %v", payload["reason"])
	}
}

func TestWebSocketAnswersSubmitAfterTimeUp(t *testing.T) {
	env := newTestEnv(t)
	quiz := env.createQuiz(t, func(b map[string]any) { b["timeLimit"] = 1 })
	env.ws.until = func(time.Time) time.Duration { return 20 * time.Millisecond }
	server := httptest.NewServer(env.router)
	defer server.Close()

	conn := dialWS(t, server, "/ws/attempt?quizId="+quiz.ID+"&userId=u1&name=Alice")
	defer conn.Close()

	readNext(conn, t, "started")
	_, first := readNext(conn, t, "submitted")
	if first["reason"] != reasonTimeUp {
		t.Fatalf("expected time-up submission, got %v", first["reason"])
	}

	if err := conn.WriteJSON(map[string]any{"type": "submit"}); err != nil {
		t.Fatalf("write submit: %v", err)
	}
	_, again := readNext(conn, t, "submitted")
	if again["reason"] != reasonTimeUp {
		t.Fatalf("expected the original close reason, got %v", again["reason"])
	}
	attempt, _ := again["attempt"].(map[string]any)
	if attempt["status"] != "completed" {
		t.Fatalf("expected the completed attempt, got %v", attempt)
	}

	if err := conn.WriteJSON(map[string]any{"type": "submit"}); err != nil {
		t.Fatalf("write submit: %v", err)
	}
	readNext(conn, t, "submitted")
}

func TestWebSocketRejectsAnonymous(t *testing.T) {
	env := newTestEnv(t)
	quiz := env.createQuiz(t, nil)
	server := httptest.NewServer(env.router)
	defer server.Close()

	u := "ws" + server.URL[len("http"):] + "/ws/attempt?quizId=" + quiz.ID
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", resp)
	}
}

func TestScoreboardStream(t *testing.T) {
	env := newTestEnv(t)
	quiz := env.createQuiz(t, func(b map[string]any) { b["showLiveScore"] = true })
	hidden := env.createQuiz(t, nil)
	server := httptest.NewServer(env.router)
	defer server.Close()

	u := "ws" + server.URL[len("http"):] + "/ws/scoreboard?quizId=" + hidden.ID + "&userId=u2"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for a quiz without live score, got %v", resp)
	}

	conn := dialWS(t, server, "/ws/scoreboard?quizId="+quiz.ID+"&userId=u2")
	defer conn.Close()
	readNext(conn, t, "scoreboard")

	rec := env.do(t, http.MethodPost, "/api/v1/quizzes/"+quiz.ID+"/attempts", &alice, nil)
	expectStatus(t, rec, http.StatusCreated)
	started := decode[struct {
		Attempt struct {
			ID string `json:"id"`
		} `json:"attempt"`
	}](t, rec)
	rec = env.do(t, http.MethodPost, "/api/v1/attempts/"+started.Attempt.ID+"/submit", &alice, nil)
	expectStatus(t, rec, http.StatusOK)

	_, payload := readNext(conn, t, "scoreboard")
	entries, _ := payload["entries"].([]any)
	if len(entries) != 1 {
		t.Fatalf("expected alice on the board, got %v", payload)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s (%v)", expect, msg.Type, msg.Payload)
	}
	return msg.Type, msg.Payload
}
