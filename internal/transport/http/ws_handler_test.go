package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"livequiz-service/internal/app"
	"livequiz-service/internal/domain"
	"livequiz-service/internal/infra/memory"
	"github.com/gorilla/websocket"
)

func TestWebSocketGameFlow(t *testing.T) {
	server, code := newTestServer(t)
	defer server.Close()

	host := dial(t, server, "/ws?code="+code+"&role=host")
	defer host.Close()
	readUntil(t, host, "joined")

	participant := dial(t, server, "/ws?code="+code+"&participantId=p1&name=Alice")
	defer participant.Close()
	joined := readUntil(t, participant, "joined")
	if joined["code"] != code {
		t.Fatalf("expected joined payload for %s, got %+v", code, joined)
	}
	readUntil(t, host, "participantJoined")

	send(t, host, "start", nil)
	started := readUntil(t, participant, "questionStarted")
	if started["index"].(float64) != 0 {
		t.Fatalf("expected question index 0, got %+v", started)
	}
	if q, ok := started["question"].(map[string]any); !ok {
		t.Fatalf("expected question payload, got %+v", started)
	} else if _, leaked := q["correctOptionId"]; leaked {
		t.Fatalf("correct option must not go out on the wire: %+v", q)
	}
	readUntil(t, host, "questionStarted")

	send(t, participant, "answer", map[string]any{
		"questionId":       "q1",
		"optionId":         "o2",
		"timeTakenSeconds": 5,
	})
	result := readUntil(t, participant, "answerResult")
	if result["correct"] != true || result["scoreDelta"].(float64) != 15 {
		t.Fatalf("expected correct answer with delta 15, got %+v", result)
	}
	submitted := readUntil(t, host, "answerSubmitted")
	if submitted["participantId"] != "p1" || submitted["correct"] != true {
		t.Fatalf("expected room-wide submission event, got %+v", submitted)
	}
	lb := readUntil(t, host, "leaderboardUpdated")
	if lb["leaderboard"] == nil {
		t.Fatalf("expected leaderboard payload, got %+v", lb)
	}

	send(t, host, "end", nil)
	ended := readUntil(t, participant, "quizEnded")
	if ended["leaderboard"] == nil {
		t.Fatalf("expected final leaderboard, got %+v", ended)
	}
}

func TestWebSocketRejectsNonHostCommands(t *testing.T) {
	server, code := newTestServer(t)
	defer server.Close()

	participant := dial(t, server, "/ws?code="+code+"&participantId=p1&name=Alice")
	defer participant.Close()
	readUntil(t, participant, "joined")

	send(t, participant, "start", nil)
	errEvent := readUntil(t, participant, "error")
	if errEvent["code"] != "unauthorized" {
		t.Fatalf("expected unauthorized error, got %+v", errEvent)
	}
}

func TestWebSocketHostDisconnectEndsSession(t *testing.T) {
	server, code := newTestServer(t)
	defer server.Close()

	host := dial(t, server, "/ws?code="+code+"&role=host")
	readUntil(t, host, "joined")

	participant := dial(t, server, "/ws?code="+code+"&participantId=p1&name=Alice")
	defer participant.Close()
	readUntil(t, participant, "joined")
	readUntil(t, host, "participantJoined")

	host.Close()

	readUntil(t, participant, "hostDisconnected")
	readUntil(t, participant, "quizEnded")
}

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	store := memory.NewSessionStore()
	quizRepo := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuizzes()), time.Minute)
	service := app.NewSessionService(store, quizRepo, app.Config{})
	wsHandler := NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/sessions", wsHandler.HandleCreateSession)
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	server := httptest.NewServer(mux)

	body, _ := json.Marshal(map[string]string{"quizId": "quiz-1"})
	resp, err := http.Post(server.URL+"/sessions", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create session status %d", resp.StatusCode)
	}
	var created struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	return server, created.Code
}

func dial(t *testing.T, server *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + path
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": msgType, "payload": payload}); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

// readUntil drains frames until one of the wanted type arrives; rooms
// interleave presence and leaderboard events with the one under test.
func readUntil(t *testing.T, conn *websocket.Conn, want string) map[string]any {
	t.Helper()
	for i := 0; i < 10; i++ {
		var msg struct {
			Type    string         `json:"type"`
			Payload map[string]any `json:"payload"`
		}
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read (waiting for %s): %v", want, err)
		}
		if msg.Type == want {
			return msg.Payload
		}
	}
	t.Fatalf("no %s frame within 10 messages", want)
	return nil
}

func sampleQuizzes() map[string]domain.QuizDefinition {
	return map[string]domain.QuizDefinition{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Sample",
			Questions: []domain.Question{
				{
					ID:   "q1",
					Text: "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "o1", Text: "3"},
						{ID: "o2", Text: "4"},
						{ID: "o3", Text: "5"},
					},
					CorrectOptionID:  "o2",
					TimeLimitSeconds: 20,
				},
				{
					ID:   "q2",
					Text: "Which planet is closest to the sun?",
					Options: []domain.Option{
						{ID: "o1", Text: "Venus"},
						{ID: "o2", Text: "Mercury"},
					},
					CorrectOptionID:  "o2",
					TimeLimitSeconds: 20,
				},
			},
		},
	}
}
