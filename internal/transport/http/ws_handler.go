package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"livequiz-service/internal/app"
	"livequiz-service/internal/domain"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	service  *app.SessionService
	hub      *Hub
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.SessionService) *WSHandler {
	return &WSHandler{
		service: service,
		hub:     NewHub(),
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

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type answerPayload struct {
	QuestionID       string `json:"questionId"`
	OptionID         string `json:"optionId"`
	TimeTakenSeconds int    `json:"timeTakenSeconds"`
}

type leaderboardRequest struct {
	Limit int `json:"limit"`
}

// questionView is a question stripped of its correct option before it
// goes out on the wire.
type questionView struct {
	ID      string          `json:"id"`
	Text    string          `json:"text"`
	Options []domain.Option `json:"options"`
}

type questionStartedPayload struct {
	Index            int          `json:"index"`
	Question         questionView `json:"question"`
	TimeLimitSeconds int          `json:"timeLimitSeconds"`
	RemainingSeconds int          `json:"remainingSeconds"`
	TotalQuestions   int          `json:"totalQuestions"`
}

type joinedPayload struct {
	Code                 string                    `json:"code"`
	Title                string                    `json:"title"`
	IsActive             bool                      `json:"isActive"`
	Ended                bool                      `json:"ended"`
	CurrentQuestionIndex int                       `json:"currentQuestionIndex"`
	TotalQuestions       int                       `json:"totalQuestions"`
	Question             *questionView             `json:"question,omitempty"`
	TimeLimitSeconds     int                       `json:"timeLimitSeconds,omitempty"`
	RemainingSeconds     int                       `json:"remainingSeconds,omitempty"`
	AnsweredCurrent      bool                      `json:"answeredCurrent"`
	Score                int                       `json:"score"`
	Leaderboard          []domain.LeaderboardEntry `json:"leaderboard"`
}

type answerSubmittedPayload struct {
	ParticipantID string `json:"participantId"`
	Correct       bool   `json:"correct"`
}

type leaderboardPayload struct {
	Leaderboard []domain.LeaderboardEntry `json:"leaderboard"`
}

type participantPayload struct {
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
}

type createSessionRequest struct {
	QuizID string `json:"quizId"`
}

type createSessionResponse struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// HandleCreateSession lets a host allocate a join code before opening
// the socket: POST /sessions {"quizId": "..."} -> {code, expiresAt}.
func (h *WSHandler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuizID == "" {
		http.Error(w, "missing quizId", http.StatusBadRequest)
		return
	}
	code, expiresAt, err := h.service.CreateSession(r.Context(), req.QuizID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrQuizNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, domain.ErrInvalidQuizDefinition):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			log.Printf("create session failed: %v", err)
			http.Error(w, "could not create session", http.StatusInternalServerError)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(createSessionResponse{Code: code, ExpiresAt: expiresAt})
}

// ServeWS upgrades the connection and attaches it to a session room.
// The host/participant role comes from the identity layer at handshake
// time and is fixed for the connection lifetime; it cannot be elevated
// by any later message.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := q.Get("code")
	participantID := q.Get("participantId")
	displayName := q.Get("name")
	isHost := q.Get("role") == "host"
	if code == "" || (!isHost && (participantID == "" || displayName == "")) {
		http.Error(w, "missing code, participantId, or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	c := newClient(conn, participantID, displayName, isHost)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range c.send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	ctx := r.Context()
	var snapshot domain.SessionState
	if isHost {
		snapshot, err = h.service.Snapshot(ctx, code)
	} else {
		snapshot, err = h.service.Join(ctx, code, participantID, displayName)
	}
	if err != nil {
		c.deliver(h.errorEvent(err))
		c.close()
		<-writerDone
		return
	}

	h.hub.add(code, c)
	c.deliver(outboundMessage[any]{Type: "joined", Payload: h.joinedView(&snapshot, participantID)})
	if !isHost {
		h.hub.broadcast(code, outboundMessage[any]{Type: "participantJoined", Payload: participantPayload{
			ParticipantID: participantID,
			DisplayName:   displayName,
		}})
	}

	explicitLeave := false
readLoop:
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "start":
			if !h.requireHost(c) {
				continue
			}
			st, err := h.service.StartSession(ctx, code)
			if err != nil {
				c.deliver(h.errorEvent(err))
				continue
			}
			h.hub.broadcast(code, h.questionStartedEvent(&st))
		case "advance":
			if !h.requireHost(c) {
				continue
			}
			st, err := h.service.AdvanceQuestion(ctx, code)
			if err != nil {
				c.deliver(h.errorEvent(err))
				continue
			}
			if st.Ended() {
				h.hub.broadcast(code, outboundMessage[any]{Type: "quizEnded", Payload: leaderboardPayload{Leaderboard: st.Leaderboard(0)}})
			} else {
				h.hub.broadcast(code, h.questionStartedEvent(&st))
			}
		case "end":
			if !h.requireHost(c) {
				continue
			}
			st, err := h.service.EndSession(ctx, code)
			if err != nil {
				c.deliver(h.errorEvent(err))
				continue
			}
			h.hub.broadcast(code, outboundMessage[any]{Type: "quizEnded", Payload: leaderboardPayload{Leaderboard: st.Leaderboard(0)}})
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				c.deliver(outboundMessage[any]{Type: "error", Payload: errorPayload{Code: "badPayload", Message: "invalid answer payload"}})
				continue
			}
			result, st, err := h.service.SubmitAnswer(ctx, code, c.participantID, payload.QuestionID, payload.OptionID, payload.TimeTakenSeconds)
			if err != nil {
				c.deliver(h.errorEvent(err))
				continue
			}
			// Personal result goes only to the submitter; the room sees
			// correctness but never another player's delta.
			c.deliver(outboundMessage[any]{Type: "answerResult", Payload: result})
			h.hub.broadcast(code, outboundMessage[any]{Type: "answerSubmitted", Payload: answerSubmittedPayload{
				ParticipantID: c.participantID,
				Correct:       result.Correct,
			}})
			h.hub.broadcast(code, outboundMessage[any]{Type: "leaderboardUpdated", Payload: leaderboardPayload{Leaderboard: st.Leaderboard(0)}})
		case "leaderboard":
			var payload leaderboardRequest
			_ = json.Unmarshal(inbound.Payload, &payload)
			lb, err := h.service.Leaderboard(ctx, code, payload.Limit)
			if err != nil {
				c.deliver(h.errorEvent(err))
				continue
			}
			c.deliver(outboundMessage[any]{Type: "leaderboardUpdated", Payload: leaderboardPayload{Leaderboard: lb}})
		case "leave":
			explicitLeave = true
			break readLoop
		default:
			c.deliver(outboundMessage[any]{Type: "error", Payload: errorPayload{Code: "badPayload", Message: "unsupported message type"}})
		}
	}

	h.hub.remove(code, c)

	// The request context dies with the socket; teardown store calls
	// need their own deadline.
	teardownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch {
	case isHost:
		// The game cannot progress without a host: end immediately.
		st, err := h.service.EndSession(teardownCtx, code)
		if err != nil {
			log.Printf("end session on host disconnect: %v", err)
		} else {
			h.hub.broadcast(code, outboundMessage[any]{Type: "hostDisconnected", Payload: struct{}{}})
			h.hub.broadcast(code, outboundMessage[any]{Type: "quizEnded", Payload: leaderboardPayload{Leaderboard: st.Leaderboard(0)}})
		}
	case explicitLeave:
		h.hub.broadcast(code, outboundMessage[any]{Type: "participantLeft", Payload: participantPayload{
			ParticipantID: c.participantID,
			DisplayName:   c.displayName,
		}})
	default:
		// Transient drop: grace marker only, score and answers survive
		// for a rejoin.
		if err := h.service.HandleDisconnect(teardownCtx, code, c.participantID); err != nil {
			log.Printf("mark disconnect: %v", err)
		}
	}

	c.close()
	<-writerDone
}

func (h *WSHandler) requireHost(c *client) bool {
	if c.isHost {
		return true
	}
	c.deliver(h.errorEvent(domain.ErrUnauthorized))
	return false
}

func (h *WSHandler) questionStartedEvent(st *domain.SessionState) outboundMessage[any] {
	question, _ := st.CurrentQuestion()
	return outboundMessage[any]{Type: "questionStarted", Payload: questionStartedPayload{
		Index:            st.CurrentQuestionIndex,
		Question:         sanitizeQuestion(question),
		TimeLimitSeconds: h.service.TimeLimit(question),
		RemainingSeconds: h.service.RemainingSeconds(st),
		TotalQuestions:   len(st.Questions),
	}}
}

func (h *WSHandler) joinedView(st *domain.SessionState, participantID string) joinedPayload {
	view := joinedPayload{
		Code:                 st.Code,
		Title:                st.Title,
		IsActive:             st.IsActive,
		Ended:                st.Ended(),
		CurrentQuestionIndex: st.CurrentQuestionIndex,
		TotalQuestions:       len(st.Questions),
		Leaderboard:          st.Leaderboard(0),
	}
	if question, ok := st.CurrentQuestion(); ok && st.IsActive {
		q := sanitizeQuestion(question)
		view.Question = &q
		view.TimeLimitSeconds = h.service.TimeLimit(question)
		view.RemainingSeconds = h.service.RemainingSeconds(st)
		if p, ok := st.Participants[participantID]; ok {
			view.AnsweredCurrent = p.HasAnswered(question.ID)
		}
	}
	if p, ok := st.Participants[participantID]; ok {
		view.Score = p.Score
	}
	return view
}

func sanitizeQuestion(q domain.Question) questionView {
	return questionView{
		ID:      q.ID,
		Text:    q.Text,
		Options: append([]domain.Option(nil), q.Options...),
	}
}

func (h *WSHandler) errorEvent(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Code: errCode(err), Message: err.Error()}}
}

func errCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return "sessionNotFound"
	case errors.Is(err, domain.ErrSessionNotActive):
		return "sessionNotActive"
	case errors.Is(err, domain.ErrQuestionMismatch):
		return "questionMismatch"
	case errors.Is(err, domain.ErrDuplicateAnswer):
		return "duplicateAnswer"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrParticipantNotFound):
		return "participantNotFound"
	case errors.Is(err, domain.ErrInvalidQuizDefinition):
		return "invalidQuizDefinition"
	case errors.Is(err, domain.ErrQuizNotFound):
		return "quizNotFound"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "storeUnavailable"
	default:
		return "internal"
	}
}
