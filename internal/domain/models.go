package domain

import (
	"sort"
	"time"
)

// Option represents a possible answer for a question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID               string   `json:"id"`
	Text             string   `json:"text"`
	Options          []Option `json:"options"`
	CorrectOptionID  string   `json:"correctOptionId"`
	TimeLimitSeconds int      `json:"timeLimitSeconds"` // 0 means the configured default applies
}

// QuizDefinition is the ordered question list a session is created from.
// It is loaded once at session creation and copied into the session
// document, so later edits cannot corrupt a running game.
type QuizDefinition struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Answer records one scored submission by a participant.
type Answer struct {
	QuestionID       string `json:"questionId"`
	SelectedOptionID string `json:"selectedOptionId"`
	Correct          bool   `json:"correct"`
	TimeTakenSeconds int    `json:"timeTakenSeconds"`
}

// ParticipantState tracks one player inside a session. Answers holds at
// most one entry per question ID; the service enforces this inside the
// store's atomic update.
type ParticipantState struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Score       int       `json:"score"`
	Answers     []Answer  `json:"answers"`
	LastActive  time.Time `json:"lastActive"`
}

// HasAnswered reports whether the participant already answered the question.
func (p *ParticipantState) HasAnswered(questionID string) bool {
	for _, a := range p.Answers {
		if a.QuestionID == questionID {
			return true
		}
	}
	return false
}

// SessionState is the authoritative session document, stored serialized
// under its join code. CurrentQuestionIndex is -1 in the lobby.
type SessionState struct {
	Code                     string                       `json:"code"`
	QuizID                   string                       `json:"quizId"`
	Title                    string                       `json:"title"`
	CreatedAt                time.Time                    `json:"createdAt"`
	IsActive                 bool                         `json:"isActive"`
	EndedAt                  *time.Time                   `json:"endedAt,omitempty"`
	CurrentQuestionIndex     int                          `json:"currentQuestionIndex"`
	CurrentQuestionStartedAt time.Time                    `json:"currentQuestionStartedAt"`
	Questions                []Question                   `json:"questions"`
	Participants             map[string]*ParticipantState `json:"participants"`
}

// Ended reports whether the session reached its terminal state.
// A lobby also has IsActive=false, so the end timestamp is the marker.
func (s *SessionState) Ended() bool {
	return s.EndedAt != nil
}

// CurrentQuestion returns the question at the current index, if any.
func (s *SessionState) CurrentQuestion() (Question, bool) {
	if s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(s.Questions) {
		return Question{}, false
	}
	return s.Questions[s.CurrentQuestionIndex], true
}

// LeaderboardEntry is a derived ranking row; never stored.
type LeaderboardEntry struct {
	ParticipantID     string `json:"participantId"`
	DisplayName       string `json:"displayName"`
	Score             int    `json:"score"`
	QuestionsAnswered int    `json:"questionsAnswered"`
}

// Leaderboard projects the ranked scoreboard from participant state.
// Ordering: score descending, ties broken by participant ID ascending so
// repeated calls agree regardless of map iteration or store backend.
func (s *SessionState) Leaderboard(limit int) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(s.Participants))
	for _, p := range s.Participants {
		entries = append(entries, LeaderboardEntry{
			ParticipantID:     p.ID,
			DisplayName:       p.DisplayName,
			Score:             p.Score,
			QuestionsAnswered: len(p.Answers),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].ParticipantID < entries[j].ParticipantID
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// AnswerResult summarizes the outcome of a submission for the submitter.
type AnswerResult struct {
	QuestionID string `json:"questionId"`
	Correct    bool   `json:"correct"`
	ScoreDelta int    `json:"scoreDelta"`
	TotalScore int    `json:"totalScore"`
}
