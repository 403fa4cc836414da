package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a join code is unknown or expired.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionNotActive is returned for commands that need a running question window.
	ErrSessionNotActive = errors.New("session not active")
	// ErrParticipantNotFound is returned when a user tries to act before joining.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrQuestionMismatch indicates a submission for a question that is not the current one.
	ErrQuestionMismatch = errors.New("answer does not match the current question")
	// ErrDuplicateAnswer indicates a second submission for an already-answered question.
	ErrDuplicateAnswer = errors.New("question already answered")
	// ErrUnauthorized is returned when a non-host issues a host-only command.
	ErrUnauthorized = errors.New("host privileges required")
	// ErrInvalidQuizDefinition rejects session creation for quizzes without questions.
	ErrInvalidQuizDefinition = errors.New("quiz has no questions")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrCodeTaken indicates a candidate join code already maps to a live session.
	ErrCodeTaken = errors.New("join code already in use")
	// ErrCodeExhausted indicates repeated collisions while allocating a join code.
	ErrCodeExhausted = errors.New("could not allocate a unique join code")
	// ErrStoreUnavailable wraps infrastructure failures of the session store.
	ErrStoreUnavailable = errors.New("session store unavailable")
)
