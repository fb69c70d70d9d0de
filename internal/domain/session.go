// Package domain contains core domain types for the interview service.
package domain

import (
	"time"
)

// SessionState is the position of a session in the interview state machine.
type SessionState string

const (
	StateConsentPending SessionState = "CONSENT_PENDING"
	StateInterviewing   SessionState = "INTERVIEWING"
	StateGeneratingSite SessionState = "GENERATING_SITE"
	StateCompleted      SessionState = "COMPLETED"
	StateStopped        SessionState = "STOPPED"
)

// ActiveStates lists every non-terminal state.
var ActiveStates = []SessionState{StateConsentPending, StateInterviewing, StateGeneratingSite}

// Valid reports whether s is a known state.
func (s SessionState) Valid() bool {
	switch s {
	case StateConsentPending, StateInterviewing, StateGeneratingSite, StateCompleted, StateStopped:
		return true
	}
	return false
}

// IsTerminal returns true for COMPLETED and STOPPED.
func (s SessionState) IsTerminal() bool {
	return s == StateCompleted || s == StateStopped
}

// CanTransition reports whether the state machine allows moving from one
// state to another. Staying in the same non-terminal state is allowed so a
// turn can be recorded without a state change. The STOP override applies to
// every non-terminal state.
// That includes GENERATING_SITE, so an opt-out during generation wins.
func CanTransition(from, to SessionState) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StateStopped {
		return true
	}
	switch from {
	case StateConsentPending:
		return to == StateConsentPending || to == StateInterviewing
	case StateInterviewing:
		return to == StateInterviewing || to == StateGeneratingSite
	case StateGeneratingSite:
		return to == StateGeneratingSite || to == StateCompleted
	}
	return false
}

// Session is one tracked SMS interview attempt for one phone number.
type Session struct {
	ID            string       `json:"id"`
	Phone         string       `json:"phone"`
	State         SessionState `json:"state"`
	QuestionIndex int          `json:"question_index"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// IsActive returns true if the session can still take part in a conversation.
func (s *Session) IsActive() bool {
	return !s.State.IsTerminal()
}
