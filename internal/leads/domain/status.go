// Package domain holds the lead state machine. Pure logic, no storage.
package domain

import (
	"fmt"

	"inbox_crm_backend/platform/apperr"
)

// Status is the lifecycle state of a lead.
type Status string

// Lead statuses. NEW is the only non-terminal state; a lead is never
// reopened, a new buying cycle always creates a new lead.
const (
	StatusNew       Status = "NEW"
	StatusConverted Status = "CONVERTED"
	StatusLost      Status = "LOST"
	StatusClosed    Status = "CLOSED"
)

// Source of a lead.
const (
	SourceAI     = "AI"
	SourceManual = "MANUAL"
)

var validStatuses = map[Status]bool{
	StatusNew:       true,
	StatusConverted: true,
	StatusLost:      true,
	StatusClosed:    true,
}

// ParseStatus validates a raw status string.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !validStatuses[s] {
		return "", apperr.Validation(fmt.Sprintf("unknown lead status %q", raw))
	}
	return s, nil
}

// IsTerminal reports whether no transition may leave this status.
func (s Status) IsTerminal() bool {
	return s != StatusNew
}

// CanTransitionTo reports whether the state machine allows moving from s to
// target. Only NEW has outgoing edges.
func (s Status) CanTransitionTo(target Status) bool {
	if s != StatusNew {
		return false
	}
	switch target {
	case StatusConverted, StatusLost, StatusClosed:
		return true
	default:
		return false
	}
}

// ValidateClose checks an explicit close request. Conversion is reserved for
// order creation and never a direct close target.
func ValidateClose(current, target Status) error {
	if target != StatusLost && target != StatusClosed {
		return apperr.Validation(fmt.Sprintf("lead cannot be closed with status %q", target))
	}
	if !current.CanTransitionTo(target) {
		return apperr.InvalidTransition(fmt.Sprintf("lead in status %q cannot move to %q", current, target))
	}
	return nil
}
