// Package lifecycle owns the manifestation status machine, the action-plan
// status machine and the anonymization policy. Everything here is pure:
// no I/O, no clock, no persistence.
package lifecycle

import (
	"fmt"

	"ouvidor/internal/domain"
)

// Action is a lifecycle action requested against a manifestation.
type Action string

const (
	ActionCreate       Action = "create"
	ActionAnalyze      Action = "analyze"
	ActionForward      Action = "forward"
	ActionStartService Action = "start_service"
	ActionAwaitReturn  Action = "await_return"
	ActionRespond      Action = "respond"
	ActionClose        Action = "close"
	ActionCancel       Action = "cancel"
)

// InvalidTransitionError reports a lifecycle action that is not legal
// from the current status.
type InvalidTransitionError struct {
	From   domain.Status
	Action Action
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: action %s from status %s", e.Action, e.From)
}

// Transition returns the status reached by applying action to current.
// The table is closed: anything not listed fails with InvalidTransitionError.
func Transition(current domain.Status, action Action) (domain.Status, error) {
	if current.Terminal() {
		return current, InvalidTransitionError{From: current, Action: action}
	}
	switch action {
	case ActionAnalyze:
		if current == domain.StatusNew {
			return domain.StatusAnalyzing, nil
		}
	case ActionForward:
		// Legal from any non-terminal state.
		return domain.StatusForwarded, nil
	case ActionStartService:
		if current == domain.StatusForwarded {
			return domain.StatusInService, nil
		}
	case ActionAwaitReturn:
		if current == domain.StatusInService {
			return domain.StatusAwaitingReturn, nil
		}
	case ActionRespond:
		switch current {
		case domain.StatusForwarded, domain.StatusInService, domain.StatusAwaitingReturn:
			return domain.StatusResponded, nil
		}
	case ActionClose:
		if current == domain.StatusResponded {
			return domain.StatusClosed, nil
		}
	case ActionCancel:
		return domain.StatusCanceled, nil
	}
	return current, InvalidTransitionError{From: current, Action: action}
}

// EditAllowed reports whether a content edit (not a status change) is
// permitted at the given status. Holders of manage-manifestations may edit
// at any non-terminal status; everyone else only while intake is still open.
func EditAllowed(current domain.Status, canManage bool) bool {
	if current.Terminal() {
		return false
	}
	if canManage {
		return true
	}
	return current == domain.StatusNew || current == domain.StatusAnalyzing
}

// RequiresAnonymization decides whether forwarding the record must scrub
// the complainant identity. Denunciations are always protected.
func RequiresAnonymization(t domain.Type, confidential, anonymous bool) bool {
	return confidential || anonymous || t == domain.TypeDenunciation
}
