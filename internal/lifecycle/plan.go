package lifecycle

import (
	"fmt"

	"ouvidor/internal/domain"
)

// InvalidPlanTransitionError reports an action-plan status change outside
// the allowed table.
type InvalidPlanTransitionError struct {
	From domain.PlanStatus
	To   domain.PlanStatus
}

func (e InvalidPlanTransitionError) Error() string {
	return fmt.Sprintf("invalid plan transition %s -> %s", e.From, e.To)
}

// AdvancePlan validates a plan status change. Allowed moves:
// pending -> in_progress, in_progress -> done, and cancellation from either
// non-terminal state. Repeating pending -> in_progress on a plan already in
// progress is rejected rather than treated as a no-op.
func AdvancePlan(current, next domain.PlanStatus) error {
	switch current {
	case domain.PlanPending:
		if next == domain.PlanInProgress || next == domain.PlanCanceled {
			return nil
		}
	case domain.PlanInProgress:
		if next == domain.PlanDone || next == domain.PlanCanceled {
			return nil
		}
	}
	return InvalidPlanTransitionError{From: current, To: next}
}
