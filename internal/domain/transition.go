package domain

import (
	"fmt"

	"github.com/pesio-ai/be-plt-approvals/internal/errors"
)

// Transition is the outcome of applying an action.
type Transition struct {
	Status      Status
	CurrentStep int
	Event       Event
}

// Next computes the state reached from (status, current) over total steps.
//
//	reject            -> rejected, step frozen
//	return, S > 1     -> pending, S-1
//	return, S == 1    -> pending, 1
//	approve, S < N    -> in_progress, S+1
//	approve, S == N   -> approved, step frozen
func Next(status Status, current, total int, action Action) (Transition, error) {
	if status.IsTerminal() {
		return Transition{}, errors.InvalidState("request already finalized")
	}
	if total < 1 || current < 1 || current > total {
		return Transition{}, errors.New(errors.ErrCodeInternal,
			fmt.Sprintf("current step %d outside 1..%d", current, total))
	}

	switch action {
	case ActionReject:
		return Transition{Status: StatusRejected, CurrentStep: current, Event: EventRejected}, nil
	case ActionReturn:
		return Transition{Status: StatusPending, CurrentStep: max(1, current-1), Event: EventReturned}, nil
	case ActionApprove:
		if current < total {
			return Transition{Status: StatusInProgress, CurrentStep: current + 1, Event: EventAdvanced}, nil
		}
		return Transition{Status: StatusApproved, CurrentStep: current, Event: EventApproved}, nil
	default:
		return Transition{}, errors.InvalidInput("action", fmt.Sprintf("unknown action %q", action))
	}
}
