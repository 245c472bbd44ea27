package orders

import (
	"fmt"

	"github.com/quorumtrade/quorum-api/internal/types"
)

// Events that drive the order state machine.
const (
	EventSubmit = "submit"
	EventFill   = "fill"
	EventCancel = "cancel"
	EventReject = "reject"
	EventFault  = "fault"
)

// validEvents lists the events legal in each state. States absent from
// the map are terminal.
var validEvents = map[string][]string{
	types.StatusPlanned:         {EventSubmit, EventFault},
	types.StatusSubmitted:       {EventFill, EventCancel, EventReject, EventFault},
	types.StatusPartiallyFilled: {EventFill},
}

func canApply(status, event string) bool {
	for _, e := range validEvents[status] {
		if e == event {
			return true
		}
	}
	return false
}

// TransitionError reports an event that is illegal in the order's current
// state. The order is left unmodified.
type TransitionError struct {
	ClientOrderID string
	From          string
	Event         string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition for order %s: event %q in state %q",
		e.ClientOrderID, e.Event, e.From)
}
