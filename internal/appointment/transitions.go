package appointment

import "fmt"

var transitions = map[Status][]Status{
	StatusPending:    {StatusApproved, StatusCancelled},
	StatusApproved:   {StatusInProgress, StatusCancelled, StatusCompleted},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCompleted:  nil,
	StatusCancelled:  nil,
}

// CheckTransition validates from -> to. Same-status updates are always
// allowed so doctors can amend notes. With strict=false any known status
// may follow any other.
func CheckTransition(from, to Status, strict bool) error {
	if !to.Valid() || !from.Valid() {
		return fmt.Errorf("%w: %s -> %s", ErrUnknownStatus, from, to)
	}
	if from == to || !strict {
		return nil
	}
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, from, to)
}
