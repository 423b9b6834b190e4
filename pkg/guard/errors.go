package guard

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition marks a promote or demote whose requested role
// does not move the target in the operation's direction (promoting to
// an equal-or-lower role, demoting to an equal-or-higher one).
var ErrInvalidTransition = errors.New("invalid role transition")

// DeniedError is an authorization denial. It is an expected,
// operational outcome: callers render the message to the user, they do
// not treat it as a system failure. The message always states what
// would have been required.
type DeniedError struct {
	// Handle is the denied party's external handle.
	Handle string

	// Action is the caller-supplied name of the attempted action.
	Action string

	// Required states the minimum role or the permission set that the
	// action needs.
	Required string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("permission denied: %s requires %s", e.Action, e.Required)
}

// Reason is the denial explanation recorded in the audit trail.
func (e *DeniedError) Reason() string {
	return fmt.Sprintf("requires %s", e.Required)
}

// IsDenied reports whether err is an authorization denial.
func IsDenied(err error) bool {
	var denied *DeniedError
	return errors.As(err, &denied)
}
