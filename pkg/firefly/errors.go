package firefly

import (
	"errors"
	"fmt"
)

// ErrUnreachable marks transport failures: DNS, refused connections,
// timeouts.
var ErrUnreachable = errors.New("firefly unreachable")

// Error describes a failed Firefly API call. Reason is safe to show to users.
type Error struct {
	Op     string
	Status int
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("firefly %s: status %d: %s", e.Op, e.Status, e.Reason)
	}
	return fmt.Sprintf("firefly %s: %s", e.Op, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }
