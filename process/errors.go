package process

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when no record matches the id, including
	// records hidden from the actor by branch scoping.
	ErrNotFound = errors.New("process: record not found")
	// ErrUnauthorized signals the actor's role does not permit the edge.
	ErrUnauthorized = errors.New("process: actor role not permitted for this transition")
	// ErrConflict signals the conditional state update lost a race with a
	// concurrent actor. Callers should re-fetch and show the new state,
	// not retry blindly.
	ErrConflict = errors.New("process: record state changed concurrently")
	// ErrInvalidInput wraps request validation failures so transport layers
	// can answer with a client error instead of a server one.
	ErrInvalidInput = errors.New("process: invalid input")
)

// IllegalTransitionError reports a requested move that is not a declared
// edge from the record's current state. Transitions attempted on a closed
// record surface as this error, closure is not a special case.
type IllegalTransitionError struct {
	Kind Kind
	From State
	To   State
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("process: illegal transition %s -> %s for %s", e.From, e.To, e.Kind)
}

// InvalidResolutionDataError carries the offending payload keys so the
// caller can highlight them.
type InvalidResolutionDataError struct {
	Kind           Kind
	ResolutionKind ResolutionKind
	Fields         []string
}

func (e *InvalidResolutionDataError) Error() string {
	return fmt.Sprintf("process: invalid resolution payload for %s/%s: %s",
		e.Kind, e.ResolutionKind, strings.Join(e.Fields, ", "))
}
