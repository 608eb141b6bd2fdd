package engine

import "fmt"

// InvalidStateError reports a transition attempted from a state where
// it is not defined.
type InvalidStateError struct {
	Entity    string
	ID        int64
	Current   string
	Attempted string
}

func (e InvalidStateError) Error() string {
	return fmt.Sprintf("%s %d: cannot %s from state %q", e.Entity, e.ID, e.Attempted, e.Current)
}

// ConflictError reports a uniqueness violation: duplicate campaign
// period, duplicate question position, or re-running allocation for a
// campaign that already has assignments.
type ConflictError struct {
	Entity string
	Detail string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %s", e.Entity, e.Detail)
}

// InvalidInputError reports a malformed value.
type InvalidInputError struct {
	Field  string
	Detail string
}

func (e InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Detail)
}
