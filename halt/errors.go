package halt

import "errors"

var (
	// ErrAlreadyHalted is returned when trigger is called while is_halted is
	// already true.
	ErrAlreadyHalted = errors.New("halt: already halted")

	// ErrNotHalted is returned when restore is called while is_halted is
	// already false.
	ErrNotHalted = errors.New("halt: not halted")

	// ErrCeremonyRequired is returned when restore is called with an empty
	// ceremony_id; the fixed-id singleton row's before-update trigger
	// forbids the transition without one.
	ErrCeremonyRequired = errors.New("halt: restore requires a non-empty ceremony_id")

	// ErrReasonRequired is returned when trigger is called with an empty
	// reason, preserving the is_halted=true ⇒ reason != null invariant.
	ErrReasonRequired = errors.New("halt: trigger requires a non-empty reason")
)
