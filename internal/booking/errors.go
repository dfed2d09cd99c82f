package booking

import "errors"

// Error kinds surfaced by the booking core. Orchestration code wraps these
// with context but never reinterprets one kind as another; the HTTP layer
// maps each kind to a status code with errors.Is.
var (
	// ErrSlotUnavailable covers every reason a slot cannot be reserved:
	// unknown, already booked, administratively disabled, wrong doctor or in
	// the past. The caller's remedy is the same for all of them, re-list and
	// re-pick.
	ErrSlotUnavailable = errors.New("slot unavailable")

	// ErrIllegalTransition is returned when a requested status change is not
	// in the transition table, including any attempt to leave a terminal
	// state.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrForbidden is returned when the acting principal lacks authority for
	// the requested mutation.
	ErrForbidden = errors.New("forbidden")

	// ErrValidation is returned for dangling patient, doctor or service
	// references.
	ErrValidation = errors.New("invalid reference")

	// ErrNotFound is returned when the referenced appointment or slot does
	// not exist.
	ErrNotFound = errors.New("not found")

	// ErrSlotInUse rejects deleting a slot still referenced by a live
	// appointment.
	ErrSlotInUse = errors.New("slot referenced by a live appointment")
)
