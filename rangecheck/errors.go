package rangecheck

import "errors"

var (
	// ErrNotOwner is returned when a caller without ownership invokes a
	// restricted operation.
	ErrNotOwner = errors.New("caller is not the owner")

	// ErrInvalidInput is returned for malformed requests: inverted or
	// empty bound intervals, an empty proof, or a null principal where a
	// real identity is required.
	ErrInvalidInput = errors.New("invalid input")

	// ErrVerificationFailed is returned when the coprocessor rejects an
	// encrypted input's admission proof.
	ErrVerificationFailed = errors.New("encrypted input rejected")

	// ErrNoResult is returned when an operation needs a recorded result
	// but no check has ever completed.
	ErrNoResult = errors.New("no range check has been recorded")
)
