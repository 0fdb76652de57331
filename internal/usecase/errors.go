package usecase

import (
	"fmt"
	"strings"
)

// ValidationError reports bad input: malformed payload, unknown transition
// kind, or a status outside the allowed set. No records were touched.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// SeatConflictError reports that one or more requested seats are already
// held by another active booking. The caller lost a race or asked for a
// taken seat; retrying with the same seats will fail again until they free.
type SeatConflictError struct {
	FlightNumber int64
	Seats        []string
}

func (e *SeatConflictError) Error() string {
	return fmt.Sprintf("seats %s already occupied on flight %d",
		strings.Join(e.Seats, ", "), e.FlightNumber)
}

// PartialCascadeError reports that a flight-status cascade committed some of
// its sub-updates but could not finish after retries. The cascade is
// idempotent, so retrying the same request completes the remainder.
type PartialCascadeError struct {
	FlightNumber int64
	Err          error
}

func (e *PartialCascadeError) Error() string {
	return fmt.Sprintf("flight %d status cascade incomplete: %v", e.FlightNumber, e.Err)
}

func (e *PartialCascadeError) Unwrap() error {
	return e.Err
}
