/*
errors.go - Centralized error types for the fleet engine

PURPOSE:
  All error types in one place. The taxonomy follows the failure-recovery
  design of the engine:

  - Validation errors surface to the caller BEFORE any write occurs.
  - ErrPeriodLocked is raised by the gate check, always checked first.
  - Verification mismatch is NOT an error: a failed period verification is
    an expected, actionable outcome and is returned as a structured result
    (see VerifyResult in lock.go).
  - Compensation failures are logged, never thrown; the original error is
    what propagates (see the saga package).

USAGE:
  if errors.Is(err, fleet.ErrPeriodLocked) { ... }

SEE ALSO:
  - posting.go, lock.go, chain.go: Producers of these errors
*/
package fleet

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrPeriodLocked is returned when a mutating operation targets a date
	// inside a sealed calendar month.
	ErrPeriodLocked = errors.New("period closed")

	// ErrNotFound is returned when a referenced entity is missing.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientStock is returned when an expense line exceeds the
	// item's current balance (and the top-up exception does not apply).
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvalidStatus is returned when a movement is not in the status the
	// operation requires (e.g. posting an already-posted movement).
	ErrInvalidStatus = errors.New("invalid movement status")

	// ErrFuelAlreadyConsumed is returned when reversing a fuel-card top-up
	// would drive the driver's balance below zero.
	ErrFuelAlreadyConsumed = errors.New("topped-up fuel already consumed")

	// ErrPeriodAlreadyLocked is returned when sealing a period twice.
	ErrPeriodAlreadyLocked = errors.New("period already locked")

	// ErrEmptyPeriod is returned when sealing a period with zero eligible
	// posted records.
	ErrEmptyPeriod = errors.New("no posted records in period")

	// ErrOdometerOrder is returned when a posted document would end with a
	// lower odometer reading than it started with.
	ErrOdometerOrder = errors.New("ending odometer below starting odometer")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientStockError reports which item fell short.
type InsufficientStockError struct {
	Item      ItemID
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %s: available %s, requested %s",
		e.Item, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// PeriodLockedError reports which lock blocked the operation.
type PeriodLockedError struct {
	Period YearMonth
	Lock   LockID
}

func (e *PeriodLockedError) Error() string {
	return fmt.Sprintf("period %s is closed (lock %s)", e.Period, e.Lock)
}

func (e *PeriodLockedError) Unwrap() error { return ErrPeriodLocked }

// NotFoundError names the missing entity.
type NotFoundError struct {
	Collection string
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Collection, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether the error is due to invalid caller input
// rather than an internal failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrFuelAlreadyConsumed) ||
		errors.Is(err, ErrPeriodAlreadyLocked) ||
		errors.Is(err, ErrEmptyPeriod) ||
		errors.Is(err, ErrOdometerOrder)
}
