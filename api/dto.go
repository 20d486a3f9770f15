/*
dto.go - Request/response data structures for the HTTP API

PURPOSE:
  Defines the JSON shapes exchanged with clients. Domain records
  (TripDocument, StockMovement, ...) already carry JSON tags and are
  returned directly; this file holds the shapes that have no 1:1 domain
  counterpart - calculation requests, lock requests, balance views and
  the error envelope.

SEE ALSO:
  - handlers.go: Producers/consumers of these structures
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/motorpool/fleet-ledger/fleet"
	"github.com/motorpool/fleet-ledger/fuel"
)

// =============================================================================
// ERROR ENVELOPE
// =============================================================================

// ErrorResponse is the JSON shape of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// FUEL CALCULATION
// =============================================================================

// CalculateRequest drives the pure fuel calculator. Either Method or
// LegacyMethod must be set; LegacyMethod accepts the historical enum
// names and wins when both are present.
type CalculateRequest struct {
	Method       fuel.Method     `json:"method,omitempty"`
	LegacyMethod string          `json:"legacyMethod,omitempty"`
	Segments     []fuel.Segment  `json:"segments"`
	SummerRate   decimal.Decimal `json:"summerRate"`
	WinterRate   decimal.Decimal `json:"winterRate"`
	Date         fleet.TimePoint `json:"date"`
	MultiDay     bool            `json:"multiDay,omitempty"`

	// TotalDistance overrides the reported distance for the blended
	// method.
	TotalDistance *decimal.Decimal `json:"totalDistance,omitempty"`
}

// CalculateResponse carries the calculator outputs.
type CalculateResponse struct {
	Distance    decimal.Decimal `json:"distance"`
	Consumption decimal.Decimal `json:"consumption"`
}

// =============================================================================
// TRIP DOCUMENTS
// =============================================================================

// SaveTripResponse returns the saved document plus the size of the
// dependent-draft cascade its save triggered.
type SaveTripResponse struct {
	Trip         fleet.TripDocument `json:"trip"`
	Recalculated int                `json:"recalculated"`
}

// RecalculateRequest selects the anchor date for a bulk draft recompute.
type RecalculateRequest struct {
	From fleet.TimePoint `json:"from"`
}

// =============================================================================
// BALANCES
// =============================================================================

// AdjustmentRequest creates and posts a balance adjustment in one step.
type AdjustmentRequest struct {
	Driver fleet.DriverID  `json:"driverId"`
	Delta  decimal.Decimal `json:"delta"`
	Note   string          `json:"note,omitempty"`
}

// BalanceResponse is the computed fuel-card balance view.
type BalanceResponse struct {
	Driver  fleet.DriverID  `json:"driverId"`
	AsOf    fleet.TimePoint `json:"asOf"`
	Balance decimal.Decimal `json:"balance"`
}

// =============================================================================
// PERIOD LOCKS
// =============================================================================

// LockRequest seals one calendar month.
type LockRequest struct {
	Period fleet.YearMonth `json:"period"`
	Notes  string          `json:"notes,omitempty"`
}

// LockedResponse answers "is this date sealed?".
type LockedResponse struct {
	Locked bool `json:"locked"`
}
