/*
Package fleet is the ledger consistency engine for fleet bookkeeping.

PURPOSE:
  This package holds the domain records (trip documents, stock movements,
  stock items, drivers, balance snapshots, period locks) and the four
  engines that keep them consistent:

  - PostingEngine:     posts/unposts inventory and fuel-card movements as
                       all-or-nothing operations (posting.go)
  - LockService:       seals a calendar month's posted records behind a
                       cryptographic digest and gates dated mutations
                       (lock.go)
  - BalanceService:    reconstructs a driver's fuel-card balance from
                       snapshots plus incremental replay (balance.go)
  - ChainRecalculator: recomputes chronological chains of dependent draft
                       trip documents (chain.go)

DESIGN PRINCIPLES:
  1. Derived state is recomputable: item balances and the driver's cached
     fuel-card balance are projections of movement/trip history.
  2. Posted records are immutable except through explicit unpost.
  3. Precision: decimal.Decimal everywhere, no binary floating point.
  4. Single logical writer: no operation interleaves its critical section
     with another; the period-lock gate is the only pessimistic mechanism
     and it is advisory at this layer.

KEY CONCEPTS IN THIS FILE (types.go):
  - TripDocument: a waybill with route segments and odometer/fuel readings
  - StockMovement: an income/expense inventory transaction
  - StockItem / Driver: holders of derived running balances
  - BalanceSnapshot: a month-end checkpoint of a driver's card balance
  - PeriodLock: the seal over one calendar month

SEE ALSO:
  - store.go: Persistence interfaces
  - errors.go: Error taxonomy
  - fuel: The pure consumption calculator
*/
package fleet

import (
	"github.com/shopspring/decimal"

	"github.com/motorpool/fleet-ledger/fuel"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TripID string
type MovementID string
type ItemID string
type DriverID string
type VehicleID string
type SnapshotID string
type LockID string

// =============================================================================
// TRIP DOCUMENT ("waybill")
// =============================================================================

type TripStatus string

const (
	TripDraft  TripStatus = "draft"
	TripPosted TripStatus = "posted"
)

// RouteSegment is one leg of a trip, owned exclusively by its document.
type RouteSegment struct {
	Origin      string          `json:"origin"`
	Destination string          `json:"destination"`
	Distance    decimal.Decimal `json:"distance"`
	Urban       bool            `json:"urban"`
	ColdStart   bool            `json:"coldStart"`
	Mountain    bool            `json:"mountain"`

	// Date is set on multi-day trips where each leg selects its own
	// seasonal rate.
	Date *TimePoint `json:"date,omitempty"`
}

// TripDocument is a single vehicle-driver trip record.
//
// Invariant: OdometerEnd >= OdometerStart once posted. FuelEnd may be
// transiently negative only while the document is a draft. A posted
// document is never hard-deleted without first reverting to draft.
type TripDocument struct {
	ID       TripID    `json:"id"`
	Number   string    `json:"number"`
	Vehicle  VehicleID `json:"vehicleId"`
	Driver   DriverID  `json:"driverId"`
	Date     TimePoint `json:"date"`
	ValidFrom TimePoint `json:"validFrom"`
	ValidTo   TimePoint `json:"validTo"`

	OdometerStart decimal.Decimal `json:"odometerStart"`
	OdometerEnd   decimal.Decimal `json:"odometerEnd"`

	FuelStart   decimal.Decimal `json:"fuelStart"`
	FuelFilled  decimal.Decimal `json:"fuelFilled"`
	FuelEnd     decimal.Decimal `json:"fuelEnd"`
	FuelPlanned decimal.Decimal `json:"fuelPlanned"`

	Segments []RouteSegment `json:"segments"`
	Status   TripStatus     `json:"status"`

	// Method and MultiDay drive the fuel calculator during chain
	// recalculation.
	Method   fuel.Method `json:"method"`
	MultiDay bool        `json:"multiDay"`

	// FormRef links the reserved strict-accountability form, when any.
	FormRef string `json:"formRef,omitempty"`

	// UpdatedAt is bookkeeping only; the period seal ignores it.
	UpdatedAt TimePoint `json:"updatedAt"`
}

// =============================================================================
// STOCK MOVEMENT
// =============================================================================

type MovementKind string

const (
	MovementIncome  MovementKind = "income"
	MovementExpense MovementKind = "expense"
)

type MovementStatus string

const (
	MovementDraft  MovementStatus = "draft"
	MovementPosted MovementStatus = "posted"
)

// ExpenseReason tags why stock left the warehouse. Two reasons carry
// special posting semantics.
type ExpenseReason string

const (
	// ReasonFuelCardTopUp provisions a driver's fuel card from stock. It is
	// allowed to drive item balances negative (advance provisioning) and it
	// credits the driver's card balance on post.
	ReasonFuelCardTopUp ExpenseReason = "fuel_card_topup"

	// ReasonInventoryAdjustment is used internally by balance resets. These
	// movements operate only on the driver side: stock item balances are
	// never touched when posting or unposting them.
	ReasonInventoryAdjustment ExpenseReason = "inventory_adjustment"
)

// MovementLine is one (item, quantity) entry of a movement.
type MovementLine struct {
	Item      ItemID           `json:"itemId"`
	Quantity  decimal.Decimal  `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unitPrice,omitempty"`
}

// StockMovement is an income or expense inventory transaction.
//
// Lifecycle: Draft -> Posted -> Draft (reversible) or Draft -> removed.
// Posted movements are immutable except through explicit unpost.
type StockMovement struct {
	ID     MovementID     `json:"id"`
	Kind   MovementKind   `json:"kind"`
	Status MovementStatus `json:"status"`
	Date   TimePoint      `json:"date"`

	Organization string         `json:"organization,omitempty"`
	Lines        []MovementLine `json:"lines"`

	// Driver is set for fuel-card movements and adjustments.
	Driver DriverID      `json:"driverId,omitempty"`
	Reason ExpenseReason `json:"reason,omitempty"`
	Note   string        `json:"note,omitempty"`

	// UpdatedAt is bookkeeping only; the period seal ignores it.
	UpdatedAt TimePoint `json:"updatedAt"`
}

// FuelQuantity returns the total quantity across lines whose item carries
// the fuel flag, resolved through the given lookup.
func (m StockMovement) FuelQuantity(fuelItem func(ItemID) bool) decimal.Decimal {
	var total decimal.Decimal
	for _, line := range m.Lines {
		if fuelItem(line.Item) {
			total = total.Add(line.Quantity)
		}
	}
	return total
}

// =============================================================================
// STOCK ITEM / DRIVER / VEHICLE
// =============================================================================

// StockItem carries a running balance. The balance is derived state, not
// source of truth: it is recomputable from movement history and is mutated
// only by the posting engine.
type StockItem struct {
	ID      ItemID          `json:"id"`
	Name    string          `json:"name"`
	Unit    string          `json:"unit"`
	Fuel    bool            `json:"fuel"`
	Balance decimal.Decimal `json:"balance"`
}

// Driver holds a cached fuel-card balance. The cache is a denormalized
// projection; source of truth is movement/trip history plus snapshots.
type Driver struct {
	ID              DriverID        `json:"id"`
	Name            string          `json:"name"`
	FuelCardBalance decimal.Decimal `json:"fuelCardBalance"`
}

// Vehicle is the master record. Its seasonal rates feed the fuel
// calculator; its initial readings anchor chain recalculation when a
// vehicle has no posted history.
type Vehicle struct {
	ID              VehicleID       `json:"id"`
	Plate           string          `json:"plate"`
	SummerRate      decimal.Decimal `json:"summerRate"` // liters per 100 km
	WinterRate      decimal.Decimal `json:"winterRate"`
	InitialOdometer decimal.Decimal `json:"initialOdometer"`
	InitialFuel     decimal.Decimal `json:"initialFuel"`
}

// =============================================================================
// BALANCE SNAPSHOT
// =============================================================================

// BalanceSnapshot is a driver's fuel-card balance as of one month-end.
// Snapshots are immutable once generated and are regenerated in bulk,
// never incrementally patched.
type BalanceSnapshot struct {
	ID      SnapshotID      `json:"id"`
	Driver  DriverID        `json:"driverId"`
	AsOf    TimePoint       `json:"asOf"`
	Balance decimal.Decimal `json:"balance"`
}

// =============================================================================
// PERIOD LOCK
// =============================================================================

// PeriodLock seals one calendar month. Once created, the set of posted
// trip documents and stock movements dated in that month must not change;
// its existence gates every mutating operation on dates in the month.
type PeriodLock struct {
	ID          LockID    `json:"id"`
	Period      YearMonth `json:"period"`
	Hash        string    `json:"hash"` // hex SHA-256 of the canonical record set
	RecordCount int       `json:"recordCount"`
	LockedBy    string    `json:"lockedBy"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   TimePoint `json:"createdAt"`
}
