/*
store.go - Persistence interfaces for the fleet engine

PURPOSE:
  Defines the contract between the engines and the storage layer. The
  underlying store is a local key-value/document store with per-entity
  writes only - there is no multi-collection transaction primitive, which
  is exactly why the posting engine uses compensating steps (see the saga
  package).

CONVENTIONS:
  - Get* returns (nil, nil) when the record does not exist; engines
    translate that into NotFoundError.
  - List* returns records in a deterministic order (documented per method).
  - Put* overwrites by ID. Bulk Put persists already-computed records whose
    writes have no ordering dependency on each other.

IMPLEMENTATIONS:
  - fleet/store: In-memory, for tests and development
  - store/sqlite: Local persistent store

CACHE FRESHNESS:
  Implementations may keep an in-memory read cache. The Notifier hook only
  tells other open sessions "this collection changed, drop your cache" -
  the engines never rely on it for correctness.

SEE ALSO:
  - posting.go, balance.go, lock.go, chain.go: Consumers
*/
package fleet

import "context"

// =============================================================================
// COLLECTION STORES
// =============================================================================

// TripStore persists trip documents.
type TripStore interface {
	GetTrip(ctx context.Context, id TripID) (*TripDocument, error)

	// ListTripsByVehicle returns all of a vehicle's documents ordered by
	// validity start, then document number.
	ListTripsByVehicle(ctx context.Context, vehicle VehicleID) ([]TripDocument, error)

	// ListTripsByDriver returns all of a driver's documents ordered by date.
	ListTripsByDriver(ctx context.Context, driver DriverID) ([]TripDocument, error)

	// ListPostedTripsInPeriod returns posted documents dated in the month,
	// ordered by ID.
	ListPostedTripsInPeriod(ctx context.Context, period YearMonth) ([]TripDocument, error)

	PutTrip(ctx context.Context, doc TripDocument) error

	// PutTrips persists a computed batch. The writes are independent of
	// each other and may be issued in parallel by the implementation.
	PutTrips(ctx context.Context, docs []TripDocument) error

	DeleteTrip(ctx context.Context, id TripID) error
}

// MovementStore persists stock movements.
type MovementStore interface {
	GetMovement(ctx context.Context, id MovementID) (*StockMovement, error)

	// ListMovementsByDriver returns a driver's movements ordered by date.
	ListMovementsByDriver(ctx context.Context, driver DriverID) ([]StockMovement, error)

	// ListPostedMovementsInPeriod returns posted movements dated in the
	// month, ordered by ID.
	ListPostedMovementsInPeriod(ctx context.Context, period YearMonth) ([]StockMovement, error)

	PutMovement(ctx context.Context, m StockMovement) error
	DeleteMovement(ctx context.Context, id MovementID) error
}

// ItemStore persists stock items.
type ItemStore interface {
	GetItem(ctx context.Context, id ItemID) (*StockItem, error)
	ListItems(ctx context.Context) ([]StockItem, error)
	PutItem(ctx context.Context, item StockItem) error
}

// DriverStore persists drivers.
type DriverStore interface {
	GetDriver(ctx context.Context, id DriverID) (*Driver, error)
	ListDrivers(ctx context.Context) ([]Driver, error)
	PutDriver(ctx context.Context, d Driver) error
}

// VehicleStore persists vehicle master records.
type VehicleStore interface {
	GetVehicle(ctx context.Context, id VehicleID) (*Vehicle, error)
	ListVehicles(ctx context.Context) ([]Vehicle, error)
	PutVehicle(ctx context.Context, v Vehicle) error
}

// SnapshotStore persists balance snapshots. Snapshots are regenerated in
// bulk and never patched, so the only write is a full replace.
type SnapshotStore interface {
	// LatestSnapshotOnOrBefore returns the newest snapshot for the driver
	// dated on or before the target, or nil.
	LatestSnapshotOnOrBefore(ctx context.Context, driver DriverID, at TimePoint) (*BalanceSnapshot, error)

	ListSnapshotsByDriver(ctx context.Context, driver DriverID) ([]BalanceSnapshot, error)

	// ReplaceSnapshots discards every existing snapshot and stores the new
	// set.
	ReplaceSnapshots(ctx context.Context, snaps []BalanceSnapshot) error
}

// LockStore persists period locks.
type LockStore interface {
	GetLock(ctx context.Context, id LockID) (*PeriodLock, error)
	LockForPeriod(ctx context.Context, period YearMonth) (*PeriodLock, error)
	ListLocks(ctx context.Context) ([]PeriodLock, error)
	PutLock(ctx context.Context, lock PeriodLock) error
	DeleteLock(ctx context.Context, id LockID) error
}

// =============================================================================
// AUDIT LOG - Fire-and-forget business event sink
// =============================================================================

// AuditAction tags a business event.
type AuditAction string

const (
	AuditMovementPosted    AuditAction = "movement_posted"
	AuditMovementUnposted  AuditAction = "movement_unposted"
	AuditAdjustmentCreated AuditAction = "adjustment_created"
	AuditBalanceReset      AuditAction = "balance_reset"
	AuditPeriodLocked      AuditAction = "period_locked"
	AuditPeriodUnlocked    AuditAction = "period_unlocked"
)

// AuditEntry records who did what when. The engine only emits strongly
// shaped records; interpretation of the payload belongs to the excluded
// presentation layer.
type AuditEntry struct {
	ID       string
	At       TimePoint
	Actor    string
	Action   AuditAction
	Driver   DriverID
	Movement MovementID
	Lock     LockID
	Payload  map[string]any
}

// AuditLog stores audit entries. Append-only.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	QueryAudit(ctx context.Context, actions []AuditAction, limit int) ([]AuditEntry, error)
}

// =============================================================================
// COMBINED STORE + CHANGE NOTIFICATION
// =============================================================================

// Store is the full persistence surface. Both provided implementations
// satisfy it.
type Store interface {
	TripStore
	MovementStore
	ItemStore
	DriverStore
	VehicleStore
	SnapshotStore
	LockStore
	AuditLog
}

// Notifier receives advisory "collection changed" hints after committed
// writes so other open sessions can drop their read caches. Never relied
// on for correctness.
type Notifier interface {
	CollectionChanged(collection string)
}

// Collection names used with Notifier.
const (
	CollectionTrips     = "trip_documents"
	CollectionMovements = "stock_movements"
	CollectionItems     = "stock_items"
	CollectionDrivers   = "drivers"
	CollectionSnapshots = "balance_snapshots"
	CollectionLocks     = "period_locks"
)
