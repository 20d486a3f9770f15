// Package store provides the in-memory fleet.Store implementation used by
// tests and development servers.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/motorpool/fleet-ledger/fleet"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	trips     map[fleet.TripID]fleet.TripDocument
	movements map[fleet.MovementID]fleet.StockMovement
	items     map[fleet.ItemID]fleet.StockItem
	drivers   map[fleet.DriverID]fleet.Driver
	vehicles  map[fleet.VehicleID]fleet.Vehicle
	snapshots []fleet.BalanceSnapshot
	locks     map[fleet.LockID]fleet.PeriodLock
	audit     []fleet.AuditEntry
}

var _ fleet.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		trips:     make(map[fleet.TripID]fleet.TripDocument),
		movements: make(map[fleet.MovementID]fleet.StockMovement),
		items:     make(map[fleet.ItemID]fleet.StockItem),
		drivers:   make(map[fleet.DriverID]fleet.Driver),
		vehicles:  make(map[fleet.VehicleID]fleet.Vehicle),
		locks:     make(map[fleet.LockID]fleet.PeriodLock),
	}
}

// =============================================================================
// TRIP DOCUMENTS
// =============================================================================

func (m *Memory) GetTrip(_ context.Context, id fleet.TripID) (*fleet.TripDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.trips[id]
	if !ok {
		return nil, nil
	}
	doc.Segments = cloneSegments(doc.Segments)
	return &doc, nil
}

func (m *Memory) ListTripsByVehicle(_ context.Context, vehicle fleet.VehicleID) ([]fleet.TripDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []fleet.TripDocument
	for _, doc := range m.trips {
		if doc.Vehicle == vehicle {
			doc.Segments = cloneSegments(doc.Segments)
			result = append(result, doc)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].ValidFrom.Equal(result[j].ValidFrom) {
			return result[i].ValidFrom.Before(result[j].ValidFrom)
		}
		return result[i].Number < result[j].Number
	})
	return result, nil
}

func (m *Memory) ListTripsByDriver(_ context.Context, driver fleet.DriverID) ([]fleet.TripDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []fleet.TripDocument
	for _, doc := range m.trips {
		if doc.Driver == driver {
			doc.Segments = cloneSegments(doc.Segments)
			result = append(result, doc)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (m *Memory) ListPostedTripsInPeriod(_ context.Context, period fleet.YearMonth) ([]fleet.TripDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []fleet.TripDocument
	for _, doc := range m.trips {
		if doc.Status == fleet.TripPosted && period.Contains(doc.Date) {
			doc.Segments = cloneSegments(doc.Segments)
			result = append(result, doc)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) PutTrip(_ context.Context, doc fleet.TripDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc.Segments = cloneSegments(doc.Segments)
	m.trips[doc.ID] = doc
	return nil
}

func (m *Memory) PutTrips(_ context.Context, docs []fleet.TripDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, doc := range docs {
		doc.Segments = cloneSegments(doc.Segments)
		m.trips[doc.ID] = doc
	}
	return nil
}

func (m *Memory) DeleteTrip(_ context.Context, id fleet.TripID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.trips, id)
	return nil
}

// =============================================================================
// STOCK MOVEMENTS
// =============================================================================

func (m *Memory) GetMovement(_ context.Context, id fleet.MovementID) (*fleet.StockMovement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mov, ok := m.movements[id]
	if !ok {
		return nil, nil
	}
	mov.Lines = cloneLines(mov.Lines)
	return &mov, nil
}

func (m *Memory) ListMovementsByDriver(_ context.Context, driver fleet.DriverID) ([]fleet.StockMovement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []fleet.StockMovement
	for _, mov := range m.movements {
		if mov.Driver == driver {
			mov.Lines = cloneLines(mov.Lines)
			result = append(result, mov)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (m *Memory) ListPostedMovementsInPeriod(_ context.Context, period fleet.YearMonth) ([]fleet.StockMovement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []fleet.StockMovement
	for _, mov := range m.movements {
		if mov.Status == fleet.MovementPosted && period.Contains(mov.Date) {
			mov.Lines = cloneLines(mov.Lines)
			result = append(result, mov)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) PutMovement(_ context.Context, mov fleet.StockMovement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mov.Lines = cloneLines(mov.Lines)
	m.movements[mov.ID] = mov
	return nil
}

func (m *Memory) DeleteMovement(_ context.Context, id fleet.MovementID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.movements, id)
	return nil
}

// =============================================================================
// MASTER DATA
// =============================================================================

func (m *Memory) GetItem(_ context.Context, id fleet.ItemID) (*fleet.StockItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (m *Memory) ListItems(_ context.Context) ([]fleet.StockItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]fleet.StockItem, 0, len(m.items))
	for _, item := range m.items {
		result = append(result, item)
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) PutItem(_ context.Context, item fleet.StockItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = item
	return nil
}

func (m *Memory) GetDriver(_ context.Context, id fleet.DriverID) (*fleet.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.drivers[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (m *Memory) ListDrivers(_ context.Context) ([]fleet.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]fleet.Driver, 0, len(m.drivers))
	for _, d := range m.drivers {
		result = append(result, d)
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) PutDriver(_ context.Context, d fleet.Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[d.ID] = d
	return nil
}

func (m *Memory) GetVehicle(_ context.Context, id fleet.VehicleID) (*fleet.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.vehicles[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (m *Memory) ListVehicles(_ context.Context) ([]fleet.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]fleet.Vehicle, 0, len(m.vehicles))
	for _, v := range m.vehicles {
		result = append(result, v)
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) PutVehicle(_ context.Context, v fleet.Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vehicles[v.ID] = v
	return nil
}

// =============================================================================
// BALANCE SNAPSHOTS
// =============================================================================

func (m *Memory) LatestSnapshotOnOrBefore(_ context.Context, driver fleet.DriverID, at fleet.TimePoint) (*fleet.BalanceSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *fleet.BalanceSnapshot
	for i := range m.snapshots {
		snap := m.snapshots[i]
		if snap.Driver != driver || snap.AsOf.After(at) {
			continue
		}
		if best == nil || best.AsOf.Before(snap.AsOf) {
			best = &snap
		}
	}
	if best == nil {
		return nil, nil
	}
	out := *best
	return &out, nil
}

func (m *Memory) ListSnapshotsByDriver(_ context.Context, driver fleet.DriverID) ([]fleet.BalanceSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []fleet.BalanceSnapshot
	for _, snap := range m.snapshots {
		if snap.Driver == driver {
			result = append(result, snap)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].AsOf.Before(result[j].AsOf) })
	return result, nil
}

func (m *Memory) ReplaceSnapshots(_ context.Context, snaps []fleet.BalanceSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append([]fleet.BalanceSnapshot{}, snaps...)
	return nil
}

// =============================================================================
// PERIOD LOCKS
// =============================================================================

func (m *Memory) GetLock(_ context.Context, id fleet.LockID) (*fleet.PeriodLock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lock, ok := m.locks[id]
	if !ok {
		return nil, nil
	}
	return &lock, nil
}

func (m *Memory) LockForPeriod(_ context.Context, period fleet.YearMonth) (*fleet.PeriodLock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, lock := range m.locks {
		if lock.Period == period {
			lock := lock
			return &lock, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListLocks(_ context.Context) ([]fleet.PeriodLock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]fleet.PeriodLock, 0, len(m.locks))
	for _, lock := range m.locks {
		result = append(result, lock)
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Period.String() < result[j].Period.String() })
	return result, nil
}

func (m *Memory) PutLock(_ context.Context, lock fleet.PeriodLock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks[lock.ID] = lock
	return nil
}

func (m *Memory) DeleteLock(_ context.Context, id fleet.LockID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, id)
	return nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, entry fleet.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, entry)
	return nil
}

// QueryAudit returns entries newest-first, optionally filtered by action.
func (m *Memory) QueryAudit(_ context.Context, actions []fleet.AuditAction, limit int) ([]fleet.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	match := func(a fleet.AuditAction) bool {
		if len(actions) == 0 {
			return true
		}
		for _, want := range actions {
			if a == want {
				return true
			}
		}
		return false
	}

	var result []fleet.AuditEntry
	for i := len(m.audit) - 1; i >= 0; i-- {
		if !match(m.audit[i].Action) {
			continue
		}
		result = append(result, m.audit[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

// =============================================================================
// COPY HELPERS
// =============================================================================

func cloneSegments(segments []fleet.RouteSegment) []fleet.RouteSegment {
	if segments == nil {
		return nil
	}
	return append([]fleet.RouteSegment{}, segments...)
}

func cloneLines(lines []fleet.MovementLine) []fleet.MovementLine {
	if lines == nil {
		return nil
	}
	return append([]fleet.MovementLine{}, lines...)
}
