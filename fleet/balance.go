/*
balance.go - Driver fuel-card balance: snapshots + replay

PURPOSE:
  A driver's fuel-card balance is never stored authoritatively. It is
  reconstructed from the movement/trip history: top-ups credit the card,
  posted trip documents debit their filled fuel, adjustment movements
  apply their signed quantity. Snapshots are month-end checkpoints that
  keep point-in-time queries cheap: find the latest snapshot on or before
  the target, then replay only the events after it.

SNAPSHOT GENERATION:
  Regeneration discards all existing snapshots and walks each driver's
  relevant records in date order exactly once, emitting one snapshot per
  distinct calendar-month-end boundary between the earliest relevant date
  and the present. A single O(n) forward pass per driver, not a
  per-snapshot recomputation.

TARGET DATES:
  Day-only targets compare by calendar day (a movement any time on the
  target day qualifies); instant targets compare by instant. See
  TimePoint in time.go.

SEE ALSO:
  - posting.go: CreateAdjustment, used by balance resets
  - snapshot semantics echoed by the period close flow in lock.go
*/
package fleet

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// resetEpsilon is the drift below which a reset skips emitting a
// correction movement and only zeroes the cached field.
var resetEpsilon = decimal.RequireFromString("0.005")

// BalanceService answers point-in-time fuel-card balance queries and
// maintains the snapshot set.
type BalanceService struct {
	Store   Store
	Posting *PostingEngine
	Log     *logrus.Logger
	Notify  Notifier
}

func NewBalanceService(store Store, posting *PostingEngine, log *logrus.Logger) *BalanceService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &BalanceService{Store: store, Posting: posting, Log: log}
}

// =============================================================================
// POINT-IN-TIME QUERY
// =============================================================================

// BalanceAsOf computes the driver's fuel-card balance at the target time:
// the latest snapshot on or before the target (zero if none), plus every
// qualifying event strictly after the snapshot and up to and including
// the target.
func (s *BalanceService) BalanceAsOf(ctx context.Context, driver DriverID, at TimePoint) (decimal.Decimal, error) {
	snap, err := s.Store.LatestSnapshotOnOrBefore(ctx, driver, at)
	if err != nil {
		return decimal.Zero, err
	}

	balance := decimal.Zero
	var snapAt TimePoint
	if snap != nil {
		balance = snap.Balance
		snapAt = snap.AsOf
	}

	events, err := s.cardEvents(ctx, driver)
	if err != nil {
		return decimal.Zero, err
	}
	for _, ev := range events {
		if snap != nil && !ev.at.After(snapAt) {
			continue // already inside the snapshot
		}
		if ev.at.After(at) {
			continue
		}
		balance = balance.Add(ev.delta)
	}
	return balance, nil
}

// =============================================================================
// SNAPSHOT GENERATION
// =============================================================================

// RegenerateSnapshots rebuilds the entire snapshot set: one forward pass
// per driver, one snapshot per month-end boundary from the driver's
// earliest relevant record to the present.
func (s *BalanceService) RegenerateSnapshots(ctx context.Context) error {
	drivers, err := s.Store.ListDrivers(ctx)
	if err != nil {
		return err
	}

	today := Today()
	var snaps []BalanceSnapshot
	for _, drv := range drivers {
		events, err := s.cardEvents(ctx, drv.ID)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			continue
		}

		running := decimal.Zero
		idx := 0
		for boundary := events[0].at.MonthEnd(); !boundary.After(today); boundary = boundary.AddDays(1).MonthEnd() {
			for idx < len(events) && !events[idx].at.After(boundary) {
				running = running.Add(events[idx].delta)
				idx++
			}
			snaps = append(snaps, BalanceSnapshot{
				ID:      SnapshotID(uuid.NewString()),
				Driver:  drv.ID,
				AsOf:    boundary,
				Balance: running,
			})
		}
	}

	if err := s.Store.ReplaceSnapshots(ctx, snaps); err != nil {
		return err
	}
	if s.Notify != nil {
		s.Notify.CollectionChanged(CollectionSnapshots)
	}
	return nil
}

// =============================================================================
// RESET TO ZERO
// =============================================================================

// ResetToZero forces a driver's balance to zero: it emits a correction
// movement for the negated computed balance (when the magnitude exceeds
// the epsilon), then sets the cached balance field to exactly zero
// regardless of rounding drift, and records an audit event carrying the
// previous balance.
func (s *BalanceService) ResetToZero(ctx context.Context, driver DriverID, actor string) error {
	drv, err := s.Store.GetDriver(ctx, driver)
	if err != nil {
		return err
	}
	if drv == nil {
		return &NotFoundError{Collection: CollectionDrivers, ID: string(driver)}
	}

	current, err := s.BalanceAsOf(ctx, driver, Now())
	if err != nil {
		return err
	}
	if current.Abs().GreaterThan(resetEpsilon) {
		if _, err := s.Posting.CreateAdjustment(ctx, driver, current.Neg(), "fuel card balance reset", actor); err != nil {
			return err
		}
	}

	previousCached := drv.FuelCardBalance
	drv.FuelCardBalance = decimal.Zero
	if err := s.Store.PutDriver(ctx, *drv); err != nil {
		return err
	}

	entry := AuditEntry{
		ID:     uuid.NewString(),
		At:     Now(),
		Actor:  actor,
		Action: AuditBalanceReset,
		Driver: driver,
		Payload: map[string]any{
			"previousComputed": current.String(),
			"previousCached":   previousCached.String(),
		},
	}
	if err := s.Store.AppendAudit(ctx, entry); err != nil {
		s.Log.WithError(err).Warn("audit append failed")
	}
	if s.Notify != nil {
		s.Notify.CollectionChanged(CollectionDrivers)
	}
	return nil
}

// =============================================================================
// EVENT REPLAY
// =============================================================================

type cardEvent struct {
	at    TimePoint
	id    string
	delta decimal.Decimal
}

// cardEvents collects a driver's fuel-card-relevant history in date
// order: posted top-ups credit, posted adjustments apply their signed
// quantity, posted trip documents debit their filled fuel.
func (s *BalanceService) cardEvents(ctx context.Context, driver DriverID) ([]cardEvent, error) {
	items, err := s.fuelItems(ctx)
	if err != nil {
		return nil, err
	}

	movements, err := s.Store.ListMovementsByDriver(ctx, driver)
	if err != nil {
		return nil, err
	}

	var events []cardEvent
	for _, m := range movements {
		if m.Status != MovementPosted {
			continue
		}
		switch m.Reason {
		case ReasonFuelCardTopUp:
			qty := m.FuelQuantity(func(id ItemID) bool { return items[id] })
			events = append(events, cardEvent{at: m.Date, id: string(m.ID), delta: qty})
		case ReasonInventoryAdjustment:
			var qty decimal.Decimal
			for _, line := range m.Lines {
				qty = qty.Add(line.Quantity)
			}
			if m.Kind == MovementExpense {
				qty = qty.Neg()
			}
			events = append(events, cardEvent{at: m.Date, id: string(m.ID), delta: qty})
		}
	}

	trips, err := s.Store.ListTripsByDriver(ctx, driver)
	if err != nil {
		return nil, err
	}
	for _, doc := range trips {
		if doc.Status != TripPosted {
			continue
		}
		events = append(events, cardEvent{at: doc.Date, id: string(doc.ID), delta: doc.FuelFilled.Neg()})
	}

	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].at.Equal(events[j].at) {
			return events[i].at.Before(events[j].at)
		}
		return events[i].id < events[j].id
	})
	return events, nil
}

// fuelItems returns the IDs of fuel-flagged stock items.
func (s *BalanceService) fuelItems(ctx context.Context) (map[ItemID]bool, error) {
	items, err := s.Store.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	flagged := make(map[ItemID]bool, len(items))
	for _, item := range items {
		if item.Fuel {
			flagged[item.ID] = true
		}
	}
	return flagged, nil
}
