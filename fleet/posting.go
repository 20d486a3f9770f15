/*
posting.go - Stock & fuel-card posting engine

PURPOSE:
  Implements the movement state machine:

      Draft --post--> Posted --unpost--> Draft
      Draft --delete--> (removed)

  Posted movements are never deleted or edited directly. Because the store
  has no multi-collection transactions, every post/unpost is a saga: one
  step per stock item whose balance changes, one step for the driver's
  fuel-card balance when the movement is a top-up, and a final step
  flipping the movement's status. Each step's compensation restores the
  pre-image captured before the saga ran.

SPECIAL REASONS:
  - fuel_card_topup: an expense movement allowed to drive item balances
    negative (advance provisioning); posting credits the driver's card.
  - inventory_adjustment: used internally by balance resets; stock item
    balances are never touched, only the movement status changes. The
    movement still participates in balance replay.

ORDERING:
  Saga steps run strictly sequentially - the final status flip must not
  land unless every balance write committed.

SEE ALSO:
  - saga: The step executor
  - lock.go: The period gate consulted before any side effect
  - balance.go: CreateAdjustment's caller for balance resets
*/
package fleet

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/motorpool/fleet-ledger/saga"
)

// PostingEngine posts and unposts stock movements.
type PostingEngine struct {
	Store Store
	Locks *LockService
	Log   *logrus.Logger

	// Notify receives advisory collection-change hints. May be nil.
	Notify Notifier

	// AdjustmentItem is the stock item referenced by correction movement
	// lines. The item's balance is never touched (inventory_adjustment
	// semantics); the reference keeps adjustment lines shaped like every
	// other line.
	AdjustmentItem ItemID
}

func NewPostingEngine(store Store, locks *LockService, log *logrus.Logger) *PostingEngine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &PostingEngine{Store: store, Locks: locks, Log: log}
}

// =============================================================================
// POST
// =============================================================================

// Post transitions a draft movement to posted, applying all balance
// effects atomically (all-or-nothing via compensations).
func (e *PostingEngine) Post(ctx context.Context, id MovementID) (*StockMovement, error) {
	m, err := e.Store.GetMovement(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, &NotFoundError{Collection: CollectionMovements, ID: string(id)}
	}

	// The gate runs before any other validation.
	if err := e.Locks.Gate(ctx, m.Date); err != nil {
		return nil, err
	}
	if m.Status != MovementDraft {
		return nil, fmt.Errorf("post movement %s: %w (status %s)", m.ID, ErrInvalidStatus, m.Status)
	}

	items, err := e.loadItems(ctx, *m)
	if err != nil {
		return nil, err
	}

	// Expense lines must be covered by current stock, unless the movement
	// is a fuel-card top-up (advance provisioning may go negative).
	if m.Kind == MovementExpense && m.Reason != ReasonFuelCardTopUp && m.Reason != ReasonInventoryAdjustment {
		for _, line := range m.Lines {
			item := items[line.Item]
			if item.Balance.LessThan(line.Quantity) {
				return nil, &InsufficientStockError{
					Item:      line.Item,
					Available: item.Balance,
					Requested: line.Quantity,
				}
			}
		}
	}

	sg := saga.New(e.Log)
	e.addItemSteps(sg, *m, items, false)
	if m.Reason == ReasonFuelCardTopUp && m.Driver != "" {
		if err := e.addDriverStep(ctx, sg, *m, items, false); err != nil {
			return nil, err
		}
	}
	posted := e.addStatusStep(sg, *m, MovementPosted)

	if err := sg.Execute(ctx); err != nil {
		return nil, err
	}

	e.audit(ctx, AuditEntry{
		Action:   AuditMovementPosted,
		Movement: m.ID,
		Driver:   m.Driver,
		Payload:  map[string]any{"kind": string(m.Kind), "reason": string(m.Reason)},
	})
	e.changed(CollectionMovements, CollectionItems, CollectionDrivers)
	return posted, nil
}

// =============================================================================
// UNPOST
// =============================================================================

// Unpost mirrors Post in reverse, returning the movement to draft.
//
// Reversing a fuel-card top-up is refused when the driver's current
// balance would go negative, meaning the topped-up fuel was already
// consumed. Only the current balance is checked; whether intervening
// top-ups and expenses make the reversal semantically sound is not
// examined: the balance check is the only guard.
func (e *PostingEngine) Unpost(ctx context.Context, id MovementID) (*StockMovement, error) {
	m, err := e.Store.GetMovement(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, &NotFoundError{Collection: CollectionMovements, ID: string(id)}
	}

	if err := e.Locks.Gate(ctx, m.Date); err != nil {
		return nil, err
	}
	if m.Status != MovementPosted {
		return nil, fmt.Errorf("unpost movement %s: %w (status %s)", m.ID, ErrInvalidStatus, m.Status)
	}

	items, err := e.loadItems(ctx, *m)
	if err != nil {
		return nil, err
	}

	sg := saga.New(e.Log)
	if m.Reason == ReasonFuelCardTopUp && m.Driver != "" {
		// Validate before registering any step: no side effect may start
		// if the reversal is rejected.
		drv, err := e.driver(ctx, m.Driver)
		if err != nil {
			return nil, err
		}
		fuelQty := m.FuelQuantity(func(id ItemID) bool { return items[id] != nil && items[id].Fuel })
		if drv.FuelCardBalance.Sub(fuelQty).IsNegative() {
			return nil, fmt.Errorf("unpost movement %s: %w (balance %s, reversal %s)",
				m.ID, ErrFuelAlreadyConsumed, drv.FuelCardBalance, fuelQty)
		}
		if err := e.addDriverStep(ctx, sg, *m, items, true); err != nil {
			return nil, err
		}
	}
	e.addItemSteps(sg, *m, items, true)
	reverted := e.addStatusStep(sg, *m, MovementDraft)

	if err := sg.Execute(ctx); err != nil {
		return nil, err
	}

	e.audit(ctx, AuditEntry{
		Action:   AuditMovementUnposted,
		Movement: m.ID,
		Driver:   m.Driver,
		Payload:  map[string]any{"kind": string(m.Kind), "reason": string(m.Reason)},
	})
	e.changed(CollectionMovements, CollectionItems, CollectionDrivers)
	return reverted, nil
}

// =============================================================================
// CORRECTION TRANSACTION
// =============================================================================

// CreateAdjustment creates and immediately posts a single-line adjustment
// movement carrying the given signed delta for the driver's computed
// balance. It reuses the normal post path rather than mutating balances
// directly, so the adjustment is auditable and reversible like any other
// movement. The driver's cached balance is refreshed by the delta so the
// denormalized projection tracks the posted history.
func (e *PostingEngine) CreateAdjustment(ctx context.Context, driver DriverID, delta decimal.Decimal, note string, actor string) (*StockMovement, error) {
	drv, err := e.driver(ctx, driver)
	if err != nil {
		return nil, err
	}

	kind := MovementIncome
	if delta.IsNegative() {
		kind = MovementExpense
	}

	m := StockMovement{
		ID:     MovementID(uuid.NewString()),
		Kind:   kind,
		Status: MovementDraft,
		Date:   Today(),
		Driver: driver,
		Reason: ReasonInventoryAdjustment,
		Note:   note,
		Lines: []MovementLine{
			{Item: e.AdjustmentItem, Quantity: delta.Abs()},
		},
		UpdatedAt: Now(),
	}

	if err := e.Locks.Gate(ctx, m.Date); err != nil {
		return nil, err
	}
	if err := e.Store.PutMovement(ctx, m); err != nil {
		return nil, err
	}

	posted, err := e.Post(ctx, m.ID)
	if err != nil {
		return nil, err
	}

	drv.FuelCardBalance = drv.FuelCardBalance.Add(delta)
	if err := e.Store.PutDriver(ctx, *drv); err != nil {
		return nil, err
	}
	e.changed(CollectionDrivers)

	e.audit(ctx, AuditEntry{
		Action:   AuditAdjustmentCreated,
		Actor:    actor,
		Movement: m.ID,
		Driver:   driver,
		Payload:  map[string]any{"delta": delta.String(), "note": note},
	})
	return posted, nil
}

// =============================================================================
// DRAFT CRUD GUARDS
// =============================================================================

// SaveMovement creates or updates a draft movement. Posted movements are
// immutable except through Unpost.
func (e *PostingEngine) SaveMovement(ctx context.Context, m StockMovement) error {
	if err := e.Locks.Gate(ctx, m.Date); err != nil {
		return err
	}
	existing, err := e.Store.GetMovement(ctx, m.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.Status == MovementPosted {
			return fmt.Errorf("edit movement %s: %w (posted)", m.ID, ErrInvalidStatus)
		}
		// Transferring a movement to another date is gated on both ends.
		if err := e.Locks.Gate(ctx, existing.Date); err != nil {
			return err
		}
	}
	m.Status = MovementDraft
	m.UpdatedAt = Now()
	if err := e.Store.PutMovement(ctx, m); err != nil {
		return err
	}
	e.changed(CollectionMovements)
	return nil
}

// RemoveDraft deletes a draft movement. Posted movements may never be
// deleted.
func (e *PostingEngine) RemoveDraft(ctx context.Context, id MovementID) error {
	m, err := e.Store.GetMovement(ctx, id)
	if err != nil {
		return err
	}
	if m == nil {
		return &NotFoundError{Collection: CollectionMovements, ID: string(id)}
	}
	if err := e.Locks.Gate(ctx, m.Date); err != nil {
		return err
	}
	if m.Status != MovementDraft {
		return fmt.Errorf("delete movement %s: %w (posted movements must be unposted first)", m.ID, ErrInvalidStatus)
	}
	if err := e.Store.DeleteMovement(ctx, id); err != nil {
		return err
	}
	e.changed(CollectionMovements)
	return nil
}

// =============================================================================
// SAGA STEP BUILDERS
// =============================================================================

// addItemSteps registers one step per stock item whose balance changes.
// Lines are aggregated per item so a movement with two lines on the same
// item still produces a single step. Inventory adjustments never touch
// stock.
func (e *PostingEngine) addItemSteps(sg *saga.Saga, m StockMovement, items map[ItemID]*StockItem, reverse bool) {
	if m.Reason == ReasonInventoryAdjustment {
		return
	}

	var order []ItemID
	deltas := make(map[ItemID]decimal.Decimal)
	for _, line := range m.Lines {
		if _, seen := deltas[line.Item]; !seen {
			order = append(order, line.Item)
		}
		qty := line.Quantity
		if (m.Kind == MovementExpense) != reverse {
			qty = qty.Neg()
		}
		deltas[line.Item] = deltas[line.Item].Add(qty)
	}

	for _, id := range order {
		item := items[id]
		pre := *item
		next := *item
		next.Balance = item.Balance.Add(deltas[id])

		sg.Add("item:"+string(id),
			func(ctx context.Context) error { return e.Store.PutItem(ctx, next) },
			func(ctx context.Context) error { return e.Store.PutItem(ctx, pre) },
		)
	}
}

// addDriverStep registers the fuel-card balance step for top-up movements.
func (e *PostingEngine) addDriverStep(ctx context.Context, sg *saga.Saga, m StockMovement, items map[ItemID]*StockItem, reverse bool) error {
	drv, err := e.driver(ctx, m.Driver)
	if err != nil {
		return err
	}
	fuelQty := m.FuelQuantity(func(id ItemID) bool { return items[id] != nil && items[id].Fuel })
	if reverse {
		fuelQty = fuelQty.Neg()
	}

	pre := *drv
	next := *drv
	next.FuelCardBalance = drv.FuelCardBalance.Add(fuelQty)

	sg.Add("driver:"+string(m.Driver),
		func(ctx context.Context) error { return e.Store.PutDriver(ctx, next) },
		func(ctx context.Context) error { return e.Store.PutDriver(ctx, pre) },
	)
	return nil
}

// addStatusStep registers the final status flip and returns the record the
// movement becomes when the saga succeeds.
func (e *PostingEngine) addStatusStep(sg *saga.Saga, m StockMovement, status MovementStatus) *StockMovement {
	pre := m
	next := m
	next.Status = status
	next.UpdatedAt = Now()

	sg.Add("status:"+string(m.ID),
		func(ctx context.Context) error { return e.Store.PutMovement(ctx, next) },
		func(ctx context.Context) error { return e.Store.PutMovement(ctx, pre) },
	)
	return &next
}

// =============================================================================
// HELPERS
// =============================================================================

// loadItems resolves every line's stock item. Inventory adjustments skip
// resolution entirely - their line reference is nominal.
func (e *PostingEngine) loadItems(ctx context.Context, m StockMovement) (map[ItemID]*StockItem, error) {
	items := make(map[ItemID]*StockItem)
	if m.Reason == ReasonInventoryAdjustment {
		return items, nil
	}
	for _, line := range m.Lines {
		if _, ok := items[line.Item]; ok {
			continue
		}
		item, err := e.Store.GetItem(ctx, line.Item)
		if err != nil {
			return nil, err
		}
		if item == nil {
			return nil, &NotFoundError{Collection: CollectionItems, ID: string(line.Item)}
		}
		items[line.Item] = item
	}
	return items, nil
}

func (e *PostingEngine) driver(ctx context.Context, id DriverID) (*Driver, error) {
	drv, err := e.Store.GetDriver(ctx, id)
	if err != nil {
		return nil, err
	}
	if drv == nil {
		return nil, &NotFoundError{Collection: CollectionDrivers, ID: string(id)}
	}
	return drv, nil
}

// audit appends fire-and-forget; a failed append is logged, never fatal.
func (e *PostingEngine) audit(ctx context.Context, entry AuditEntry) {
	entry.ID = uuid.NewString()
	entry.At = Now()
	if err := e.Store.AppendAudit(ctx, entry); err != nil {
		e.Log.WithError(err).WithField("action", entry.Action).Warn("audit append failed")
	}
}

func (e *PostingEngine) changed(collections ...string) {
	if e.Notify == nil {
		return
	}
	for _, c := range collections {
		e.Notify.CollectionChanged(c)
	}
}
