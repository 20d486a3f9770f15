package fleet_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motorpool/fleet-ledger/fleet"
	"github.com/motorpool/fleet-ledger/fleet/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(y int, m time.Month, d int) fleet.TimePoint { return fleet.NewDay(y, m, d) }

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// newPostingFixture seeds a memory store with one fuel item, one plain
// item and one driver, and wires a posting engine on top of it.
func newPostingFixture(t *testing.T) (*store.Memory, *fleet.PostingEngine) {
	t.Helper()
	mem := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.PutItem(ctx, fleet.StockItem{
		ID: "diesel", Name: "Diesel", Unit: "l", Fuel: true, Balance: dec("100"),
	}))
	require.NoError(t, mem.PutItem(ctx, fleet.StockItem{
		ID: "oil", Name: "Motor oil", Unit: "l", Balance: dec("40"),
	}))
	require.NoError(t, mem.PutDriver(ctx, fleet.Driver{ID: "d1", Name: "P. Orlov"}))

	locks := fleet.NewLockService(mem, quietLog())
	engine := fleet.NewPostingEngine(mem, locks, quietLog())
	engine.AdjustmentItem = "diesel"
	return mem, engine
}

func draftMovement(id string, kind fleet.MovementKind, date fleet.TimePoint, lines ...fleet.MovementLine) fleet.StockMovement {
	return fleet.StockMovement{
		ID:        fleet.MovementID(id),
		Kind:      kind,
		Status:    fleet.MovementDraft,
		Date:      date,
		Lines:     lines,
		UpdatedAt: fleet.Now(),
	}
}

func itemBalance(t *testing.T, s fleet.Store, id fleet.ItemID) decimal.Decimal {
	t.Helper()
	item, err := s.GetItem(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, item)
	return item.Balance
}

func driverBalance(t *testing.T, s fleet.Store, id fleet.DriverID) decimal.Decimal {
	t.Helper()
	drv, err := s.GetDriver(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, drv)
	return drv.FuelCardBalance
}

// =============================================================================
// POST
// =============================================================================

func TestPost_ExpenseDebitsStock(t *testing.T) {
	// GIVEN: 100 l of diesel in stock and a draft expense of 30 l
	// WHEN: Posting the movement
	// THEN: Stock drops to 70 and the movement is posted
	mem, engine := newPostingFixture(t)
	ctx := context.Background()

	m := draftMovement("m1", fleet.MovementExpense, day(2024, time.May, 10),
		fleet.MovementLine{Item: "diesel", Quantity: dec("30")})
	require.NoError(t, mem.PutMovement(ctx, m))

	posted, err := engine.Post(ctx, m.ID)
	require.NoError(t, err)

	assert.Equal(t, fleet.MovementPosted, posted.Status)
	assert.True(t, itemBalance(t, mem, "diesel").Equal(dec("70")),
		"expected 70, got %s", itemBalance(t, mem, "diesel"))

	stored, err := mem.GetMovement(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, fleet.MovementPosted, stored.Status)
}

func TestPost_IncomeCreditsStock(t *testing.T) {
	// GIVEN: A draft income movement of 25 l of diesel
	// WHEN: Posting it
	// THEN: Stock rises from 100 to 125
	mem, engine := newPostingFixture(t)
	ctx := context.Background()

	m := draftMovement("m1", fleet.MovementIncome, day(2024, time.May, 10),
		fleet.MovementLine{Item: "diesel", Quantity: dec("25")})
	require.NoError(t, mem.PutMovement(ctx, m))

	_, err := engine.Post(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, itemBalance(t, mem, "diesel").Equal(dec("125")))
}

func TestPost_LinesOnSameItemAggregate(t *testing.T) {
	// GIVEN: A draft expense with two lines on the same item (10 l + 15 l)
	// WHEN: Posting it
	// THEN: The balance drops by the aggregated 25 l
	mem, engine := newPostingFixture(t)
	ctx := context.Background()

	m := draftMovement("m1", fleet.MovementExpense, day(2024, time.May, 10),
		fleet.MovementLine{Item: "diesel", Quantity: dec("10")},
		fleet.MovementLine{Item: "diesel", Quantity: dec("15")})
	require.NoError(t, mem.PutMovement(ctx, m))

	_, err := engine.Post(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, itemBalance(t, mem, "diesel").Equal(dec("75")))
}

func TestPost_InsufficientStock_NothingWritten(t *testing.T) {
	// GIVEN: 100 l of diesel and a draft expense asking for 200 l
	// WHEN: Posting it
	// THEN: The post is rejected before any write; stock and status are untouched
	mem, engine := newPostingFixture(t)
	ctx := context.Background()

	m := draftMovement("m1", fleet.MovementExpense, day(2024, time.May, 10),
		fleet.MovementLine{Item: "diesel", Quantity: dec("200")})
	require.NoError(t, mem.PutMovement(ctx, m))

	_, err := engine.Post(ctx, m.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, fleet.ErrInsufficientStock))

	var stockErr *fleet.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, fleet.ItemID("diesel"), stockErr.Item)
	assert.True(t, stockErr.Available.Equal(dec("100")))
	assert.True(t, stockErr.Requested.Equal(dec("200")))

	assert.True(t, itemBalance(t, mem, "diesel").Equal(dec("100")))
	stored, err := mem.GetMovement(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, fleet.MovementDraft, stored.Status)
}

func TestPost_TopUpMayDriveStockNegative(t *testing.T) {
	// GIVEN: 100 l of diesel and a fuel-card top-up of 150 l
	// WHEN: Posting it
	// THEN: Stock goes to -50 (advance provisioning) and the card is credited 150
	mem, engine := newPostingFixture(t)
	ctx := context.Background()

	m := draftMovement("m1", fleet.MovementExpense, day(2024, time.May, 10),
		fleet.MovementLine{Item: "diesel", Quantity: dec("150")})
	m.Driver = "d1"
	m.Reason = fleet.ReasonFuelCardTopUp
	require.NoError(t, mem.PutMovement(ctx, m))

	_, err := engine.Post(ctx, m.ID)
	require.NoError(t, err)

	assert.True(t, itemBalance(t, mem, "diesel").Equal(dec("-50")))
	assert.True(t, driverBalance(t, mem, "d1").Equal(dec("150")))
}

func TestPost_TopUpCreditsOnlyFuelLines(t *testing.T) {
	// GIVEN: A top-up carrying a fuel line (60 l diesel) and a non-fuel line (5 l oil)
	// WHEN: Posting it
	// THEN: Both items are debited but the card is credited the fuel quantity only
	mem, engine := newPostingFixture(t)
	ctx := context.Background()

	m := draftMovement("m1", fleet.MovementExpense, day(2024, time.May, 10),
		fleet.MovementLine{Item: "diesel", Quantity: dec("60")},
		fleet.MovementLine{Item: "oil", Quantity: dec("5")})
	m.Driver = "d1"
	m.Reason = fleet.ReasonFuelCardTopUp
	require.NoError(t, mem.PutMovement(ctx, m))

	_, err := engine.Post(ctx, m.ID)
	require.NoError(t, err)

	assert.True(t, itemBalance(t, mem, "diesel").Equal(dec("40")))
	assert.True(t, itemBalance(t, mem, "oil").Equal(dec("35")))
	assert.True(t, driverBalance(t, mem, "d1").Equal(dec("60")))
}

func TestPost_AlreadyPosted_Rejected(t *testing.T) {
	// GIVEN: A movement that has already been posted
	// WHEN: Posting it a second time
	// THEN: The call fails with an invalid-status error and balances do not move twice
	mem, engine := newPostingFixture(t)
	ctx := context.Background()

	m := draftMovement("m1", fleet.MovementExpense, day(2024, time.May, 10),
		fleet.MovementLine{Item: "diesel", Quantity: dec("30")})
	require.NoError(t, mem.PutMovement(ctx, m))

	_, err := engine.Post(ctx, m.ID)
	require.NoError(t, err)

	_, err = engine.Post(ctx, m.ID)
	assert.True(t, errors.Is(err, fleet.ErrInvalidStatus))
	assert.True(t, itemBalance(t, mem, "diesel").Equal(dec("70")))
}

func TestPost_SealedPeriod_Gated(t *testing.T) {
	// GIVEN: May 2024 is sealed (one posted movement in it)
	// WHEN: Posting another draft dated in May
	// THEN: The gate rejects it before any validation or write
	mem, engine := newPostingFixture(t)
	ctx := context.Background()

	anchor := draftMovement("m1", fleet.MovementExpense, day(2024, time.May, 5),
		fleet.MovementLine{Item: "diesel", Quantity: dec("10")})
	require.NoError(t, mem.PutMovement(ctx, anchor))
	_, err := engine.Post(ctx, anchor.ID)
	require.NoError(t, err)

	period, err := fleet.ParseYearMonth("2024-05")
	require.NoError(t, err)
	_, err = engine.Locks.Lock(ctx, period, "tester", "")
	require.NoError(t, err)

	late := draftMovement("m2", fleet.MovementExpense, day(2024, time.May, 20),
		fleet.MovementLine{Item: "diesel", Quantity: dec("10")})
	require.NoError(t, mem.PutMovement(ctx, late))

	_, err = engine.Post(ctx, late.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, fleet.ErrPeriodLocked))
	assert.True(t, itemBalance(t, mem, "diesel").Equal(dec("90")))
}

// =============================================================================
// UNPOST
// =============================================================================

func TestUnpost_RestoresBalancesExactly(t *testing.T) {
	// GIVEN: A posted expense of 30 l
	// WHEN: Unposting it
	// THEN: Stock returns to the pre-post value and the movement is a draft again
	mem, engine := newPostingFixture(t)
	ctx := context.Background()

	m := draftMovement("m1", fleet.MovementExpense, day(2024, time.May, 10),
		fleet.MovementLine{Item: "diesel", Quantity: dec("30")})
	require.NoError(t, mem.PutMovement(ctx, m))
	_, err := engine.Post(ctx, m.ID)
	require.NoError(t, err)

	reverted, err := engine.Unpost(ctx, m.ID)
	require.NoError(t, err)

	assert.Equal(t, fleet.MovementDraft, reverted.Status)
	assert.True(t, itemBalance(t, mem, "diesel").Equal(dec("100")))
}

func TestUnpost_TopUpRoundTrip(t *testing.T) {
	// GIVEN: A posted 50 l top-up (card 50, stock 50)
	// WHEN: Unposting it while the card still holds the full amount
	// THEN: Card and stock both return to their pre-post values
	mem, engine := newPostingFixture(t)
	ctx := context.Background()

	m := draftMovement("m1", fleet.MovementExpense, day(2024, time.May, 10),
		fleet.MovementLine{Item: "diesel", Quantity: dec("50")})
	m.Driver = "d1"
	m.Reason = fleet.ReasonFuelCardTopUp
	require.NoError(t, mem.PutMovement(ctx, m))
	_, err := engine.Post(ctx, m.ID)
	require.NoError(t, err)

	_, err = engine.Unpost(ctx, m.ID)
	require.NoError(t, err)

	assert.True(t, itemBalance(t, mem, "diesel").Equal(dec("100")))
	assert.True(t, driverBalance(t, mem, "d1").Equal(dec("0")))
}

func TestUnpost_ConsumedTopUp_Rejected(t *testing.T) {
	// GIVEN: A posted 100 l top-up of which 60 l has since been consumed
	//        (card balance down to 40)
	// WHEN: Unposting the top-up
	// THEN: The reversal is refused and no balance or status changes
	mem, engine := newPostingFixture(t)
	ctx := context.Background()

	m := draftMovement("m1", fleet.MovementExpense, day(2024, time.May, 10),
		fleet.MovementLine{Item: "diesel", Quantity: dec("100")})
	m.Driver = "d1"
	m.Reason = fleet.ReasonFuelCardTopUp
	require.NoError(t, mem.PutMovement(ctx, m))
	_, err := engine.Post(ctx, m.ID)
	require.NoError(t, err)

	drv, err := mem.GetDriver(ctx, "d1")
	require.NoError(t, err)
	drv.FuelCardBalance = dec("40")
	require.NoError(t, mem.PutDriver(ctx, *drv))

	_, err = engine.Unpost(ctx, m.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, fleet.ErrFuelAlreadyConsumed))

	assert.True(t, itemBalance(t, mem, "diesel").Equal(dec("0")))
	assert.True(t, driverBalance(t, mem, "d1").Equal(dec("40")))
	stored, err := mem.GetMovement(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, fleet.MovementPosted, stored.Status)
}

func TestUnpost_Draft_Rejected(t *testing.T) {
	// GIVEN: A movement still in draft
	// WHEN: Unposting it
	// THEN: The call fails with an invalid-status error
	mem, engine := newPostingFixture(t)
	ctx := context.Background()

	m := draftMovement("m1", fleet.MovementExpense, day(2024, time.May, 10),
		fleet.MovementLine{Item: "diesel", Quantity: dec("30")})
	require.NoError(t, mem.PutMovement(ctx, m))

	_, err := engine.Unpost(ctx, m.ID)
	assert.True(t, errors.Is(err, fleet.ErrInvalidStatus))
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

func TestCreateAdjustment_NegativeDelta_PostsExpense(t *testing.T) {
	// GIVEN: A driver whose computed balance must drop by 25
	// WHEN: Creating a -25 adjustment
	// THEN: A posted single-line expense exists and warehouse stock is untouched
	mem, engine := newPostingFixture(t)
	ctx := context.Background()

	posted, err := engine.CreateAdjustment(ctx, "d1", dec("-25"), "reconciliation", "tester")
	require.NoError(t, err)

	assert.Equal(t, fleet.MovementExpense, posted.Kind)
	assert.Equal(t, fleet.MovementPosted, posted.Status)
	assert.Equal(t, fleet.ReasonInventoryAdjustment, posted.Reason)
	require.Len(t, posted.Lines, 1)
	assert.True(t, posted.Lines[0].Quantity.Equal(dec("25")), "line carries the absolute delta")

	// Adjustments never touch warehouse stock.
	assert.True(t, itemBalance(t, mem, "diesel").Equal(dec("100")))
}

func TestCreateAdjustment_PositiveDelta_PostsIncome(t *testing.T) {
	// GIVEN: A driver whose computed balance must rise by 10
	// WHEN: Creating a +10 adjustment
	// THEN: The movement is an income and stock is still untouched
	mem, engine := newPostingFixture(t)
	ctx := context.Background()

	posted, err := engine.CreateAdjustment(ctx, "d1", dec("10"), "", "tester")
	require.NoError(t, err)

	assert.Equal(t, fleet.MovementIncome, posted.Kind)
	assert.True(t, itemBalance(t, mem, "diesel").Equal(dec("100")))
}

func TestCreateAdjustment_RefreshesCachedBalance(t *testing.T) {
	// GIVEN: A driver whose cached card balance reads 40
	// WHEN: Creating a -25 adjustment
	// THEN: The cached balance tracks the posted delta
	mem, engine := newPostingFixture(t)
	ctx := context.Background()
	require.NoError(t, mem.PutDriver(ctx, fleet.Driver{ID: "d1", Name: "P. Orlov", FuelCardBalance: dec("40")}))

	_, err := engine.CreateAdjustment(ctx, "d1", dec("-25"), "", "tester")
	require.NoError(t, err)

	assert.True(t, driverBalance(t, mem, "d1").Equal(dec("15")))
}

func TestCreateAdjustment_UnknownDriver(t *testing.T) {
	// GIVEN: No driver under the given ID
	// WHEN: Creating an adjustment for them
	// THEN: The call fails before any movement is written
	mem, engine := newPostingFixture(t)
	ctx := context.Background()

	_, err := engine.CreateAdjustment(ctx, "ghost", dec("-25"), "", "tester")
	require.Error(t, err)
	assert.True(t, errors.Is(err, fleet.ErrNotFound))

	movements, err := mem.ListMovementsByDriver(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, movements)
}

func TestUnpost_Adjustment_SkipsStock(t *testing.T) {
	// GIVEN: A posted adjustment
	// WHEN: Unposting it
	// THEN: It returns to draft without warehouse stock moving either way
	mem, engine := newPostingFixture(t)
	ctx := context.Background()

	posted, err := engine.CreateAdjustment(ctx, "d1", dec("-25"), "", "tester")
	require.NoError(t, err)

	reverted, err := engine.Unpost(ctx, posted.ID)
	require.NoError(t, err)

	assert.Equal(t, fleet.MovementDraft, reverted.Status)
	assert.True(t, itemBalance(t, mem, "diesel").Equal(dec("100")))
}

// =============================================================================
// DRAFT CRUD GUARDS
// =============================================================================

func TestSaveMovement_PostedIsImmutable(t *testing.T) {
	// GIVEN: A posted movement
	// WHEN: Saving an edited copy under the same ID
	// THEN: The edit is refused
	mem, engine := newPostingFixture(t)
	ctx := context.Background()

	m := draftMovement("m1", fleet.MovementExpense, day(2024, time.May, 10),
		fleet.MovementLine{Item: "diesel", Quantity: dec("30")})
	require.NoError(t, mem.PutMovement(ctx, m))
	_, err := engine.Post(ctx, m.ID)
	require.NoError(t, err)

	m.Note = "edited after the fact"
	err = engine.SaveMovement(ctx, m)
	assert.True(t, errors.Is(err, fleet.ErrInvalidStatus))
}

func TestSaveMovement_GatesBothDates(t *testing.T) {
	// GIVEN: A draft dated in a sealed month
	// WHEN: Saving it with the date moved to an open month
	// THEN: The save is refused; the original date's seal still applies
	mem, engine := newPostingFixture(t)
	ctx := context.Background()

	anchor := draftMovement("m1", fleet.MovementExpense, day(2024, time.May, 5),
		fleet.MovementLine{Item: "diesel", Quantity: dec("10")})
	require.NoError(t, mem.PutMovement(ctx, anchor))
	_, err := engine.Post(ctx, anchor.ID)
	require.NoError(t, err)

	stuck := draftMovement("m2", fleet.MovementExpense, day(2024, time.May, 20),
		fleet.MovementLine{Item: "diesel", Quantity: dec("5")})
	require.NoError(t, mem.PutMovement(ctx, stuck))

	period, err := fleet.ParseYearMonth("2024-05")
	require.NoError(t, err)
	_, err = engine.Locks.Lock(ctx, period, "tester", "")
	require.NoError(t, err)

	stuck.Date = day(2024, time.June, 1)
	err = engine.SaveMovement(ctx, stuck)
	assert.True(t, errors.Is(err, fleet.ErrPeriodLocked))
}

func TestSaveMovement_ForcesDraftStatus(t *testing.T) {
	// GIVEN: A new movement claiming posted status on arrival
	// WHEN: Saving it
	// THEN: It is stored as a draft; posting only happens through Post
	mem, engine := newPostingFixture(t)
	ctx := context.Background()

	m := draftMovement("m1", fleet.MovementExpense, day(2024, time.May, 10),
		fleet.MovementLine{Item: "diesel", Quantity: dec("30")})
	m.Status = fleet.MovementPosted
	require.NoError(t, engine.SaveMovement(ctx, m))

	stored, err := mem.GetMovement(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, fleet.MovementDraft, stored.Status)
	assert.True(t, itemBalance(t, mem, "diesel").Equal(dec("100")))
}

func TestRemoveDraft_PostedIsRefused(t *testing.T) {
	// GIVEN: A posted movement
	// WHEN: Deleting it directly
	// THEN: The delete is refused until it is unposted
	mem, engine := newPostingFixture(t)
	ctx := context.Background()

	m := draftMovement("m1", fleet.MovementExpense, day(2024, time.May, 10),
		fleet.MovementLine{Item: "diesel", Quantity: dec("30")})
	require.NoError(t, mem.PutMovement(ctx, m))
	_, err := engine.Post(ctx, m.ID)
	require.NoError(t, err)

	err = engine.RemoveDraft(ctx, m.ID)
	assert.True(t, errors.Is(err, fleet.ErrInvalidStatus))

	stored, err := mem.GetMovement(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
}

func TestRemoveDraft_DeletesDraft(t *testing.T) {
	// GIVEN: A draft movement
	// WHEN: Deleting it
	// THEN: It is gone
	mem, engine := newPostingFixture(t)
	ctx := context.Background()

	m := draftMovement("m1", fleet.MovementExpense, day(2024, time.May, 10),
		fleet.MovementLine{Item: "diesel", Quantity: dec("30")})
	require.NoError(t, mem.PutMovement(ctx, m))

	require.NoError(t, engine.RemoveDraft(ctx, m.ID))

	stored, err := mem.GetMovement(ctx, m.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)
}
