package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motorpool/fleet-ledger/api"
	"github.com/motorpool/fleet-ledger/fleet"
	"github.com/motorpool/fleet-ledger/fleet/store"
	"github.com/motorpool/fleet-ledger/fuel"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// newTestServer wires the full engine stack over a memory store and
// returns the store for direct state assertions.
func newTestServer(t *testing.T) (*store.Memory, http.Handler) {
	t.Helper()
	mem := store.NewMemory()
	ctx := context.Background()

	log := logrus.New()
	log.SetOutput(io.Discard)

	require.NoError(t, mem.PutVehicle(ctx, fleet.Vehicle{
		ID: "v1", Plate: "AB 1234-7", SummerRate: dec("10"), WinterRate: dec("12"),
	}))
	require.NoError(t, mem.PutDriver(ctx, fleet.Driver{ID: "d1", Name: "P. Orlov"}))

	locks := fleet.NewLockService(mem, log)
	posting := fleet.NewPostingEngine(mem, locks, log)
	posting.AdjustmentItem = "fuel"
	balances := fleet.NewBalanceService(mem, posting, log)
	season := fuel.SeasonSettings{
		Rule:             fuel.SeasonRecurring,
		WinterStartMonth: time.November,
		SummerStartMonth: time.April,
	}
	chain := fleet.NewChainRecalculator(mem, season, fuel.Modifiers{}, log)

	h := api.NewHandler(mem, posting, locks, balances, chain, log)
	return mem, api.NewRouter(h)
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// =============================================================================
// TRIP SAVE STATUS GUARD
// =============================================================================

func TestSaveTrip_ClientStatusIgnoredOnCreate(t *testing.T) {
	// GIVEN: A create request claiming posted status with inconsistent
	//        odometer readings
	// WHEN: Saving it with a client-supplied ID
	// THEN: The document is stored as a draft; posting only happens through
	//       the post endpoint and its validations
	mem, handler := newTestServer(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/trips", map[string]any{
		"id":            "trip-1",
		"vehicleId":     "v1",
		"driverId":      "d1",
		"date":          "2024-07-01",
		"validFrom":     "2024-07-01",
		"status":        "posted",
		"odometerStart": "100",
		"odometerEnd":   "5",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, err := mem.GetTrip(context.Background(), "trip-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, fleet.TripDraft, stored.Status)
}

func TestSaveTrip_UpdateCannotFlipStatus(t *testing.T) {
	// GIVEN: An existing draft document
	// WHEN: Updating it with a payload claiming posted status
	// THEN: It stays a draft
	mem, handler := newTestServer(t)
	ctx := context.Background()

	draft := fleet.TripDocument{
		ID:        "trip-1",
		Number:    "WB-001",
		Vehicle:   "v1",
		Driver:    "d1",
		Date:      fleet.NewDay(2024, time.July, 1),
		ValidFrom: fleet.NewDay(2024, time.July, 1),
		Status:    fleet.TripDraft,
		UpdatedAt: fleet.Now(),
	}
	require.NoError(t, mem.PutTrip(ctx, draft))

	rec := doJSON(t, handler, http.MethodPost, "/api/trips", map[string]any{
		"id":        "trip-1",
		"vehicleId": "v1",
		"driverId":  "d1",
		"date":      "2024-07-01",
		"validFrom": "2024-07-01",
		"status":    "posted",
		"number":    "WB-001-edited",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, err := mem.GetTrip(ctx, "trip-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, fleet.TripDraft, stored.Status)
	assert.Equal(t, "WB-001-edited", stored.Number)
}

func TestSaveTrip_PostedDocumentRejected(t *testing.T) {
	// GIVEN: A posted document
	// WHEN: Saving an edited copy under its ID
	// THEN: The edit is refused; posted documents change only via unpost
	mem, handler := newTestServer(t)
	ctx := context.Background()

	posted := fleet.TripDocument{
		ID:            "trip-1",
		Number:        "WB-001",
		Vehicle:       "v1",
		Driver:        "d1",
		Date:          fleet.NewDay(2024, time.July, 1),
		ValidFrom:     fleet.NewDay(2024, time.July, 1),
		OdometerStart: dec("1000"),
		OdometerEnd:   dec("1100"),
		Status:        fleet.TripPosted,
		UpdatedAt:     fleet.Now(),
	}
	require.NoError(t, mem.PutTrip(ctx, posted))

	rec := doJSON(t, handler, http.MethodPost, "/api/trips", map[string]any{
		"id":        "trip-1",
		"vehicleId": "v1",
		"driverId":  "d1",
		"date":      "2024-07-01",
		"number":    "WB-tampered",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	stored, err := mem.GetTrip(ctx, "trip-1")
	require.NoError(t, err)
	assert.Equal(t, "WB-001", stored.Number)
	assert.Equal(t, fleet.TripPosted, stored.Status)
}

func TestPostTrip_OdometerOrderValidated(t *testing.T) {
	// GIVEN: A draft whose ending odometer is below its starting one
	// WHEN: Posting it
	// THEN: The post is rejected and the document stays a draft
	mem, handler := newTestServer(t)
	ctx := context.Background()

	draft := fleet.TripDocument{
		ID:            "trip-1",
		Number:        "WB-001",
		Vehicle:       "v1",
		Driver:        "d1",
		Date:          fleet.NewDay(2024, time.July, 1),
		ValidFrom:     fleet.NewDay(2024, time.July, 1),
		OdometerStart: dec("100"),
		OdometerEnd:   dec("5"),
		Status:        fleet.TripDraft,
		UpdatedAt:     fleet.Now(),
	}
	require.NoError(t, mem.PutTrip(ctx, draft))

	rec := doJSON(t, handler, http.MethodPost, "/api/trips/trip-1/post", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	stored, err := mem.GetTrip(ctx, "trip-1")
	require.NoError(t, err)
	assert.Equal(t, fleet.TripDraft, stored.Status)
}
