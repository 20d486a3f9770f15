/*
handlers.go - HTTP API handlers for the fleet ledger engine

PURPOSE:
  Exposes the ledger engines via REST API. Handles HTTP request/response,
  JSON serialization, and delegates every decision to the domain layer.

ENDPOINTS:
  Fuel:
    POST   /api/fuel/calculate           Run the pure consumption calculator

  Trip documents:
    GET    /api/trips?vehicleId=|driverId=  List documents
    POST   /api/trips                    Save a document (+ chain cascade)
    GET    /api/trips/{id}               Get one document
    DELETE /api/trips/{id}               Remove a draft
    POST   /api/trips/{id}/post          Post (validates odometer order)
    POST   /api/trips/{id}/unpost        Revert to draft

  Stock movements:
    GET    /api/movements?driverId=      List a driver's movements
    POST   /api/movements                Save a draft
    GET    /api/movements/{id}           Get one movement
    DELETE /api/movements/{id}           Remove a draft
    POST   /api/movements/{id}/post      All-or-nothing post
    POST   /api/movements/{id}/unpost    All-or-nothing reversal
    POST   /api/adjustments              Create + post a balance adjustment

  Balances:
    GET    /api/drivers/{id}/balance?at= Computed fuel-card balance
    GET    /api/drivers/{id}/snapshots   Month-end checkpoints
    POST   /api/drivers/{id}/reset       Zero the card balance
    POST   /api/snapshots/regenerate     Rebuild all snapshots

  Periods:
    GET    /api/periods/locked?date=     Is the date's month sealed?
    GET    /api/periods/locks            List locks
    POST   /api/periods/locks            Seal a month
    POST   /api/periods/locks/{id}/verify  Re-digest and compare
    DELETE /api/periods/locks/{id}       Unseal

  Chain:
    POST   /api/vehicles/{id}/recalculate  Bulk draft recompute from a date

  Master data: thin CRUD for items, drivers, vehicles. Audit: GET /api/audit.

ERROR HANDLING:
  Domain errors map to HTTP status via their sentinel chain:
  - 400: validation (insufficient stock, invalid status, odometer order, ...)
  - 404: missing entity
  - 409: period sealed / already sealed
  - 500: everything else

SECURITY NOTE:
  No authentication middleware. The actor recorded in the audit trail is
  taken from the X-Actor header and defaults to "api".

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/motorpool/fleet-ledger/fleet"
	"github.com/motorpool/fleet-ledger/fuel"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    fleet.Store
	Posting  *fleet.PostingEngine
	Locks    *fleet.LockService
	Balances *fleet.BalanceService
	Chain    *fleet.ChainRecalculator
	Notify   fleet.Notifier
	Log      *logrus.Logger
}

// NewHandler wires the handler over the four engines sharing one store.
func NewHandler(store fleet.Store, posting *fleet.PostingEngine, locks *fleet.LockService,
	balances *fleet.BalanceService, chain *fleet.ChainRecalculator, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		Store:    store,
		Posting:  posting,
		Locks:    locks,
		Balances: balances,
		Chain:    chain,
		Log:      log,
	}
}

func actor(r *http.Request) string {
	if a := strings.TrimSpace(r.Header.Get("X-Actor")); a != "" {
		return a
	}
	return "api"
}

// =============================================================================
// FUEL CALCULATION
// =============================================================================

// Calculate runs the pure consumption calculator over the request inputs.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req CalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.Segments) == 0 {
		writeError(w, http.StatusBadRequest, "At least one segment is required", nil)
		return
	}

	method := req.Method
	if req.LegacyMethod != "" {
		method = fuel.TranslateLegacyMethod(req.LegacyMethod)
	}

	result := fuel.Calculate(method, fuel.Input{
		Segments:      req.Segments,
		Rates:         fuel.Rates{Summer: req.SummerRate, Winter: req.WinterRate},
		Modifiers:     h.Chain.Modifiers,
		Season:        h.Chain.Season,
		Date:          req.Date.Time,
		MultiDay:      req.MultiDay,
		TotalDistance: req.TotalDistance,
	})

	writeJSON(w, http.StatusOK, CalculateResponse{
		Distance:    result.Distance,
		Consumption: result.Consumption,
	})
}

// =============================================================================
// TRIP DOCUMENT HANDLERS
// =============================================================================

// ListTrips lists documents for a vehicle or a driver.
func (h *Handler) ListTrips(w http.ResponseWriter, r *http.Request) {
	vehicle := r.URL.Query().Get("vehicleId")
	driver := r.URL.Query().Get("driverId")

	var (
		docs []fleet.TripDocument
		err  error
	)
	switch {
	case vehicle != "":
		docs, err = h.Store.ListTripsByVehicle(r.Context(), fleet.VehicleID(vehicle))
	case driver != "":
		docs, err = h.Store.ListTripsByDriver(r.Context(), fleet.DriverID(driver))
	default:
		writeError(w, http.StatusBadRequest, "vehicleId or driverId query parameter is required", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list trip documents", err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

// GetTrip returns one document.
func (h *Handler) GetTrip(w http.ResponseWriter, r *http.Request) {
	id := fleet.TripID(chi.URLParam(r, "id"))
	doc, err := h.Store.GetTrip(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get trip document", err)
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "Trip document not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// SaveTrip saves a document and cascades its ending values through the
// dependent drafts of the same vehicle.
func (h *Handler) SaveTrip(w http.ResponseWriter, r *http.Request) {
	var doc fleet.TripDocument
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if doc.Vehicle == "" || doc.Driver == "" {
		writeError(w, http.StatusBadRequest, "vehicleId and driverId are required", nil)
		return
	}
	if doc.ID == "" {
		doc.ID = fleet.TripID(uuid.NewString())
	}

	ctx := r.Context()
	if err := h.Locks.Gate(ctx, doc.Date); err != nil {
		writeDomainError(w, err)
		return
	}
	existing, err := h.Store.GetTrip(ctx, doc.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load trip document", err)
		return
	}
	if existing != nil {
		if existing.Status == fleet.TripPosted {
			writeError(w, http.StatusBadRequest, "Posted documents are immutable; unpost first", nil)
			return
		}
		// The record may be moving out of a sealed month.
		if err := h.Locks.Gate(ctx, existing.Date); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	// Saves never change status; posting goes through the post endpoint.
	doc.Status = fleet.TripDraft
	doc.UpdatedAt = fleet.Now()
	if err := h.Store.PutTrip(ctx, doc); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save trip document", err)
		return
	}
	if h.Notify != nil {
		h.Notify.CollectionChanged(fleet.CollectionTrips)
	}

	recalculated, err := h.Chain.RecalculateFrom(ctx, &doc)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SaveTripResponse{Trip: doc, Recalculated: recalculated})
}

// DeleteTrip removes a draft document. Posted documents are never
// hard-deleted.
func (h *Handler) DeleteTrip(w http.ResponseWriter, r *http.Request) {
	id := fleet.TripID(chi.URLParam(r, "id"))
	ctx := r.Context()

	doc, err := h.Store.GetTrip(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load trip document", err)
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "Trip document not found", nil)
		return
	}
	if doc.Status == fleet.TripPosted {
		writeError(w, http.StatusBadRequest, "Posted documents cannot be deleted; unpost first", nil)
		return
	}
	if err := h.Locks.Gate(ctx, doc.Date); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.Store.DeleteTrip(ctx, id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete trip document", err)
		return
	}
	if h.Notify != nil {
		h.Notify.CollectionChanged(fleet.CollectionTrips)
	}
	w.WriteHeader(http.StatusNoContent)
}

// PostTrip marks a draft document as posted after validating its
// readings.
func (h *Handler) PostTrip(w http.ResponseWriter, r *http.Request) {
	h.setTripStatus(w, r, fleet.TripPosted)
}

// UnpostTrip reverts a posted document to draft.
func (h *Handler) UnpostTrip(w http.ResponseWriter, r *http.Request) {
	h.setTripStatus(w, r, fleet.TripDraft)
}

func (h *Handler) setTripStatus(w http.ResponseWriter, r *http.Request, status fleet.TripStatus) {
	id := fleet.TripID(chi.URLParam(r, "id"))
	ctx := r.Context()

	doc, err := h.Store.GetTrip(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load trip document", err)
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "Trip document not found", nil)
		return
	}
	if err := h.Locks.Gate(ctx, doc.Date); err != nil {
		writeDomainError(w, err)
		return
	}
	if doc.Status == status {
		writeDomainError(w, fleet.ErrInvalidStatus)
		return
	}
	if status == fleet.TripPosted && doc.OdometerEnd.LessThan(doc.OdometerStart) {
		writeDomainError(w, fleet.ErrOdometerOrder)
		return
	}

	doc.Status = status
	doc.UpdatedAt = fleet.Now()
	if err := h.Store.PutTrip(ctx, *doc); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save trip document", err)
		return
	}
	if h.Notify != nil {
		h.Notify.CollectionChanged(fleet.CollectionTrips)
	}
	writeJSON(w, http.StatusOK, doc)
}

// RecalculateVehicle recomputes all draft documents of a vehicle from an
// anchor date.
func (h *Handler) RecalculateVehicle(w http.ResponseWriter, r *http.Request) {
	id := fleet.VehicleID(chi.URLParam(r, "id"))

	var req RecalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	report, err := h.Chain.RecalculateDraftsFrom(r.Context(), id, req.From)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// =============================================================================
// STOCK MOVEMENT HANDLERS
// =============================================================================

// ListMovements lists a driver's movements.
func (h *Handler) ListMovements(w http.ResponseWriter, r *http.Request) {
	driver := r.URL.Query().Get("driverId")
	if driver == "" {
		writeError(w, http.StatusBadRequest, "driverId query parameter is required", nil)
		return
	}
	movements, err := h.Store.ListMovementsByDriver(r.Context(), fleet.DriverID(driver))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list movements", err)
		return
	}
	writeJSON(w, http.StatusOK, movements)
}

// GetMovement returns one movement.
func (h *Handler) GetMovement(w http.ResponseWriter, r *http.Request) {
	id := fleet.MovementID(chi.URLParam(r, "id"))
	m, err := h.Store.GetMovement(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get movement", err)
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "Movement not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// SaveMovement saves a draft movement through the posting engine's gate
// checks.
func (h *Handler) SaveMovement(w http.ResponseWriter, r *http.Request) {
	var m fleet.StockMovement
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if m.ID == "" {
		m.ID = fleet.MovementID(uuid.NewString())
		m.Status = fleet.MovementDraft
	}
	if len(m.Lines) == 0 {
		writeError(w, http.StatusBadRequest, "At least one line is required", nil)
		return
	}

	if err := h.Posting.SaveMovement(r.Context(), m); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// DeleteMovement removes a draft movement.
func (h *Handler) DeleteMovement(w http.ResponseWriter, r *http.Request) {
	id := fleet.MovementID(chi.URLParam(r, "id"))
	if err := h.Posting.RemoveDraft(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PostMovement applies a movement as one all-or-nothing operation.
func (h *Handler) PostMovement(w http.ResponseWriter, r *http.Request) {
	id := fleet.MovementID(chi.URLParam(r, "id"))
	m, err := h.Posting.Post(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// UnpostMovement reverses a posted movement.
func (h *Handler) UnpostMovement(w http.ResponseWriter, r *http.Request) {
	id := fleet.MovementID(chi.URLParam(r, "id"))
	m, err := h.Posting.Unpost(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// CreateAdjustment creates and immediately posts a balance adjustment.
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Driver == "" {
		writeError(w, http.StatusBadRequest, "driverId is required", nil)
		return
	}

	m, err := h.Posting.CreateAdjustment(r.Context(), req.Driver, req.Delta, req.Note, actor(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

// GetBalance returns the computed fuel-card balance as of a date
// (default: now).
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := fleet.DriverID(chi.URLParam(r, "id"))
	at := fleet.Now()
	if s := r.URL.Query().Get("at"); s != "" {
		var tp fleet.TimePoint
		if err := tp.UnmarshalJSON([]byte(`"` + s + `"`)); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid at parameter (use YYYY-MM-DD or RFC 3339)", err)
			return
		}
		at = tp
	}

	balance, err := h.Balances.BalanceAsOf(r.Context(), id, at)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Driver: id, AsOf: at, Balance: balance})
}

// ListSnapshots returns a driver's month-end checkpoints.
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	id := fleet.DriverID(chi.URLParam(r, "id"))
	snaps, err := h.Store.ListSnapshotsByDriver(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list snapshots", err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

// ResetBalance zeroes a driver's fuel-card balance via a compensating
// adjustment.
func (h *Handler) ResetBalance(w http.ResponseWriter, r *http.Request) {
	id := fleet.DriverID(chi.URLParam(r, "id"))
	if err := h.Balances.ResetToZero(r.Context(), id, actor(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RegenerateSnapshots rebuilds every month-end checkpoint from history.
func (h *Handler) RegenerateSnapshots(w http.ResponseWriter, r *http.Request) {
	if err := h.Balances.RegenerateSnapshots(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// PERIOD LOCK HANDLERS
// =============================================================================

// IsPeriodLocked answers whether a date's month is sealed.
func (h *Handler) IsPeriodLocked(w http.ResponseWriter, r *http.Request) {
	s := r.URL.Query().Get("date")
	if s == "" {
		writeError(w, http.StatusBadRequest, "date query parameter is required", nil)
		return
	}
	var tp fleet.TimePoint
	if err := tp.UnmarshalJSON([]byte(`"` + s + `"`)); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD or RFC 3339)", err)
		return
	}

	locked, err := h.Locks.IsLocked(r.Context(), tp)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to check period lock", err)
		return
	}
	writeJSON(w, http.StatusOK, LockedResponse{Locked: locked})
}

// ListLocks lists all period locks.
func (h *Handler) ListLocks(w http.ResponseWriter, r *http.Request) {
	locks, err := h.Store.ListLocks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list period locks", err)
		return
	}
	writeJSON(w, http.StatusOK, locks)
}

// LockPeriod seals one calendar month.
func (h *Handler) LockPeriod(w http.ResponseWriter, r *http.Request) {
	var req LockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	lock, err := h.Locks.Lock(r.Context(), req.Period, actor(r), req.Notes)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, lock)
}

// VerifyLock re-derives the sealed digest and compares it with the stored
// one.
func (h *Handler) VerifyLock(w http.ResponseWriter, r *http.Request) {
	id := fleet.LockID(chi.URLParam(r, "id"))
	result, err := h.Locks.Verify(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// UnlockPeriod removes a seal.
func (h *Handler) UnlockPeriod(w http.ResponseWriter, r *http.Request) {
	id := fleet.LockID(chi.URLParam(r, "id"))
	if err := h.Locks.Unlock(r.Context(), id, actor(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// MASTER DATA HANDLERS
// =============================================================================

func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Store.ListItems(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list items", err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) SaveItem(w http.ResponseWriter, r *http.Request) {
	var item fleet.StockItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if item.ID == "" {
		item.ID = fleet.ItemID(uuid.NewString())
	}
	if err := h.Store.PutItem(r.Context(), item); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save item", err)
		return
	}
	if h.Notify != nil {
		h.Notify.CollectionChanged(fleet.CollectionItems)
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) ListDrivers(w http.ResponseWriter, r *http.Request) {
	drivers, err := h.Store.ListDrivers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list drivers", err)
		return
	}
	writeJSON(w, http.StatusOK, drivers)
}

func (h *Handler) SaveDriver(w http.ResponseWriter, r *http.Request) {
	var d fleet.Driver
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if d.ID == "" {
		d.ID = fleet.DriverID(uuid.NewString())
	}
	if err := h.Store.PutDriver(r.Context(), d); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save driver", err)
		return
	}
	if h.Notify != nil {
		h.Notify.CollectionChanged(fleet.CollectionDrivers)
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles, err := h.Store.ListVehicles(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list vehicles", err)
		return
	}
	writeJSON(w, http.StatusOK, vehicles)
}

func (h *Handler) SaveVehicle(w http.ResponseWriter, r *http.Request) {
	var v fleet.Vehicle
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if v.ID == "" {
		v.ID = fleet.VehicleID(uuid.NewString())
	}
	if err := h.Store.PutVehicle(r.Context(), v); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save vehicle", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// =============================================================================
// AUDIT HANDLERS
// =============================================================================

// QueryAudit returns recent audit entries, optionally filtered by action.
func (h *Handler) QueryAudit(w http.ResponseWriter, r *http.Request) {
	var actions []fleet.AuditAction
	if s := r.URL.Query().Get("action"); s != "" {
		for _, a := range strings.Split(s, ",") {
			actions = append(actions, fleet.AuditAction(a))
		}
	}
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	entries, err := h.Store.QueryAudit(r.Context(), actions, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query audit log", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps a domain error onto the HTTP status taxonomy.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fleet.ErrPeriodLocked), errors.Is(err, fleet.ErrPeriodAlreadyLocked):
		writeError(w, http.StatusConflict, "Period is sealed", err)
	case errors.Is(err, fleet.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found", err)
	case fleet.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
