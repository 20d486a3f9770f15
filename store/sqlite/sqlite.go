/*
Package sqlite provides the SQLite-backed implementation of fleet.Store.

PURPOSE:
  Local persistent storage for the fleet ledger. Implements the full
  fleet.Store surface (trips, movements, master data, snapshots, locks,
  audit log) on a single on-disk database file.

KEY TABLES:
  trip_documents:    Waybills; route segments stored as a JSON column
  stock_movements:   Inventory transactions; lines stored as JSON
  stock_items:       Master data with the derived running balance
  drivers:           Master data with the cached fuel-card balance
  vehicles:          Master data feeding the fuel calculator
  balance_snapshots: Month-end checkpoints, regenerated in bulk
  period_locks:      One row per sealed calendar month
  audit_log:         Append-only business event trail

VALUE ENCODING:
  - Decimal amounts are stored as TEXT to preserve exact digits; binary
    floating point never touches a stored quantity.
  - Time points are stored in their sortable ISO string form ("2006-01-02"
    for day-granularity values, RFC 3339 for instants), so period filters
    reduce to a "YYYY-MM" prefix match.

CONCURRENCY:
  Uses sync.RWMutex on top of a WAL-mode database. Multiple readers don't
  block; writes are serialized.

MIGRATION:
  Schema is auto-migrated on New(). For a multi-node deployment, use a
  versioned migration tool instead.

SEE ALSO:
  - fleet/store.go: Interface definitions
  - fleet/store/memory.go: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/motorpool/fleet-ledger/fleet"
)

// Store implements fleet.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ fleet.Store = (*Store)(nil)

// New opens (or creates) the database at the given path and migrates the
// schema. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Trip documents (waybills)
	CREATE TABLE IF NOT EXISTS trip_documents (
		id TEXT PRIMARY KEY,
		number TEXT NOT NULL,
		vehicle_id TEXT NOT NULL,
		driver_id TEXT NOT NULL,
		date TEXT NOT NULL,
		valid_from TEXT NOT NULL,
		valid_to TEXT NOT NULL,
		odometer_start TEXT NOT NULL,
		odometer_end TEXT NOT NULL,
		fuel_start TEXT NOT NULL,
		fuel_filled TEXT NOT NULL,
		fuel_end TEXT NOT NULL,
		fuel_planned TEXT NOT NULL,
		segments_json TEXT NOT NULL,
		status TEXT NOT NULL,
		method TEXT NOT NULL,
		multi_day BOOLEAN DEFAULT FALSE,
		form_ref TEXT,
		updated_at TEXT NOT NULL
	);

	-- Chain recalculation loads a vehicle's full chain (hot path)
	CREATE INDEX IF NOT EXISTS idx_trips_vehicle
		ON trip_documents(vehicle_id, valid_from, number);
	CREATE INDEX IF NOT EXISTS idx_trips_driver
		ON trip_documents(driver_id, date);
	-- Period seal and gates filter posted records by month prefix
	CREATE INDEX IF NOT EXISTS idx_trips_status_date
		ON trip_documents(status, date);

	-- Stock movements
	CREATE TABLE IF NOT EXISTS stock_movements (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		date TEXT NOT NULL,
		organization TEXT,
		lines_json TEXT NOT NULL,
		driver_id TEXT,
		reason TEXT,
		note TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_movements_driver
		ON stock_movements(driver_id, date) WHERE driver_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_movements_status_date
		ON stock_movements(status, date);

	-- Stock items (with derived running balance)
	CREATE TABLE IF NOT EXISTS stock_items (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		unit TEXT NOT NULL,
		fuel BOOLEAN DEFAULT FALSE,
		balance TEXT NOT NULL
	);

	-- Drivers (with cached fuel-card balance)
	CREATE TABLE IF NOT EXISTS drivers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		fuel_card_balance TEXT NOT NULL
	);

	-- Vehicles (master records)
	CREATE TABLE IF NOT EXISTS vehicles (
		id TEXT PRIMARY KEY,
		plate TEXT NOT NULL,
		summer_rate TEXT NOT NULL,
		winter_rate TEXT NOT NULL,
		initial_odometer TEXT NOT NULL,
		initial_fuel TEXT NOT NULL
	);

	-- Balance snapshots (regenerated in bulk, never patched)
	CREATE TABLE IF NOT EXISTS balance_snapshots (
		id TEXT PRIMARY KEY,
		driver_id TEXT NOT NULL,
		as_of TEXT NOT NULL,
		balance TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_driver_asof
		ON balance_snapshots(driver_id, as_of DESC);

	-- Period locks (one per sealed calendar month)
	CREATE TABLE IF NOT EXISTS period_locks (
		id TEXT PRIMARY KEY,
		period TEXT NOT NULL UNIQUE,
		hash TEXT NOT NULL,
		record_count INTEGER NOT NULL,
		locked_by TEXT NOT NULL,
		notes TEXT,
		created_at TEXT NOT NULL
	);

	-- Audit log (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		at TEXT NOT NULL,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		driver_id TEXT,
		movement_id TEXT,
		lock_id TEXT,
		payload_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_action_at
		ON audit_log(action, at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRIP DOCUMENTS (fleet.TripStore interface)
// =============================================================================

const tripColumns = `id, number, vehicle_id, driver_id, date, valid_from, valid_to,
		odometer_start, odometer_end, fuel_start, fuel_filled, fuel_end, fuel_planned,
		segments_json, status, method, multi_day, form_ref, updated_at`

func (s *Store) GetTrip(ctx context.Context, id fleet.TripID) (*fleet.TripDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs, err := s.queryTrips(ctx,
		`SELECT `+tripColumns+` FROM trip_documents WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return &docs[0], nil
}

func (s *Store) ListTripsByVehicle(ctx context.Context, vehicle fleet.VehicleID) ([]fleet.TripDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryTrips(ctx,
		`SELECT `+tripColumns+` FROM trip_documents
		 WHERE vehicle_id = ?
		 ORDER BY valid_from ASC, number ASC`, vehicle)
}

func (s *Store) ListTripsByDriver(ctx context.Context, driver fleet.DriverID) ([]fleet.TripDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryTrips(ctx,
		`SELECT `+tripColumns+` FROM trip_documents
		 WHERE driver_id = ?
		 ORDER BY date ASC, id ASC`, driver)
}

func (s *Store) ListPostedTripsInPeriod(ctx context.Context, period fleet.YearMonth) ([]fleet.TripDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Both stored time forms start with "YYYY-MM", so a prefix match
	// selects the month regardless of granularity.
	return s.queryTrips(ctx,
		`SELECT `+tripColumns+` FROM trip_documents
		 WHERE status = ? AND substr(date, 1, 7) = ?
		 ORDER BY id ASC`, fleet.TripPosted, period.String())
}

func (s *Store) PutTrip(ctx context.Context, doc fleet.TripDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.putTrip(ctx, s.db, doc)
}

// PutTrips persists a computed batch in one transaction.
func (s *Store) PutTrips(ctx context.Context, docs []fleet.TripDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, doc := range docs {
		if err := s.putTrip(ctx, sqlTx, doc); err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

func (s *Store) putTrip(ctx context.Context, db execer, doc fleet.TripDocument) error {
	segmentsJSON, err := json.Marshal(doc.Segments)
	if err != nil {
		return fmt.Errorf("failed to encode segments: %w", err)
	}

	query := `
		INSERT INTO trip_documents (` + tripColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			number = excluded.number,
			vehicle_id = excluded.vehicle_id,
			driver_id = excluded.driver_id,
			date = excluded.date,
			valid_from = excluded.valid_from,
			valid_to = excluded.valid_to,
			odometer_start = excluded.odometer_start,
			odometer_end = excluded.odometer_end,
			fuel_start = excluded.fuel_start,
			fuel_filled = excluded.fuel_filled,
			fuel_end = excluded.fuel_end,
			fuel_planned = excluded.fuel_planned,
			segments_json = excluded.segments_json,
			status = excluded.status,
			method = excluded.method,
			multi_day = excluded.multi_day,
			form_ref = excluded.form_ref,
			updated_at = excluded.updated_at
	`

	_, err = db.ExecContext(ctx, query,
		doc.ID, doc.Number, doc.Vehicle, doc.Driver,
		doc.Date.String(), doc.ValidFrom.String(), doc.ValidTo.String(),
		doc.OdometerStart.String(), doc.OdometerEnd.String(),
		doc.FuelStart.String(), doc.FuelFilled.String(),
		doc.FuelEnd.String(), doc.FuelPlanned.String(),
		string(segmentsJSON), doc.Status, doc.Method, doc.MultiDay,
		nullString(doc.FormRef), doc.UpdatedAt.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to save trip document: %w", err)
	}
	return nil
}

func (s *Store) DeleteTrip(ctx context.Context, id fleet.TripID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM trip_documents WHERE id = ?", id)
	return err
}

func (s *Store) queryTrips(ctx context.Context, query string, args ...any) ([]fleet.TripDocument, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trip documents: %w", err)
	}
	defer rows.Close()

	var docs []fleet.TripDocument
	for rows.Next() {
		doc, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func scanTrip(rows *sql.Rows) (fleet.TripDocument, error) {
	var (
		doc          fleet.TripDocument
		date         string
		validFrom    string
		validTo      string
		odoStart     string
		odoEnd       string
		fuelStart    string
		fuelFilled   string
		fuelEnd      string
		fuelPlanned  string
		segmentsJSON string
		formRef      sql.NullString
		updatedAt    string
	)

	err := rows.Scan(
		&doc.ID, &doc.Number, &doc.Vehicle, &doc.Driver,
		&date, &validFrom, &validTo,
		&odoStart, &odoEnd, &fuelStart, &fuelFilled, &fuelEnd, &fuelPlanned,
		&segmentsJSON, &doc.Status, &doc.Method, &doc.MultiDay,
		&formRef, &updatedAt,
	)
	if err != nil {
		return doc, fmt.Errorf("failed to scan trip document: %w", err)
	}

	doc.Date = parseTimePoint(date)
	doc.ValidFrom = parseTimePoint(validFrom)
	doc.ValidTo = parseTimePoint(validTo)
	doc.OdometerStart = parseDecimal(odoStart)
	doc.OdometerEnd = parseDecimal(odoEnd)
	doc.FuelStart = parseDecimal(fuelStart)
	doc.FuelFilled = parseDecimal(fuelFilled)
	doc.FuelEnd = parseDecimal(fuelEnd)
	doc.FuelPlanned = parseDecimal(fuelPlanned)
	doc.FormRef = formRef.String
	doc.UpdatedAt = parseTimePoint(updatedAt)

	if segmentsJSON != "" {
		if err := json.Unmarshal([]byte(segmentsJSON), &doc.Segments); err != nil {
			return doc, fmt.Errorf("failed to decode segments: %w", err)
		}
	}
	return doc, nil
}

// =============================================================================
// STOCK MOVEMENTS (fleet.MovementStore interface)
// =============================================================================

const movementColumns = `id, kind, status, date, organization, lines_json, driver_id, reason, note, updated_at`

func (s *Store) GetMovement(ctx context.Context, id fleet.MovementID) (*fleet.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	movements, err := s.queryMovements(ctx,
		`SELECT `+movementColumns+` FROM stock_movements WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(movements) == 0 {
		return nil, nil
	}
	return &movements[0], nil
}

func (s *Store) ListMovementsByDriver(ctx context.Context, driver fleet.DriverID) ([]fleet.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryMovements(ctx,
		`SELECT `+movementColumns+` FROM stock_movements
		 WHERE driver_id = ?
		 ORDER BY date ASC, id ASC`, driver)
}

func (s *Store) ListPostedMovementsInPeriod(ctx context.Context, period fleet.YearMonth) ([]fleet.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryMovements(ctx,
		`SELECT `+movementColumns+` FROM stock_movements
		 WHERE status = ? AND substr(date, 1, 7) = ?
		 ORDER BY id ASC`, fleet.MovementPosted, period.String())
}

func (s *Store) PutMovement(ctx context.Context, m fleet.StockMovement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	linesJSON, err := json.Marshal(m.Lines)
	if err != nil {
		return fmt.Errorf("failed to encode movement lines: %w", err)
	}

	query := `
		INSERT INTO stock_movements (` + movementColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			status = excluded.status,
			date = excluded.date,
			organization = excluded.organization,
			lines_json = excluded.lines_json,
			driver_id = excluded.driver_id,
			reason = excluded.reason,
			note = excluded.note,
			updated_at = excluded.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		m.ID, m.Kind, m.Status, m.Date.String(),
		nullString(m.Organization), string(linesJSON),
		nullString(string(m.Driver)), nullString(string(m.Reason)),
		nullString(m.Note), m.UpdatedAt.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to save stock movement: %w", err)
	}
	return nil
}

func (s *Store) DeleteMovement(ctx context.Context, id fleet.MovementID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM stock_movements WHERE id = ?", id)
	return err
}

func (s *Store) queryMovements(ctx context.Context, query string, args ...any) ([]fleet.StockMovement, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock movements: %w", err)
	}
	defer rows.Close()

	var movements []fleet.StockMovement
	for rows.Next() {
		var (
			m         fleet.StockMovement
			date      string
			org       sql.NullString
			linesJSON string
			driver    sql.NullString
			reason    sql.NullString
			note      sql.NullString
			updatedAt string
		)
		if err := rows.Scan(&m.ID, &m.Kind, &m.Status, &date, &org, &linesJSON,
			&driver, &reason, &note, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stock movement: %w", err)
		}

		m.Date = parseTimePoint(date)
		m.Organization = org.String
		m.Driver = fleet.DriverID(driver.String)
		m.Reason = fleet.ExpenseReason(reason.String)
		m.Note = note.String
		m.UpdatedAt = parseTimePoint(updatedAt)

		if linesJSON != "" {
			if err := json.Unmarshal([]byte(linesJSON), &m.Lines); err != nil {
				return nil, fmt.Errorf("failed to decode movement lines: %w", err)
			}
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// =============================================================================
// MASTER DATA (fleet.ItemStore, DriverStore, VehicleStore interfaces)
// =============================================================================

func (s *Store) GetItem(ctx context.Context, id fleet.ItemID) (*fleet.StockItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var item fleet.StockItem
	var balance string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, unit, fuel, balance FROM stock_items WHERE id = ?", id,
	).Scan(&item.ID, &item.Name, &item.Unit, &item.Fuel, &balance)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	item.Balance = parseDecimal(balance)
	return &item, nil
}

func (s *Store) ListItems(ctx context.Context) ([]fleet.StockItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, unit, fuel, balance FROM stock_items ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []fleet.StockItem
	for rows.Next() {
		var item fleet.StockItem
		var balance string
		if err := rows.Scan(&item.ID, &item.Name, &item.Unit, &item.Fuel, &balance); err != nil {
			return nil, err
		}
		item.Balance = parseDecimal(balance)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) PutItem(ctx context.Context, item fleet.StockItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO stock_items (id, name, unit, fuel, balance)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			unit = excluded.unit,
			fuel = excluded.fuel,
			balance = excluded.balance
	`
	_, err := s.db.ExecContext(ctx, query,
		item.ID, item.Name, item.Unit, item.Fuel, item.Balance.String())
	return err
}

func (s *Store) GetDriver(ctx context.Context, id fleet.DriverID) (*fleet.Driver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var d fleet.Driver
	var balance string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, fuel_card_balance FROM drivers WHERE id = ?", id,
	).Scan(&d.ID, &d.Name, &balance)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d.FuelCardBalance = parseDecimal(balance)
	return &d, nil
}

func (s *Store) ListDrivers(ctx context.Context) ([]fleet.Driver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, fuel_card_balance FROM drivers ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drivers []fleet.Driver
	for rows.Next() {
		var d fleet.Driver
		var balance string
		if err := rows.Scan(&d.ID, &d.Name, &balance); err != nil {
			return nil, err
		}
		d.FuelCardBalance = parseDecimal(balance)
		drivers = append(drivers, d)
	}
	return drivers, rows.Err()
}

func (s *Store) PutDriver(ctx context.Context, d fleet.Driver) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO drivers (id, name, fuel_card_balance)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			fuel_card_balance = excluded.fuel_card_balance
	`
	_, err := s.db.ExecContext(ctx, query, d.ID, d.Name, d.FuelCardBalance.String())
	return err
}

func (s *Store) GetVehicle(ctx context.Context, id fleet.VehicleID) (*fleet.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var v fleet.Vehicle
	var summerRate, winterRate, initialOdo, initialFuel string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, plate, summer_rate, winter_rate, initial_odometer, initial_fuel FROM vehicles WHERE id = ?", id,
	).Scan(&v.ID, &v.Plate, &summerRate, &winterRate, &initialOdo, &initialFuel)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	v.SummerRate = parseDecimal(summerRate)
	v.WinterRate = parseDecimal(winterRate)
	v.InitialOdometer = parseDecimal(initialOdo)
	v.InitialFuel = parseDecimal(initialFuel)
	return &v, nil
}

func (s *Store) ListVehicles(ctx context.Context) ([]fleet.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, plate, summer_rate, winter_rate, initial_odometer, initial_fuel FROM vehicles ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vehicles []fleet.Vehicle
	for rows.Next() {
		var v fleet.Vehicle
		var summerRate, winterRate, initialOdo, initialFuel string
		if err := rows.Scan(&v.ID, &v.Plate, &summerRate, &winterRate, &initialOdo, &initialFuel); err != nil {
			return nil, err
		}
		v.SummerRate = parseDecimal(summerRate)
		v.WinterRate = parseDecimal(winterRate)
		v.InitialOdometer = parseDecimal(initialOdo)
		v.InitialFuel = parseDecimal(initialFuel)
		vehicles = append(vehicles, v)
	}
	return vehicles, rows.Err()
}

func (s *Store) PutVehicle(ctx context.Context, v fleet.Vehicle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO vehicles (id, plate, summer_rate, winter_rate, initial_odometer, initial_fuel)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			plate = excluded.plate,
			summer_rate = excluded.summer_rate,
			winter_rate = excluded.winter_rate,
			initial_odometer = excluded.initial_odometer,
			initial_fuel = excluded.initial_fuel
	`
	_, err := s.db.ExecContext(ctx, query,
		v.ID, v.Plate, v.SummerRate.String(), v.WinterRate.String(),
		v.InitialOdometer.String(), v.InitialFuel.String())
	return err
}

// =============================================================================
// BALANCE SNAPSHOTS (fleet.SnapshotStore interface)
// =============================================================================

func (s *Store) LatestSnapshotOnOrBefore(ctx context.Context, driver fleet.DriverID, at fleet.TimePoint) (*fleet.BalanceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Day-granularity snapshot dates compare correctly against the
	// 10-char prefix of an instant form.
	var snap fleet.BalanceSnapshot
	var asOf, balance string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, driver_id, as_of, balance FROM balance_snapshots
		 WHERE driver_id = ? AND as_of <= ?
		 ORDER BY as_of DESC LIMIT 1`,
		driver, at.String(),
	).Scan(&snap.ID, &snap.Driver, &asOf, &balance)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	snap.AsOf = parseTimePoint(asOf)
	snap.Balance = parseDecimal(balance)
	return &snap, nil
}

func (s *Store) ListSnapshotsByDriver(ctx context.Context, driver fleet.DriverID) ([]fleet.BalanceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, driver_id, as_of, balance FROM balance_snapshots
		 WHERE driver_id = ? ORDER BY as_of ASC`, driver)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []fleet.BalanceSnapshot
	for rows.Next() {
		var snap fleet.BalanceSnapshot
		var asOf, balance string
		if err := rows.Scan(&snap.ID, &snap.Driver, &asOf, &balance); err != nil {
			return nil, err
		}
		snap.AsOf = parseTimePoint(asOf)
		snap.Balance = parseDecimal(balance)
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func (s *Store) ReplaceSnapshots(ctx context.Context, snaps []fleet.BalanceSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx, "DELETE FROM balance_snapshots"); err != nil {
		return err
	}
	for _, snap := range snaps {
		_, err := sqlTx.ExecContext(ctx,
			"INSERT INTO balance_snapshots (id, driver_id, as_of, balance) VALUES (?, ?, ?, ?)",
			snap.ID, snap.Driver, snap.AsOf.String(), snap.Balance.String())
		if err != nil {
			return fmt.Errorf("failed to save snapshot: %w", err)
		}
	}
	return sqlTx.Commit()
}

// =============================================================================
// PERIOD LOCKS (fleet.LockStore interface)
// =============================================================================

const lockColumns = `id, period, hash, record_count, locked_by, notes, created_at`

func (s *Store) GetLock(ctx context.Context, id fleet.LockID) (*fleet.PeriodLock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryLock(ctx,
		`SELECT `+lockColumns+` FROM period_locks WHERE id = ?`, id)
}

func (s *Store) LockForPeriod(ctx context.Context, period fleet.YearMonth) (*fleet.PeriodLock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryLock(ctx,
		`SELECT `+lockColumns+` FROM period_locks WHERE period = ?`, period.String())
}

func (s *Store) queryLock(ctx context.Context, query string, args ...any) (*fleet.PeriodLock, error) {
	var lock fleet.PeriodLock
	var period, createdAt string
	var notes sql.NullString

	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&lock.ID, &period, &lock.Hash, &lock.RecordCount, &lock.LockedBy, &notes, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	lock.Period, err = fleet.ParseYearMonth(period)
	if err != nil {
		return nil, fmt.Errorf("invalid stored period %q: %w", period, err)
	}
	lock.Notes = notes.String
	lock.CreatedAt = parseTimePoint(createdAt)
	return &lock, nil
}

func (s *Store) ListLocks(ctx context.Context) ([]fleet.PeriodLock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+lockColumns+` FROM period_locks ORDER BY period ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locks []fleet.PeriodLock
	for rows.Next() {
		var lock fleet.PeriodLock
		var period, createdAt string
		var notes sql.NullString
		if err := rows.Scan(&lock.ID, &period, &lock.Hash, &lock.RecordCount,
			&lock.LockedBy, &notes, &createdAt); err != nil {
			return nil, err
		}
		lock.Period, err = fleet.ParseYearMonth(period)
		if err != nil {
			return nil, fmt.Errorf("invalid stored period %q: %w", period, err)
		}
		lock.Notes = notes.String
		lock.CreatedAt = parseTimePoint(createdAt)
		locks = append(locks, lock)
	}
	return locks, rows.Err()
}

func (s *Store) PutLock(ctx context.Context, lock fleet.PeriodLock) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO period_locks (` + lockColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			hash = excluded.hash,
			record_count = excluded.record_count,
			locked_by = excluded.locked_by,
			notes = excluded.notes
	`
	_, err := s.db.ExecContext(ctx, query,
		lock.ID, lock.Period.String(), lock.Hash, lock.RecordCount,
		lock.LockedBy, nullString(lock.Notes), lock.CreatedAt.String())
	return err
}

func (s *Store) DeleteLock(ctx context.Context, id fleet.LockID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM period_locks WHERE id = ?", id)
	return err
}

// =============================================================================
// AUDIT LOG (fleet.AuditLog interface)
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, entry fleet.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payloadJSON, _ := json.Marshal(entry.Payload)

	query := `
		INSERT INTO audit_log (id, at, actor, action, driver_id, movement_id, lock_id, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.At.String(), entry.Actor, entry.Action,
		nullString(string(entry.Driver)), nullString(string(entry.Movement)),
		nullString(string(entry.Lock)), string(payloadJSON))
	return err
}

// QueryAudit returns entries newest-first, optionally filtered by action.
func (s *Store) QueryAudit(ctx context.Context, actions []fleet.AuditAction, limit int) ([]fleet.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, at, actor, action, driver_id, movement_id, lock_id, payload_json FROM audit_log`
	var args []any
	if len(actions) > 0 {
		query += " WHERE action IN (?" + strings.Repeat(",?", len(actions)-1) + ")"
		for _, action := range actions {
			args = append(args, action)
		}
	}
	query += " ORDER BY at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []fleet.AuditEntry
	for rows.Next() {
		var (
			entry    fleet.AuditEntry
			at       string
			driver   sql.NullString
			movement sql.NullString
			lock     sql.NullString
			payload  sql.NullString
		)
		if err := rows.Scan(&entry.ID, &at, &entry.Actor, &entry.Action,
			&driver, &movement, &lock, &payload); err != nil {
			return nil, err
		}
		entry.At = parseTimePoint(at)
		entry.Driver = fleet.DriverID(driver.String)
		entry.Movement = fleet.MovementID(movement.String)
		entry.Lock = fleet.LockID(lock.String)
		if payload.Valid && payload.String != "" && payload.String != "null" {
			json.Unmarshal([]byte(payload.String), &entry.Payload)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"trip_documents", "stock_movements", "stock_items",
		"drivers", "vehicles", "balance_snapshots", "period_locks", "audit_log",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseTimePoint(s string) fleet.TimePoint {
	if len(s) == len("2006-01-02") {
		if t, err := time.Parse("2006-01-02", s); err == nil {
			return fleet.DayOf(t)
		}
	}
	t, _ := time.Parse(time.RFC3339, s)
	return fleet.InstantOf(t)
}
