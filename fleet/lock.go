/*
lock.go - Period integrity lock

PURPOSE:
  Seals a calendar month so that posted historical documents cannot be
  silently altered. The seal is a SHA-256 digest over a canonical
  serialization of every posted trip document and stock movement dated in
  the month. Verification recomputes the set and compares, reporting a
  structured result (a failed verification is an expected, actionable
  outcome, not an exception).

CANONICALIZATION:
  The combined record set is sorted by identifier (plain string compare,
  locale independent), every object is rebuilt with its keys in
  lexicographic order (encoding/json emits map keys sorted), and fields
  that carry no business meaning (updatedAt) are dropped recursively.
  Numbers keep their exact stored text via json.Number.

HASHING:
  The digest runs on a dedicated worker goroutine communicating over a
  channel, so hashing a large record set never blocks the interactive
  path. The call is awaited and has no cancellation semantics: once
  requested it runs to completion or error.

GATE:
  IsLocked/Gate is the cheap read-only precondition check every mutating
  dated operation performs before any side effect. It is advisory at the
  application layer: it gates the exposed mutation functions, not
  storage-level writes.

SEE ALSO:
  - posting.go, chain.go: Gate consumers
*/
package fleet

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// uiOnlyFields are dropped from every object (recursively) before
// hashing: mutating them must not invalidate a sealed period.
var uiOnlyFields = map[string]bool{
	"updatedAt": true,
}

// LockService seals, verifies and gates calendar periods.
type LockService struct {
	Store  Store
	Log    *logrus.Logger
	Notify Notifier
}

func NewLockService(store Store, log *logrus.Logger) *LockService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LockService{Store: store, Log: log}
}

// VerifyResult is the structured outcome of a period verification.
type VerifyResult struct {
	IsValid      bool   `json:"isValid"`
	StoredHash   string `json:"storedHash"`
	CurrentHash  string `json:"currentHash"`
	StoredCount  int    `json:"storedCount"`
	CurrentCount int    `json:"currentCount"`
}

// =============================================================================
// GATE CHECK
// =============================================================================

// IsLocked reports whether a lock exists for the date's calendar month.
func (s *LockService) IsLocked(ctx context.Context, at TimePoint) (bool, error) {
	lock, err := s.Store.LockForPeriod(ctx, YearMonthOf(at))
	if err != nil {
		return false, err
	}
	return lock != nil, nil
}

// Gate rejects with PeriodLockedError when the date's month is sealed.
// Every mutating operation on a dated record calls this before any side
// effect begins.
func (s *LockService) Gate(ctx context.Context, at TimePoint) error {
	lock, err := s.Store.LockForPeriod(ctx, YearMonthOf(at))
	if err != nil {
		return err
	}
	if lock != nil {
		return &PeriodLockedError{Period: lock.Period, Lock: lock.ID}
	}
	return nil
}

// =============================================================================
// SEALING
// =============================================================================

// Lock seals a period. It refuses to seal twice and refuses to seal a
// period with zero eligible posted records.
func (s *LockService) Lock(ctx context.Context, period YearMonth, actor, notes string) (*PeriodLock, error) {
	existing, err := s.Store.LockForPeriod(ctx, period)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("lock period %s: %w", period, ErrPeriodAlreadyLocked)
	}

	canonical, count, err := s.canonicalRecordSet(ctx, period)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, fmt.Errorf("lock period %s: %w", period, ErrEmptyPeriod)
	}

	digest, err := digestInBackground(canonical)
	if err != nil {
		return nil, err
	}

	lock := PeriodLock{
		ID:          LockID(uuid.NewString()),
		Period:      period,
		Hash:        digest,
		RecordCount: count,
		LockedBy:    actor,
		Notes:       notes,
		CreatedAt:   Now(),
	}
	if err := s.Store.PutLock(ctx, lock); err != nil {
		return nil, err
	}

	s.audit(ctx, AuditEntry{
		Action: AuditPeriodLocked,
		Actor:  actor,
		Lock:   lock.ID,
		Payload: map[string]any{
			"period":      period.String(),
			"recordCount": count,
			"hash":        digest,
		},
	})
	s.changed(CollectionLocks)
	return &lock, nil
}

// Verify recomputes a sealed period's record set. Record counts are
// compared first as a cheap short-circuit: a mismatch is reported invalid
// without recomputing the digest.
func (s *LockService) Verify(ctx context.Context, id LockID) (*VerifyResult, error) {
	lock, err := s.Store.GetLock(ctx, id)
	if err != nil {
		return nil, err
	}
	if lock == nil {
		return nil, &NotFoundError{Collection: CollectionLocks, ID: string(id)}
	}

	canonical, count, err := s.canonicalRecordSet(ctx, lock.Period)
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{
		StoredHash:   lock.Hash,
		StoredCount:  lock.RecordCount,
		CurrentCount: count,
	}
	if count != lock.RecordCount {
		return result, nil
	}

	digest, err := digestInBackground(canonical)
	if err != nil {
		return nil, err
	}
	result.CurrentHash = digest
	result.IsValid = digest == lock.Hash
	return result, nil
}

// Unlock removes a lock. The audit entry is what distinguishes an unlock
// from normal activity.
func (s *LockService) Unlock(ctx context.Context, id LockID, actor string) error {
	lock, err := s.Store.GetLock(ctx, id)
	if err != nil {
		return err
	}
	if lock == nil {
		return &NotFoundError{Collection: CollectionLocks, ID: string(id)}
	}
	if err := s.Store.DeleteLock(ctx, id); err != nil {
		return err
	}

	s.audit(ctx, AuditEntry{
		Action: AuditPeriodUnlocked,
		Actor:  actor,
		Lock:   lock.ID,
		Payload: map[string]any{
			"period": lock.Period.String(),
			"hash":   lock.Hash,
		},
	})
	s.changed(CollectionLocks)
	return nil
}

// =============================================================================
// CANONICALIZATION
// =============================================================================

// canonicalRecordSet serializes the period's posted records into the
// deterministic form the digest is computed over.
func (s *LockService) canonicalRecordSet(ctx context.Context, period YearMonth) (string, int, error) {
	trips, err := s.Store.ListPostedTripsInPeriod(ctx, period)
	if err != nil {
		return "", 0, err
	}
	movements, err := s.Store.ListPostedMovementsInPeriod(ctx, period)
	if err != nil {
		return "", 0, err
	}

	type record struct {
		id      string
		payload any
	}
	records := make([]record, 0, len(trips)+len(movements))
	for i := range trips {
		records = append(records, record{id: string(trips[i].ID), payload: trips[i]})
	}
	for i := range movements {
		records = append(records, record{id: string(movements[i].ID), payload: movements[i]})
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].id < records[j].id })

	canonical := make([]any, 0, len(records))
	for _, r := range records {
		obj, err := canonicalObject(r.payload)
		if err != nil {
			return "", 0, err
		}
		canonical = append(canonical, obj)
	}

	out, err := json.Marshal(canonical)
	if err != nil {
		return "", 0, err
	}
	return string(out), len(canonical), nil
}

// canonicalObject rebuilds a record as a generic map so re-marshaling
// emits keys in lexicographic order, with UI-only fields stripped.
// json.Number preserves the exact stored number text.
func canonicalObject(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return stripUIFields(generic), nil
}

func stripUIFields(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, inner := range val {
			if uiOnlyFields[k] {
				delete(val, k)
				continue
			}
			val[k] = stripUIFields(inner)
		}
		return val
	case []any:
		for i := range val {
			val[i] = stripUIFields(val[i])
		}
		return val
	default:
		return v
	}
}

// =============================================================================
// BACKGROUND HASHING
// =============================================================================

type digestOutcome struct {
	digest string
	err    error
}

// digestInBackground hashes the canonical string on a dedicated goroutine
// and awaits the result. There is no partial or cancellable state: the
// worker either completes and reports the digest or reports an error.
func digestInBackground(canonical string) (string, error) {
	ch := make(chan digestOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- digestOutcome{err: fmt.Errorf("digest worker: %v", r)}
			}
		}()
		sum := sha256.Sum256([]byte(canonical))
		ch <- digestOutcome{digest: hex.EncodeToString(sum[:])}
	}()
	out := <-ch
	return out.digest, out.err
}

func (s *LockService) audit(ctx context.Context, entry AuditEntry) {
	entry.ID = uuid.NewString()
	entry.At = Now()
	if err := s.Store.AppendAudit(ctx, entry); err != nil {
		s.Log.WithError(err).WithField("action", entry.Action).Warn("audit append failed")
	}
}

func (s *LockService) changed(collections ...string) {
	if s.Notify == nil {
		return
	}
	for _, c := range collections {
		s.Notify.CollectionChanged(c)
	}
}
