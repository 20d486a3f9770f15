/*
chain.go - Waybill chain recalculation

PURPOSE:
  A vehicle's trip documents form a chronological chain: each document's
  starting odometer and fuel are the previous document's ending values.
  Editing one document therefore invalidates every dependent draft after
  it. The recalculator walks the chain forward, carries ending values into
  the next document, recomputes distance/consumption through the fuel
  calculator and persists all changed successors in one bulk write.

RULES:
  - Documents order by validity-start timestamp, then document number.
  - Only drafts are ever modified. The walk stops at the first non-draft
    successor: posted documents are immutable ground truth.
  - Both operations are no-ops (and never fail) when there are no
    eligible successors.
  - Nothing is persisted until the whole batch computed successfully.

SEE ALSO:
  - fuel: The pure calculator driven per document
  - lock.go: Callers gate the triggering edit's date before recalculating
*/
package fleet

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/motorpool/fleet-ledger/fuel"
)

// ChainRecalculator recomputes dependent draft trip documents.
type ChainRecalculator struct {
	Store     Store
	Season    fuel.SeasonSettings
	Modifiers fuel.Modifiers
	Log       *logrus.Logger
	Notify    Notifier
}

func NewChainRecalculator(store Store, season fuel.SeasonSettings, mods fuel.Modifiers, log *logrus.Logger) *ChainRecalculator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ChainRecalculator{Store: store, Season: season, Modifiers: mods, Log: log}
}

// FieldChange records one recomputed field for the caller-side audit/UI.
type FieldChange struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// DocumentLog is the per-document change record of a bulk recompute.
type DocumentLog struct {
	Trip     TripID        `json:"tripId"`
	Number   string        `json:"number"`
	Changes  []FieldChange `json:"changes"`
	Warnings []string      `json:"warnings,omitempty"`
}

// RecalcReport summarizes a bulk recompute.
type RecalcReport struct {
	Count int           `json:"count"`
	Logs  []DocumentLog `json:"logs"`
}

// =============================================================================
// CASCADE FROM ONE EDITED DOCUMENT
// =============================================================================

// RecalculateFrom walks forward from a just-saved document through its
// strictly-draft successors, carrying its ending odometer/fuel values
// into each and recomputing them in turn. Returns the number of changed
// documents.
func (c *ChainRecalculator) RecalculateFrom(ctx context.Context, edited *TripDocument) (int, error) {
	docs, vehicle, err := c.vehicleChain(ctx, edited.Vehicle)
	if err != nil {
		return 0, err
	}

	pos := -1
	for i := range docs {
		if docs[i].ID == edited.ID {
			pos = i
			break
		}
	}
	if pos == -1 {
		return 0, &NotFoundError{Collection: CollectionTrips, ID: string(edited.ID)}
	}

	prevOdo, prevFuel := edited.OdometerEnd, edited.FuelEnd
	var changed []TripDocument
	for i := pos + 1; i < len(docs); i++ {
		if docs[i].Status != TripDraft {
			break // posted successors are immutable ground truth
		}
		updated := c.recompute(docs[i], vehicle, prevOdo, prevFuel)
		if !sameComputedValues(docs[i], updated) {
			changed = append(changed, updated)
		}
		prevOdo, prevFuel = updated.OdometerEnd, updated.FuelEnd
	}

	if len(changed) > 0 {
		if err := c.Store.PutTrips(ctx, changed); err != nil {
			return 0, err
		}
		if c.Notify != nil {
			c.Notify.CollectionChanged(CollectionTrips)
		}
	}
	return len(changed), nil
}

// =============================================================================
// BULK RECOMPUTE FROM AN ANCHOR DATE
// =============================================================================

// RecalculateDraftsFrom recomputes every draft document of the vehicle on
// or after the target date, anchored on the latest posted document
// strictly before it (or, failing that, the first draft's own starting
// values / the vehicle master record). It returns the mutated count plus
// a structured change log and warnings per document.
func (c *ChainRecalculator) RecalculateDraftsFrom(ctx context.Context, vehicleID VehicleID, from TimePoint) (*RecalcReport, error) {
	docs, vehicle, err := c.vehicleChain(ctx, vehicleID)
	if err != nil {
		return nil, err
	}

	// Anchor: latest posted document strictly before the target date.
	var anchor *TripDocument
	start := len(docs)
	for i := range docs {
		if docs[i].ValidFrom.Before(from) {
			if docs[i].Status == TripPosted {
				anchor = &docs[i]
			}
			continue
		}
		start = i
		break
	}

	report := &RecalcReport{}
	if start == len(docs) {
		return report, nil // nothing on or after the date
	}

	var prevOdo, prevFuel decimal.Decimal
	switch {
	case anchor != nil:
		prevOdo, prevFuel = anchor.OdometerEnd, anchor.FuelEnd
	case !docs[start].OdometerStart.IsZero() || !docs[start].FuelStart.IsZero():
		prevOdo, prevFuel = docs[start].OdometerStart, docs[start].FuelStart
	default:
		prevOdo, prevFuel = vehicle.InitialOdometer, vehicle.InitialFuel
	}

	var changed []TripDocument
	for i := start; i < len(docs); i++ {
		if docs[i].Status != TripDraft {
			break
		}
		old := docs[i]
		updated := c.recompute(old, vehicle, prevOdo, prevFuel)

		entry := DocumentLog{Trip: old.ID, Number: old.Number, Changes: diffComputedValues(old, updated)}
		if updated.FuelEnd.IsNegative() {
			entry.Warnings = append(entry.Warnings, "negative ending fuel")
			c.Log.WithFields(logrus.Fields{
				"trip":    old.ID,
				"number":  old.Number,
				"fuelEnd": updated.FuelEnd,
			}).Warn("recalculated draft ends with negative fuel")
		}
		if len(entry.Changes) > 0 || len(entry.Warnings) > 0 {
			report.Logs = append(report.Logs, entry)
		}
		if len(entry.Changes) > 0 {
			changed = append(changed, updated)
		}
		prevOdo, prevFuel = updated.OdometerEnd, updated.FuelEnd
	}

	// Writes happen only after the whole batch computed successfully.
	if len(changed) > 0 {
		if err := c.Store.PutTrips(ctx, changed); err != nil {
			return nil, err
		}
		if c.Notify != nil {
			c.Notify.CollectionChanged(CollectionTrips)
		}
	}
	report.Count = len(changed)
	return report, nil
}

// =============================================================================
// RECOMPUTATION CORE
// =============================================================================

// recompute rebuilds one draft from its predecessor's ending values: new
// starting odometer/fuel, recalculated consumption for its own method and
// day mode, and new ending values through the calculator's helpers.
func (c *ChainRecalculator) recompute(doc TripDocument, vehicle *Vehicle, startOdo, startFuel decimal.Decimal) TripDocument {
	doc.OdometerStart = startOdo
	doc.FuelStart = startFuel

	segments := fuelSegments(doc.Segments)
	in := fuel.Input{
		Segments:  segments,
		Rates:     fuel.Rates{Summer: vehicle.SummerRate, Winter: vehicle.WinterRate},
		Modifiers: c.Modifiers,
		Season:    c.Season,
		Date:      doc.Date.Time,
		MultiDay:  doc.MultiDay,
	}
	result := fuel.Calculate(doc.Method, in)

	doc.FuelPlanned = result.Consumption
	doc.OdometerEnd = fuel.EndingOdometer(startOdo, fuel.RawDistance(segments))
	doc.FuelEnd = fuel.EndingFuel(startFuel, doc.FuelFilled, result.Consumption)
	doc.UpdatedAt = Now()
	return doc
}

func (c *ChainRecalculator) vehicleChain(ctx context.Context, id VehicleID) ([]TripDocument, *Vehicle, error) {
	vehicle, err := c.Store.GetVehicle(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if vehicle == nil {
		return nil, nil, &NotFoundError{Collection: "vehicles", ID: string(id)}
	}

	docs, err := c.Store.ListTripsByVehicle(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	sort.SliceStable(docs, func(i, j int) bool {
		if !docs[i].ValidFrom.Equal(docs[j].ValidFrom) {
			return docs[i].ValidFrom.Before(docs[j].ValidFrom)
		}
		return docs[i].Number < docs[j].Number
	})
	return docs, vehicle, nil
}

func fuelSegments(segments []RouteSegment) []fuel.Segment {
	out := make([]fuel.Segment, len(segments))
	for i, seg := range segments {
		out[i] = fuel.Segment{
			Origin:      seg.Origin,
			Destination: seg.Destination,
			Distance:    seg.Distance,
			Urban:       seg.Urban,
			ColdStart:   seg.ColdStart,
			Mountain:    seg.Mountain,
		}
		if seg.Date != nil {
			t := seg.Date.Time
			out[i].Date = &t
		}
	}
	return out
}

var computedFields = []struct {
	name string
	get  func(TripDocument) decimal.Decimal
}{
	{"odometerStart", func(d TripDocument) decimal.Decimal { return d.OdometerStart }},
	{"odometerEnd", func(d TripDocument) decimal.Decimal { return d.OdometerEnd }},
	{"fuelStart", func(d TripDocument) decimal.Decimal { return d.FuelStart }},
	{"fuelEnd", func(d TripDocument) decimal.Decimal { return d.FuelEnd }},
	{"fuelPlanned", func(d TripDocument) decimal.Decimal { return d.FuelPlanned }},
}

func sameComputedValues(a, b TripDocument) bool {
	for _, f := range computedFields {
		if !f.get(a).Equal(f.get(b)) {
			return false
		}
	}
	return true
}

func diffComputedValues(old, new TripDocument) []FieldChange {
	var changes []FieldChange
	for _, f := range computedFields {
		if !f.get(old).Equal(f.get(new)) {
			changes = append(changes, FieldChange{Field: f.name, Old: f.get(old).String(), New: f.get(new).String()})
		}
	}
	return changes
}
