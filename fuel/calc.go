/*
Package fuel implements deterministic fuel-consumption calculation.

PURPOSE:
  This package contains the pure arithmetic core of the trip-sheet system:
  given a trip's route segments, seasonal base rates and modifier
  percentages, compute how much fuel the trip consumed. Everything here is
  side-effect free so the same inputs always produce the same outputs,
  which the chain recalculator and the period seal both depend on.

THREE ALGORITHMS:
  MethodAggregate:  Sum all segment distances, round the sum, apply one
                    base rate selected by the trip's reference date.
                    Per-segment modifiers are ignored.
  MethodPerSegment: Each segment resolves its own seasonal rate (respecting
                    day mode) and its own additive modifier coefficient;
                    only the final total is rounded.
  MethodBlended:    Per-segment accounting produces an effective average
                    rate which is then applied to an externally supplied
                    total distance (usually odometer-derived). Falls back
                    to MethodAggregate output when no segment carries
                    distance.

PRECISION:
  All quantities are decimal.Decimal. Fuel amounts round to 2 places,
  distances to whole units. Rounding happens exactly where documented and
  nowhere else.

SEE ALSO:
  - season.go: Winter/summer resolution rules
  - fleet/chain.go: The recalculator that drives this package
*/
package fuel

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// METHOD - Which consumption algorithm to run
// =============================================================================

type Method string

const (
	MethodAggregate  Method = "aggregate"   // one rate for the whole trip
	MethodPerSegment Method = "per_segment" // rate and modifiers per segment
	MethodBlended    Method = "blended"     // per-segment average rate over odometer distance
)

// TranslateLegacyMethod maps the old two-value method name onto the current
// enum. The legacy "simple" value maps to MethodBlended, NOT to the literal
// aggregate algorithm: the original system upgraded simple requests so that
// per-segment modifiers were still respected. That changes output for some
// inputs versus a literal reading of the requested method; it is preserved
// here as documented behavior, not corrected.
func TranslateLegacyMethod(name string) Method {
	switch name {
	case "simple":
		return MethodBlended
	case "segments":
		return MethodPerSegment
	default:
		return Method(name)
	}
}

// =============================================================================
// INPUT / OUTPUT
// =============================================================================

// Segment is one leg of a trip route.
type Segment struct {
	Origin      string          `json:"origin"`
	Destination string          `json:"destination"`
	Distance    decimal.Decimal `json:"distance"`
	Urban       bool            `json:"urban"`
	ColdStart   bool            `json:"coldStart"`
	Mountain    bool            `json:"mountain"`

	// Date is set for multi-day trips where each leg selects its own season.
	Date *time.Time `json:"date,omitempty"`
}

// Rates holds the seasonal base rates in liters per 100 km.
type Rates struct {
	Summer decimal.Decimal
	Winter decimal.Decimal
}

// Modifiers holds the additive modifier fractions (0.10 means +10%).
type Modifiers struct {
	Urban     decimal.Decimal
	ColdStart decimal.Decimal
	Mountain  decimal.Decimal
}

// Input is everything the calculator needs for one trip.
type Input struct {
	Segments  []Segment
	Rates     Rates
	Modifiers Modifiers
	Season    SeasonSettings

	// Date is the trip's reference date. It selects the season for
	// MethodAggregate and for segments without their own date.
	Date time.Time

	// MultiDay decides whether each segment's own date (when present)
	// selects that segment's season. Single-day trips always use Date.
	MultiDay bool

	// TotalDistance, when set, overrides the segment-sum distance for
	// MethodBlended (e.g. taken from odometer readings).
	TotalDistance *decimal.Decimal
}

// Result is the calculator's output.
type Result struct {
	Distance    decimal.Decimal // whole units
	Consumption decimal.Decimal // liters, 2 decimal places
}

var hundred = decimal.NewFromInt(100)

// =============================================================================
// CALCULATION
// =============================================================================

// Calculate runs the selected algorithm. An unrecognized method falls back
// to MethodAggregate.
func Calculate(method Method, in Input) Result {
	switch method {
	case MethodPerSegment:
		return perSegment(in)
	case MethodBlended:
		return blended(in)
	default:
		return aggregate(in)
	}
}

// aggregate sums all segment distances unrounded, rounds the sum to the
// nearest whole unit and applies a single base rate selected by the trip's
// reference date. Per-segment modifiers are ignored.
func aggregate(in Input) Result {
	distance := RawDistance(in.Segments).Round(0)
	rate := in.Rates.rateFor(in.Season.IsWinter(in.Date))
	consumption := distance.Div(hundred).Mul(rate).Round(2)
	return Result{Distance: distance, Consumption: consumption}
}

// perSegment resolves each nonzero segment's own seasonal rate and additive
// modifier coefficient, accumulates raw consumption across segments and
// rounds only the final total.
func perSegment(in Input) Result {
	rawDistance, rawConsumption := perSegmentRaw(in)
	return Result{
		Distance:    rawDistance.Round(0),
		Consumption: rawConsumption.Round(2),
	}
}

// blended derives the effective average rate from per-segment accounting and
// applies it to the externally supplied total distance when provided. With
// no distance-carrying segments it falls back entirely to aggregate output.
func blended(in Input) Result {
	rawDistance, rawConsumption := perSegmentRaw(in)
	if rawDistance.IsZero() {
		return aggregate(in)
	}

	distance := rawDistance
	if in.TotalDistance != nil {
		distance = *in.TotalDistance
	}

	// effective rate = raw consumption per 100 km of raw segment distance
	effectiveRate := rawConsumption.Div(rawDistance.Div(hundred))
	consumption := distance.Div(hundred).Mul(effectiveRate).Round(2)
	return Result{Distance: distance.Round(0), Consumption: consumption}
}

// perSegmentRaw is the shared per-segment accounting loop. It returns the
// unrounded total segment distance and unrounded total consumption.
func perSegmentRaw(in Input) (rawDistance, rawConsumption decimal.Decimal) {
	for _, seg := range in.Segments {
		rawDistance = rawDistance.Add(seg.Distance)
		if seg.Distance.IsZero() {
			continue
		}

		rate := in.Rates.rateFor(in.Season.IsWinter(segmentDate(in, seg)))
		coeff := decimal.NewFromInt(1)
		if seg.Urban {
			coeff = coeff.Add(in.Modifiers.Urban)
		}
		if seg.ColdStart {
			coeff = coeff.Add(in.Modifiers.ColdStart)
		}
		if seg.Mountain {
			coeff = coeff.Add(in.Modifiers.Mountain)
		}

		rawConsumption = rawConsumption.Add(seg.Distance.Div(hundred).Mul(rate).Mul(coeff))
	}
	return rawDistance, rawConsumption
}

// segmentDate selects the date that decides a segment's season. Multi-day
// trips use the segment's own date when it has one; everything else falls
// back to the trip's reference date.
func segmentDate(in Input, seg Segment) time.Time {
	if in.MultiDay && seg.Date != nil {
		return *seg.Date
	}
	return in.Date
}

func (r Rates) rateFor(winter bool) decimal.Decimal {
	if winter {
		return r.Winter
	}
	return r.Summer
}

// RawDistance returns the unrounded sum of segment distances.
func RawDistance(segments []Segment) decimal.Decimal {
	var sum decimal.Decimal
	for _, seg := range segments {
		sum = sum.Add(seg.Distance)
	}
	return sum
}

// =============================================================================
// ENDING-VALUE HELPERS
// =============================================================================

// EndingOdometer computes the trip's closing odometer reading from the
// opening reading and the unrounded segment distance sum.
func EndingOdometer(start, rawDistance decimal.Decimal) decimal.Decimal {
	return start.Add(rawDistance).Round(0)
}

// EndingFuel computes the closing fuel amount. The result may be negative;
// validating negativity is the caller's responsibility (drafts are allowed
// to carry negative fuel transiently).
func EndingFuel(start, filled, consumed decimal.Decimal) decimal.Decimal {
	return start.Add(filled).Sub(consumed).Round(2)
}
