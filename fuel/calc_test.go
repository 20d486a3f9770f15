package fuel_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/motorpool/fleet-ledger/fuel"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func summerDay() time.Time {
	return time.Date(2024, time.July, 10, 0, 0, 0, 0, time.UTC)
}

func winterDay() time.Time {
	return time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)
}

func recurringSeason() fuel.SeasonSettings {
	return fuel.SeasonSettings{
		Rule:             fuel.SeasonRecurring,
		WinterStartMonth: time.November,
		SummerStartMonth: time.April,
	}
}

func standardModifiers() fuel.Modifiers {
	return fuel.Modifiers{
		Urban:     dec("0.10"),
		ColdStart: dec("0.05"),
		Mountain:  dec("0.15"),
	}
}

func baseInput(date time.Time, segments ...fuel.Segment) fuel.Input {
	return fuel.Input{
		Segments:  segments,
		Rates:     fuel.Rates{Summer: dec("10"), Winter: dec("12")},
		Modifiers: standardModifiers(),
		Season:    recurringSeason(),
		Date:      date,
	}
}

// =============================================================================
// SEASON RESOLUTION
// =============================================================================

func TestSeason_RecurringBoundaries(t *testing.T) {
	// GIVEN: Winter from November through March
	// THEN: November and March are winter, April and October are not

	season := recurringSeason()

	cases := []struct {
		month  time.Month
		winter bool
	}{
		{time.January, true},
		{time.March, true},
		{time.April, false},
		{time.July, false},
		{time.October, false},
		{time.November, true},
		{time.December, true},
	}
	for _, c := range cases {
		date := time.Date(2024, c.month, 15, 0, 0, 0, 0, time.UTC)
		if got := season.IsWinter(date); got != c.winter {
			t.Errorf("%s: IsWinter = %v, want %v", c.month, got, c.winter)
		}
	}
}

func TestSeason_ManualIntervalInclusive(t *testing.T) {
	// GIVEN: A manual winter interval
	// THEN: Both endpoints count as winter, the days around them do not

	season := fuel.SeasonSettings{
		Rule:       fuel.SeasonManual,
		WinterFrom: time.Date(2024, time.November, 15, 0, 0, 0, 0, time.UTC),
		WinterTo:   time.Date(2025, time.March, 20, 0, 0, 0, 0, time.UTC),
	}

	if !season.IsWinter(time.Date(2024, time.November, 15, 0, 0, 0, 0, time.UTC)) {
		t.Error("interval start should be winter")
	}
	if !season.IsWinter(time.Date(2025, time.March, 20, 23, 59, 0, 0, time.UTC)) {
		t.Error("interval end (any time of day) should be winter")
	}
	if season.IsWinter(time.Date(2024, time.November, 14, 0, 0, 0, 0, time.UTC)) {
		t.Error("day before interval should not be winter")
	}
	if season.IsWinter(time.Date(2025, time.March, 21, 0, 0, 0, 0, time.UTC)) {
		t.Error("day after interval should not be winter")
	}
}

func TestSeason_Determinism(t *testing.T) {
	// Same date, same settings, same answer - no hidden clock reads.
	season := recurringSeason()
	date := time.Date(2024, time.December, 1, 0, 0, 0, 0, time.UTC)
	first := season.IsWinter(date)
	for i := 0; i < 100; i++ {
		if season.IsWinter(date) != first {
			t.Fatal("IsWinter is not deterministic")
		}
	}
}

// =============================================================================
// AGGREGATE METHOD
// =============================================================================

func TestAggregate_SumsAndRoundsDistanceFirst(t *testing.T) {
	// GIVEN: Segments of 10.4 and 10.4 km (raw sum 20.8)
	// WHEN: Calculating with the aggregate method
	// THEN: The SUM is rounded (21), not the individual segments (10+10)

	in := baseInput(summerDay(),
		fuel.Segment{Distance: dec("10.4")},
		fuel.Segment{Distance: dec("10.4")},
	)
	result := fuel.Calculate(fuel.MethodAggregate, in)

	if !result.Distance.Equal(dec("21")) {
		t.Errorf("distance = %s, want 21", result.Distance)
	}
	// 21 / 100 * 10 = 2.1
	if !result.Consumption.Equal(dec("2.1")) {
		t.Errorf("consumption = %s, want 2.1", result.Consumption)
	}
}

func TestAggregate_IgnoresSegmentModifiers(t *testing.T) {
	// Urban/cold-start/mountain flags must not affect the aggregate method.
	plain := fuel.Calculate(fuel.MethodAggregate, baseInput(summerDay(),
		fuel.Segment{Distance: dec("100")},
	))
	flagged := fuel.Calculate(fuel.MethodAggregate, baseInput(summerDay(),
		fuel.Segment{Distance: dec("100"), Urban: true, ColdStart: true, Mountain: true},
	))

	if !plain.Consumption.Equal(flagged.Consumption) {
		t.Errorf("modifiers leaked into aggregate: %s != %s", flagged.Consumption, plain.Consumption)
	}
}

func TestAggregate_WinterRate(t *testing.T) {
	in := baseInput(winterDay(), fuel.Segment{Distance: dec("100")})
	result := fuel.Calculate(fuel.MethodAggregate, in)

	if !result.Consumption.Equal(dec("12")) {
		t.Errorf("consumption = %s, want 12 (winter rate)", result.Consumption)
	}
}

// =============================================================================
// PER-SEGMENT METHOD
// =============================================================================

func TestPerSegment_ModifierCoefficients(t *testing.T) {
	// GIVEN: Summer rate 10 L/100km, two 50 km segments, second urban (+10%)
	// WHEN: Calculating per segment
	// THEN: 50/100*10 + 50/100*10*1.10 = 5 + 5.5 = 10.5 over 100 km

	in := baseInput(summerDay(),
		fuel.Segment{Distance: dec("50")},
		fuel.Segment{Distance: dec("50"), Urban: true},
	)
	result := fuel.Calculate(fuel.MethodPerSegment, in)

	if !result.Distance.Equal(dec("100")) {
		t.Errorf("distance = %s, want 100", result.Distance)
	}
	if !result.Consumption.Equal(dec("10.5")) {
		t.Errorf("consumption = %s, want 10.5", result.Consumption)
	}

	// The same trip through the aggregate method ignores the urban flag.
	agg := fuel.Calculate(fuel.MethodAggregate, in)
	if !agg.Consumption.Equal(dec("10")) {
		t.Errorf("aggregate consumption = %s, want 10", agg.Consumption)
	}
}

func TestPerSegment_ModifiersAddNotMultiply(t *testing.T) {
	// All three flags: coefficient is 1 + 0.10 + 0.05 + 0.15 = 1.30.
	in := baseInput(summerDay(),
		fuel.Segment{Distance: dec("100"), Urban: true, ColdStart: true, Mountain: true},
	)
	result := fuel.Calculate(fuel.MethodPerSegment, in)

	if !result.Consumption.Equal(dec("13")) {
		t.Errorf("consumption = %s, want 13", result.Consumption)
	}
}

func TestPerSegment_ZeroDistanceSegmentsContributeNothing(t *testing.T) {
	with := fuel.Calculate(fuel.MethodPerSegment, baseInput(summerDay(),
		fuel.Segment{Distance: dec("80")},
		fuel.Segment{Distance: decimal.Zero, Urban: true},
	))
	without := fuel.Calculate(fuel.MethodPerSegment, baseInput(summerDay(),
		fuel.Segment{Distance: dec("80")},
	))

	if !with.Consumption.Equal(without.Consumption) {
		t.Errorf("zero segment changed consumption: %s != %s", with.Consumption, without.Consumption)
	}
	if !with.Distance.Equal(without.Distance) {
		t.Errorf("zero segment changed distance: %s != %s", with.Distance, without.Distance)
	}
}

func TestPerSegment_RoundsOnlyFinalTotal(t *testing.T) {
	// GIVEN: Three segments each consuming 0.3335 liters raw
	// THEN: Per-segment rounding (0.33 * 3 = 0.99) would lose a cent; the
	//       accumulated total 1.0005 rounds once to 1.00

	in := baseInput(summerDay(),
		fuel.Segment{Distance: dec("3.335")},
		fuel.Segment{Distance: dec("3.335")},
		fuel.Segment{Distance: dec("3.335")},
	)
	result := fuel.Calculate(fuel.MethodPerSegment, in)

	if !result.Consumption.Equal(dec("1")) {
		t.Errorf("consumption = %s, want 1.00 (single rounding of the total)", result.Consumption)
	}
}

func TestPerSegment_MultiDaySeasonSelection(t *testing.T) {
	// GIVEN: A multi-day trip crossing a season boundary
	// WHEN: One segment is dated in winter, one in summer
	// THEN: Each segment resolves its own rate

	nov := time.Date(2024, time.November, 1, 0, 0, 0, 0, time.UTC)
	oct := time.Date(2024, time.October, 31, 0, 0, 0, 0, time.UTC)

	in := baseInput(oct,
		fuel.Segment{Distance: dec("100"), Date: &oct},
		fuel.Segment{Distance: dec("100"), Date: &nov},
	)
	in.MultiDay = true
	result := fuel.Calculate(fuel.MethodPerSegment, in)

	// 100km summer (10) + 100km winter (12) = 22
	if !result.Consumption.Equal(dec("22")) {
		t.Errorf("consumption = %s, want 22", result.Consumption)
	}

	// Without day mode every segment uses the trip's reference date.
	in.MultiDay = false
	single := fuel.Calculate(fuel.MethodPerSegment, in)
	if !single.Consumption.Equal(dec("20")) {
		t.Errorf("single-day consumption = %s, want 20", single.Consumption)
	}
}

func TestPerSegment_MultiDayFallsBackToTripDate(t *testing.T) {
	// A multi-day segment without its own date uses the trip date.
	in := baseInput(winterDay(),
		fuel.Segment{Distance: dec("100")},
	)
	in.MultiDay = true
	result := fuel.Calculate(fuel.MethodPerSegment, in)

	if !result.Consumption.Equal(dec("12")) {
		t.Errorf("consumption = %s, want 12 (trip date is winter)", result.Consumption)
	}
}

// =============================================================================
// BLENDED METHOD
// =============================================================================

func TestBlended_EffectiveRateOverTotalDistance(t *testing.T) {
	// GIVEN: Segments totaling 100 km with effective rate 10.5 L/100km,
	//        odometer says the trip was actually 110 km
	// THEN: Consumption = 110/100 * 10.5 = 11.55

	total := dec("110")
	in := baseInput(summerDay(),
		fuel.Segment{Distance: dec("50")},
		fuel.Segment{Distance: dec("50"), Urban: true},
	)
	in.TotalDistance = &total
	result := fuel.Calculate(fuel.MethodBlended, in)

	if !result.Distance.Equal(dec("110")) {
		t.Errorf("distance = %s, want 110", result.Distance)
	}
	if !result.Consumption.Equal(dec("11.55")) {
		t.Errorf("consumption = %s, want 11.55", result.Consumption)
	}
}

func TestBlended_WithoutOverrideMatchesPerSegment(t *testing.T) {
	in := baseInput(summerDay(),
		fuel.Segment{Distance: dec("50")},
		fuel.Segment{Distance: dec("50"), Urban: true},
	)
	blended := fuel.Calculate(fuel.MethodBlended, in)
	perSeg := fuel.Calculate(fuel.MethodPerSegment, in)

	if !blended.Consumption.Equal(perSeg.Consumption) {
		t.Errorf("blended without override = %s, want %s", blended.Consumption, perSeg.Consumption)
	}
}

func TestBlended_ZeroSegmentDistanceFallsBackToAggregate(t *testing.T) {
	// No segment carries distance: no division by zero, aggregate output.
	total := dec("120")
	in := baseInput(summerDay(),
		fuel.Segment{Distance: decimal.Zero, Urban: true},
	)
	in.TotalDistance = &total
	result := fuel.Calculate(fuel.MethodBlended, in)
	agg := fuel.Calculate(fuel.MethodAggregate, in)

	if !result.Consumption.Equal(agg.Consumption) {
		t.Errorf("consumption = %s, want aggregate fallback %s", result.Consumption, agg.Consumption)
	}
	if !result.Distance.Equal(agg.Distance) {
		t.Errorf("distance = %s, want aggregate fallback %s", result.Distance, agg.Distance)
	}
}

// =============================================================================
// LEGACY METHOD TRANSLATION
// =============================================================================

func TestTranslateLegacyMethod(t *testing.T) {
	cases := []struct {
		name string
		want fuel.Method
	}{
		// "simple" was upgraded to the blended algorithm, not aggregate.
		{"simple", fuel.MethodBlended},
		{"segments", fuel.MethodPerSegment},
		{"aggregate", fuel.MethodAggregate},
		{"per_segment", fuel.MethodPerSegment},
		{"blended", fuel.MethodBlended},
	}
	for _, c := range cases {
		if got := fuel.TranslateLegacyMethod(c.name); got != c.want {
			t.Errorf("TranslateLegacyMethod(%q) = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestCalculate_UnknownMethodFallsBackToAggregate(t *testing.T) {
	in := baseInput(summerDay(), fuel.Segment{Distance: dec("100"), Urban: true})
	unknown := fuel.Calculate(fuel.Method("retired_mode"), in)
	agg := fuel.Calculate(fuel.MethodAggregate, in)

	if !unknown.Consumption.Equal(agg.Consumption) {
		t.Errorf("unknown method = %s, want aggregate %s", unknown.Consumption, agg.Consumption)
	}
}

// =============================================================================
// ENDING-VALUE HELPERS
// =============================================================================

func TestEndingOdometer_UsesUnroundedDistance(t *testing.T) {
	// GIVEN: Start 1000, segments 10.4 + 10.4 (raw 20.8)
	// THEN: 1000 + 20.8 = 1020.8 -> 1021, NOT 1000 + 21 via a pre-rounded sum

	segments := []fuel.Segment{{Distance: dec("10.4")}, {Distance: dec("10.4")}}
	end := fuel.EndingOdometer(dec("1000"), fuel.RawDistance(segments))

	if !end.Equal(dec("1021")) {
		t.Errorf("ending odometer = %s, want 1021", end)
	}
}

func TestEndingFuel_MayGoNegative(t *testing.T) {
	end := fuel.EndingFuel(dec("5"), dec("0"), dec("7.5"))
	if !end.Equal(dec("-2.5")) {
		t.Errorf("ending fuel = %s, want -2.5 (negative is the caller's concern)", end)
	}
}

func TestCalculate_Determinism(t *testing.T) {
	// The period seal and the chain recalculator both assume this.
	in := baseInput(summerDay(),
		fuel.Segment{Distance: dec("33.333"), Urban: true},
		fuel.Segment{Distance: dec("66.667"), Mountain: true},
	)
	first := fuel.Calculate(fuel.MethodPerSegment, in)
	for i := 0; i < 50; i++ {
		again := fuel.Calculate(fuel.MethodPerSegment, in)
		if !again.Consumption.Equal(first.Consumption) || !again.Distance.Equal(first.Distance) {
			t.Fatal("Calculate is not deterministic")
		}
	}
}
