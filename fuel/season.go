package fuel

import "time"

// =============================================================================
// SEASON RESOLUTION - Which base rate applies on a given date
// =============================================================================

type SeasonRule string

const (
	// SeasonRecurring switches seasons on the same month boundaries every
	// year (e.g. winter from November through March).
	SeasonRecurring SeasonRule = "recurring"

	// SeasonManual declares winter as one explicit date interval.
	SeasonManual SeasonRule = "manual"
)

// SeasonSettings decides whether a date falls into the winter rate.
type SeasonSettings struct {
	Rule SeasonRule

	// Recurring rule: winter iff month >= WinterStartMonth OR
	// month < SummerStartMonth.
	WinterStartMonth time.Month
	SummerStartMonth time.Month

	// Manual rule: winter iff the date falls within [WinterFrom, WinterTo],
	// both ends inclusive.
	WinterFrom time.Time
	WinterTo   time.Time
}

// IsWinter is a pure function of date plus settings.
func (s SeasonSettings) IsWinter(date time.Time) bool {
	switch s.Rule {
	case SeasonManual:
		day := truncateToDay(date)
		return !day.Before(truncateToDay(s.WinterFrom)) && !day.After(truncateToDay(s.WinterTo))
	default:
		m := date.Month()
		return m >= s.WinterStartMonth || m < s.SummerStartMonth
	}
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
