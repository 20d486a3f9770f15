package fleet

import (
	"fmt"
	"time"
)

// =============================================================================
// TIME POINT - Dates with day vs instant granularity
// =============================================================================

// TimePoint is a point in time carrying its own comparison granularity.
// Trip documents and movements are dated by calendar day; audit records and
// balance queries may carry full timestamps. When two points of different
// granularity are compared, the comparison coarsens to the day: a day-only
// target date therefore matches everything on that calendar day.
type TimePoint struct {
	Time        time.Time
	Granularity Granularity
}

type Granularity int

const (
	GranularityDay Granularity = iota
	GranularityInstant
)

// Constructors
func NewDay(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC), Granularity: GranularityDay}
}

func DayOf(t time.Time) TimePoint {
	return TimePoint{Time: t, Granularity: GranularityDay}
}

func InstantOf(t time.Time) TimePoint {
	return TimePoint{Time: t, Granularity: GranularityInstant}
}

func Today() TimePoint {
	now := time.Now().UTC()
	return NewDay(now.Year(), now.Month(), now.Day())
}

func Now() TimePoint {
	return InstantOf(time.Now().UTC())
}

// coarsen returns both points at the coarser of the two granularities.
func coarsen(a, b TimePoint) (time.Time, time.Time) {
	if a.Granularity == GranularityDay || b.Granularity == GranularityDay {
		return a.dayTime(), b.dayTime()
	}
	return a.Time.UTC(), b.Time.UTC()
}

func (tp TimePoint) dayTime() time.Time {
	t := tp.Time.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool { a, b := coarsen(tp, other); return a.Before(b) }
func (tp TimePoint) After(other TimePoint) bool  { a, b := coarsen(tp, other); return a.After(b) }
func (tp TimePoint) Equal(other TimePoint) bool  { a, b := coarsen(tp, other); return a.Equal(b) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return !tp.After(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return !tp.Before(other) }

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint {
	return TimePoint{Time: tp.Time.AddDate(0, 0, n), Granularity: tp.Granularity}
}

// Properties
func (tp TimePoint) Year() int         { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month { return tp.Time.Month() }
func (tp TimePoint) Day() int          { return tp.Time.Day() }
func (tp TimePoint) IsZero() bool      { return tp.Time.IsZero() }

// MonthEnd returns the last day of the point's calendar month.
func (tp TimePoint) MonthEnd() TimePoint {
	t := time.Date(tp.Year(), tp.Month()+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	return TimePoint{Time: t, Granularity: GranularityDay}
}

func (tp TimePoint) String() string {
	if tp.Granularity == GranularityDay {
		return tp.Time.Format("2006-01-02")
	}
	return tp.Time.UTC().Format(time.RFC3339)
}

// MarshalJSON emits sortable ISO form: "2006-01-02" for days, RFC 3339 for
// instants. The period seal relies on this being deterministic.
func (tp TimePoint) MarshalJSON() ([]byte, error) {
	return []byte(`"` + tp.String() + `"`), nil
}

func (tp *TimePoint) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("invalid time point %s", s)
	}
	s = s[1 : len(s)-1]
	if t, err := time.Parse("2006-01-02", s); err == nil {
		*tp = TimePoint{Time: t, Granularity: GranularityDay}
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("invalid time point %q: %w", s, err)
	}
	*tp = TimePoint{Time: t, Granularity: GranularityInstant}
	return nil
}

// =============================================================================
// YEAR-MONTH - The period key for locking
// =============================================================================

// YearMonth identifies one calendar month, the unit of period locking.
type YearMonth struct {
	Year  int
	Month time.Month
}

func YearMonthOf(tp TimePoint) YearMonth {
	return YearMonth{Year: tp.Year(), Month: tp.Month()}
}

// ParseYearMonth parses the sortable "2006-01" form.
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return YearMonth{}, fmt.Errorf("invalid period %q: %w", s, err)
	}
	return YearMonth{Year: t.Year(), Month: t.Month()}, nil
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

func (ym YearMonth) Contains(tp TimePoint) bool {
	return tp.Year() == ym.Year && tp.Month() == ym.Month
}

func (ym YearMonth) Start() TimePoint { return NewDay(ym.Year, ym.Month, 1) }
func (ym YearMonth) End() TimePoint   { return ym.Start().MonthEnd() }

// MarshalJSON emits the sortable "2006-01" form.
func (ym YearMonth) MarshalJSON() ([]byte, error) {
	return []byte(`"` + ym.String() + `"`), nil
}

func (ym *YearMonth) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("invalid period %s", s)
	}
	parsed, err := ParseYearMonth(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*ym = parsed
	return nil
}

func (ym YearMonth) Next() YearMonth {
	t := time.Date(ym.Year, ym.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return YearMonth{Year: t.Year(), Month: t.Month()}
}
