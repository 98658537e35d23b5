// Package calendar converts the simulation's elapsed-minute counter into
// structured dates and back.
package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"
)

// Time constants in simulated minutes.
const (
	MinutesPerHour = 60
	MinutesPerDay  = 1440 // 24 hours × 60
	DaysPerYear    = 365
)

// ErrBeforeEpoch is returned when a date precedes the calendar's base date.
var ErrBeforeEpoch = errors.New("calendar: date precedes base date")

// ErrInvalidDate is returned for dates with out-of-range fields.
var ErrInvalidDate = errors.New("calendar: invalid date")

// Mode selects how month lengths are derived.
type Mode uint8

const (
	Gregorian Mode = iota // February has 29 days in leap years
	NoLeap                // Every year has 365 days
)

// ParseMode accepts "gregorian" or "noleap".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "gregorian":
		return Gregorian, nil
	case "noleap", "no-leap", "365":
		return NoLeap, nil
	default:
		return 0, fmt.Errorf("calendar: unknown mode %q", s)
	}
}

func (m Mode) String() string {
	if m == NoLeap {
		return "noleap"
	}
	return "gregorian"
}

var monthDays = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// cumulative days before each month in a common year.
var monthStart = [13]int{0, 31, 59, 90, 120, 151, 181, 212, 243, 273, 304, 334, 365}

// Date is an immutable calendar position with minute resolution.
type Date struct {
	Year        int `json:"year"`
	Month       int `json:"month"` // 1–12
	Day         int `json:"day"`   // 1–days in month
	MinuteOfDay int `json:"minute_of_day"`
}

// Hour returns the hour of the day (0–23).
func (d Date) Hour() int { return d.MinuteOfDay / MinutesPerHour }

// Minute returns the minute within the hour (0–59).
func (d Date) Minute() int { return d.MinuteOfDay % MinutesPerHour }

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d", d.Year, d.Month, d.Day, d.Hour(), d.Minute())
}

// Format renders the date with a strftime layout such as "%Y-%m-%d %H:%M".
// Every date produced by either mode is also a valid Gregorian date.
func (d Date) Format(layout string) string {
	t := time.Date(d.Year, time.Month(d.Month), d.Day, d.Hour(), d.Minute(), 0, 0, time.UTC)
	return strftime.Format(layout, t)
}

// Before reports whether d is strictly earlier than o.
func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	if d.Day != o.Day {
		return d.Day < o.Day
	}
	return d.MinuteOfDay < o.MinuteOfDay
}

// Crossed records which calendar boundaries an advance passed over.
type Crossed struct {
	Day   bool `json:"day"`
	Month bool `json:"month"`
	Year  bool `json:"year"`
}

// Any reports whether at least one boundary was crossed.
func (c Crossed) Any() bool { return c.Day || c.Month || c.Year }

// Boundaries compares two dates with from not after to.
func Boundaries(from, to Date) Crossed {
	var c Crossed
	c.Year = to.Year != from.Year
	c.Month = c.Year || to.Month != from.Month
	c.Day = c.Month || to.Day != from.Day
	return c
}

// Calendar maps elapsed minutes to dates relative to a base date at midnight.
type Calendar struct {
	mode Mode
	base Date
	ord  int64 // ordinal day of base
}

// New builds a calendar starting at the given year/month/day.
func New(mode Mode, year, month, day int) (Calendar, error) {
	c := Calendar{mode: mode}
	base := Date{Year: year, Month: month, Day: day}
	if err := c.Validate(base); err != nil {
		return Calendar{}, err
	}
	c.base = base
	c.ord = c.ordinal(base)
	return c, nil
}

// MustNew is New for package-level defaults and tests.
func MustNew(mode Mode, year, month, day int) Calendar {
	c, err := New(mode, year, month, day)
	if err != nil {
		panic(err)
	}
	return c
}

// Default is the Gregorian calendar starting 2025-01-01.
func Default() Calendar { return MustNew(Gregorian, 2025, 1, 1) }

// Parse builds a calendar from a mode name and a YYYY-MM-DD base date.
func Parse(mode, start string) (Calendar, error) {
	m, err := ParseMode(mode)
	if err != nil {
		return Calendar{}, err
	}
	var y, mo, d int
	if _, err := fmt.Sscanf(start, "%d-%d-%d", &y, &mo, &d); err != nil {
		return Calendar{}, fmt.Errorf("calendar: base date %q: %w", start, ErrInvalidDate)
	}
	return New(m, y, mo, d)
}

// Mode returns the leap-year handling of the calendar.
func (c Calendar) Mode() Mode { return c.mode }

// Base returns the date at elapsed minute zero.
func (c Calendar) Base() Date { return c.base }

// IsLeap reports whether year has a February 29 under this calendar.
func (c Calendar) IsLeap(year int) bool {
	if c.mode == NoLeap {
		return false
	}
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// DaysInMonth returns the number of days in month of year.
func (c Calendar) DaysInMonth(year, month int) int {
	if month == 2 && c.IsLeap(year) {
		return 29
	}
	return monthDays[month-1]
}

// Validate checks the ranges of every field of d.
func (c Calendar) Validate(d Date) error {
	if d.Year < 1 || d.Month < 1 || d.Month > 12 {
		return fmt.Errorf("%w: %s", ErrInvalidDate, d)
	}
	if d.Day < 1 || d.Day > c.DaysInMonth(d.Year, d.Month) {
		return fmt.Errorf("%w: %s", ErrInvalidDate, d)
	}
	if d.MinuteOfDay < 0 || d.MinuteOfDay >= MinutesPerDay {
		return fmt.Errorf("%w: %s", ErrInvalidDate, d)
	}
	return nil
}

// FromMinutes returns the date elapsed minutes after the base date.
func (c Calendar) FromMinutes(elapsed uint64) Date {
	days := int64(elapsed / MinutesPerDay)
	d := c.fromOrdinal(c.ord + days)
	d.MinuteOfDay = int(elapsed % MinutesPerDay)
	return d
}

// ToMinutes is the inverse of FromMinutes.
func (c Calendar) ToMinutes(d Date) (uint64, error) {
	if err := c.Validate(d); err != nil {
		return 0, err
	}
	days := c.ordinal(d) - c.ord
	if days < 0 {
		return 0, fmt.Errorf("%w: %s before %s", ErrBeforeEpoch, d, c.base)
	}
	return uint64(days)*MinutesPerDay + uint64(d.MinuteOfDay), nil
}

// ordinal counts days since 0001-01-01 (ordinal 0).
func (c Calendar) ordinal(d Date) int64 {
	y := int64(d.Year - 1)
	days := y * DaysPerYear
	if c.mode == Gregorian {
		days += y/4 - y/100 + y/400
	}
	days += int64(monthStart[d.Month-1])
	if d.Month > 2 && c.IsLeap(d.Year) {
		days++
	}
	return days + int64(d.Day-1)
}

const (
	daysPer400 = 146097
	daysPer100 = 36524
	daysPer4   = 1461
)

func (c Calendar) fromOrdinal(n int64) Date {
	var year int64
	if c.mode == NoLeap {
		year = n/DaysPerYear + 1
		n %= DaysPerYear
	} else {
		q400 := n / daysPer400
		n %= daysPer400
		q100 := n / daysPer100
		if q100 == 4 { // last day of a 400-year cycle
			q100 = 3
		}
		n -= q100 * daysPer100
		q4 := n / daysPer4
		n %= daysPer4
		q1 := n / DaysPerYear
		if q1 == 4 { // last day of a 4-year cycle
			q1 = 3
		}
		n -= q1 * DaysPerYear
		year = q400*400 + q100*100 + q4*4 + q1 + 1
	}

	doy := int(n) // zero-based day of year
	month := 1
	for month < 12 {
		dim := c.DaysInMonth(int(year), month)
		if doy < dim {
			break
		}
		doy -= dim
		month++
	}
	return Date{Year: int(year), Month: month, Day: doy + 1}
}
