// Package clock owns simulated elapsed time and the time multiplier.
package clock

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/talgya/statecraft/internal/calendar"
)

var (
	// ErrInvalidAdvance is returned for non-positive or non-finite minute requests.
	ErrInvalidAdvance = errors.New("clock: invalid advance")
	// ErrInvalidMultiplier is returned for non-positive or non-finite multipliers.
	ErrInvalidMultiplier = errors.New("clock: invalid multiplier")
)

// DisplayPlaces is the number of decimal digits shown for the multiplier.
const DisplayPlaces = 2

var maxElapsed = decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxUint64), 0)

// AdvanceResult describes one clock advance.
type AdvanceResult struct {
	Previous uint64           `json:"previous"`
	Elapsed  uint64           `json:"elapsed"`
	Advanced uint64           `json:"advanced"` // whole simulated minutes added
	Date     calendar.Date    `json:"date"`
	Crossed  calendar.Crossed `json:"crossed"`
}

// Clock tracks elapsed simulated minutes. The multiplier is held at full
// precision; fractional minutes produced by it are carried into the next
// advance so no time is lost across calls.
type Clock struct {
	cal        calendar.Calendar
	elapsed    uint64
	multiplier decimal.Decimal
	carry      decimal.Decimal // always in [0, 1)
}

// New creates a clock at elapsed zero with multiplier 1.
func New(cal calendar.Calendar) *Clock {
	return &Clock{
		cal:        cal,
		multiplier: decimal.NewFromInt(1),
		carry:      decimal.Zero,
	}
}

// Calendar returns the calendar the clock derives dates from.
func (c *Clock) Calendar() calendar.Calendar { return c.cal }

// Elapsed returns total simulated minutes since the base date.
func (c *Clock) Elapsed() uint64 { return c.elapsed }

// Date returns the current calendar date.
func (c *Clock) Date() calendar.Date { return c.cal.FromMinutes(c.elapsed) }

// Multiplier returns the precise multiplier used by Advance.
func (c *Clock) Multiplier() decimal.Decimal { return c.multiplier }

// DisplayMultiplier returns the multiplier rounded for presentation.
func (c *Clock) DisplayMultiplier() decimal.Decimal { return c.multiplier.Round(DisplayPlaces) }

// Carry returns the fractional minutes waiting for the next advance.
func (c *Clock) Carry() decimal.Decimal { return c.carry }

// SetMultiplier changes the multiplier for subsequent advances.
func (c *Clock) SetMultiplier(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidMultiplier, v)
	}
	c.multiplier = decimal.NewFromFloat(v)
	return nil
}

// SetMultiplierString parses an exact decimal such as "1.333".
func (c *Clock) SetMultiplierString(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidMultiplier, s)
	}
	if !d.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidMultiplier, d)
	}
	c.multiplier = d
	return nil
}

// Advance moves the clock forward by requested × multiplier minutes.
func (c *Clock) Advance(requested float64) (AdvanceResult, error) {
	if math.IsNaN(requested) || math.IsInf(requested, 0) || requested <= 0 {
		return AdvanceResult{}, fmt.Errorf("%w: %v minutes", ErrInvalidAdvance, requested)
	}

	total := decimal.NewFromFloat(requested).Mul(c.multiplier).Add(c.carry)
	whole := total.Floor()
	room := maxElapsed.Sub(decimal.NewFromBigInt(new(big.Int).SetUint64(c.elapsed), 0))
	if whole.GreaterThan(room) {
		return AdvanceResult{}, fmt.Errorf("%w: %s minutes overflows the clock", ErrInvalidAdvance, whole)
	}

	before := c.Date()
	res := AdvanceResult{Previous: c.elapsed}

	res.Advanced = whole.BigInt().Uint64()
	c.elapsed += res.Advanced
	c.carry = total.Sub(whole)

	res.Elapsed = c.elapsed
	res.Date = c.Date()
	res.Crossed = calendar.Boundaries(before, res.Date)
	return res, nil
}

// State is the serialisable form of a clock.
type State struct {
	Elapsed    uint64 `json:"elapsed"`
	Multiplier string `json:"multiplier"`
	Carry      string `json:"carry"`
}

// State captures the clock for a snapshot.
func (c *Clock) State() State {
	return State{
		Elapsed:    c.elapsed,
		Multiplier: c.multiplier.String(),
		Carry:      c.carry.String(),
	}
}

// Restore rebuilds a clock from a snapshot.
func Restore(cal calendar.Calendar, s State) (*Clock, error) {
	c := New(cal)
	c.elapsed = s.Elapsed
	if err := c.SetMultiplierString(s.Multiplier); err != nil {
		return nil, err
	}
	if s.Carry != "" {
		carry, err := decimal.NewFromString(s.Carry)
		if err != nil || carry.IsNegative() || carry.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return nil, fmt.Errorf("clock: invalid carry %q", s.Carry)
		}
		c.carry = carry
	}
	return c, nil
}
