// Package systems holds the policy modules plugged into the simulation:
// fiscal, industry, diplomacy and events. Each one resolves its own task
// kinds and runs one hook per tick.
package systems

import (
	"math"

	"github.com/dustin/go-humanize"

	"github.com/talgya/statecraft/internal/engine"
)

// Default returns the standard subsystems in stage order.
func Default() []engine.Subsystem {
	return []engine.Subsystem{
		NewFiscal(),
		NewIndustry(),
		NewDiplomacy(),
		NewEvents(),
	}
}

// money formats an amount for report lines.
func money(v float64) string { return humanize.CommafWithDigits(v, 1) }

// trunc converts toward zero, the way effect intensities are derived.
func trunc(v float64) int { return int(v) }

// round converts to the nearest integer, halves away from zero.
func round(v float64) int { return int(math.Round(v)) }
