package monitor

import (
	"fmt"
	"slices"

	"github.com/talgya/statecraft/internal/economy"
)

// Level is an alert level, mildest first.
type Level uint8

const (
	Healthy Level = iota
	Watch
	Warning
	Critical
)

var levelNames = [...]string{"HEALTHY", "WATCH", "WARNING", "CRITICAL"}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "UNKNOWN"
}

func (l Level) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *Level) UnmarshalText(b []byte) error {
	for i, n := range levelNames {
		if n == string(b) {
			*l = Level(i)
			return nil
		}
	}
	return fmt.Errorf("monitor: unknown level %q", b)
}

// Thresholds match the unrest check: below these a country starts losing
// support or stability every cycle.
const (
	unrestStability   = 35
	unrestApproval    = 30
	collapseStability = 20
	collapseApproval  = 15
	heavyDebtRatio    = 0.8
)

// CountryHealth is the triage verdict for one country.
type CountryHealth struct {
	Name      string   `json:"name"`
	Level     Level    `json:"level"`
	DebtRatio float64  `json:"debt_ratio"`
	Signals   []string `json:"signals,omitempty"`
}

// WorldHealth holds derived signals computed from a Snapshot.
type WorldHealth struct {
	Level     Level           `json:"level"`
	Countries []CountryHealth `json:"countries"`
	// Idle is set when nothing is scheduled, so the world only drifts.
	Idle bool `json:"idle"`
	// Overdue counts tasks due at or before now that have not fired.
	Overdue int `json:"overdue"`
}

// Triage computes a WorldHealth from the snapshot's data. Countries come
// back worst first; ties keep API order.
func Triage(snap *Snapshot) *WorldHealth {
	h := &WorldHealth{Idle: len(snap.Tasks) == 0}
	for _, t := range snap.Tasks {
		if t.DueAt <= snap.Status.Elapsed {
			h.Overdue++
		}
	}

	for _, c := range snap.Countries {
		ch := triageCountry(c)
		h.Level = max(h.Level, ch.Level)
		h.Countries = append(h.Countries, ch)
	}
	slices.SortStableFunc(h.Countries, func(a, b CountryHealth) int { return int(b.Level) - int(a.Level) })

	if h.Idle || h.Overdue > 0 {
		h.Level = max(h.Level, Watch)
	}
	return h
}

func triageCountry(c CountryInfo) CountryHealth {
	ch := CountryHealth{Name: c.Name}
	if c.GDP > 0 {
		ch.DebtRatio = c.Debt / c.GDP
	}
	raise := func(l Level, signal string) {
		ch.Level = max(ch.Level, l)
		ch.Signals = append(ch.Signals, signal)
	}

	rating, err := economy.ParseCreditRating(c.Rating)
	if err != nil {
		rating = economy.AAA
	}

	switch {
	case c.Stability < collapseStability:
		raise(Critical, "collapsing stability")
	case c.Stability < unrestStability:
		raise(Warning, "unrest")
	}
	switch {
	case c.Approval < collapseApproval:
		raise(Critical, "government losing legitimacy")
	case c.Approval < unrestApproval:
		raise(Warning, "protests")
	}
	switch {
	case rating >= economy.CC:
		raise(Critical, "default risk ("+rating.String()+")")
	case rating >= economy.B:
		raise(Warning, "junk credit ("+rating.String()+")")
	}
	if ch.DebtRatio > heavyDebtRatio {
		raise(Watch, "heavy debt")
	}
	if c.Cash < 0 {
		raise(Watch, "overdrawn treasury")
	}
	return ch
}
