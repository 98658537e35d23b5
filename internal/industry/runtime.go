package industry

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidSubsidy is returned for subsidy rates outside 0-MaxSubsidyPercent.
var ErrInvalidSubsidy = errors.New("industry: invalid subsidy")

const (
	// MaxSubsidyPercent caps the share of sector costs the treasury can carry.
	MaxSubsidyPercent = 90
	// ValueScale converts sector money into national-accounts money.
	ValueScale = 0.0025

	// Efficiency drifts toward 1 + subsidy*subsidyEfficiency at efficiencyDrift per tick.
	subsidyEfficiency = 0.5
	efficiencyDrift   = 0.05
	minEfficiency     = 0.1
)

// Metrics is what one sector did in a tick, in national-accounts money.
// Rate is output per hour, the unit requirements are quoted in.
type Metrics struct {
	Output  float64 `json:"output"`
	Rate    float64 `json:"rate"`
	Revenue float64 `json:"revenue"`
	Cost    float64 `json:"cost"`
	Support float64 `json:"support"` // share of cost paid by subsidy
}

// ValueAdded is revenue less cost.
func (m Metrics) ValueAdded() float64 { return m.Revenue - m.Cost }

// Outcome sums one tick across every sector.
type Outcome struct {
	Revenue         float64 `json:"revenue"`
	Cost            float64 `json:"cost"`
	Support         float64 `json:"support"`
	EnergyCostIndex float64 `json:"energy_cost_index"`
	Shortages       []ID    `json:"shortages,omitempty"` // sectors held back by missing inputs
}

// ValueAdded is revenue less cost.
func (o Outcome) ValueAdded() float64 { return o.Revenue - o.Cost }

type sectorState struct {
	efficiency float64
	subsidy    float64 // fraction, 0-0.9
	last       Metrics
}

// Runtime is the live state of every sector. It is not safe for concurrent
// use; the simulation serialises access.
type Runtime struct {
	catalog        *Catalog
	states         []sectorState // parallel to catalog.sectors
	energyBaseline float64
	energyIndex    float64
}

// NewRuntime starts every sector at full efficiency with no subsidy.
func NewRuntime(c *Catalog) *Runtime {
	r := &Runtime{
		catalog:     c,
		states:      make([]sectorState, c.Len()),
		energyIndex: 1,
	}
	for i, s := range c.sectors {
		r.states[i] = sectorState{efficiency: 1, last: Metrics{Rate: s.BaseOutput}}
		if s.Category == Energy {
			r.energyBaseline += s.BaseOutput
		}
	}
	r.energyBaseline = math.Max(r.energyBaseline, 1)
	return r
}

// Catalog returns the sector definitions.
func (r *Runtime) Catalog() *Catalog { return r.catalog }

// EnergyCostIndex is the multiplier energy supply puts on non-energy costs.
func (r *Runtime) EnergyCostIndex() float64 { return r.energyIndex }

// Simulate runs every sector for scale hours. Energy runs first and sets
// the cost index the other categories pay this tick.
func (r *Runtime) Simulate(scale float64) Outcome {
	out := Outcome{EnergyCostIndex: r.energyIndex}
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return out
	}

	current := make(map[ID]Metrics, len(r.states))
	for _, cat := range simulationOrder {
		energyRate := 0.0
		for i, s := range r.catalog.sectors {
			if s.Category != cat {
				continue
			}
			st := &r.states[i]
			imp := r.impact(s, current)

			costFactor := imp.cost
			if cat != Energy {
				costFactor *= r.energyIndex
			}
			rate := s.BaseOutput * st.efficiency * imp.input
			output := rate * scale
			m := Metrics{
				Output:  output,
				Rate:    rate,
				Revenue: output * s.BasePrice * priceFromGap(imp.demand-1, s.PriceSensitivity) * ValueScale,
				Cost:    output * s.BaseCost * costFactor * ValueScale,
			}
			m.Support = m.Cost * st.subsidy
			st.last = m
			current[s.id()] = m

			target := 1 + st.subsidy*subsidyEfficiency
			st.efficiency = math.Max(st.efficiency*(1-efficiencyDrift)+target*efficiencyDrift, minEfficiency)

			if imp.input < 0.999 {
				out.Shortages = append(out.Shortages, s.id())
			}
			if cat == Energy {
				energyRate += rate
			}
			out.Revenue += m.Revenue
			out.Cost += m.Cost
			out.Support += m.Support
		}
		if cat == Energy {
			r.energyIndex = energyCostIndex(r.energyBaseline, energyRate)
			out.EnergyCostIndex = r.energyIndex
		}
	}
	return out
}

type impact struct {
	input  float64 // 0-1 share of capacity the inputs allow
	cost   float64
	demand float64
}

// impact reads suppliers and buyers from this tick when they already ran,
// otherwise from their last tick.
func (r *Runtime) impact(s Sector, current map[ID]Metrics) impact {
	imp := impact{input: 1, cost: 1, demand: 1}
	for _, d := range s.Dependencies {
		target := d.target(s.Category)
		m, ok := current[target]
		if !ok {
			m = r.states[r.catalog.byID[target]].last
		}
		dep, _ := r.catalog.Get(target)
		need := math.Max(s.BaseOutput*math.Max(d.Requirement, 0.01), 0.1)

		switch d.Kind {
		case DependsInput:
			imp.input *= clamp(m.Rate/need, 0, 1)
		case DependsCost:
			supply := clamp(m.Rate/need, 0.1, 1.5)
			imp.cost = clamp(imp.cost*(1+d.Elasticity*(1-supply)), 0.4, 2)
		case DependsDemand:
			ratio := clamp(m.Rate/math.Max(dep.BaseOutput, 0.1), 0, 3)
			imp.demand = clamp(imp.demand*(1+d.Elasticity*(ratio-1)), 0.2, 3)
		}
	}
	return imp
}

// priceFromGap maps a demand gap onto a price multiplier along a logistic
// curve, steeper for more sensitive sectors.
func priceFromGap(gap, sensitivity float64) float64 {
	if math.IsNaN(gap) || math.IsInf(gap, 0) {
		return 1
	}
	logistic := 1 / (1 + math.Exp(-4*clamp(gap, -1.5, 1.5)))
	centered := (logistic - 0.5) * 2
	return clamp(1+centered*clamp(sensitivity, 0.1, 2.5), 0.3, 2.8)
}

func energyCostIndex(baseline, rate float64) float64 {
	if rate <= 1e-9 {
		return 1.5
	}
	return clamp(baseline/rate, 0.5, 1.6)
}

func clamp(v, lo, hi float64) float64 { return math.Min(math.Max(v, lo), hi) }

// Overview describes one sector for display.
type Overview struct {
	ID             ID      `json:"id"`
	Name           string  `json:"name"`
	SubsidyPercent float64 `json:"subsidy_percent"`
	Efficiency     float64 `json:"efficiency"`
	Last           Metrics `json:"last"`
}

// Overview lists every sector ordered by category then key.
func (r *Runtime) Overview() []Overview {
	out := make([]Overview, len(r.states))
	for i := range r.states {
		out[i] = r.overview(i)
	}
	return out
}

func (r *Runtime) overview(i int) Overview {
	s, st := r.catalog.sectors[i], r.states[i]
	return Overview{
		ID:             s.id(),
		Name:           s.Name,
		SubsidyPercent: st.subsidy * 100,
		Efficiency:     st.efficiency,
		Last:           st.last,
	}
}

// Subsidize sets the share of a sector's costs the treasury pays, in
// percent. Zero removes the subsidy.
func (r *Runtime) Subsidize(id ID, percent float64) (Overview, error) {
	i, ok := r.catalog.byID[id]
	if !ok {
		return Overview{}, fmt.Errorf("%w: %s", ErrUnknownSector, id)
	}
	if math.IsNaN(percent) || percent < 0 || percent > MaxSubsidyPercent {
		return Overview{}, fmt.Errorf("%w: %v%% must be between 0 and %d", ErrInvalidSubsidy, percent, MaxSubsidyPercent)
	}
	r.states[i].subsidy = percent / 100
	return r.overview(i), nil
}

// SectorRecord is the storable state of one sector.
type SectorRecord struct {
	ID         ID      `json:"id"`
	Efficiency float64 `json:"efficiency"`
	Subsidy    float64 `json:"subsidy"`
	Last       Metrics `json:"last"`
}

// Snapshot carries the catalog with the runtime so a resumed run keeps the
// sectors it started with.
type Snapshot struct {
	Sectors         []Sector       `json:"sectors"`
	States          []SectorRecord `json:"states"`
	EnergyCostIndex float64        `json:"energy_cost_index"`
}

// Snapshot captures the runtime.
func (r *Runtime) Snapshot() Snapshot {
	snap := Snapshot{Sectors: r.catalog.Sectors(), EnergyCostIndex: r.energyIndex}
	for i, st := range r.states {
		snap.States = append(snap.States, SectorRecord{
			ID:         r.catalog.sectors[i].id(),
			Efficiency: st.efficiency,
			Subsidy:    st.subsidy,
			Last:       st.last,
		})
	}
	return snap
}

// Restore rebuilds a runtime. Records for sectors missing from the catalog
// are rejected.
func Restore(snap Snapshot) (*Runtime, error) {
	c, err := NewCatalog(snap.Sectors...)
	if err != nil {
		return nil, err
	}
	r := NewRuntime(c)
	for _, rec := range snap.States {
		i, ok := c.byID[rec.ID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSector, rec.ID)
		}
		if rec.Subsidy < 0 || rec.Subsidy > MaxSubsidyPercent/100.0 {
			return nil, fmt.Errorf("%w: %s at %v", ErrInvalidSubsidy, rec.ID, rec.Subsidy)
		}
		r.states[i] = sectorState{
			efficiency: math.Max(rec.Efficiency, minEfficiency),
			subsidy:    rec.Subsidy,
			last:       rec.Last,
		}
	}
	if snap.EnergyCostIndex > 0 {
		r.energyIndex = snap.EnergyCostIndex
	}
	return r, nil
}
