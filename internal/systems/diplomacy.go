package systems

import (
	"fmt"
	"math"

	"github.com/talgya/statecraft/internal/economy"
	"github.com/talgya/statecraft/internal/engine"
	"github.com/talgya/statecraft/internal/scheduler"
	"github.com/talgya/statecraft/internal/world"
)

// Pulse cadence and the envoys it sends to hostile partners.
const (
	PulseInterval  = 360
	missionTravel  = 720
	missionDelta   = 4
	hostileOpening = 0 // relations below this get an envoy
)

// Diplomacy spends the diplomacy and military budget lines, regresses
// relations on the pulse and lands diplomatic missions.
type Diplomacy struct{}

// NewDiplomacy returns the diplomacy subsystem.
func NewDiplomacy() *Diplomacy { return &Diplomacy{} }

func (*Diplomacy) Name() string        { return "diplomacy" }
func (*Diplomacy) Stage() engine.Stage { return engine.StageDiplomacy }

func (d *Diplomacy) Executors() map[scheduler.Kind]engine.Executor {
	return map[scheduler.Kind]engine.Executor{
		scheduler.KindDiplomaticPulse:   d.pulse,
		scheduler.KindDiplomaticMission: d.landMission,
	}
}

// Bootstrap schedules the recurring pulse.
func (*Diplomacy) Bootstrap(*engine.State) []engine.Followup {
	return []engine.Followup{{
		Payload: scheduler.DiplomaticPulse{},
		Spec:    scheduler.MustEvery(PulseInterval, PulseInterval, 0),
	}}
}

func (*Diplomacy) Hook(ctx engine.TickContext, st *engine.State) engine.Effect {
	var eff engine.Effect
	if ctx.Scale <= 0 {
		return eff
	}
	countries := st.Countries.All()
	for _, c := range countries {
		gdp := math.Max(c.GDP, 0)

		if paid := c.Fiscal.Spend(economy.ExpenseDiplomacy, economy.Amount(gdp, c.Budget.Diplomacy)*ctx.Scale); paid > 0 {
			improveRelations(c, countries, math.Max(paid/120, ctx.Scale))
			eff.Addf("%s spent %s on diplomatic outreach", c.Name, money(paid))
		}

		if paid := c.Fiscal.Spend(economy.ExpenseMilitary, economy.Amount(gdp, c.Budget.Military)*ctx.Scale); paid > 0 {
			intensity := round(paid / 80)
			c.AddMilitary(intensity)
			c.AddStability(intensity / 2)
			c.AddApproval(-intensity / 2)
			c.AddResources(-trunc(paid / 40))
			penaliseNeighbours(c, countries, -round(2*math.Max(ctx.Scale, 1)))
			eff.Addf("%s spent %s on its military", c.Name, money(paid))
		}
	}
	return eff
}

func improveRelations(c *world.Country, all []*world.Country, scale float64) {
	primary, secondary := trunc(5*scale), trunc(3*scale)
	for _, p := range all {
		if p != c {
			world.AdjustRelation(c, p, primary, secondary)
		}
	}
}

func penaliseNeighbours(c *world.Country, all []*world.Country, delta int) {
	if delta == 0 {
		return
	}
	for _, p := range all {
		if p != c {
			world.AdjustRelation(c, p, delta, delta/2)
		}
	}
}

// pulse nudges extreme relations back toward the middle and sends envoys
// between hostile pairs.
func (*Diplomacy) pulse(ctx engine.TickContext, _ scheduler.Task, st *engine.State) (engine.Effect, error) {
	var eff engine.Effect
	countries := st.Countries.All()
	for i, a := range countries {
		for _, b := range countries[i+1:] {
			rel, ok := a.Relation(b.Name)
			if !ok {
				continue
			}
			var adj int
			switch {
			case rel > 75:
				adj = -1
			case rel < -60:
				adj = 2
			case rel < 30:
				adj = 1
			}
			if adj != 0 {
				world.AdjustRelation(a, b, adj, adj)
				eff.Addf("Relations between %s and %s adjusted by %+d", a.Name, b.Name, adj)
			}
			if rel < hostileOpening {
				eff.Followups = append(eff.Followups, ctx.After(missionTravel, scheduler.DiplomaticMission{
					Country: a.Name,
					Partner: b.Name,
					Delta:   missionDelta,
				}))
				eff.Addf("%s sent an envoy to %s", a.Name, b.Name)
			}
		}
	}
	return eff, nil
}

func (*Diplomacy) landMission(_ engine.TickContext, task scheduler.Task, st *engine.State) (engine.Effect, error) {
	m := task.Payload.(scheduler.DiplomaticMission)
	a, ok := st.Countries.Get(m.Country)
	if !ok {
		return engine.Effect{}, engine.Dangling("country", m.Country)
	}
	b, ok := st.Countries.Get(m.Partner)
	if !ok {
		return engine.Effect{}, engine.Dangling("partner", m.Partner)
	}
	if a == b {
		return engine.Effect{}, fmt.Errorf("%s cannot send a mission to itself", a.Name)
	}
	world.AdjustRelation(a, b, m.Delta, m.Delta)
	var eff engine.Effect
	rel, _ := a.Relation(b.Name)
	eff.Addf("Mission from %s to %s concluded (%+d, now %d)", a.Name, b.Name, m.Delta, rel)
	return eff, nil
}
