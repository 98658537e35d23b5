package systems

import (
	"fmt"
	"math"
	"strings"

	"github.com/talgya/statecraft/internal/economy"
	"github.com/talgya/statecraft/internal/engine"
	"github.com/talgya/statecraft/internal/industry"
	"github.com/talgya/statecraft/internal/scheduler"
)

// Shares of world value added booked as trade revenue and as GDP growth.
const (
	tradeShare  = 0.3
	growthShare = 0.05
)

// Announced shocks land between these many minutes after the announcement.
const (
	shockDelayMin = 180
	shockDelayMax = 720
)

// Industry moves the commodity market, runs the sector model and books
// export, trade, subsidies and growth for every country. It also lands
// market shocks and completed projects.
type Industry struct{}

// NewIndustry returns the industry subsystem.
func NewIndustry() *Industry { return &Industry{} }

func (*Industry) Name() string        { return "industry" }
func (*Industry) Stage() engine.Stage { return engine.StageIndustry }

func (i *Industry) Executors() map[scheduler.Kind]engine.Executor {
	return map[scheduler.Kind]engine.Executor{
		scheduler.KindMarketShock:           i.landShock,
		scheduler.KindInfrastructureProject: i.completeProject,
	}
}

func (*Industry) Hook(ctx engine.TickContext, st *engine.State) engine.Effect {
	var eff engine.Effect
	if ctx.Scale <= 0 {
		return eff
	}

	m := st.Market
	before := m.Price
	if factor := m.Update(st.RNG, ctx.Scale); factor != 0 {
		delay := uint64(shockDelayMin + st.RNG.IntN(shockDelayMax-shockDelayMin+1))
		eff.Followups = append(eff.Followups, ctx.After(delay, scheduler.MarketShock{Factor: factor}))
		direction := "spike"
		if factor < 1 {
			direction = "crash"
		}
		eff.Addf("Traders expect a commodity price %s within %d hours", direction, (delay+59)/60)
	}
	if math.Abs(m.Price-before) >= before*0.05 {
		eff.Addf("Commodity price moved from %s to %s", money(before), money(m.Price))
	}

	for _, c := range st.Countries.All() {
		if export := m.RevenueFor(c.Resources, ctx.Scale); export > 0 {
			c.Fiscal.RecordRevenue(economy.RevenueResourceExport, export)
			eff.Addf("%s earned %s from resource exports at %s per unit", c.Name, money(export), money(m.Price))
		}
	}

	if st.Industry != nil {
		eff.Merge(distributeSectors(st, st.Industry.Simulate(ctx.Scale)))
	}
	return eff
}

// distributeSectors shares world sector results between countries by GDP
// weighted with stability. Subsidies are paid from each treasury in the
// same proportion.
func distributeSectors(st *engine.State, out industry.Outcome) engine.Effect {
	var eff engine.Effect
	countries := st.Countries.All()
	weights := make([]float64, len(countries))
	total := 0.0
	for i, c := range countries {
		weights[i] = math.Max(c.GDP, 0) * (0.5 + float64(c.Stability)/200)
		total += weights[i]
	}
	if total <= 0 {
		return eff
	}

	added := out.ValueAdded()
	for i, c := range countries {
		share := weights[i] / total
		if added > 0 {
			c.Fiscal.RecordRevenue(economy.RevenueTrade, added*tradeShare*share)
		}
		if out.Support > 0 {
			c.Fiscal.Spend(economy.ExpenseIndustrySupport, out.Support*share)
		}
		c.AddGDP(added * growthShare * share)
	}

	eff.Addf("Industry added %s of value (revenue %s, costs %s)", money(added), money(out.Revenue), money(out.Cost))
	if out.Support > 0 {
		eff.Addf("Treasuries paid %s in sector subsidies", money(out.Support))
	}
	if len(out.Shortages) > 0 {
		names := make([]string, len(out.Shortages))
		for i, id := range out.Shortages {
			names[i] = id.String()
		}
		eff.Addf("Input shortages held back %s", strings.Join(names, ", "))
	}
	if out.EnergyCostIndex > 1.2 {
		eff.Addf("Energy scarcity is raising industrial costs (index %.2f)", out.EnergyCostIndex)
	}
	return eff
}

func (*Industry) landShock(_ engine.TickContext, task scheduler.Task, st *engine.State) (engine.Effect, error) {
	shock := task.Payload.(scheduler.MarketShock)
	if shock.Factor <= 0 {
		return engine.Effect{}, fmt.Errorf("market shock factor %v must be positive", shock.Factor)
	}
	before := st.Market.Price
	st.Market.ApplyShock(shock.Factor)
	var eff engine.Effect
	eff.Addf("Commodity market shock: price %s to %s", money(before), money(st.Market.Price))
	return eff, nil
}

func (*Industry) completeProject(_ engine.TickContext, task scheduler.Task, st *engine.State) (engine.Effect, error) {
	p := task.Payload.(scheduler.InfrastructureProject)
	c, ok := st.Countries.Get(p.Country)
	if !ok {
		return engine.Effect{}, engine.Dangling("country", p.Country)
	}
	c.AddGDP(p.GDP)
	c.AddStability(p.Stability)
	var eff engine.Effect
	eff.Addf("%s completed an infrastructure project (GDP +%s, stability %+d)", c.Name, money(p.GDP), p.Stability)
	return eff, nil
}
