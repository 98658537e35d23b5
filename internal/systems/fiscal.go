package systems

import (
	"fmt"
	"math"

	"github.com/talgya/statecraft/internal/calendar"
	"github.com/talgya/statecraft/internal/economy"
	"github.com/talgya/statecraft/internal/engine"
	"github.com/talgya/statecraft/internal/scheduler"
	"github.com/talgya/statecraft/internal/world"
)

// Policy resolution runs once a simulated day.
const PolicyInterval = calendar.MinutesPerDay

// Project commissioning thresholds and lead time.
const (
	projectCashRatio  = 0.25 // cash above this share of GDP is surplus
	projectLeadTime   = 3 * calendar.MinutesPerDay
	projectGDPReturn  = 1.2
	projectStabilityK = 200.0
)

// Fiscal runs taxation and budget spending each tick and resolves the
// daily policy review.
type Fiscal struct{}

// NewFiscal returns the fiscal subsystem.
func NewFiscal() *Fiscal { return &Fiscal{} }

func (*Fiscal) Name() string        { return "fiscal" }
func (*Fiscal) Stage() engine.Stage { return engine.StageFiscal }

func (f *Fiscal) Executors() map[scheduler.Kind]engine.Executor {
	return map[scheduler.Kind]engine.Executor{
		scheduler.KindPolicyResolution: f.resolvePolicy,
	}
}

// Bootstrap schedules the daily policy review.
func (*Fiscal) Bootstrap(*engine.State) []engine.Followup {
	return []engine.Followup{{
		Payload: scheduler.PolicyResolution{},
		Spec:    scheduler.MustEvery(PolicyInterval, PolicyInterval, 0),
	}}
}

// Settle closes each country's per-tick fiscal flows.
func (*Fiscal) Settle(st *engine.State) {
	for _, c := range st.Countries.All() {
		c.Fiscal.Settle()
	}
}

// Hook accrues interest, collects tax and pays the domestic budget lines.
func (*Fiscal) Hook(ctx engine.TickContext, st *engine.State) engine.Effect {
	var eff engine.Effect
	if ctx.Scale <= 0 {
		return eff
	}
	for _, c := range st.Countries.All() {
		eff.Add(applyDomesticBudget(c, ctx.Scale)...)
	}
	return eff
}

func essentialDebtTarget(c *world.Country) float64 {
	return math.Min(math.Max(c.Fiscal.Debt*c.Fiscal.InterestRate/24, 50), 300)
}

func essentialAdministrationTarget(c *world.Country) float64 {
	return math.Max(c.Population*2, 35)
}

func applyDomesticBudget(c *world.Country, scale float64) []string {
	var lines []string
	acct := &c.Fiscal

	acct.AccrueInterest(scale)

	gdp := math.Max(c.GDP, 0)
	tax := c.Tax.Collect(gdp, c.EmploymentRatio(), scale)
	if tax.Immediate > 0 {
		acct.RecordRevenue(economy.RevenueTaxation, tax.Immediate)
		lines = append(lines, fmt.Sprintf("%s collected %s in taxes", c.Name, money(tax.Immediate)))
	}
	if tax.Deferred > 0 {
		lines = append(lines, fmt.Sprintf("%s deferred %s of tax revenue", c.Name, money(tax.Deferred)))
	}

	alloc := c.Budget

	debtWant := economy.Amount(gdp, alloc.DebtService)
	if alloc.CoreMinimum {
		debtWant = math.Max(debtWant, essentialDebtTarget(c))
	}
	if debtWant *= scale; debtWant > 0 {
		if paid := acct.Spend(economy.ExpenseDebtService, debtWant); paid > 0 {
			acct.AddDebt(-math.Min(paid, acct.Debt))
			lines = append(lines, fmt.Sprintf("%s put %s toward debt service", c.Name, money(paid)))
		} else if alloc.CoreMinimum {
			acct.AddDebt(debtWant * 0.25)
			lines = append(lines, fmt.Sprintf("%s could not meet debt service and rolled it over", c.Name))
		}
	}

	adminWant := economy.Amount(gdp, alloc.Administration)
	if alloc.CoreMinimum {
		adminWant = math.Max(adminWant, essentialAdministrationTarget(c))
	}
	if adminWant *= scale; adminWant > 0 {
		if paid := acct.Spend(economy.ExpenseAdministration, adminWant); paid > 0 {
			c.AddStability(round(paid / 120))
			lines = append(lines, fmt.Sprintf("%s spent %s on administration", c.Name, money(paid)))
		} else if alloc.CoreMinimum {
			c.AddStability(-3)
			lines = append(lines, fmt.Sprintf("%s underfunded its administration", c.Name))
		}
	}

	if paid := acct.Spend(economy.ExpenseInfrastructure, economy.Amount(gdp, alloc.Infrastructure)*scale); paid > 0 {
		c.AddGDP(paid * 0.9)
		intensity := round(paid / 80)
		c.AddStability(intensity)
		c.AddApproval(intensity / 2)
		c.AddResources(-trunc(paid / 25))
		lines = append(lines, fmt.Sprintf("%s invested %s in infrastructure", c.Name, money(paid)))
	}

	if paid := acct.Spend(economy.ExpenseWelfare, economy.Amount(gdp, alloc.Welfare)*scale); paid > 0 {
		intensity := round(paid / 70)
		c.AddApproval(intensity)
		c.AddStability(intensity / 2)
		c.AddGDP(-paid * 0.25)
		lines = append(lines, fmt.Sprintf("%s expanded welfare by %s", c.Name, money(paid)))
	}

	if paid := acct.Spend(economy.ExpenseResearch, economy.Amount(gdp, alloc.Research)*scale); paid > 0 {
		c.AddGDP(paid * 0.6)
		c.AddResources(round(paid / 90))
		lines = append(lines, fmt.Sprintf("%s invested %s in research", c.Name, money(paid)))
	}
	return lines
}

// resolvePolicy is the daily review: core-minimum checks, the reserve
// top-up, resource shortages, the debt cycle and surplus-funded projects.
func (*Fiscal) resolvePolicy(ctx engine.TickContext, _ scheduler.Task, st *engine.State) (engine.Effect, error) {
	var eff engine.Effect
	for _, c := range st.Countries.All() {
		acct := &c.Fiscal
		alloc := c.Budget
		gdp := math.Max(c.GDP, 0)

		if alloc.CoreMinimum {
			minDebt := math.Max(acct.Debt*acct.InterestRate/360, 40)
			if economy.Amount(gdp, alloc.DebtService) < minDebt {
				acct.AddDebt(minDebt * 0.2)
				acct.SetRating(acct.Rating.Downgrade())
				eff.Addf("%s fell short on debt service; rating cut to %s", c.Name, acct.Rating)
			}
			if economy.Amount(gdp, alloc.Administration) < essentialAdministrationTarget(c) {
				c.AddStability(-2)
				eff.Addf("%s's administration is underfunded", c.Name)
			}
		}

		if bonus := math.Min(alloc.Requested(gdp)*0.05, acct.Cash*0.02); bonus > 0 {
			acct.RecordRevenue(economy.RevenueOther, bonus)
			eff.Addf("%s added %s to its reserves", c.Name, money(bonus))
		}

		if c.Resources < 25 {
			c.AddGDP(-20)
			eff.Addf("%s's output stalls for lack of resources", c.Name)
		}

		out := acct.FiscalCycle(gdp)
		if out.PrincipalRepaid > 0 {
			eff.Addf("%s repaid %s of principal", c.Name, money(out.PrincipalRepaid))
		}
		if out.NewIssuance > 0 {
			eff.Addf("%s issued %s in new bonds", c.Name, money(out.NewIssuance))
		}
		switch {
		case out.Downgraded:
			eff.Addf("%s was downgraded to %s", c.Name, acct.Rating)
		case out.Upgraded:
			eff.Addf("%s was upgraded to %s", c.Name, acct.Rating)
		}
		if out.Crisis {
			eff.Addf("%s is in a debt crisis (debt %s against GDP %s)", c.Name, money(acct.Debt), money(gdp))
		}

		if f, ok := commissionProject(ctx, c); ok {
			p := f.Payload.(scheduler.InfrastructureProject)
			eff.Addf("%s commissioned an infrastructure project worth %s", c.Name, money(p.GDP/projectGDPReturn))
			eff.Followups = append(eff.Followups, f)
		}
	}
	return eff, nil
}

// commissionProject spends half of a country's cash surplus on a project
// that completes after a lead time.
func commissionProject(ctx engine.TickContext, c *world.Country) (engine.Followup, bool) {
	if c.Budget.Infrastructure <= 0 {
		return engine.Followup{}, false
	}
	surplus := c.Fiscal.Cash - c.GDP*projectCashRatio
	if surplus <= 0 {
		return engine.Followup{}, false
	}
	cost := c.Fiscal.Spend(economy.ExpenseInfrastructure, surplus*0.5)
	if cost <= 0 {
		return engine.Followup{}, false
	}
	return ctx.After(projectLeadTime, scheduler.InfrastructureProject{
		Country:   c.Name,
		Stability: 1 + trunc(cost/projectStabilityK),
		GDP:       cost * projectGDPReturn,
	}), true
}
