package economy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedRand struct {
	step   float64
	chance bool
}

func (r fixedRand) Between(lo, hi float64) float64 { return r.step }
func (r fixedRand) Chance(float64) bool            { return r.chance }

func TestFiscalAccountFlows(t *testing.T) {
	t.Parallel()

	a := NewFiscalAccount(100, BBB)
	a.RecordRevenue(RevenueTaxation, 50)
	a.RecordExpense(ExpenseInfrastructure, 20)
	a.RecordRevenue(RevenueAid, -5)

	assert.InDelta(t, 130, a.Cash, 1e-9)
	assert.InDelta(t, 50, a.Flows.TotalRevenue(), 1e-9)
	assert.InDelta(t, 20, a.Flows.TotalExpense(), 1e-9)
	assert.InDelta(t, 30, a.Flows.Net(), 1e-9)

	paid := a.Spend(ExpenseWelfare, 500)
	assert.InDelta(t, 130, paid, 1e-9)
	assert.Zero(t, a.Cash)

	a.Settle()
	assert.Zero(t, a.Flows.TotalExpense())
	assert.InDelta(t, 150, a.LastTick.TotalExpense(), 1e-9)
}

func TestAccrueInterest(t *testing.T) {
	t.Parallel()

	a := NewFiscalAccount(1000, AAA)
	assert.Zero(t, a.AccrueInterest(1))

	a.AddDebt(HoursPerYear * 100)
	interest := a.AccrueInterest(1)
	assert.InDelta(t, 100*0.02, interest, 1e-9)
	assert.InDelta(t, interest, a.Flows.Expense[ExpenseDebtService], 1e-9)
}

func TestFiscalCycle(t *testing.T) {
	t.Parallel()

	t.Run("issues debt when illiquid and downgrades", func(t *testing.T) {
		a := NewFiscalAccount(0, AAA)
		a.AddDebt(900)
		out := a.FiscalCycle(1000)
		assert.InDelta(t, 50, out.NewIssuance, 1e-9)
		assert.InDelta(t, 950, a.Debt, 1e-9)
		assert.True(t, out.Downgraded)
		assert.Equal(t, AA, a.Rating)
		assert.InDelta(t, AA.BaseInterestRate(), a.InterestRate, 1e-9)
		assert.False(t, out.Crisis)
	})

	t.Run("repays from surplus and upgrades", func(t *testing.T) {
		a := NewFiscalAccount(500, BB)
		a.AddDebt(100)
		out := a.FiscalCycle(1000)
		assert.InDelta(t, 2, out.PrincipalRepaid, 1e-9)
		assert.True(t, out.Upgraded)
		assert.Equal(t, BBB, a.Rating)
	})

	t.Run("flags crisis", func(t *testing.T) {
		a := NewFiscalAccount(1000, D)
		a.AddDebt(5000)
		assert.True(t, a.FiscalCycle(1000).Crisis)
	})
}

func TestCreditRating(t *testing.T) {
	t.Parallel()

	assert.Equal(t, D, D.Downgrade())
	assert.Equal(t, AAA, AAA.Upgrade())
	assert.Equal(t, "BBB", BBB.String())
	r, err := ParseCreditRating("ccc")
	require.NoError(t, err)
	assert.Equal(t, CCC, r)
	_, err = ParseCreditRating("Z")
	require.Error(t, err)
	assert.Equal(t, AAA, RatingForDebtRatio(0.1))
	assert.Equal(t, D, RatingForDebtRatio(3))
}

func TestTaxCollectDefersThirty(t *testing.T) {
	t.Parallel()

	p := DefaultTaxPolicy()
	first := p.Collect(1500, 0.9, 1)
	gross := 1500*0.45*0.18 + 1500*0.35*0.22 + 1500*0.20*0.08
	assert.InDelta(t, gross*0.7, first.Immediate, 1e-9)
	assert.InDelta(t, gross*0.3, first.Deferred, 1e-9)

	second := p.Collect(1500, 0.9, 1)
	assert.InDelta(t, gross*0.7+first.Deferred, second.Immediate, 1e-9)
	assert.InDelta(t, second.Deferred, p.Lagged, 1e-9)
}

func TestTaxNormalize(t *testing.T) {
	t.Parallel()

	p := TaxPolicy{IncomeRate: 2, CorporateRate: -1, Deductions: -5, GDPSensitivity: 3}.Normalize()
	assert.Equal(t, maxTaxRate, p.IncomeRate)
	assert.Equal(t, minTaxRate, p.CorporateRate)
	assert.Zero(t, p.Deductions)
	assert.Equal(t, 1.0, p.GDPSensitivity)
}

func TestBudgetValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultBudget().Validate())
	assert.InDelta(t, 39, DefaultBudget().TotalPercent(), 1e-9)

	bad := DefaultBudget()
	bad.Infrastructure = -5
	require.ErrorIs(t, bad.Validate(), ErrInvalidAllocation)

	bad = DefaultBudget()
	bad.Research = math.NaN()
	require.Error(t, bad.Validate())

	assert.InDelta(t, 15, Amount(1500, 1), 1e-9)
	assert.Zero(t, Amount(-1, 5))
}

func TestCommodityMarket(t *testing.T) {
	t.Parallel()

	m := DefaultCommodityMarket()
	shock := m.Update(fixedRand{step: 5}, 1)
	assert.Zero(t, shock)
	assert.InDelta(t, 125, m.Price, 1e-9)

	shock = m.Update(fixedRand{step: 0, chance: true}, 1)
	assert.Equal(t, ShockSpike, shock)

	m.ApplyShock(10)
	assert.InDelta(t, 120*1.9, m.Price, 1e-9)
	m.ApplyShock(0.01)
	assert.InDelta(t, 120*0.4, m.Price, 1e-9)

	assert.InDelta(t, 48*100*0.45*2, m.RevenueFor(100, 2), 1e-9)
	assert.Zero(t, m.RevenueFor(-3, 1))
}
