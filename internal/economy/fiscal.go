// Package economy provides national accounts, taxation, budgets and the
// shared commodity market.
package economy

import (
	"fmt"
	"math"
	"strings"
)

// HoursPerYear is used to pro-rate annual interest.
const HoursPerYear = 24 * 365

// CreditRating is a sovereign credit grade, best first.
type CreditRating uint8

const (
	AAA CreditRating = iota
	AA
	A
	BBB
	BB
	B
	CCC
	CC
	C
	D
)

var ratingNames = [...]string{"AAA", "AA", "A", "BBB", "BB", "B", "CCC", "CC", "C", "D"}

var ratingRates = [...]float64{0.02, 0.025, 0.03, 0.035, 0.04, 0.05, 0.065, 0.08, 0.1, 0.18}

// Debt-to-GDP ceilings for each grade; anything above the last is D.
var ratingCeilings = [...]float64{0.2, 0.35, 0.5, 0.65, 0.8, 1.0, 1.3, 1.6, 2.0}

func (r CreditRating) String() string {
	if int(r) < len(ratingNames) {
		return ratingNames[r]
	}
	return "?"
}

// ParseCreditRating accepts grades such as "BBB".
func ParseCreditRating(s string) (CreditRating, error) {
	for i, n := range ratingNames {
		if strings.EqualFold(n, s) {
			return CreditRating(i), nil
		}
	}
	return 0, fmt.Errorf("economy: unknown credit rating %q", s)
}

// BaseInterestRate is the annual rate paid on debt at this grade.
func (r CreditRating) BaseInterestRate() float64 {
	if int(r) < len(ratingRates) {
		return ratingRates[r]
	}
	return ratingRates[D]
}

// Downgrade returns the next worse grade.
func (r CreditRating) Downgrade() CreditRating {
	if r >= D {
		return D
	}
	return r + 1
}

// Upgrade returns the next better grade.
func (r CreditRating) Upgrade() CreditRating {
	if r == AAA {
		return AAA
	}
	return r - 1
}

// RatingForDebtRatio maps debt/GDP to the grade markets would assign.
func RatingForDebtRatio(ratio float64) CreditRating {
	for i, ceiling := range ratingCeilings {
		if ratio <= ceiling {
			return CreditRating(i)
		}
	}
	return D
}

// RevenueKind classifies income.
type RevenueKind uint8

const (
	RevenueTaxation RevenueKind = iota
	RevenueResourceExport
	RevenueTrade
	RevenueAid
	RevenueOther
	NumRevenueKinds
)

// ExpenseKind classifies spending.
type ExpenseKind uint8

const (
	ExpenseInfrastructure ExpenseKind = iota
	ExpenseMilitary
	ExpenseWelfare
	ExpenseDiplomacy
	ExpenseDebtService
	ExpenseAdministration
	ExpenseResearch
	ExpenseIndustrySupport
	ExpenseOther
	NumExpenseKinds
)

// Flows accumulates revenue and expense by kind.
type Flows struct {
	Revenue [NumRevenueKinds]float64 `json:"revenue"`
	Expense [NumExpenseKinds]float64 `json:"expense"`
}

// TotalRevenue sums every revenue kind.
func (f Flows) TotalRevenue() float64 {
	t := 0.0
	for _, v := range f.Revenue {
		t += v
	}
	return t
}

// TotalExpense sums every expense kind.
func (f Flows) TotalExpense() float64 {
	t := 0.0
	for _, v := range f.Expense {
		t += v
	}
	return t
}

// Net is revenue minus expense.
func (f Flows) Net() float64 { return f.TotalRevenue() - f.TotalExpense() }

// FiscalAccount is a country's treasury. Flows is the current tick's
// accumulator; LastTick holds the flows of the most recently settled tick.
type FiscalAccount struct {
	Cash         float64      `json:"cash"`
	Debt         float64      `json:"debt"`
	InterestRate float64      `json:"interest_rate"`
	Rating       CreditRating `json:"rating"`
	Flows        Flows        `json:"flows"`
	LastTick     Flows        `json:"last_tick"`
}

// NewFiscalAccount opens an account with the rate of the given grade.
func NewFiscalAccount(cash float64, rating CreditRating) FiscalAccount {
	return FiscalAccount{
		Cash:         math.Max(cash, 0),
		InterestRate: rating.BaseInterestRate(),
		Rating:       rating,
	}
}

// SetRating changes the grade and resets the interest rate to match.
func (a *FiscalAccount) SetRating(r CreditRating) {
	a.Rating = r
	a.InterestRate = r.BaseInterestRate()
}

// RecordRevenue books income and adds it to cash.
func (a *FiscalAccount) RecordRevenue(kind RevenueKind, amount float64) {
	if amount <= 0 {
		return
	}
	a.Flows.Revenue[kind] += amount
	a.Cash += amount
}

// RecordExpense books spending; cash never goes below zero.
func (a *FiscalAccount) RecordExpense(kind ExpenseKind, amount float64) {
	if amount <= 0 {
		return
	}
	a.Flows.Expense[kind] += amount
	a.Cash = math.Max(a.Cash-amount, 0)
}

// Spend pays up to want from cash and returns what was actually paid.
func (a *FiscalAccount) Spend(kind ExpenseKind, want float64) float64 {
	paid := math.Min(want, a.Cash)
	if paid <= 0 {
		return 0
	}
	a.RecordExpense(kind, paid)
	return paid
}

// AddDebt changes outstanding debt, flooring at zero.
func (a *FiscalAccount) AddDebt(delta float64) {
	a.Debt = math.Max(a.Debt+delta, 0)
}

// AccrueInterest charges interest for the given simulated hours.
func (a *FiscalAccount) AccrueInterest(hours float64) float64 {
	if a.Debt <= 0 || hours <= 0 {
		return 0
	}
	interest := a.Debt * a.InterestRate * (hours / HoursPerYear)
	a.RecordExpense(ExpenseDebtService, interest)
	return interest
}

// Settle moves the current flows into LastTick and clears the accumulator.
func (a *FiscalAccount) Settle() {
	a.LastTick = a.Flows
	a.Flows = Flows{}
}

// CycleOutcome reports what a fiscal cycle did.
type CycleOutcome struct {
	PrincipalRepaid float64
	NewIssuance     float64
	Downgraded      bool
	Upgraded        bool
	Crisis          bool
}

// Cycle thresholds as fractions of GDP.
const (
	cashBufferRatio   = 0.10
	liquidityFloor    = 0.02
	issuanceRatio     = 0.05
	repaymentFraction = 0.02
	crisisDebtRatio   = 1.5
)

// FiscalCycle runs the periodic debt management: surplus cash retires
// principal, a cash shortfall issues new bonds, and the grade moves one
// step toward what the debt ratio implies.
func (a *FiscalAccount) FiscalCycle(gdp float64) CycleOutcome {
	var out CycleOutcome
	gdp = math.Max(gdp, 1)

	if surplus := a.Cash - gdp*cashBufferRatio; surplus > 0 && a.Debt > 0 {
		repay := math.Min(a.Debt*repaymentFraction, surplus)
		a.RecordExpense(ExpenseDebtService, repay)
		a.AddDebt(-repay)
		out.PrincipalRepaid = repay
	}
	if a.Cash < gdp*liquidityFloor {
		issue := gdp * issuanceRatio
		a.AddDebt(issue)
		a.Cash += issue
		out.NewIssuance = issue
	}

	ratio := a.Debt / gdp
	target := RatingForDebtRatio(ratio)
	switch {
	case target > a.Rating:
		a.SetRating(a.Rating.Downgrade())
		out.Downgraded = true
	case target < a.Rating:
		a.SetRating(a.Rating.Upgrade())
		out.Upgraded = true
	}
	out.Crisis = ratio > crisisDebtRatio
	return out
}
