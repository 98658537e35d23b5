package economy

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ErrInvalidAllocation is returned for percentages outside 0-100.
var ErrInvalidAllocation = errors.New("economy: invalid budget allocation")

// BudgetAllocation is the share of GDP, in percent per base tick, each
// spending line receives.
type BudgetAllocation struct {
	Infrastructure float64 `json:"infrastructure" yaml:"infrastructure" validate:"gte=0,lte=100"`
	Military       float64 `json:"military" yaml:"military" validate:"gte=0,lte=100"`
	Welfare        float64 `json:"welfare" yaml:"welfare" validate:"gte=0,lte=100"`
	Diplomacy      float64 `json:"diplomacy" yaml:"diplomacy" validate:"gte=0,lte=100"`
	DebtService    float64 `json:"debt_service" yaml:"debt_service" validate:"gte=0,lte=100"`
	Administration float64 `json:"administration" yaml:"administration" validate:"gte=0,lte=100"`
	Research       float64 `json:"research" yaml:"research" validate:"gte=0,lte=100"`
	// CoreMinimum forces debt service and administration up to their
	// essential targets and penalises the country when it cannot pay them.
	CoreMinimum bool `json:"core_minimum" yaml:"core_minimum"`
}

// DefaultBudget is the allocation every country starts with.
func DefaultBudget() BudgetAllocation {
	return BudgetAllocation{
		Infrastructure: 8,
		Military:       6,
		Welfare:        7,
		Diplomacy:      5,
		DebtService:    5,
		Administration: 3.5,
		Research:       4.5,
		CoreMinimum:    true,
	}
}

// Validate rejects negative, oversized and non-finite percentages.
func (b BudgetAllocation) Validate() error {
	if err := validate.Struct(b); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAllocation, err)
	}
	return nil
}

// TotalPercent sums every spending line.
func (b BudgetAllocation) TotalPercent() float64 {
	return b.Infrastructure + b.Military + b.Welfare + b.Diplomacy +
		b.DebtService + b.Administration + b.Research
}

// Requested converts the total allocation into an amount for gdp.
func (b BudgetAllocation) Requested(gdp float64) float64 {
	if gdp <= 0 {
		return 0
	}
	return gdp / 100 * b.TotalPercent()
}

// Amount converts one percentage into an amount for gdp.
func Amount(gdp, percent float64) float64 {
	if gdp <= 0 || percent <= 0 {
		return 0
	}
	return gdp * percent / 100
}
