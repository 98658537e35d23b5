// Package world holds the countries being simulated.
package world

import (
	"fmt"
	"math"
	"strings"

	"github.com/talgya/statecraft/internal/economy"
)

// Metric and relation bounds.
const (
	MinMetric    = 0
	MaxMetric    = 100
	MinResources = 0
	MaxResources = 200
	MinRelation  = -100
	MaxRelation  = 100

	StartingRelation = 50
)

// ClampMetric bounds stability, approval and military.
func ClampMetric(v int) int { return min(max(v, MinMetric), MaxMetric) }

// ClampResource bounds the resource index.
func ClampResource(v int) int { return min(max(v, MinResources), MaxResources) }

// ClampRelation bounds a bilateral relation.
func ClampRelation(v int) int { return min(max(v, MinRelation), MaxRelation) }

// Definition is a country as written in a scenario file.
type Definition struct {
	Name       string                    `yaml:"name" json:"name"`
	Government string                    `yaml:"government" json:"government"`
	Population float64                   `yaml:"population_millions" json:"population_millions"`
	GDP        float64                   `yaml:"gdp" json:"gdp"`
	Stability  int                       `yaml:"stability" json:"stability"`
	Military   int                       `yaml:"military" json:"military"`
	Approval   int                       `yaml:"approval" json:"approval"`
	Budget     float64                   `yaml:"budget" json:"budget"` // opening cash reserve
	Resources  int                       `yaml:"resources" json:"resources"`
	Tax        *economy.TaxPolicy        `yaml:"tax_policy,omitempty" json:"tax_policy,omitempty"`
	Allocation *economy.BudgetAllocation `yaml:"allocation,omitempty" json:"allocation,omitempty"`
}

// Country is the live state of one simulated nation.
type Country struct {
	Name       string                   `json:"name"`
	Government string                   `json:"government"`
	Population float64                  `json:"population_millions"`
	GDP        float64                  `json:"gdp"`
	Stability  int                      `json:"stability"`
	Military   int                      `json:"military"`
	Approval   int                      `json:"approval"`
	Resources  int                      `json:"resources"`
	Relations  map[string]int           `json:"relations"`
	Fiscal     economy.FiscalAccount    `json:"fiscal"`
	Tax        economy.TaxPolicy        `json:"tax"`
	Budget     economy.BudgetAllocation `json:"budget"`
}

// NewCountry builds live state from a definition. The opening credit grade
// follows approval and stability.
func NewCountry(def Definition) (*Country, error) {
	name := strings.TrimSpace(def.Name)
	if name == "" {
		return nil, fmt.Errorf("world: country without a name")
	}

	rating := economy.BB
	switch {
	case def.Approval >= 65:
		rating = economy.A
	case def.Stability >= 60:
		rating = economy.BBB
	}

	tax := economy.DefaultTaxPolicy()
	if def.Tax != nil {
		tax = def.Tax.Normalize()
		tax.Lagged = 0
	}
	budget := economy.DefaultBudget()
	if def.Allocation != nil {
		if err := def.Allocation.Validate(); err != nil {
			return nil, fmt.Errorf("world: %s: %w", name, err)
		}
		budget = *def.Allocation
	}

	return &Country{
		Name:       name,
		Government: def.Government,
		Population: math.Max(def.Population, 0),
		GDP:        math.Max(def.GDP, 0),
		Stability:  ClampMetric(def.Stability),
		Military:   ClampMetric(def.Military),
		Approval:   ClampMetric(def.Approval),
		Resources:  ClampResource(def.Resources),
		Relations:  make(map[string]int),
		Fiscal:     economy.NewFiscalAccount(def.Budget, rating),
		Tax:        tax,
		Budget:     budget,
	}, nil
}

// EmploymentRatio estimates employment from stability and approval.
func (c *Country) EmploymentRatio() float64 {
	r := float64(c.Stability)/MaxMetric*0.6 + float64(c.Approval)/MaxMetric*0.4
	return math.Min(math.Max(r, 0.4), 1.2)
}

// AddGDP changes GDP, flooring at zero.
func (c *Country) AddGDP(delta float64) { c.GDP = math.Max(c.GDP+delta, 0) }

// AddStability changes stability within bounds.
func (c *Country) AddStability(d int) { c.Stability = ClampMetric(c.Stability + d) }

// AddApproval changes approval within bounds.
func (c *Country) AddApproval(d int) { c.Approval = ClampMetric(c.Approval + d) }

// AddMilitary changes military strength within bounds.
func (c *Country) AddMilitary(d int) { c.Military = ClampMetric(c.Military + d) }

// AddResources changes the resource index within bounds.
func (c *Country) AddResources(d int) { c.Resources = ClampResource(c.Resources + d) }

// Relation returns the relation toward another country.
func (c *Country) Relation(other string) (int, bool) {
	v, ok := c.Relations[other]
	return v, ok
}

// Metric names a numeric country attribute that events can read and adjust.
type Metric string

const (
	MetricStability Metric = "stability"
	MetricApproval  Metric = "approval"
	MetricMilitary  Metric = "military"
	MetricResources Metric = "resources"
	MetricGDP       Metric = "gdp"
	MetricDebt      Metric = "debt"
	MetricCash      Metric = "cash_reserve"
)

// ParseMetric validates a metric name.
func ParseMetric(s string) (Metric, error) {
	m := Metric(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case MetricStability, MetricApproval, MetricMilitary, MetricResources, MetricGDP, MetricDebt, MetricCash:
		return m, nil
	case "cash":
		return MetricCash, nil
	}
	return "", fmt.Errorf("world: unknown metric %q", s)
}

// Metric reads a metric value.
func (c *Country) Metric(m Metric) float64 {
	switch m {
	case MetricStability:
		return float64(c.Stability)
	case MetricApproval:
		return float64(c.Approval)
	case MetricMilitary:
		return float64(c.Military)
	case MetricResources:
		return float64(c.Resources)
	case MetricGDP:
		return c.GDP
	case MetricDebt:
		return c.Fiscal.Debt
	case MetricCash:
		return c.Fiscal.Cash
	}
	return 0
}

// AdjustMetric applies a delta to a metric, respecting its bounds.
func (c *Country) AdjustMetric(m Metric, delta float64) {
	switch m {
	case MetricStability:
		c.AddStability(int(math.Round(delta)))
	case MetricApproval:
		c.AddApproval(int(math.Round(delta)))
	case MetricMilitary:
		c.AddMilitary(int(math.Round(delta)))
	case MetricResources:
		c.AddResources(int(math.Round(delta)))
	case MetricGDP:
		c.AddGDP(delta)
	case MetricDebt:
		c.Fiscal.AddDebt(delta)
	case MetricCash:
		c.Fiscal.Cash = math.Max(c.Fiscal.Cash+delta, 0)
	}
}
