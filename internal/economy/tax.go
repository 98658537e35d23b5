package economy

import "math"

// Rate bounds for tax policy.
const (
	minTaxRate = 0.0
	maxTaxRate = 0.6
)

// TaxPolicy turns GDP into revenue. A share of each collection is deferred
// to the next one to model collection lag.
type TaxPolicy struct {
	IncomeRate            float64 `json:"income_rate" yaml:"income_rate"`
	CorporateRate         float64 `json:"corporate_rate" yaml:"corporate_rate"`
	ConsumptionRate       float64 `json:"consumption_rate" yaml:"consumption_rate"`
	Deductions            float64 `json:"deductions" yaml:"deductions"`
	GDPSensitivity        float64 `json:"gdp_sensitivity" yaml:"gdp_sensitivity"`
	EmploymentSensitivity float64 `json:"employment_sensitivity" yaml:"employment_sensitivity"`
	Lagged                float64 `json:"lagged" yaml:"-"`
}

// DefaultTaxPolicy is the policy countries start with unless configured.
func DefaultTaxPolicy() TaxPolicy {
	return TaxPolicy{
		IncomeRate:            0.18,
		CorporateRate:         0.22,
		ConsumptionRate:       0.08,
		GDPSensitivity:        0.25,
		EmploymentSensitivity: 0.2,
	}
}

// Normalize clamps every rate into its allowed range.
func (p TaxPolicy) Normalize() TaxPolicy {
	clamp := func(v, lo, hi float64) float64 { return math.Min(math.Max(v, lo), hi) }
	p.IncomeRate = clamp(p.IncomeRate, minTaxRate, maxTaxRate)
	p.CorporateRate = clamp(p.CorporateRate, minTaxRate, maxTaxRate)
	p.ConsumptionRate = clamp(p.ConsumptionRate, minTaxRate, maxTaxRate)
	p.Deductions = math.Max(p.Deductions, 0)
	p.GDPSensitivity = clamp(p.GDPSensitivity, -1, 1)
	p.EmploymentSensitivity = clamp(p.EmploymentSensitivity, -1, 1)
	return p
}

// TaxOutcome splits a collection into cash now and cash carried forward.
type TaxOutcome struct {
	Immediate float64
	Deferred  float64
}

// Collect computes this period's tax take. 70% lands now together with the
// previous period's deferral; 30% is deferred.
func (p *TaxPolicy) Collect(gdp, employment, scale float64) TaxOutcome {
	gdp = math.Max(gdp, 0)
	gross := gdp*0.45*p.IncomeRate + gdp*0.35*p.CorporateRate + gdp*0.20*p.ConsumptionRate
	deduction := math.Min(p.Deductions, gross*0.4)
	structural := math.Max(gross-deduction, 0)

	gdpFactor := 1 + p.GDPSensitivity*(gdp/1500-1)
	employmentFactor := 1 + p.EmploymentSensitivity*(employment-0.9)
	adjusted := math.Max(structural*gdpFactor*employmentFactor, 0) * scale

	out := TaxOutcome{
		Immediate: adjusted*0.7 + p.Lagged,
		Deferred:  adjusted * 0.3,
	}
	p.Lagged = out.Deferred
	return out
}
