package economy

import "math"

// Rand is the randomness the market draws from.
type Rand interface {
	Between(lo, hi float64) float64
	Chance(p float64) bool
}

// Shock multipliers for announced market shocks.
const (
	ShockSpike = 1.35
	ShockCrash = 0.7
)

// CommodityMarket prices the resource exports every country sells.
type CommodityMarket struct {
	Price       float64 `json:"price"`
	BasePrice   float64 `json:"base_price"`
	Volatility  float64 `json:"volatility"`
	ShockChance float64 `json:"shock_chance"`
}

// NewCommodityMarket creates a market at its base price.
func NewCommodityMarket(base, volatility, shockChance float64) *CommodityMarket {
	base = math.Max(base, 1)
	return &CommodityMarket{
		Price:       base,
		BasePrice:   base,
		Volatility:  math.Max(volatility, 0.1),
		ShockChance: math.Min(math.Max(shockChance, 0), 1),
	}
}

// DefaultCommodityMarket is the market every new world starts with.
func DefaultCommodityMarket() *CommodityMarket { return NewCommodityMarket(120, 7.5, 0.04) }

// Update moves the price toward base with a random step. It returns a
// non-zero shock factor when a shock should be announced; the caller
// decides when it lands.
func (m *CommodityMarket) Update(rng Rand, scale float64) (shock float64) {
	scale = math.Max(scale, 0.25)
	drift := (m.BasePrice - m.Price) * 0.02 * scale
	step := rng.Between(-m.Volatility, m.Volatility) * math.Sqrt(scale)
	m.Price = m.clamp(m.Price + drift + step)

	if rng.Chance(math.Min(m.ShockChance*scale, 1)) {
		if rng.Chance(0.5) {
			return ShockSpike
		}
		return ShockCrash
	}
	return 0
}

// ApplyShock multiplies the price by factor within the market's band.
func (m *CommodityMarket) ApplyShock(factor float64) {
	m.Price = m.clamp(m.Price * factor)
}

// RevenueFor is the export income of a country with the given resource index.
func (m *CommodityMarket) RevenueFor(resources int, scale float64) float64 {
	volume := float64(max(resources, 0)) * 0.45
	return math.Max(m.Price*volume*scale, 0)
}

func (m *CommodityMarket) clamp(p float64) float64 {
	return math.Min(math.Max(p, m.BasePrice*0.4), m.BasePrice*1.9)
}
