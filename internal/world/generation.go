// Procedural country generation using layered simplex noise.
// Each country samples the noise field at its own point on a ring, so
// neighbours on the ring get correlated attributes.
package world

import (
	"math"
	"math/rand/v2"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// GenConfig holds country generation parameters.
type GenConfig struct {
	Count int   // Number of countries
	Seed  int64 // Noise and naming seed
}

var governments = []string{
	"Republic", "Federation", "Constitutional Monarchy", "Parliamentary Democracy",
	"Commonwealth", "Directorate", "Union",
}

// Generate creates country definitions. The same config always yields the
// same definitions.
func Generate(cfg GenConfig) []Definition {
	if cfg.Count <= 0 {
		return nil
	}

	// Independent layers for wealth, cohesion, and land.
	wealthNoise := opensimplex.NewNormalized(cfg.Seed)
	cohesionNoise := opensimplex.NewNormalized(cfg.Seed + 1)
	landNoise := opensimplex.NewNormalized(cfg.Seed + 2)

	rng := rand.New(rand.NewPCG(uint64(cfg.Seed), uint64(cfg.Seed)+1))
	names := generateNames(rng, cfg.Count)

	defs := make([]Definition, 0, cfg.Count)
	for i := 0; i < cfg.Count; i++ {
		angle := 2 * math.Pi * float64(i) / float64(cfg.Count)
		x, y := 4*math.Cos(angle), 4*math.Sin(angle)

		wealth := octaveNoise(wealthNoise, x, y, 3, 0.35, 0.5)
		cohesion := octaveNoise(cohesionNoise, x, y, 3, 0.35, 0.5)
		land := octaveNoise(landNoise, x, y, 2, 0.5, 0.5)

		pop := 10 + land*70
		gdp := 700 + wealth*1400
		defs = append(defs, Definition{
			Name:       names[i],
			Government: governments[rng.IntN(len(governments))],
			Population: round1(pop),
			GDP:        round1(gdp),
			Stability:  ClampMetric(int(35 + cohesion*45)),
			Military:   ClampMetric(int(30 + (1-cohesion)*25 + land*20)),
			Approval:   ClampMetric(int(30 + cohesion*40)),
			Budget:     round1(gdp * 0.25),
			Resources:  ClampResource(int(30 + land*90)),
		})
	}
	return defs
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

// generateNames produces procedural country names by combining syllables.
func generateNames(rng *rand.Rand, count int) []string {
	prefixes := []string{
		"Aur", "Bor", "Cal", "Dra", "Ester", "Fal", "Gal", "Hel", "Ist",
		"Kor", "Lum", "Mar", "Nor", "Ost", "Pel", "Quar", "Ros", "Sol",
		"Tar", "Val", "Vest", "Zan",
	}
	suffixes := []string{
		"elia", "ealis", "andor", "mark", "onia", "avia", "heim", "istan",
		"ora", "enburg", "ia", "essa", "ovia", "land", "aria", "eth",
	}

	used := make(map[string]bool)
	names := make([]string, 0, count)

	for len(names) < count {
		name := prefixes[rng.IntN(len(prefixes))] + suffixes[rng.IntN(len(suffixes))]
		if !used[name] {
			used[name] = true
			names = append(names, name)
		}
	}

	return names
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
