package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/statecraft/internal/economy"
)

func sampleDefinitions() []Definition {
	return []Definition{
		{Name: "Asteria", Government: "Republic", Population: 50, GDP: 1500, Stability: 60, Military: 55, Approval: 50, Budget: 400, Resources: 70},
		{Name: "Borealis", Government: "Federation", Population: 40, GDP: 1300, Stability: 55, Military: 60, Approval: 45, Budget: 380, Resources: 65},
		{Name: "Caldoria", Government: "Union", Population: 25, GDP: 900, Stability: 40, Military: 70, Approval: 70, Budget: 200, Resources: 250},
	}
}

func TestNewRegistry(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry(sampleDefinitions())
	require.NoError(t, err)
	require.Equal(t, 3, r.Len())

	a, ok := r.Get("asteria")
	require.True(t, ok)
	assert.Equal(t, economy.BBB, a.Fiscal.Rating)
	assert.Equal(t, map[string]int{"Borealis": 50, "Caldoria": 50}, a.Relations)

	c, err := r.Find("3")
	require.NoError(t, err)
	assert.Equal(t, "Caldoria", c.Name)
	assert.Equal(t, MaxResources, c.Resources)
	assert.Equal(t, economy.A, c.Fiscal.Rating)

	_, err = r.Find("Atlantis")
	require.ErrorIs(t, err, ErrUnknownCountry)

	_, err = NewRegistry(nil)
	require.Error(t, err)

	dup := append(sampleDefinitions(), Definition{Name: "ASTERIA"})
	_, err = NewRegistry(dup)
	require.Error(t, err)
}

func TestRemoveDropsRelations(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry(sampleDefinitions())
	require.NoError(t, err)

	require.True(t, r.Remove("Borealis"))
	assert.False(t, r.Remove("Borealis"))
	assert.Equal(t, 2, r.Len())

	a, _ := r.Get("Asteria")
	_, ok := a.Relation("Borealis")
	assert.False(t, ok)
	_, ok = r.Get("Borealis")
	assert.False(t, ok)

	c, err := r.Find("2")
	require.NoError(t, err)
	assert.Equal(t, "Caldoria", c.Name)
}

func TestAdjustRelationClamps(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry(sampleDefinitions())
	require.NoError(t, err)
	a, _ := r.Get("Asteria")
	b, _ := r.Get("Borealis")

	AdjustRelation(a, b, 80, -200)
	assert.Equal(t, MaxRelation, a.Relations["Borealis"])
	assert.Equal(t, MinRelation, b.Relations["Asteria"])

	AdjustRelation(a, a, 5, 5)
	_, ok := a.Relations["Asteria"]
	assert.False(t, ok)
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	c, err := NewCountry(sampleDefinitions()[0])
	require.NoError(t, err)

	m, err := ParseMetric("Cash")
	require.NoError(t, err)
	assert.Equal(t, MetricCash, m)
	_, err = ParseMetric("happiness")
	require.Error(t, err)

	c.AdjustMetric(MetricStability, 60)
	assert.Equal(t, MaxMetric, c.Stability)
	c.AdjustMetric(MetricDebt, 100)
	assert.Equal(t, 100.0, c.Metric(MetricDebt))
	c.AdjustMetric(MetricCash, -1000)
	assert.Zero(t, c.Metric(MetricCash))
	c.AdjustMetric(MetricGDP, 10)
	assert.Equal(t, 1510.0, c.Metric(MetricGDP))
}

func TestNewCountryRejectsBadAllocation(t *testing.T) {
	t.Parallel()

	def := sampleDefinitions()[0]
	bad := economy.DefaultBudget()
	bad.Military = -1
	def.Allocation = &bad
	_, err := NewCountry(def)
	require.Error(t, err)

	_, err = NewCountry(Definition{Name: "  "})
	require.Error(t, err)
}

func TestGenerateIsDeterministic(t *testing.T) {
	t.Parallel()

	cfg := GenConfig{Count: 6, Seed: 77}
	a, b := Generate(cfg), Generate(cfg)
	require.Len(t, a, 6)
	assert.Equal(t, a, b)

	names := map[string]bool{}
	for _, d := range a {
		assert.False(t, names[d.Name], "duplicate name %s", d.Name)
		names[d.Name] = true
		assert.Positive(t, d.GDP)
		assert.GreaterOrEqual(t, d.Stability, MinMetric)
		assert.LessOrEqual(t, d.Stability, MaxMetric)
	}

	_, err := NewRegistry(a)
	require.NoError(t, err)
	assert.Nil(t, Generate(GenConfig{}))
}
