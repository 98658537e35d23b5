// Package scenario loads world setups from YAML or JSON files.
package scenario

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/talgya/statecraft/internal/calendar"
	"github.com/talgya/statecraft/internal/economy"
	"github.com/talgya/statecraft/internal/scripted"
	"github.com/talgya/statecraft/internal/world"
)

//go:embed data/default.yaml
var defaultScenario []byte

// Market configures the commodity market. Zero fields take defaults.
type Market struct {
	BasePrice   float64 `yaml:"base_price"`
	Volatility  float64 `yaml:"volatility"`
	ShockChance float64 `yaml:"shock_chance"`
}

// Scenario is a loaded world setup.
type Scenario struct {
	Name      string
	Seed      uint64
	Calendar  calendar.Calendar
	Countries []world.Definition
	Market    *economy.CommodityMarket
	Templates []*scripted.Template
	// TemplatesDir, when set, is read instead of the built-in templates.
	TemplatesDir string
}

type file struct {
	Name         string             `yaml:"name"`
	Seed         uint64             `yaml:"seed"`
	Calendar     string             `yaml:"calendar"`
	StartDate    string             `yaml:"start_date"`
	Market       *Market            `yaml:"market"`
	Countries    []world.Definition `yaml:"countries"`
	Templates    []yaml.Node        `yaml:"templates"`
	TemplatesDir string             `yaml:"templates_dir"`
}

// Default returns the built-in scenario.
func Default() (*Scenario, error) {
	return Parse("default.yaml", defaultScenario, "")
}

// Load reads a scenario file. Relative template directories resolve
// against the file's directory.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	return Parse(filepath.Base(path), data, filepath.Dir(path))
}

// Parse decodes a scenario. A bare list is read as the country list of an
// otherwise default scenario, which is the shape of a plain countries.json.
func Parse(name string, data []byte, baseDir string) (*Scenario, error) {
	var f file
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' || bytes.HasPrefix(trimmed, []byte("- ")) {
		if err := yaml.Unmarshal(data, &f.Countries); err != nil {
			return nil, fmt.Errorf("scenario: %s: %w", name, err)
		}
	} else if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("scenario: %s: %w", name, err)
	}
	if len(f.Countries) == 0 {
		return nil, fmt.Errorf("scenario: %s: no countries defined", name)
	}

	start := f.StartDate
	if start == "" {
		start = "2025-01-01"
	}
	cal, err := calendar.Parse(f.Calendar, start)
	if err != nil {
		return nil, fmt.Errorf("scenario: %s: %w", name, err)
	}

	s := &Scenario{
		Name:      f.Name,
		Seed:      f.Seed,
		Calendar:  cal,
		Countries: f.Countries,
		Market:    economy.DefaultCommodityMarket(),
	}
	if s.Name == "" {
		s.Name = name
	}
	if m := f.Market; m != nil {
		d := economy.DefaultCommodityMarket()
		s.Market = economy.NewCommodityMarket(orDefault(m.BasePrice, d.BasePrice), orDefault(m.Volatility, d.Volatility), orDefault(m.ShockChance, d.ShockChance))
	}

	for i := range f.Templates {
		raw, err := yaml.Marshal(&f.Templates[i])
		if err != nil {
			return nil, fmt.Errorf("scenario: %s: template %d: %w", name, i, err)
		}
		t, err := scripted.Parse(fmt.Sprintf("%s#%d", name, i), raw)
		if err != nil {
			return nil, err
		}
		s.Templates = append(s.Templates, t)
	}
	if f.TemplatesDir != "" {
		s.TemplatesDir = f.TemplatesDir
		if !filepath.IsAbs(s.TemplatesDir) && baseDir != "" {
			s.TemplatesDir = filepath.Join(baseDir, s.TemplatesDir)
		}
	}
	return s, nil
}

// ErrNoTemplates is returned when a templates directory holds no templates.
var ErrNoTemplates = errors.New("scenario: no templates found")

// LoadTemplates returns the inline templates followed by those from the
// templates directory, or the built-in set when neither is given.
func (s *Scenario) LoadTemplates() ([]*scripted.Template, error) {
	out := append([]*scripted.Template(nil), s.Templates...)
	if s.TemplatesDir != "" {
		dir, err := scripted.LoadFS(os.DirFS(s.TemplatesDir), ".")
		if err != nil {
			return nil, err
		}
		if len(dir) == 0 {
			return nil, fmt.Errorf("%w in %s", ErrNoTemplates, s.TemplatesDir)
		}
		return append(out, dir...), nil
	}
	if len(out) > 0 {
		return out, nil
	}
	return scripted.Builtin()
}

// Generated builds a scenario of count procedurally generated countries.
func Generated(count int, seed uint64, cal calendar.Calendar) *Scenario {
	return &Scenario{
		Name:      fmt.Sprintf("generated-%d", seed),
		Seed:      seed,
		Calendar:  cal,
		Countries: world.Generate(world.GenConfig{Count: count, Seed: int64(seed)}),
		Market:    economy.DefaultCommodityMarket(),
	}
}

func orDefault(v, d float64) float64 {
	if v == 0 {
		return d
	}
	return v
}
