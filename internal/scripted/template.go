// Package scripted holds data-driven event templates: conditions checked
// against each country on a cadence, with effects applied when they hold.
package scripted

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/talgya/statecraft/internal/world"
)

// Template defaults in simulated minutes.
const (
	DefaultCheckMinutes    = 120
	DefaultCooldownMinutes = 720
)

// ErrInvalidTemplate is returned for templates that fail validation.
var ErrInvalidTemplate = errors.New("scripted: invalid template")

//go:embed templates/*
var builtin embed.FS

// Op is a comparison operator.
type Op string

const (
	OpGT Op = ">"
	OpGE Op = ">="
	OpLT Op = "<"
	OpLE Op = "<="
	OpEQ Op = "=="
	OpNE Op = "!="
)

func (o Op) valid() bool {
	switch o {
	case OpGT, OpGE, OpLT, OpLE, OpEQ, OpNE:
		return true
	}
	return false
}

func (o Op) compare(a, b float64) bool {
	switch o {
	case OpGT:
		return a > b
	case OpGE:
		return a >= b
	case OpLT:
		return a < b
	case OpLE:
		return a <= b
	case OpEQ:
		return a == b
	case OpNE:
		return a != b
	}
	return false
}

// Condition compares one country metric against a constant.
type Condition struct {
	Metric world.Metric `yaml:"metric" json:"metric"`
	Op     Op           `yaml:"op" json:"op"`
	Value  float64      `yaml:"value" json:"value"`
}

func (c Condition) String() string { return fmt.Sprintf("%s %s %g", c.Metric, c.Op, c.Value) }

// EffectType selects what an effect does.
type EffectType string

const (
	EffectAdjustMetric EffectType = "adjust_metric"
	EffectReport       EffectType = "report"
)

// Effect is one consequence of a fired template.
type Effect struct {
	Type    EffectType   `yaml:"type" json:"type"`
	Metric  world.Metric `yaml:"metric,omitempty" json:"metric,omitempty"`
	Delta   float64      `yaml:"delta,omitempty" json:"delta,omitempty"`
	Message string       `yaml:"message,omitempty" json:"message,omitempty"`
}

// Template is a validated scripted event.
type Template struct {
	ID                  string      `yaml:"id" json:"id"`
	Name                string      `yaml:"name" json:"name"`
	Description         string      `yaml:"description" json:"description"`
	Conditions          []Condition `yaml:"conditions" json:"conditions"`
	CheckMinutes        int64       `yaml:"check_minutes" json:"check_minutes"`
	InitialDelayMinutes int64       `yaml:"initial_delay_minutes" json:"initial_delay_minutes"`
	CooldownMinutes     int64       `yaml:"cooldown_minutes" json:"cooldown_minutes"`
	Effects             []Effect    `yaml:"effects" json:"effects"`
}

// templateFile mirrors Template with optional timings so omitted values
// can take defaults while explicit zeros are rejected.
type templateFile struct {
	ID                  string      `yaml:"id"`
	Name                string      `yaml:"name"`
	Description         string      `yaml:"description"`
	Conditions          []Condition `yaml:"conditions"`
	CheckMinutes        *int64      `yaml:"check_minutes"`
	InitialDelayMinutes *int64      `yaml:"initial_delay_minutes"`
	CooldownMinutes     *int64      `yaml:"cooldown_minutes"`
	Effects             []Effect    `yaml:"effects"`
}

// Parse decodes one template. YAML and JSON are both accepted.
func Parse(name string, data []byte) (*Template, error) {
	var raw templateFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTemplate, name, err)
	}
	t := &Template{
		ID:              strings.TrimSpace(raw.ID),
		Name:            raw.Name,
		Description:     raw.Description,
		Conditions:      raw.Conditions,
		CheckMinutes:    DefaultCheckMinutes,
		CooldownMinutes: DefaultCooldownMinutes,
		Effects:         raw.Effects,
	}
	if raw.CheckMinutes != nil {
		t.CheckMinutes = *raw.CheckMinutes
	}
	t.InitialDelayMinutes = t.CheckMinutes
	if raw.InitialDelayMinutes != nil {
		t.InitialDelayMinutes = *raw.InitialDelayMinutes
	}
	if raw.CooldownMinutes != nil {
		t.CooldownMinutes = *raw.CooldownMinutes
	}
	if t.Name == "" {
		t.Name = t.ID
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return t, nil
}

// Validate checks timings, metric names, operators and effects.
func (t *Template) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidTemplate)
	}
	if t.CheckMinutes <= 0 {
		return fmt.Errorf("%w: %s: check_minutes must be positive", ErrInvalidTemplate, t.ID)
	}
	if t.InitialDelayMinutes < 0 || t.CooldownMinutes < 0 {
		return fmt.Errorf("%w: %s: negative delay or cooldown", ErrInvalidTemplate, t.ID)
	}
	for i, c := range t.Conditions {
		m, err := world.ParseMetric(string(c.Metric))
		if err != nil {
			return fmt.Errorf("%w: %s: condition %d: %v", ErrInvalidTemplate, t.ID, i, err)
		}
		t.Conditions[i].Metric = m
		if !c.Op.valid() {
			return fmt.Errorf("%w: %s: condition %d: operator %q", ErrInvalidTemplate, t.ID, i, c.Op)
		}
	}
	if len(t.Effects) == 0 {
		return fmt.Errorf("%w: %s: no effects", ErrInvalidTemplate, t.ID)
	}
	for i, e := range t.Effects {
		switch e.Type {
		case EffectAdjustMetric:
			m, err := world.ParseMetric(string(e.Metric))
			if err != nil {
				return fmt.Errorf("%w: %s: effect %d: %v", ErrInvalidTemplate, t.ID, i, err)
			}
			t.Effects[i].Metric = m
		case EffectReport:
			if strings.TrimSpace(e.Message) == "" {
				return fmt.Errorf("%w: %s: effect %d: empty message", ErrInvalidTemplate, t.ID, i)
			}
		default:
			return fmt.Errorf("%w: %s: effect %d: unknown type %q", ErrInvalidTemplate, t.ID, i, e.Type)
		}
	}
	return nil
}

// Matches reports whether every condition holds for c.
func (t *Template) Matches(c *world.Country) bool {
	for _, cond := range t.Conditions {
		if !cond.Op.compare(c.Metric(cond.Metric), cond.Value) {
			return false
		}
	}
	return true
}

// Apply runs the effects against c and returns the report lines.
func (t *Template) Apply(c *world.Country) []string {
	var lines []string
	for _, e := range t.Effects {
		switch e.Type {
		case EffectAdjustMetric:
			c.AdjustMetric(e.Metric, e.Delta)
		case EffectReport:
			lines = append(lines, strings.ReplaceAll(e.Message, "{country}", c.Name))
		}
	}
	return lines
}

// Builtin loads the templates shipped with the binary, ordered by id.
func Builtin() ([]*Template, error) {
	return LoadFS(builtin, "templates")
}

// LoadFS parses every .yaml, .yml and .json file in dir, ordered by id.
func LoadFS(fsys fs.FS, dir string) ([]*Template, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("scripted: read %s: %w", dir, err)
	}
	var out []*Template
	for _, e := range entries {
		ext := strings.ToLower(path.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml" && ext != ".json") {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("scripted: read %s: %w", e.Name(), err)
		}
		t, err := Parse(e.Name(), data)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
