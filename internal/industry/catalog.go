// Package industry models the world's productive sectors. A catalog of
// sector definitions is loaded from YAML; a Runtime turns it into per-tick
// output, costs and value added, and carries subsidies between ticks.
package industry

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed sectors/*
var builtin embed.FS

var validate = validator.New()

var (
	// ErrInvalidCatalog is returned for malformed or inconsistent sector files.
	ErrInvalidCatalog = errors.New("industry: invalid catalog")
	// ErrUnknownSector is returned when a sector token matches nothing.
	ErrUnknownSector = errors.New("industry: unknown sector")
	// ErrAmbiguousSector is returned when a bare key exists in several categories.
	ErrAmbiguousSector = errors.New("industry: ambiguous sector")
)

// Category groups sectors. Categories are simulated energy first, so every
// other sector sees this tick's energy supply.
type Category uint8

const (
	Primary Category = iota
	Secondary
	Tertiary
	Energy
)

var categoryNames = [...]string{"primary", "secondary", "tertiary", "energy"}

// Categories lists every category in display order.
func Categories() []Category { return []Category{Primary, Secondary, Tertiary, Energy} }

// simulationOrder is the order sectors are run within a tick.
var simulationOrder = [...]Category{Energy, Primary, Secondary, Tertiary}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return fmt.Sprintf("category(%d)", uint8(c))
}

// ParseCategory accepts a category name or its number, 1 for primary.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "primary", "1":
		return Primary, nil
	case "secondary", "2":
		return Secondary, nil
	case "tertiary", "3":
		return Tertiary, nil
	case "energy", "4":
		return Energy, nil
	}
	return 0, fmt.Errorf("industry: unknown category %q", s)
}

func (c Category) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Category) UnmarshalText(b []byte) error {
	v, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// DependencyKind says how a sector leans on another.
type DependencyKind string

const (
	// DependsInput limits output when the supplier falls short.
	DependsInput DependencyKind = "input"
	// DependsCost raises unit cost when the supplier falls short.
	DependsCost DependencyKind = "cost"
	// DependsDemand moves the price with the buyer's activity.
	DependsDemand DependencyKind = "demand"
)

// Dependency links a sector to a supplier or buyer. Requirement is a share
// of the dependent sector's base output.
type Dependency struct {
	Sector      string         `yaml:"sector" json:"sector" validate:"required"`
	Category    *Category      `yaml:"category,omitempty" json:"category,omitempty"`
	Requirement float64        `yaml:"requirement" json:"requirement" validate:"gte=0"`
	Elasticity  float64        `yaml:"elasticity" json:"elasticity" validate:"gte=-2.5,lte=2.5"`
	Kind        DependencyKind `yaml:"dependency" json:"dependency" validate:"omitempty,oneof=input cost demand"`
}

// target resolves the dependency, defaulting to the owner's category.
func (d Dependency) target(owner Category) ID {
	c := owner
	if d.Category != nil {
		c = *d.Category
	}
	return ID{Category: c, Key: strings.ToLower(d.Sector)}
}

// Sector is one productive sector as defined in a catalog file. Output is
// in units per hour; cost and price are per unit.
type Sector struct {
	Category         Category     `yaml:"-" json:"category"`
	Key              string       `yaml:"key" json:"key" validate:"required"`
	Name             string       `yaml:"name" json:"name" validate:"required"`
	Description      string       `yaml:"description,omitempty" json:"description,omitempty"`
	BaseOutput       float64      `yaml:"base_output" json:"base_output" validate:"gte=0"`
	BaseCost         float64      `yaml:"base_cost" json:"base_cost" validate:"gte=0"`
	BasePrice        float64      `yaml:"base_price" json:"base_price" validate:"gte=0"`
	PriceSensitivity float64      `yaml:"price_sensitivity" json:"price_sensitivity" validate:"gte=0"`
	Employment       float64      `yaml:"employment" json:"employment" validate:"gte=0"`
	Dependencies     []Dependency `yaml:"dependencies,omitempty" json:"dependencies,omitempty" validate:"dive"`
}

// Sector defaults for fields left at zero.
const (
	DefaultBaseOutput       = 100
	DefaultBaseCost         = 50
	DefaultPriceSensitivity = 0.5
	DefaultEmployment       = 100
	// DefaultMarkup sets the base price from the base cost.
	DefaultMarkup = 1.25
)

func (s *Sector) applyDefaults() {
	s.Key = strings.ToLower(strings.TrimSpace(s.Key))
	if s.BaseOutput == 0 {
		s.BaseOutput = DefaultBaseOutput
	}
	if s.BaseCost == 0 {
		s.BaseCost = DefaultBaseCost
	}
	if s.BasePrice == 0 {
		s.BasePrice = s.BaseCost * DefaultMarkup
	}
	if s.PriceSensitivity == 0 {
		s.PriceSensitivity = DefaultPriceSensitivity
	}
	if s.Employment == 0 {
		s.Employment = DefaultEmployment
	}
	for i := range s.Dependencies {
		d := &s.Dependencies[i]
		if d.Requirement == 0 {
			d.Requirement = 1
		}
		if d.Kind == "" {
			d.Kind = DependsInput
		}
	}
}

// ID identifies a sector. Keys are unique within a category only.
type ID struct {
	Category Category `json:"category"`
	Key      string   `json:"key"`
}

func (id ID) String() string { return id.Category.String() + ":" + id.Key }

func (id ID) less(o ID) bool {
	if id.Category != o.Category {
		return id.Category < o.Category
	}
	return id.Key < o.Key
}

// Catalog is an immutable, validated set of sectors.
type Catalog struct {
	sectors []Sector // ordered by category then key
	byID    map[ID]int
}

// NewCatalog validates sectors and checks that every dependency names a
// sector in the catalog.
func NewCatalog(sectors ...Sector) (*Catalog, error) {
	c := &Catalog{byID: make(map[ID]int, len(sectors))}
	for _, s := range sectors {
		s.Dependencies = append([]Dependency(nil), s.Dependencies...)
		s.applyDefaults()
		if err := validate.Struct(s); err != nil {
			return nil, fmt.Errorf("%w: sector %q: %v", ErrInvalidCatalog, s.Key, err)
		}
		id := ID{Category: s.Category, Key: s.Key}
		if _, dup := c.byID[id]; dup {
			return nil, fmt.Errorf("%w: duplicate sector %s", ErrInvalidCatalog, id)
		}
		c.byID[id] = -1
		c.sectors = append(c.sectors, s)
	}
	sort.Slice(c.sectors, func(i, j int) bool { return c.sectors[i].id().less(c.sectors[j].id()) })
	for i, s := range c.sectors {
		c.byID[s.id()] = i
	}
	for _, s := range c.sectors {
		for _, d := range s.Dependencies {
			if _, ok := c.byID[d.target(s.Category)]; !ok {
				return nil, fmt.Errorf("%w: %s depends on unknown sector %s", ErrInvalidCatalog, s.id(), d.target(s.Category))
			}
		}
	}
	return c, nil
}

func (s Sector) id() ID { return ID{Category: s.Category, Key: s.Key} }

// Len returns the number of sectors.
func (c *Catalog) Len() int { return len(c.sectors) }

// Sectors returns every sector ordered by category then key.
func (c *Catalog) Sectors() []Sector { return append([]Sector(nil), c.sectors...) }

// Get returns a sector by id.
func (c *Catalog) Get(id ID) (Sector, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Sector{}, false
	}
	return c.sectors[i], true
}

// Resolve turns "category:key", "category/key" or a bare key into an id.
// A bare key must be unique across categories.
func (c *Catalog) Resolve(token string) (ID, error) {
	raw := strings.TrimSpace(token)
	if raw == "" {
		return ID{}, fmt.Errorf("%w: empty name", ErrUnknownSector)
	}
	if cat, key, ok := strings.Cut(strings.ReplaceAll(raw, "/", ":"), ":"); ok {
		category, err := ParseCategory(cat)
		if err != nil {
			return ID{}, fmt.Errorf("%w: %v", ErrUnknownSector, err)
		}
		id := ID{Category: category, Key: strings.ToLower(strings.TrimSpace(key))}
		if _, ok := c.byID[id]; !ok {
			return ID{}, fmt.Errorf("%w: %s", ErrUnknownSector, raw)
		}
		return id, nil
	}

	key := strings.ToLower(raw)
	var found []ID
	for _, s := range c.sectors {
		if s.Key == key {
			found = append(found, s.id())
		}
	}
	switch len(found) {
	case 0:
		return ID{}, fmt.Errorf("%w: %s", ErrUnknownSector, raw)
	case 1:
		return found[0], nil
	default:
		return ID{}, fmt.Errorf("%w: %s exists in several categories, use category:key", ErrAmbiguousSector, raw)
	}
}

type categoryFile struct {
	Category Category `yaml:"category"`
	Sectors  []Sector `yaml:"sectors"`
}

// Parse decodes one category file.
func Parse(name string, data []byte) ([]Sector, error) {
	var f categoryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidCatalog, name, err)
	}
	for i := range f.Sectors {
		f.Sectors[i].Category = f.Category
	}
	return f.Sectors, nil
}

// Builtin returns the catalog bundled with the binary.
func Builtin() (*Catalog, error) {
	return LoadFS(builtin, "sectors")
}

// LoadFS builds a catalog from every .yaml and .yml file in dir.
func LoadFS(fsys fs.FS, dir string) (*Catalog, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("industry: read %s: %w", dir, err)
	}
	var sectors []Sector
	for _, e := range entries {
		ext := strings.ToLower(path.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("industry: %w", err)
		}
		parsed, err := Parse(e.Name(), data)
		if err != nil {
			return nil, err
		}
		sectors = append(sectors, parsed...)
	}
	if len(sectors) == 0 {
		return nil, fmt.Errorf("%w: no sectors in %s", ErrInvalidCatalog, dir)
	}
	return NewCatalog(sectors...)
}
