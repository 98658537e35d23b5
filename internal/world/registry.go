package world

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownCountry is returned when a name does not resolve.
var ErrUnknownCountry = errors.New("world: unknown country")

// Registry keeps countries in a stable order. Countries can be removed
// mid-run; anything still referring to them must tolerate the absence.
type Registry struct {
	countries []*Country
	byName    map[string]*Country // lower-cased name
}

// NewRegistry creates countries from definitions with neutral-positive
// relations between every pair.
func NewRegistry(defs []Definition) (*Registry, error) {
	if len(defs) == 0 {
		return nil, errors.New("world: no countries defined")
	}
	r := &Registry{byName: make(map[string]*Country)}
	for _, def := range defs {
		c, err := NewCountry(def)
		if err != nil {
			return nil, err
		}
		if err := r.Add(c); err != nil {
			return nil, err
		}
	}
	for _, a := range r.countries {
		for _, b := range r.countries {
			if a != b {
				a.Relations[b.Name] = StartingRelation
			}
		}
	}
	return r, nil
}

// RestoreRegistry rebuilds a registry from saved countries, keeping their
// relations as stored.
func RestoreRegistry(countries []*Country) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Country)}
	for _, c := range countries {
		if c.Relations == nil {
			c.Relations = make(map[string]int)
		}
		if err := r.Add(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add appends a country; names must be unique ignoring case.
func (r *Registry) Add(c *Country) error {
	key := strings.ToLower(c.Name)
	if _, dup := r.byName[key]; dup {
		return fmt.Errorf("world: duplicate country %q", c.Name)
	}
	r.byName[key] = c
	r.countries = append(r.countries, c)
	return nil
}

// Len returns the number of countries.
func (r *Registry) Len() int { return len(r.countries) }

// All returns the countries in registry order. The slice is a copy; the
// countries are shared.
func (r *Registry) All() []*Country {
	out := make([]*Country, len(r.countries))
	copy(out, r.countries)
	return out
}

// Get looks a country up by name, ignoring case.
func (r *Registry) Get(name string) (*Country, bool) {
	c, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return c, ok
}

// Find resolves a name or a 1-based position.
func (r *Registry) Find(nameOrIndex string) (*Country, error) {
	if n, err := strconv.Atoi(nameOrIndex); err == nil {
		if n >= 1 && n <= len(r.countries) {
			return r.countries[n-1], nil
		}
	}
	if c, ok := r.Get(nameOrIndex); ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCountry, nameOrIndex)
}

// Remove deletes a country and every relation pointing at it.
func (r *Registry) Remove(name string) bool {
	c, ok := r.Get(name)
	if !ok {
		return false
	}
	delete(r.byName, strings.ToLower(c.Name))
	for i, x := range r.countries {
		if x == c {
			r.countries = append(r.countries[:i], r.countries[i+1:]...)
			break
		}
	}
	for _, other := range r.countries {
		delete(other.Relations, c.Name)
	}
	return true
}

// AdjustRelation changes the relation of a toward b by da and of b toward
// a by db. Pairs without an existing relation are left alone.
func AdjustRelation(a, b *Country, da, db int) {
	if a == b {
		return
	}
	if v, ok := a.Relations[b.Name]; ok {
		a.Relations[b.Name] = ClampRelation(v + da)
	}
	if v, ok := b.Relations[a.Name]; ok {
		b.Relations[a.Name] = ClampRelation(v + db)
	}
}
