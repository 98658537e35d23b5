package scripted

import (
	"fmt"
	"strings"

	"github.com/talgya/statecraft/internal/world"
)

// Book holds the loaded templates and when each last fired per country.
type Book struct {
	templates []*Template
	byID      map[string]*Template
	// fired maps template id → country name → elapsed minute of last firing.
	fired map[string]map[string]uint64
}

// NewBook indexes templates; ids must be unique.
func NewBook(templates []*Template) (*Book, error) {
	b := &Book{
		byID:  make(map[string]*Template, len(templates)),
		fired: make(map[string]map[string]uint64),
	}
	for _, t := range templates {
		key := strings.ToLower(t.ID)
		if _, dup := b.byID[key]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidTemplate, t.ID)
		}
		b.byID[key] = t
		b.templates = append(b.templates, t)
	}
	return b, nil
}

// Templates returns the templates in load order.
func (b *Book) Templates() []*Template { return b.templates }

// Get finds a template by id or name, ignoring case.
func (b *Book) Get(id string) (*Template, bool) {
	if t, ok := b.byID[strings.ToLower(id)]; ok {
		return t, true
	}
	for _, t := range b.templates {
		if strings.EqualFold(t.Name, id) {
			return t, true
		}
	}
	return nil, false
}

// LastFired returns when a template last fired for a country.
func (b *Book) LastFired(id, country string) (uint64, bool) {
	at, ok := b.fired[strings.ToLower(id)][country]
	return at, ok
}

// Evaluate checks template id against every country at elapsed and applies
// it where the conditions hold and the cooldown has passed.
func (b *Book) Evaluate(id string, elapsed uint64, countries []*world.Country) ([]string, error) {
	t, ok := b.Get(id)
	if !ok {
		return nil, fmt.Errorf("scripted: unknown template %q", id)
	}
	key := strings.ToLower(t.ID)

	var lines []string
	for _, c := range countries {
		if last, ok := b.fired[key][c.Name]; ok && elapsed < last+uint64(t.CooldownMinutes) {
			continue
		}
		if !t.Matches(c) {
			continue
		}
		lines = append(lines, t.Apply(c)...)
		if b.fired[key] == nil {
			b.fired[key] = make(map[string]uint64)
		}
		b.fired[key][c.Name] = elapsed
	}
	return lines, nil
}

// State is the serialisable cooldown record.
type State map[string]map[string]uint64

// State copies the cooldown record for a snapshot.
func (b *Book) State() State {
	out := make(State, len(b.fired))
	for id, per := range b.fired {
		m := make(map[string]uint64, len(per))
		for k, v := range per {
			m[k] = v
		}
		out[id] = m
	}
	return out
}

// Restore replaces the cooldown record. Entries for unknown templates are
// dropped.
func (b *Book) Restore(s State) {
	b.fired = make(map[string]map[string]uint64, len(s))
	for id, per := range s {
		key := strings.ToLower(id)
		if _, ok := b.byID[key]; !ok {
			continue
		}
		m := make(map[string]uint64, len(per))
		for k, v := range per {
			m[k] = v
		}
		b.fired[key] = m
	}
}
