// Package criteria implements the peer group membership predicate. A
// Criteria is a conjunction of typed constraints; it serializes to the
// sparse JSON object stored in peer_groups.criteria.
package criteria

import (
	"bytes"
	"encoding/json"
	"slices"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sunsetwell/scoring-cli/internal/model"
)

// Constraint is one restriction on peer group membership. The set of
// implementations is closed to this package.
type Constraint interface {
	// Matches reports whether the facility satisfies the constraint.
	Matches(f model.Facility) bool

	kind() kind
	empty() bool
	encode(w *wire)
}

type kind int

// Kinds in serialization order.
const (
	kindState kind = iota
	kindStateSet
	kindCounty
	kindCountySet
	kindCBSA
	kindBedRange
	kindOwnershipTypes
	kindOwnershipCategories
	kindOwnershipHint
	kindRural
	kindZipSet
	kindZipPrefixes
)

// Criteria is a conjunction of constraints. The zero value matches every
// facility.
type Criteria struct {
	constraints []Constraint
}

// New builds criteria from constraints, dropping empty ones and keeping
// the last constraint of each kind.
func New(cs ...Constraint) Criteria {
	byKind := make(map[kind]Constraint, len(cs))
	for _, c := range cs {
		if c == nil || c.empty() {
			continue
		}
		byKind[c.kind()] = c
	}
	out := make([]Constraint, 0, len(byKind))
	for _, c := range byKind {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].kind() < out[j].kind() })
	return Criteria{constraints: out}
}

// With returns a copy of c with extra constraints added.
func (c Criteria) With(cs ...Constraint) Criteria {
	return New(append(slices.Clone(c.constraints), cs...)...)
}

// Constraints returns the constraints in canonical order.
func (c Criteria) Constraints() []Constraint {
	return slices.Clone(c.constraints)
}

// IsEmpty reports whether the criteria impose no constraint.
func (c Criteria) IsEmpty() bool {
	return len(c.constraints) == 0
}

// Matches reports whether the facility satisfies every constraint.
func (c Criteria) Matches(f model.Facility) bool {
	for _, con := range c.constraints {
		if !con.Matches(f) {
			return false
		}
	}
	return true
}

// Filter is the subset of criteria that a store can evaluate in its query.
// It may admit facilities that Matches later rejects, never the reverse.
type Filter struct {
	States   []string // primary state in set
	Counties []string // lowercase county in set
}

// ServerFilter extracts the state and county restrictions.
func (c Criteria) ServerFilter() Filter {
	var f Filter
	for _, con := range c.constraints {
		switch v := con.(type) {
		case State:
			f.States = []string{normState(v.Code)}
		case StateSet:
			if !v.AllowMissing {
				f.States = normStates(v.Codes)
			}
		case County:
			f.Counties = foldAll([]string{v.Name})
		case CountySet:
			f.Counties = foldAll(v.Names)
		}
	}
	return f
}

// MarshalJSON writes the sparse criteria object.
func (c Criteria) MarshalJSON() ([]byte, error) {
	var w wire
	for _, con := range c.constraints {
		con.encode(&w)
	}
	return json.Marshal(w)
}

// UnmarshalJSON reads a criteria object, ignoring unknown keys.
func (c *Criteria) UnmarshalJSON(data []byte) error {
	parsed, _, err := Parse(data)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Parse decodes a stored criteria object and reports any keys it did not
// recognize. Null or empty input yields empty criteria.
func Parse(data []byte) (Criteria, []string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Criteria{}, nil, nil
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return Criteria{}, nil, eris.Wrap(err, "criteria: decode object")
	}
	var unknown []string
	for k := range keys {
		if !knownKeys[k] {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)

	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return Criteria{}, unknown, eris.Wrap(err, "criteria: decode fields")
	}
	return w.decode(), unknown, nil
}
