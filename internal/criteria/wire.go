package criteria

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/sunsetwell/scoring-cli/internal/model"
)

// wire is the stored JSON shape. Field order is the serialization order.
type wire struct {
	State                  flexString  `json:"state,omitempty"`
	States                 flexStrings `json:"states,omitempty"`
	AllowMissingState      bool        `json:"allow_missing_state,omitempty"`
	County                 flexString  `json:"county,omitempty"`
	Counties               flexStrings `json:"counties,omitempty"`
	CBSA                   flexString  `json:"cbsa,omitempty"`
	BedCountMin            *float64    `json:"bed_count_min,omitempty"`
	BedCountMax            *float64    `json:"bed_count_max,omitempty"`
	AllowUnknownBedCount   *bool       `json:"allow_unknown_bed_count,omitempty"`
	UnknownBedCountOnly    bool        `json:"unknown_bed_count_only,omitempty"`
	OwnershipTypes         flexStrings `json:"ownership_types,omitempty"`
	OwnershipCategories    flexStrings `json:"ownership_categories,omitempty"`
	OwnershipTypesObserved flexStrings `json:"ownership_types_observed,omitempty"`
	IsRural                *bool       `json:"is_rural,omitempty"`
	ZipCodes               flexStrings `json:"zip_codes,omitempty"`
	ZipPrefixes            flexStrings `json:"zip_prefixes,omitempty"`
}

var knownKeys = map[string]bool{
	"state":                    true,
	"states":                   true,
	"allow_missing_state":      true,
	"county":                   true,
	"counties":                 true,
	"cbsa":                     true,
	"bed_count_min":            true,
	"bed_count_max":            true,
	"allow_unknown_bed_count":  true,
	"unknown_bed_count_only":   true,
	"ownership_types":          true,
	"ownership_categories":     true,
	"ownership_types_observed": true,
	"is_rural":                 true,
	"zip_codes":                true,
	"zip_prefixes":             true,
}

func (c State) encode(w *wire) { w.State = flexString(normState(c.Code)) }

func (c StateSet) encode(w *wire) {
	w.States = normStates(c.Codes)
	w.AllowMissingState = c.AllowMissing
}

func (c County) encode(w *wire)    { w.County = flexString(c.Name) }
func (c CountySet) encode(w *wire) { w.Counties = c.Names }
func (c CBSA) encode(w *wire)      { w.CBSA = flexString(c.Code) }

func (c BedRange) encode(w *wire) {
	w.BedCountMin = c.Min
	w.BedCountMax = c.Max
	switch {
	case c.UnknownOnly:
		t := true
		w.AllowUnknownBedCount = &t
		w.UnknownBedCountOnly = true
	case c.AllowUnknown:
		t := true
		w.AllowUnknownBedCount = &t
	case c.Min == nil && c.Max == nil:
		// Only an explicit false keeps an unbounded range from vanishing.
		f := false
		w.AllowUnknownBedCount = &f
	}
}

func (c OwnershipTypeSet) encode(w *wire) { w.OwnershipTypes = c.Types }

func (c OwnershipCategorySet) encode(w *wire) {
	out := make(flexStrings, len(c.Categories))
	for i, cat := range c.Categories {
		out[i] = string(cat)
	}
	w.OwnershipCategories = out
}

func (c OwnershipHint) encode(w *wire) { w.OwnershipTypesObserved = c.Observed }

func (c Rural) encode(w *wire) {
	r := c.Rural
	w.IsRural = &r
}

func (c ZipSet) encode(w *wire)       { w.ZipCodes = c.Zips }
func (c ZipPrefixSet) encode(w *wire) { w.ZipPrefixes = c.Prefixes }

func (w wire) decode() Criteria {
	var cs []Constraint
	if w.State != "" {
		cs = append(cs, State{Code: string(w.State)})
	}
	if len(w.States) > 0 || w.AllowMissingState {
		cs = append(cs, StateSet{Codes: w.States, AllowMissing: w.AllowMissingState})
	}
	if w.County != "" {
		cs = append(cs, County{Name: string(w.County)})
	}
	if len(w.Counties) > 0 {
		cs = append(cs, CountySet{Names: w.Counties})
	}
	if w.CBSA != "" {
		cs = append(cs, CBSA{Code: string(w.CBSA)})
	}
	if w.BedCountMin != nil || w.BedCountMax != nil || w.AllowUnknownBedCount != nil || w.UnknownBedCountOnly {
		cs = append(cs, BedRange{
			Min:          w.BedCountMin,
			Max:          w.BedCountMax,
			AllowUnknown: w.UnknownBedCountOnly || (w.AllowUnknownBedCount != nil && *w.AllowUnknownBedCount),
			UnknownOnly:  w.UnknownBedCountOnly,
		})
	}
	if len(w.OwnershipTypes) > 0 {
		cs = append(cs, OwnershipTypeSet{Types: w.OwnershipTypes})
	}
	if len(w.OwnershipCategories) > 0 {
		cats := make([]model.OwnershipCategory, len(w.OwnershipCategories))
		for i, c := range w.OwnershipCategories {
			cats[i] = model.OwnershipCategory(strings.ToLower(c))
		}
		cs = append(cs, OwnershipCategorySet{Categories: cats})
	}
	if len(w.OwnershipTypesObserved) > 0 {
		cs = append(cs, OwnershipHint{Observed: w.OwnershipTypesObserved})
	}
	if w.IsRural != nil {
		cs = append(cs, Rural{Rural: *w.IsRural})
	}
	if len(w.ZipCodes) > 0 {
		cs = append(cs, ZipSet{Zips: w.ZipCodes})
	}
	if len(w.ZipPrefixes) > 0 {
		cs = append(cs, ZipPrefixSet{Prefixes: w.ZipPrefixes})
	}
	return New(cs...)
}

// flexString accepts a JSON string or number.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	v, err := scalarString(data)
	if err != nil {
		return err
	}
	*s = flexString(v)
	return nil
}

// flexStrings accepts an array of strings or numbers.
type flexStrings []string

func (ss *flexStrings) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		v, err := scalarString(r)
		if err != nil {
			return err
		}
		if v != "" {
			out = append(out, v)
		}
	}
	*ss = out
	return nil
}

func scalarString(data []byte) (string, error) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		// null and booleans fall through here
		var b *bool
		if json.Unmarshal(data, &b) == nil {
			if b == nil {
				return "", nil
			}
			return strconv.FormatBool(*b), nil
		}
		return "", err
	}
	return n.String(), nil
}
