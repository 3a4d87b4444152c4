package criteria

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"

	"github.com/sunsetwell/scoring-cli/internal/model"
)

// State requires the facility's primary state to equal Code.
type State struct{ Code string }

// StateSet requires the primary state to be one of Codes. With
// AllowMissing, facilities without a resolvable state also match.
type StateSet struct {
	Codes        []string
	AllowMissing bool
}

// County requires an exact, case-insensitive county match.
type County struct{ Name string }

// CountySet requires the county to be one of Names.
type CountySet struct{ Names []string }

// CBSA requires the facility's metro area code to equal Code.
type CBSA struct{ Code string }

// BedRange bounds resolved capacity to [Min, Max). A nil bound is open.
// Facilities with unknown capacity match only when AllowUnknown is set;
// UnknownOnly admits unknown capacity exclusively.
type BedRange struct {
	Min          *float64
	Max          *float64
	AllowUnknown bool
	UnknownOnly  bool
}

// OwnershipTypeSet requires the folded ownership text to be one of Types.
type OwnershipTypeSet struct{ Types []string }

// OwnershipCategorySet requires the ownership category to be one of Categories.
type OwnershipCategorySet struct{ Categories []model.OwnershipCategory }

// OwnershipHint records observed ownership values. It never restricts.
type OwnershipHint struct{ Observed []string }

// Rural requires the explicit or inferred rural flag to equal Rural.
type Rural struct{ Rural bool }

// ZipSet requires the five-digit ZIP to be one of Zips.
type ZipSet struct{ Zips []string }

// ZipPrefixSet requires the ZIP code to start with one of Prefixes.
type ZipPrefixSet struct{ Prefixes []string }

func (c State) Matches(f model.Facility) bool {
	p := f.PrimaryState()
	return p != "" && p == normState(c.Code)
}

func (c StateSet) Matches(f model.Facility) bool {
	p := f.PrimaryState()
	if p == "" {
		return c.AllowMissing
	}
	return slices.Contains(normStates(c.Codes), p)
}

func (c County) Matches(f model.Facility) bool {
	county := foldCase(strings.TrimSpace(f.County))
	return county != "" && county == foldCase(strings.TrimSpace(c.Name))
}

func (c CountySet) Matches(f model.Facility) bool {
	county := foldCase(strings.TrimSpace(f.County))
	return county != "" && slices.Contains(foldAll(c.Names), county)
}

func (c CBSA) Matches(f model.Facility) bool {
	code := foldCase(strings.TrimSpace(f.CBSA))
	return code != "" && code == foldCase(c.Code)
}

func (c BedRange) Matches(f model.Facility) bool {
	capacity, known := f.Capacity()
	if !known {
		return c.UnknownOnly || c.AllowUnknown
	}
	if c.UnknownOnly {
		return false
	}
	if c.Min != nil && capacity < *c.Min {
		return false
	}
	if c.Max != nil && capacity >= *c.Max {
		return false
	}
	return true
}

func (c OwnershipTypeSet) Matches(f model.Facility) bool {
	o := f.Ownership()
	return o != "" && slices.Contains(foldAll(c.Types), o)
}

func (c OwnershipCategorySet) Matches(f model.Facility) bool {
	return slices.Contains(c.Categories, f.OwnershipCategory())
}

func (OwnershipHint) Matches(model.Facility) bool { return true }

func (c Rural) Matches(f model.Facility) bool {
	rural, ok := f.Rural()
	return ok && rural == c.Rural
}

func (c ZipSet) Matches(f model.Facility) bool {
	zip := f.Zip5()
	if zip == "" {
		return false
	}
	for _, z := range c.Zips {
		if zip5(z) == zip {
			return true
		}
	}
	return false
}

func (c ZipPrefixSet) Matches(f model.Facility) bool {
	zip := strings.TrimSpace(f.ZipCode)
	for _, p := range c.Prefixes {
		if strings.HasPrefix(zip, p) {
			return true
		}
	}
	return false
}

func (State) kind() kind                { return kindState }
func (StateSet) kind() kind             { return kindStateSet }
func (County) kind() kind               { return kindCounty }
func (CountySet) kind() kind            { return kindCountySet }
func (CBSA) kind() kind                 { return kindCBSA }
func (BedRange) kind() kind             { return kindBedRange }
func (OwnershipTypeSet) kind() kind     { return kindOwnershipTypes }
func (OwnershipCategorySet) kind() kind { return kindOwnershipCategories }
func (OwnershipHint) kind() kind        { return kindOwnershipHint }
func (Rural) kind() kind                { return kindRural }
func (ZipSet) kind() kind               { return kindZipSet }
func (ZipPrefixSet) kind() kind         { return kindZipPrefixes }

func (c State) empty() bool                { return strings.TrimSpace(c.Code) == "" }
func (c StateSet) empty() bool             { return len(c.Codes) == 0 && !c.AllowMissing }
func (c County) empty() bool               { return strings.TrimSpace(c.Name) == "" }
func (c CountySet) empty() bool            { return len(c.Names) == 0 }
func (c CBSA) empty() bool                 { return strings.TrimSpace(c.Code) == "" }
func (BedRange) empty() bool               { return false }
func (c OwnershipTypeSet) empty() bool     { return len(c.Types) == 0 }
func (c OwnershipCategorySet) empty() bool { return len(c.Categories) == 0 }
func (c OwnershipHint) empty() bool        { return len(c.Observed) == 0 }
func (Rural) empty() bool                  { return false }
func (c ZipSet) empty() bool               { return len(c.Zips) == 0 }
func (c ZipPrefixSet) empty() bool         { return len(c.Prefixes) == 0 }

func foldCase(s string) string {
	return cases.Fold().String(s)
}

func foldAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = foldCase(strings.TrimSpace(s))
	}
	return out
}

func normState(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func normStates(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = normState(s)
	}
	return out
}

func zip5(z string) string {
	z = strings.TrimSpace(z)
	if len(z) > 5 {
		return z[:5]
	}
	return z
}
