package model

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// OwnershipCategory collapses free-text ownership into three buckets.
type OwnershipCategory string

const (
	OwnershipForProfit      OwnershipCategory = "for_profit"
	OwnershipNonProfitOrGov OwnershipCategory = "non_profit_or_gov"
	OwnershipOther          OwnershipCategory = "other"
)

// foldCase builds a fresh Caser per call; Casers carry state.
func foldCase(s string) string {
	return cases.Fold().String(s)
}

// Facility is a read-only facility record loaded from the facilities table.
// Provider type is already normalized; Metrics holds only present, numeric
// values keyed by source column.
type Facility struct {
	ID               string             `json:"id"`
	FacilityID       string             `json:"facility_id,omitempty"`
	ProviderType     ProviderType       `json:"provider_type"`
	States           []string           `json:"states,omitempty"`
	State            string             `json:"state,omitempty"`
	County           string             `json:"county,omitempty"`
	ZipCode          string             `json:"zip_code,omitempty"`
	CBSA             string             `json:"cbsa,omitempty"`
	IsRural          *bool              `json:"is_rural,omitempty"`
	UrbanRural       string             `json:"urban_rural,omitempty"`
	TotalBeds        *float64           `json:"total_beds,omitempty"`
	CertifiedBeds    *float64           `json:"number_of_certified_beds,omitempty"`
	LicensedCapacity *float64           `json:"licensed_capacity,omitempty"`
	OwnershipType    string             `json:"ownership_type,omitempty"`
	Metrics          map[string]float64 `json:"metrics,omitempty"`
}

// PrimaryState returns the first entry of the states list, trimmed and
// uppercased, or "" when it is not a two-letter code.
func (f Facility) PrimaryState() string {
	if len(f.States) == 0 {
		return ""
	}
	s := strings.ToUpper(strings.TrimSpace(f.States[0]))
	if len(s) != 2 {
		return ""
	}
	return s
}

// Region is the scoring axis: the first state, else the legacy two-letter
// state field, uppercased. A blank first state means no region; the legacy
// field only applies when the states list is empty.
func (f Facility) Region() string {
	if len(f.States) > 0 {
		return strings.ToUpper(strings.TrimSpace(f.States[0]))
	}
	if s := strings.TrimSpace(f.State); len(s) == 2 {
		return strings.ToUpper(s)
	}
	return ""
}

// Capacity resolves bed capacity with the provider-specific fallback order.
func (f Facility) Capacity() (float64, bool) {
	switch f.ProviderType {
	case ProviderNursingHome:
		return firstFinite(f.TotalBeds, f.CertifiedBeds)
	case ProviderAssistedLiving:
		return firstFinite(f.LicensedCapacity, f.TotalBeds)
	default:
		return 0, false
	}
}

// Ownership returns the folded ownership text, or "" when absent.
func (f Facility) Ownership() string {
	return foldCase(strings.TrimSpace(f.OwnershipType))
}

// OwnershipCategory classifies the facility's ownership text.
func (f Facility) OwnershipCategory() OwnershipCategory {
	return CategorizeOwnership(f.OwnershipType)
}

// Rural returns the explicit rural flag, falling back to whether the
// urban_rural text mentions "rural". ok is false when neither is known.
func (f Facility) Rural() (rural bool, ok bool) {
	if f.IsRural != nil {
		return *f.IsRural, true
	}
	if f.UrbanRural == "" {
		return false, false
	}
	return strings.Contains(foldCase(f.UrbanRural), "rural"), true
}

// Zip5 returns the first five characters of the ZIP code.
func (f Facility) Zip5() string {
	z := strings.TrimSpace(f.ZipCode)
	if len(z) > 5 {
		return z[:5]
	}
	return z
}

// Metric returns the raw value for a source column.
func (f Facility) Metric(column string) (float64, bool) {
	v, ok := f.Metrics[column]
	return v, ok
}

// CategorizeOwnership maps free-text ownership to a category.
func CategorizeOwnership(raw string) OwnershipCategory {
	s := foldCase(raw)
	switch {
	case s == "":
		return OwnershipOther
	case strings.Contains(s, "for profit"):
		return OwnershipForProfit
	case strings.Contains(s, "non profit"), strings.Contains(s, "non-profit"), strings.Contains(s, "government"):
		return OwnershipNonProfitOrGov
	default:
		return OwnershipOther
	}
}

// NumericValue converts a raw column value into a float. Booleans become
// 1/0, strings are parsed, and empty, unparseable or non-finite values
// report false.
func NumericValue(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case nil:
		return 0, false
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int16:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case []byte:
		return NumericValue(string(x))
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false
		}
		p, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func firstFinite(vals ...*float64) (float64, bool) {
	for _, v := range vals {
		if v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0) {
			return *v, true
		}
	}
	return 0, false
}
