package store

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rotisserie/eris"

	"github.com/sunsetwell/scoring-cli/internal/model"
)

// baseColumns are the facility attributes read when present in the table.
var baseColumns = []string{
	"id", "facility_id", "provider_type", "states", "state", "county", "zip_code",
	"cbsa", "cbsa_code", "is_rural", "urban_rural",
	"total_beds", "number_of_certified_beds", "licensed_capacity", "ownership_type",
}

// selectColumns returns the base and metric columns that exist in
// available. A nil available set selects everything requested.
func selectColumns(available map[string]bool, metrics []string) ([]string, error) {
	has := func(c string) bool { return available == nil || available[c] }
	for _, required := range []string{"id", "provider_type"} {
		if !has(required) {
			return nil, eris.Errorf("store: %s has no %s column", TableResources, required)
		}
	}

	var cols []string
	for _, c := range slices.Concat(baseColumns, metrics) {
		if has(c) && !slices.Contains(cols, c) {
			cols = append(cols, c)
		}
	}
	return cols, nil
}

// decodeFacility maps a row of column values onto a Facility. Rows whose
// provider type does not normalize report false.
func decodeFacility(row map[string]any, metrics []string) (model.Facility, bool) {
	pt, ok := model.ParseProviderType(text(row["provider_type"]))
	if !ok {
		return model.Facility{}, false
	}

	f := model.Facility{
		ID:               text(row["id"]),
		FacilityID:       text(row["facility_id"]),
		ProviderType:     pt,
		States:           stringList(row["states"]),
		State:            text(row["state"]),
		County:           text(row["county"]),
		ZipCode:          text(row["zip_code"]),
		CBSA:             text(row["cbsa"]),
		UrbanRural:       text(row["urban_rural"]),
		TotalBeds:        numberPtr(row["total_beds"]),
		CertifiedBeds:    numberPtr(row["number_of_certified_beds"]),
		LicensedCapacity: numberPtr(row["licensed_capacity"]),
		OwnershipType:    text(row["ownership_type"]),
	}
	if f.CBSA == "" {
		f.CBSA = text(row["cbsa_code"])
	}
	if b, ok := boolean(row["is_rural"]); ok {
		f.IsRural = &b
	}

	for _, col := range metrics {
		if v, ok := number(row[col]); ok {
			if f.Metrics == nil {
				f.Metrics = make(map[string]float64, len(metrics))
			}
			f.Metrics[col] = v
		}
	}
	return f, true
}

func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case [16]byte:
		return uuid.UUID(x).String()
	default:
		return fmt.Sprint(x)
	}
}

// stringList accepts a native array, a JSON array or a single bare value.
func stringList(v any) []string {
	switch x := v.(type) {
	case nil:
		return nil
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			out = append(out, text(e))
		}
		return out
	case []byte:
		return stringList(string(x))
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil
		}
		if strings.HasPrefix(s, "[") {
			var out []string
			if err := json.Unmarshal([]byte(s), &out); err == nil {
				return out
			}
		}
		return []string{s}
	default:
		return []string{text(x)}
	}
}

func number(v any) (float64, bool) {
	if n, ok := v.(pgtype.Numeric); ok {
		f, err := n.Float64Value()
		if err != nil || !f.Valid {
			return 0, false
		}
		return model.NumericValue(f.Float64)
	}
	return model.NumericValue(v)
}

func numberPtr(v any) *float64 {
	if f, ok := number(v); ok {
		return &f
	}
	return nil
}

func boolean(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case int64:
		return x != 0, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		return b, err == nil
	default:
		return false, false
	}
}
