package model

import (
	"slices"
	"strings"
)

// ProviderType is the closed set of facility provider types the pipeline scores.
type ProviderType string

const (
	ProviderNursingHome    ProviderType = "nursing_home"
	ProviderAssistedLiving ProviderType = "assisted_living"
	ProviderHomeHealth     ProviderType = "home_health"
	ProviderHospice        ProviderType = "hospice"
)

// ProviderTypes lists every provider type in processing order.
var ProviderTypes = []ProviderType{
	ProviderNursingHome,
	ProviderAssistedLiving,
	ProviderHomeHealth,
	ProviderHospice,
}

// providerAliases maps raw source-system strings onto the closed enum.
var providerAliases = map[string]ProviderType{
	"nursing_home":             ProviderNursingHome,
	"assisted_living":          ProviderAssistedLiving,
	"assisted_living_facility": ProviderAssistedLiving,
	"home_health":              ProviderHomeHealth,
	"home_health_agency":       ProviderHomeHealth,
	"hospice":                  ProviderHospice,
}

var providerLabels = map[ProviderType]string{
	ProviderNursingHome:    "Nursing Homes",
	ProviderAssistedLiving: "Assisted Living",
	ProviderHomeHealth:     "Home Health",
	ProviderHospice:        "Hospice",
}

// ParseProviderType normalizes a raw provider_type value. The second return
// is false when the value does not name a known provider type.
func ParseProviderType(raw string) (ProviderType, bool) {
	pt, ok := providerAliases[strings.ToLower(strings.TrimSpace(raw))]
	return pt, ok
}

// Valid reports whether p is one of the known provider types.
func (p ProviderType) Valid() bool {
	_, ok := providerLabels[p]
	return ok
}

// Label returns the human-readable plural label used in peer group names.
func (p ProviderType) Label() string {
	if l, ok := providerLabels[p]; ok {
		return l
	}
	return string(p)
}

// SourceValues returns every raw provider_type string stored for p,
// used to filter facility queries.
func (p ProviderType) SourceValues() []string {
	var out []string
	for raw, pt := range providerAliases {
		if pt == p {
			out = append(out, raw)
		}
	}
	slices.Sort(out)
	return out
}
