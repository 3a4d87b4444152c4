// Package geo maps states onto U.S. Census Bureau divisions.
package geo

import "strings"

// Division is a U.S. Census Bureau division.
type Division struct {
	Code string
	Name string
}

// Census divisions. Puerto Rico is assigned its own "caribbean" division.
var (
	NewEngland       = Division{Code: "new_england", Name: "New England"}
	MidAtlantic      = Division{Code: "mid_atlantic", Name: "Mid-Atlantic"}
	EastNorthCentral = Division{Code: "east_north_central", Name: "East North Central"}
	WestNorthCentral = Division{Code: "west_north_central", Name: "West North Central"}
	SouthAtlantic    = Division{Code: "south_atlantic", Name: "South Atlantic"}
	EastSouthCentral = Division{Code: "east_south_central", Name: "East South Central"}
	WestSouthCentral = Division{Code: "west_south_central", Name: "West South Central"}
	Mountain         = Division{Code: "mountain", Name: "Mountain"}
	Pacific          = Division{Code: "pacific", Name: "Pacific"}
	Caribbean        = Division{Code: "caribbean", Name: "Caribbean"}
)

var stateDivisions = map[string]Division{
	"CT": NewEngland, "MA": NewEngland, "ME": NewEngland, "NH": NewEngland, "RI": NewEngland, "VT": NewEngland,
	"NJ": MidAtlantic, "NY": MidAtlantic, "PA": MidAtlantic,
	"IL": EastNorthCentral, "IN": EastNorthCentral, "MI": EastNorthCentral, "OH": EastNorthCentral, "WI": EastNorthCentral,
	"IA": WestNorthCentral, "KS": WestNorthCentral, "MN": WestNorthCentral, "MO": WestNorthCentral,
	"ND": WestNorthCentral, "NE": WestNorthCentral, "SD": WestNorthCentral,
	"DC": SouthAtlantic, "DE": SouthAtlantic, "FL": SouthAtlantic, "GA": SouthAtlantic, "MD": SouthAtlantic,
	"NC": SouthAtlantic, "SC": SouthAtlantic, "VA": SouthAtlantic, "WV": SouthAtlantic,
	"AL": EastSouthCentral, "KY": EastSouthCentral, "MS": EastSouthCentral, "TN": EastSouthCentral,
	"AR": WestSouthCentral, "LA": WestSouthCentral, "OK": WestSouthCentral, "TX": WestSouthCentral,
	"AZ": Mountain, "CO": Mountain, "ID": Mountain, "MT": Mountain, "NM": Mountain, "NV": Mountain, "UT": Mountain, "WY": Mountain,
	"AK": Pacific, "CA": Pacific, "HI": Pacific, "OR": Pacific, "WA": Pacific,
	"PR": Caribbean,
}

// DivisionFor returns the division of a two-letter state code.
func DivisionFor(state string) (Division, bool) {
	d, ok := stateDivisions[strings.ToUpper(strings.TrimSpace(state))]
	return d, ok
}

// DivisionRegion is the weight-override scope key for a division.
func DivisionRegion(d Division) string {
	return "DIV:" + d.Code
}

// DivisionByCode finds a division by its code.
func DivisionByCode(code string) (Division, bool) {
	for _, d := range stateDivisions {
		if d.Code == code {
			return d, true
		}
	}
	return Division{}, false
}
