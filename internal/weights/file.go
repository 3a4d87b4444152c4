package weights

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sunsetwell/scoring-cli/internal/catalog"
	"github.com/sunsetwell/scoring-cli/internal/geo"
	"github.com/sunsetwell/scoring-cli/internal/model"
)

// File is the on-disk weight set format:
//
//	version: v2
//	weights:
//	  nursing_home:
//	    GLOBAL:
//	      health_inspection_rating: 0.5
//	    TX:
//	      staffing_rating: 0.2
//	    DIV:pacific:
//	      rn_turnover: 0.05
type File struct {
	Version string                                   `yaml:"version"`
	Weights map[string]map[string]map[string]float64 `yaml:"weights"`
}

// LoadFile reads and validates a weight set. The file's version is used
// when present; otherwise fallbackVersion applies.
func LoadFile(path, fallbackVersion string) ([]model.MetricWeight, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "weights: read %s", path)
	}
	return Parse(data, fallbackVersion)
}

// Parse decodes a weight set document into validated rows, sorted by
// provider, region and metric. Unknown top-level keys are rejected.
func Parse(data []byte, fallbackVersion string) ([]model.MetricWeight, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, eris.Wrap(err, "weights: parse yaml")
	}

	version := strings.TrimSpace(f.Version)
	if version == "" {
		version = fallbackVersion
	}

	var errs []string
	var rows []model.MetricWeight
	for rawPT, regions := range f.Weights {
		pt, ok := model.ParseProviderType(rawPT)
		if !ok {
			errs = append(errs, fmt.Sprintf("unknown provider type %q", rawPT))
			continue
		}
		for region, metrics := range regions {
			scope := scopeKey(region)
			if msg := checkScope(scope); msg != "" {
				errs = append(errs, fmt.Sprintf("%s: %s", rawPT, msg))
				continue
			}
			if scope == model.GlobalRegion {
				scope = ""
			}
			for metric, w := range metrics {
				rows = append(rows, model.MetricWeight{
					Version:      version,
					ProviderType: pt,
					Region:       scope,
					MetricKey:    metric,
					Weight:       w,
				})
			}
		}
	}

	if err := Validate(version, rows); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		sort.Strings(errs)
		return nil, eris.Errorf("weights: file validation failed: %s", strings.Join(errs, "; "))
	}

	sortRows(rows)
	return rows, nil
}

// Validate checks a weight set: a version, at least one row, metrics
// applicable to their provider type, and finite non-negative weights.
func Validate(version string, rows []model.MetricWeight) error {
	var errs []string

	if strings.TrimSpace(version) == "" {
		errs = append(errs, "version is required")
	}
	if len(rows) == 0 {
		errs = append(errs, "no weight rows")
	}

	for _, w := range rows {
		label := fmt.Sprintf("%s/%s/%s", w.ProviderType, regionLabel(w.Region), w.MetricKey)
		if !w.ProviderType.Valid() {
			errs = append(errs, fmt.Sprintf("%s: unknown provider type", label))
			continue
		}
		m, ok := catalog.Lookup(w.MetricKey)
		if !ok {
			errs = append(errs, fmt.Sprintf("%s: unknown metric", label))
			continue
		}
		if !m.AppliesTo(w.ProviderType) {
			errs = append(errs, fmt.Sprintf("%s: metric does not apply to provider type", label))
		}
		if math.IsNaN(w.Weight) || math.IsInf(w.Weight, 0) {
			errs = append(errs, fmt.Sprintf("%s: weight must be finite", label))
		} else if w.Weight < 0 {
			errs = append(errs, fmt.Sprintf("%s: weight must be >= 0", label))
		}
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return eris.Errorf("weights: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func checkScope(scope string) string {
	switch {
	case scope == model.GlobalRegion:
		return ""
	case strings.HasPrefix(scope, "DIV:"):
		if _, ok := geo.DivisionByCode(strings.TrimPrefix(scope, "DIV:")); !ok {
			return fmt.Sprintf("unknown census division %q", scope)
		}
		return ""
	case len(scope) != 2:
		return fmt.Sprintf("region %q must be GLOBAL, a two-letter state or DIV:<division>", scope)
	default:
		return ""
	}
}

func regionLabel(region string) string {
	if region == "" {
		return model.GlobalRegion
	}
	return region
}

func sortRows(rows []model.MetricWeight) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.ProviderType != b.ProviderType {
			return a.ProviderType < b.ProviderType
		}
		if a.Region != b.Region {
			return a.Region < b.Region
		}
		return a.MetricKey < b.MetricKey
	})
}
