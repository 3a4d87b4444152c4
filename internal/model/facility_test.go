package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

func TestParseProviderType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want ProviderType
		ok   bool
	}{
		{"nursing_home", ProviderNursingHome, true},
		{"Assisted_Living_Facility", ProviderAssistedLiving, true},
		{"assisted_living", ProviderAssistedLiving, true},
		{" home_health_agency ", ProviderHomeHealth, true},
		{"hospice", ProviderHospice, true},
		{"dialysis", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseProviderType(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProviderType_SourceValues(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"assisted_living", "assisted_living_facility"}, ProviderAssistedLiving.SourceValues())
	assert.Equal(t, []string{"nursing_home"}, ProviderNursingHome.SourceValues())
	assert.Equal(t, "Home Health", ProviderHomeHealth.Label())
	assert.False(t, ProviderType("bogus").Valid())
}

func TestFacility_PrimaryStateAndRegion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		f       Facility
		primary string
		region  string
	}{
		{"states list", Facility{States: []string{" tx ", "OK"}}, "TX", "TX"},
		{"legacy only", Facility{State: "ca"}, "", "CA"},
		{"long state", Facility{States: []string{"Texas"}}, "", "TEXAS"},
		{"none", Facility{}, "", ""},
		{"blank first state ignores legacy", Facility{States: []string{" "}, State: "CA"}, "", ""},
		{"legacy too long", Facility{State: "Cal"}, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.primary, tt.f.PrimaryState())
			assert.Equal(t, tt.region, tt.f.Region())
		})
	}
}

func TestFacility_Capacity(t *testing.T) {
	t.Parallel()

	nh := Facility{ProviderType: ProviderNursingHome, CertifiedBeds: ptr(80.0)}
	c, ok := nh.Capacity()
	assert.True(t, ok)
	assert.Equal(t, 80.0, c)

	nh.TotalBeds = ptr(90.0)
	c, _ = nh.Capacity()
	assert.Equal(t, 90.0, c)

	al := Facility{ProviderType: ProviderAssistedLiving, TotalBeds: ptr(40.0), LicensedCapacity: ptr(55.0)}
	c, _ = al.Capacity()
	assert.Equal(t, 55.0, c)

	hh := Facility{ProviderType: ProviderHomeHealth, TotalBeds: ptr(10.0)}
	_, ok = hh.Capacity()
	assert.False(t, ok)

	nan := Facility{ProviderType: ProviderNursingHome, TotalBeds: ptr(math.NaN())}
	_, ok = nan.Capacity()
	assert.False(t, ok)
}

func TestCategorizeOwnership(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want OwnershipCategory
	}{
		{"For profit - Corporation", OwnershipForProfit},
		{"Non profit - Church related", OwnershipNonProfitOrGov},
		{"NON-PROFIT", OwnershipNonProfitOrGov},
		{"Government - County", OwnershipNonProfitOrGov},
		{"LLC", OwnershipOther},
		{"", OwnershipOther},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CategorizeOwnership(tt.raw))
		})
	}
}

func TestFacility_Rural(t *testing.T) {
	t.Parallel()

	r, ok := Facility{IsRural: ptr(false), UrbanRural: "Rural"}.Rural()
	assert.True(t, ok)
	assert.False(t, r)

	r, ok = Facility{UrbanRural: "Large Rural Town"}.Rural()
	assert.True(t, ok)
	assert.True(t, r)

	_, ok = Facility{}.Rural()
	assert.False(t, ok)
}

func TestFacility_Zip5(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "78701", Facility{ZipCode: "78701-1234"}.Zip5())
	assert.Equal(t, "787", Facility{ZipCode: "787"}.Zip5())
}

func TestNumericValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   any
		want float64
		ok   bool
	}{
		{"nil", nil, 0, false},
		{"true", true, 1, true},
		{"false", false, 0, true},
		{"float", 3.5, 3.5, true},
		{"int64", int64(4), 4, true},
		{"string", " 2.25 ", 2.25, true},
		{"empty string", "", 0, false},
		{"garbage", "n/a", 0, false},
		{"nan", math.NaN(), 0, false},
		{"inf string", "Inf", 0, false},
		{"bytes", []byte("7"), 7, true},
		{"unsupported", struct{}{}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := NumericValue(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}
