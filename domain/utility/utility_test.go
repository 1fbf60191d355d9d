package utility_test

import (
	"errors"
	"testing"

	"github.com/artpar/utilibill/domain/utility"
)

func TestTypeFromWire(t *testing.T) {
	tests := []struct {
		wire    uint8
		want    utility.Type
		wantErr bool
	}{
		{1, utility.Electricity, false},
		{2, utility.Water, false},
		{3, utility.Gas, false},
		{4, utility.Internet, false},
		{5, utility.Waste, false},
		{6, utility.PropertyTax, false},
		{7, utility.Solar, false},
		{8, utility.EVCharging, false},
		{0, 0, true},
		{9, 0, true},
		{255, 0, true},
	}

	for _, tt := range tests {
		got, err := utility.TypeFromWire(tt.wire)
		if tt.wantErr {
			if !errors.Is(err, utility.ErrInvalidType) {
				t.Errorf("TypeFromWire(%d) err = %v, want ErrInvalidType", tt.wire, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("TypeFromWire(%d) unexpected error: %v", tt.wire, err)
			continue
		}
		if got != tt.want {
			t.Errorf("TypeFromWire(%d) = %v, want %v", tt.wire, got, tt.want)
		}
	}
}

func TestTypeRoundTrip(t *testing.T) {
	for _, typ := range utility.All() {
		got, err := utility.TypeFromWire(typ.Wire())
		if err != nil || got != typ {
			t.Errorf("round trip %v: got %v, err %v", typ, got, err)
		}
		if !typ.Valid() {
			t.Errorf("%v should be valid", typ)
		}
	}
}

func TestTypeStringAndUnit(t *testing.T) {
	tests := []struct {
		typ  utility.Type
		name string
		unit string
	}{
		{utility.Electricity, "electricity", "kWh"},
		{utility.Water, "water", "m³"},
		{utility.Gas, "gas", "m³"},
		{utility.Internet, "internet", "Mbps"},
		{utility.Waste, "waste", "kg"},
		{utility.PropertyTax, "property_tax", "property"},
		{utility.Solar, "solar", "kWh"},
		{utility.EVCharging, "ev_charging", "kWh"},
	}

	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.name {
			t.Errorf("%d.String() = %q, want %q", tt.typ, got, tt.name)
		}
		if got := tt.typ.Unit(); got != tt.unit {
			t.Errorf("%s.Unit() = %q, want %q", tt.name, got, tt.unit)
		}
	}
}
