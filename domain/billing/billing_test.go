package billing_test

import (
	"errors"
	"testing"

	"github.com/artpar/utilibill/domain/billing"
	"github.com/artpar/utilibill/domain/money"
	"github.com/artpar/utilibill/domain/oracle"
	"github.com/artpar/utilibill/domain/tariff"
	"github.com/artpar/utilibill/domain/utility"
)

func baseTariff() tariff.Tariff {
	return tariff.Tariff{
		ID:             "P1_Lagos",
		Type:           utility.Electricity,
		ProviderID:     "P1",
		Region:         "Lagos",
		BaseRate:       1_000_000,
		Currency:       "NGN",
		Decimals:       7,
		MinimumPayment: 1_000_000,
		MaximumPayment: 100_000_000,
		Active:         true,
		Version:        1,
	}
}

func TestBaseAmount_NoOverrides(t *testing.T) {
	got, tierName, tou, err := billing.BaseAmount(baseTariff(), 50, 0)
	if err != nil {
		t.Fatalf("BaseAmount: %v", err)
	}
	if got != 50_000_000 {
		t.Errorf("base = %d, want 50000000", got)
	}
	if tierName != "" || tou {
		t.Errorf("no overrides expected, got tier %q tou %v", tierName, tou)
	}
}

func TestBaseAmount_TierOverride(t *testing.T) {
	tr := baseTariff()
	tr.Tiers = []tariff.Tier{
		{MinUnits: 0, MaxUnits: 100, RatePerUnit: 500_000, Name: "low"},
		{MinUnits: 50, MaxUnits: 200, RatePerUnit: 900_000, Name: "overlap"},
	}

	got, tierName, _, err := billing.BaseAmount(tr, 50, 0)
	if err != nil {
		t.Fatalf("BaseAmount: %v", err)
	}
	// First match wins: 50 * 500_000, not 50 * 900_000.
	if got != 25_000_000 {
		t.Errorf("base = %d, want 25000000", got)
	}
	if tierName != "low" {
		t.Errorf("tier = %q, want low", tierName)
	}
}

func TestBaseAmount_TimeOfUse(t *testing.T) {
	tr := baseTariff()
	tr.TimeOfUse = []tariff.TimeOfUse{
		{StartHour: 18, EndHour: 22, Days: []uint8{0, 1, 2, 3, 4, 5, 6}, Multiplier: 150},
	}

	// Pick a timestamp whose derived hour is 19.
	now := int64(19 * 3600)

	got, _, tou, err := billing.BaseAmount(tr, 50, now)
	if err != nil {
		t.Fatalf("BaseAmount: %v", err)
	}
	if !tou {
		t.Fatal("expected a time-of-use match")
	}
	if got != 75_000_000 {
		t.Errorf("base = %d, want 75000000", got)
	}

	// A timestamp matching no rule leaves the amount unchanged.
	got, _, tou, err = billing.BaseAmount(tr, 50, int64(3*3600))
	if err != nil {
		t.Fatalf("BaseAmount: %v", err)
	}
	if tou || got != 50_000_000 {
		t.Errorf("off-window base = %d (tou=%v), want 50000000 untouched", got, tou)
	}
}

func TestTaxAmount(t *testing.T) {
	cap := int64(100)

	tests := []struct {
		name  string
		taxes []tariff.Tax
		base  int64
		want  int64
	}{
		{"none", nil, 10_000, 0},
		{"single plain", []tariff.Tax{{Name: "vat", Percent: 10}}, 10_000, 1_000},
		{
			"two plain taxes both apply to base",
			[]tariff.Tax{{Name: "vat", Percent: 10}, {Name: "levy", Percent: 5}},
			10_000,
			1_500,
		},
		{
			// Compound applies to base+previous compound: 10% of 10000 =
			// 1000, then 10% of 11000 = 1100.
			"compound stacks",
			[]tariff.Tax{
				{Name: "a", Percent: 10, Compound: true},
				{Name: "b", Percent: 10, Compound: true},
			},
			10_000,
			2_100,
		},
		{
			"plain after compound still uses base",
			[]tariff.Tax{
				{Name: "a", Percent: 10, Compound: true},
				{Name: "b", Percent: 10},
			},
			10_000,
			2_000,
		},
		{
			"cap limits contribution",
			[]tariff.Tax{{Name: "vat", Percent: 10, MaxAmount: &cap}},
			10_000,
			100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := billing.TaxAmount(tt.taxes, tt.base)
			if err != nil {
				t.Fatalf("TaxAmount: %v", err)
			}
			if got != tt.want {
				t.Errorf("TaxAmount = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFeeAmount(t *testing.T) {
	pct := int64(10)

	tests := []struct {
		name     string
		fees     []tariff.Fee
		subtotal int64
		want     int64
	}{
		{"no registered fee means no fee", nil, 10_000, 0},
		{"fixed", []tariff.Fee{{Amount: 250, Active: true}}, 10_000, 250},
		{"percentage of subtotal", []tariff.Fee{{IsPercent: true, Percent: &pct, Active: true}}, 10_000, 1_000},
		{
			"mixed, inactive skipped",
			[]tariff.Fee{
				{Amount: 250, Active: true},
				{IsPercent: true, Percent: &pct, Active: true},
				{Amount: 999_999, Active: false},
			},
			10_000,
			1_250,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := billing.FeeAmount(tt.fees, tt.subtotal)
			if err != nil {
				t.Fatalf("FeeAmount: %v", err)
			}
			if got != tt.want {
				t.Errorf("FeeAmount = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestConvert(t *testing.T) {
	feed := oracle.PriceFeed{Price: 1_200_000, Decimals: 6}

	got, err := billing.Convert(50_000_000, feed)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if got != 60_000_000 {
		t.Errorf("Convert = %d, want 60000000", got)
	}

	// Truncating division.
	feed = oracle.PriceFeed{Price: 1, Decimals: 1}
	got, err = billing.Convert(15, feed)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if got != 1 {
		t.Errorf("Convert = %d, want 1 (truncated)", got)
	}
}

func TestCheckBounds(t *testing.T) {
	tr := baseTariff()

	tests := []struct {
		name    string
		final   int64
		wantErr error
	}{
		{"inside", 50_000_000, nil},
		{"at minimum accepted", 1_000_000, nil},
		{"at maximum accepted", 100_000_000, nil},
		{"below minimum", 999_999, billing.ErrBelowMinimumPayment},
		{"above maximum", 100_000_001, billing.ErrAboveMaximumPayment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := billing.CheckBounds(tt.final, tr); !errors.Is(err, tt.wantErr) {
				t.Errorf("CheckBounds(%d) = %v, want %v", tt.final, err, tt.wantErr)
			}
		})
	}
}

func TestBaseAmount_Overflow(t *testing.T) {
	tr := baseTariff()
	tr.BaseRate = 1 << 62

	_, _, _, err := billing.BaseAmount(tr, 1<<10, 0)
	if !errors.Is(err, money.ErrOverflow) {
		t.Errorf("err = %v, want money.ErrOverflow", err)
	}
}
