package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/utilibill/adapters/clock"
	"github.com/artpar/utilibill/adapters/memory"
	"github.com/artpar/utilibill/app"
	"github.com/artpar/utilibill/domain/tariff"
	"github.com/artpar/utilibill/domain/utility"
	"github.com/artpar/utilibill/events"
)

const (
	adminAddr    = "GADMIN"
	providerAddr = "GPROVIDER1"
)

type registryFixture struct {
	svc       *app.RegistryService
	providers *memory.ProviderStore
	tariffs   *memory.TariffStore
	meters    *memory.MeterStore
	fees      *memory.FeeStore
	clock     *clock.Fake
}

func newRegistryFixture(t *testing.T) *registryFixture {
	t.Helper()
	f := &registryFixture{
		providers: memory.NewProviderStore(),
		tariffs:   memory.NewTariffStore(),
		meters:    memory.NewMeterStore(),
		fees:      memory.NewFeeStore(),
		clock:     clock.NewFake(time.Unix(1704067200, 0)), // 2024-01-01 00:00 UTC
	}
	f.svc = app.NewRegistryService(app.RegistryDeps{
		Providers: f.providers,
		Tariffs:   f.tariffs,
		Meters:    f.meters,
		Fees:      f.fees,
		Clock:     f.clock,
		Bus:       events.NewBus(zerolog.Nop()),
		Logger:    zerolog.Nop(),
	}, adminAddr)
	return f
}

func registerLagosProvider(t *testing.T, f *registryFixture) {
	t.Helper()
	err := f.svc.RegisterProvider(context.Background(), adminAddr, app.RegisterProviderInput{
		ProviderID: "P1",
		Name:       "Lagos Electric",
		Address:    providerAddr,
		Type:       utility.Electricity.Wire(),
		Region:     "lagos",
	})
	if err != nil {
		t.Fatalf("register provider: %v", err)
	}
}

func TestRegisterProvider(t *testing.T) {
	f := newRegistryFixture(t)
	registerLagosProvider(t, f)

	p, found, err := f.svc.Provider(context.Background(), "P1")
	if err != nil || !found {
		t.Fatalf("lookup: found=%v err=%v", found, err)
	}
	if !p.Active {
		t.Error("new provider should be active")
	}
	if p.Rating != 5 {
		t.Errorf("rating = %d, want initial 5", p.Rating)
	}
	if p.RegisteredAt != 1704067200 {
		t.Errorf("registered_at = %d", p.RegisteredAt)
	}
}

func TestRegisterProvider_Unauthorized(t *testing.T) {
	f := newRegistryFixture(t)
	err := f.svc.RegisterProvider(context.Background(), "GMALLORY", app.RegisterProviderInput{
		ProviderID: "P1",
		Type:       utility.Electricity.Wire(),
	})
	if !errors.Is(err, app.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if _, found, _ := f.svc.Provider(context.Background(), "P1"); found {
		t.Error("rejected registration must not persist")
	}
}

func TestRegisterProvider_DuplicateKeepsFirst(t *testing.T) {
	f := newRegistryFixture(t)
	registerLagosProvider(t, f)

	err := f.svc.RegisterProvider(context.Background(), adminAddr, app.RegisterProviderInput{
		ProviderID: "P1",
		Name:       "Impostor Power",
		Address:    "GOTHER",
		Type:       utility.Electricity.Wire(),
		Region:     "abuja",
	})
	if !errors.Is(err, app.ErrProviderExists) {
		t.Fatalf("err = %v, want ErrProviderExists", err)
	}

	p, _, _ := f.svc.Provider(context.Background(), "P1")
	if p.Name != "Lagos Electric" || p.Region != "lagos" {
		t.Errorf("first registration modified: %+v", p)
	}
}

func TestRegisterProvider_InvalidType(t *testing.T) {
	f := newRegistryFixture(t)
	err := f.svc.RegisterProvider(context.Background(), adminAddr, app.RegisterProviderInput{
		ProviderID: "P1",
		Type:       9,
	})
	if !errors.Is(err, utility.ErrInvalidType) {
		t.Fatalf("err = %v, want ErrInvalidType", err)
	}
}

func addLagosTariff(t *testing.T, f *registryFixture) {
	t.Helper()
	err := f.svc.AddTariff(context.Background(), adminAddr, app.AddTariffInput{
		TariffID:       tariff.Key("P1", "lagos"),
		Type:           utility.Electricity.Wire(),
		ProviderID:     "P1",
		Region:         "lagos",
		BaseRate:       1_000_000,
		Currency:       "NGN",
		Decimals:       7,
		CycleDays:      30,
		GraceDays:      10,
		MinimumPayment: 1,
		MaximumPayment: 1_000_000_000_000,
	})
	if err != nil {
		t.Fatalf("add tariff: %v", err)
	}
}

func TestAddTariff(t *testing.T) {
	f := newRegistryFixture(t)
	registerLagosProvider(t, f)
	addLagosTariff(t, f)

	tt, found, err := f.svc.Tariff(context.Background(), "P1_lagos")
	if err != nil || !found {
		t.Fatalf("lookup: found=%v err=%v", found, err)
	}
	if tt.Version != 1 {
		t.Errorf("version = %d, want 1", tt.Version)
	}
	if tt.LateFee.Flat != 1_000_000 || tt.LateFee.Percent != 500 || tt.LateFee.Max != 10_000_000 {
		t.Errorf("late fee = %+v, want default policy", tt.LateFee)
	}
	if tt.LateFee.GraceDays != 10 {
		t.Errorf("late fee grace days = %d, want 10", tt.LateFee.GraceDays)
	}
}

func TestAddTariff_TypeMismatch(t *testing.T) {
	f := newRegistryFixture(t)
	registerLagosProvider(t, f)

	err := f.svc.AddTariff(context.Background(), adminAddr, app.AddTariffInput{
		TariffID:   "P1_lagos",
		Type:       utility.Water.Wire(),
		ProviderID: "P1",
		Region:     "lagos",
	})
	if !errors.Is(err, app.ErrUtilityTypeMismatch) {
		t.Fatalf("err = %v, want ErrUtilityTypeMismatch", err)
	}
}

func TestAddTariff_InactiveProvider(t *testing.T) {
	f := newRegistryFixture(t)
	registerLagosProvider(t, f)
	if err := f.svc.UpdateProviderStatus(context.Background(), adminAddr, "P1", false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	err := f.svc.AddTariff(context.Background(), adminAddr, app.AddTariffInput{
		TariffID:   "P1_lagos",
		Type:       utility.Electricity.Wire(),
		ProviderID: "P1",
		Region:     "lagos",
	})
	if !errors.Is(err, app.ErrProviderInactive) {
		t.Fatalf("err = %v, want ErrProviderInactive", err)
	}
}

func TestUpgradeTariff_VersionsAreMonotonic(t *testing.T) {
	f := newRegistryFixture(t)
	registerLagosProvider(t, f)
	addLagosTariff(t, f)
	ctx := context.Background()

	base, _, _ := f.svc.Tariff(ctx, "P1_lagos")
	for i := 0; i < 3; i++ {
		next := base
		next.BaseRate = base.BaseRate + int64(i+1)
		if err := f.svc.UpgradeTariff(ctx, adminAddr, "P1_lagos", next, ""); err != nil {
			t.Fatalf("upgrade %d: %v", i, err)
		}
	}

	tt, _, _ := f.svc.Tariff(ctx, "P1_lagos")
	if tt.Version != 4 {
		t.Errorf("live version = %d, want 4 after 3 upgrades", tt.Version)
	}

	vs, err := f.svc.TariffVersions(ctx, "P1_lagos")
	if err != nil {
		t.Fatalf("versions: %v", err)
	}
	if len(vs) != 3 {
		t.Fatalf("got %d audit records, want 3", len(vs))
	}
	for i, v := range vs {
		if v.Version != uint32(i+2) {
			t.Errorf("audit[%d].Version = %d, want %d", i, v.Version, i+2)
		}
		if !v.MigrationRequired {
			t.Errorf("audit[%d] should be migration-bearing", i)
		}
		if v.Description != "Configuration upgrade" {
			t.Errorf("audit[%d].Description = %q", i, v.Description)
		}
	}
}

func TestRegisterMeter_ProviderCapability(t *testing.T) {
	f := newRegistryFixture(t)
	registerLagosProvider(t, f)
	ctx := context.Background()

	in := app.RegisterMeterInput{
		MeterID:    "M1",
		Type:       utility.Electricity.Wire(),
		ProviderID: "P1",
		Customer:   "GCUSTOMER",
		Smart:      true,
	}
	if err := f.svc.RegisterMeter(ctx, "GNOTTHEPROVIDER", in); !errors.Is(err, app.ErrUnauthorized) {
		t.Fatalf("foreign caller: err = %v, want ErrUnauthorized", err)
	}
	if err := f.svc.RegisterMeter(ctx, providerAddr, in); err != nil {
		t.Fatalf("register meter: %v", err)
	}

	m, found, err := f.svc.Meter(ctx, "M1")
	if err != nil || !found {
		t.Fatalf("lookup: found=%v err=%v", found, err)
	}
	if !m.Active || !m.Smart {
		t.Errorf("meter = %+v", m)
	}
}

func TestRecordMeterReading(t *testing.T) {
	f := newRegistryFixture(t)
	registerLagosProvider(t, f)
	ctx := context.Background()

	if err := f.svc.RegisterMeter(ctx, providerAddr, app.RegisterMeterInput{
		MeterID:    "M1",
		Type:       utility.Electricity.Wire(),
		ProviderID: "P1",
	}); err != nil {
		t.Fatalf("register meter: %v", err)
	}

	f.clock.Advance(3600 * time.Second)
	if err := f.svc.RecordMeterReading(ctx, providerAddr, "M1", 1234); err != nil {
		t.Fatalf("record reading: %v", err)
	}
	m, _, _ := f.svc.Meter(ctx, "M1")
	if m.LastReading != 1234 {
		t.Errorf("last reading = %d, want 1234", m.LastReading)
	}
	if m.LastReadingAt != 1704067200+3600 {
		t.Errorf("last reading at = %d", m.LastReadingAt)
	}

	if err := f.svc.RecordMeterReading(ctx, "GSOMEONE", "M1", 99); !errors.Is(err, app.ErrUnauthorized) {
		t.Fatalf("foreign caller: err = %v, want ErrUnauthorized", err)
	}
}

func TestAddFee(t *testing.T) {
	f := newRegistryFixture(t)
	registerLagosProvider(t, f)
	ctx := context.Background()

	if err := f.svc.AddFee(ctx, adminAddr, app.AddFeeInput{
		FeeID:      "F1",
		Type:       utility.Electricity.Wire(),
		ProviderID: "P1",
		FeeType:    tariff.FeeProcessing.Wire(),
		Amount:     500,
	}); err != nil {
		t.Fatalf("add fee: %v", err)
	}

	fee, found, err := f.svc.Fee(ctx, "F1")
	if err != nil || !found {
		t.Fatalf("lookup: found=%v err=%v", found, err)
	}
	if !fee.Active || fee.Amount != 500 {
		t.Errorf("fee = %+v", fee)
	}

	err = f.svc.AddFee(ctx, adminAddr, app.AddFeeInput{
		FeeID:      "F2",
		Type:       utility.Electricity.Wire(),
		ProviderID: "P404",
		FeeType:    tariff.FeeService.Wire(),
	})
	if !errors.Is(err, app.ErrProviderNotFound) {
		t.Fatalf("missing provider: err = %v, want ErrProviderNotFound", err)
	}
}

func TestListProviders(t *testing.T) {
	f := newRegistryFixture(t)
	registerLagosProvider(t, f)
	ctx := context.Background()

	others := []app.RegisterProviderInput{
		{ProviderID: "P2", Address: "GP2", Type: utility.Electricity.Wire(), Region: "abuja"},
		{ProviderID: "P3", Address: "GP3", Type: utility.Water.Wire(), Region: "lagos"},
		{ProviderID: "P4", Address: "GP4", Type: utility.Electricity.Wire(), Region: "lagos"},
	}
	for _, in := range others {
		if err := f.svc.RegisterProvider(ctx, adminAddr, in); err != nil {
			t.Fatalf("register %s: %v", in.ProviderID, err)
		}
	}
	if err := f.svc.UpdateProviderStatus(ctx, adminAddr, "P4", false); err != nil {
		t.Fatalf("deactivate P4: %v", err)
	}

	got, err := f.svc.ListProviders(ctx, utility.Electricity.Wire(), "lagos")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "P1" {
		t.Errorf("got %v, want just P1 (active electricity in lagos)", got)
	}
}

func TestQueries_AbsenceIsNotAnError(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	if _, found, err := f.svc.Provider(ctx, "nope"); err != nil || found {
		t.Errorf("provider: found=%v err=%v", found, err)
	}
	if _, found, err := f.svc.Tariff(ctx, "nope"); err != nil || found {
		t.Errorf("tariff: found=%v err=%v", found, err)
	}
	if _, found, err := f.svc.Meter(ctx, "nope"); err != nil || found {
		t.Errorf("meter: found=%v err=%v", found, err)
	}
	if _, found, err := f.svc.Fee(ctx, "nope"); err != nil || found {
		t.Errorf("fee: found=%v err=%v", found, err)
	}
}
