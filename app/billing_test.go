package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/utilibill/adapters/ledger"
	"github.com/artpar/utilibill/adapters/memory"
	"github.com/artpar/utilibill/app"
	"github.com/artpar/utilibill/domain/billing"
	"github.com/artpar/utilibill/domain/oracle"
	"github.com/artpar/utilibill/domain/tariff"
	"github.com/artpar/utilibill/domain/utility"
	"github.com/artpar/utilibill/events"
)

const (
	payerAddr   = "GCUSTOMER"
	holdingAddr = "GHOLDING"
)

type billingFixture struct {
	registry *registryFixture
	records  *memory.BillingStore
	oracle   *app.OracleService
	ledger   *ledger.Memory
	svc      *app.BillingService
}

// newBillingFixture wires the full pipeline over in-memory stores with a
// registered Lagos electricity provider, tariff and meter M1.
func newBillingFixture(t *testing.T) *billingFixture {
	t.Helper()
	reg := newRegistryFixture(t)
	registerLagosProvider(t, reg)
	addLagosTariff(t, reg)
	if err := reg.svc.RegisterMeter(context.Background(), providerAddr, app.RegisterMeterInput{
		MeterID:    "M1",
		Type:       utility.Electricity.Wire(),
		ProviderID: "P1",
		Customer:   payerAddr,
	}); err != nil {
		t.Fatalf("register meter: %v", err)
	}

	f := &billingFixture{
		registry: reg,
		records:  memory.NewBillingStore(),
		ledger:   ledger.NewMemory(),
	}
	f.oracle = app.NewOracleService(app.OracleDeps{
		Feeds:  memory.NewFeedStore(),
		Rates:  memory.NewRateStore(),
		Clock:  reg.clock,
		Bus:    events.NewBus(zerolog.Nop()),
		Logger: zerolog.Nop(),
	}, gateConfig(), adminAddr)
	f.svc = app.NewBillingService(app.BillingDeps{
		Providers: reg.providers,
		Tariffs:   reg.tariffs,
		Meters:    reg.meters,
		Fees:      reg.fees,
		Records:   f.records,
		Oracle:    f.oracle,
		Ledger:    f.ledger,
		Clock:     reg.clock,
		Bus:       events.NewBus(zerolog.Nop()),
		Logger:    zerolog.Nop(),
	}, holdingAddr)
	f.ledger.Deposit("NGN", payerAddr, 1_000_000_000_000)
	return f
}

func (f *billingFixture) pay(consumption int64) (billing.Record, billing.Breakdown, error) {
	return f.svc.PayBill(context.Background(), app.PaymentRequest{
		Payer:       payerAddr,
		Asset:       "NGN",
		MeterID:     "M1",
		Consumption: consumption,
	})
}

func (f *billingFixture) liveTariff(t *testing.T) tariff.Tariff {
	t.Helper()
	tt, found, err := f.registry.svc.Tariff(context.Background(), "P1_lagos")
	if err != nil || !found {
		t.Fatalf("tariff lookup: found=%v err=%v", found, err)
	}
	return tt
}

func (f *billingFixture) putTariff(t *testing.T, tt tariff.Tariff) {
	t.Helper()
	if err := f.registry.tariffs.Update(context.Background(), tt); err != nil {
		t.Fatalf("update tariff: %v", err)
	}
}

func TestPayBill_BaseRate(t *testing.T) {
	f := newBillingFixture(t)

	rec, bd, err := f.pay(50)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if bd.Base != 50_000_000 {
		t.Errorf("base = %d, want 50_000_000", bd.Base)
	}
	if rec.FinalAmount != 50_000_000 {
		t.Errorf("final = %d, want 50_000_000", rec.FinalAmount)
	}
	if rec.TariffVersion != 1 {
		t.Errorf("tariff version = %d, want 1", rec.TariffVersion)
	}

	if got := f.ledger.Balance("NGN", holdingAddr); got != 50_000_000 {
		t.Errorf("holding balance = %d", got)
	}
	p, _, _ := f.registry.svc.Provider(context.Background(), "P1")
	if p.TotalTransactions != 1 {
		t.Errorf("provider transactions = %d, want 1", p.TotalTransactions)
	}
	m, _, _ := f.registry.svc.Meter(context.Background(), "M1")
	if m.LastReading != 50 {
		t.Errorf("meter reading = %d, want 50", m.LastReading)
	}

	got, found, err := f.svc.BillingDetails(context.Background(), "M1", rec.Timestamp)
	if err != nil || !found {
		t.Fatalf("details: found=%v err=%v", found, err)
	}
	if got != rec {
		t.Errorf("stored record %+v != returned %+v", got, rec)
	}
}

func TestPayBill_ZeroConsumptionIsBelowMinimum(t *testing.T) {
	f := newBillingFixture(t)

	_, _, err := f.pay(0)
	if !errors.Is(err, billing.ErrBelowMinimumPayment) {
		t.Fatalf("err = %v, want ErrBelowMinimumPayment", err)
	}
	if got := f.ledger.Balance("NGN", holdingAddr); got != 0 {
		t.Errorf("rejected payment moved funds: %d", got)
	}
	if total, _ := f.svc.TotalPaid(context.Background(), "M1"); total != 0 {
		t.Errorf("rejected payment recorded: %d", total)
	}
}

func TestPayBill_OverlappingTiersFirstMatchWins(t *testing.T) {
	f := newBillingFixture(t)
	tt := f.liveTariff(t)
	tt.Tiers = []tariff.Tier{
		{MinUnits: 0, MaxUnits: 100, RatePerUnit: 2_000_000, Name: "standard"},
		{MinUnits: 50, MaxUnits: 150, RatePerUnit: 3_000_000, Name: "premium"},
	}
	f.putTariff(t, tt)

	_, bd, err := f.pay(50)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if bd.Base != 100_000_000 {
		t.Errorf("base = %d, want 100_000_000 from first matching tier", bd.Base)
	}
	if bd.TierName != "standard" {
		t.Errorf("tier = %q, want standard", bd.TierName)
	}
}

func TestPayBill_TimeOfUseMultiplier(t *testing.T) {
	f := newBillingFixture(t)
	// The fixture clock reads 2024-01-01 00:00 UTC: hour 0, weekday 4
	// under the epoch-thursday convention.
	tt := f.liveTariff(t)
	tt.TimeOfUse = []tariff.TimeOfUse{
		{StartHour: 0, EndHour: 5, Days: []uint8{4}, Multiplier: 150},
	}
	f.putTariff(t, tt)

	_, bd, err := f.pay(50)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if !bd.TimeOfUse {
		t.Fatal("time-of-use rule should have applied")
	}
	if bd.Base != 75_000_000 {
		t.Errorf("base = %d, want 75_000_000 (x1.5)", bd.Base)
	}

	// Outside the hour window the rule must not apply.
	f.registry.clock.Advance(6 * time.Hour)
	_, bd, err = f.pay(50)
	if err != nil {
		t.Fatalf("pay outside window: %v", err)
	}
	if bd.TimeOfUse || bd.Base != 50_000_000 {
		t.Errorf("base = %d tou=%v, want plain 50_000_000", bd.Base, bd.TimeOfUse)
	}
}

func TestPayBill_Taxes(t *testing.T) {
	f := newBillingFixture(t)
	maxTax := int64(1_000_000)
	tt := f.liveTariff(t)
	tt.Taxes = []tariff.Tax{
		{Name: "VAT", Percent: 10},
		{Name: "levy", Percent: 5, Compound: true},
		{Name: "capped", Percent: 50, MaxAmount: &maxTax},
	}
	f.putTariff(t, tt)

	_, bd, err := f.pay(50)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	// base 50_000_000: VAT 5_000_000 on base, levy 2_500_000 on the
	// compound running subtotal, capped levy limited to 1_000_000.
	if bd.Tax != 8_500_000 {
		t.Errorf("tax = %d, want 8_500_000", bd.Tax)
	}
	if bd.Final != 58_500_000 {
		t.Errorf("final = %d, want 58_500_000", bd.Final)
	}
}

func TestPayBill_Fees(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	pct := int64(2)

	if err := f.registry.svc.AddFee(ctx, adminAddr, app.AddFeeInput{
		FeeID:      "F1",
		Type:       utility.Electricity.Wire(),
		ProviderID: "P1",
		FeeType:    tariff.FeeProcessing.Wire(),
		Amount:     500,
	}); err != nil {
		t.Fatalf("add fixed fee: %v", err)
	}
	if err := f.registry.svc.AddFee(ctx, adminAddr, app.AddFeeInput{
		FeeID:      "F2",
		Type:       utility.Electricity.Wire(),
		ProviderID: "P1",
		FeeType:    tariff.FeeService.Wire(),
		Percent:    &pct,
		IsPercent:  true,
	}); err != nil {
		t.Fatalf("add percent fee: %v", err)
	}

	_, bd, err := f.svc.PayBill(ctx, app.PaymentRequest{
		Payer:       payerAddr,
		Asset:       "NGN",
		MeterID:     "M1",
		Consumption: 50,
		ApplyFees:   true,
	})
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	// subtotal 50_000_000: fixed 500 plus 2% = 1_000_000.
	if bd.Fee != 1_000_500 {
		t.Errorf("fee = %d, want 1_000_500", bd.Fee)
	}
	if bd.Final != 51_000_500 {
		t.Errorf("final = %d, want 51_000_500", bd.Final)
	}
}

func TestPayBill_NoRegisteredFeesMeansNoFee(t *testing.T) {
	f := newBillingFixture(t)

	_, bd, err := f.svc.PayBill(context.Background(), app.PaymentRequest{
		Payer:       payerAddr,
		Asset:       "NGN",
		MeterID:     "M1",
		Consumption: 50,
		ApplyFees:   true,
	})
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if bd.Fee != 0 {
		t.Errorf("fee = %d, want 0 with nothing registered", bd.Fee)
	}
}

func TestPayBill_CurrencyConversion(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	now := f.registry.clock.Now().Unix()

	// 0.5 USD per NGN at 5 decimals.
	if err := f.oracle.AddFeed(ctx, adminAddr, oracle.PriceFeed{
		Base:        "NGN",
		Quote:       "USD",
		Price:       50_000,
		Decimals:    5,
		Reliability: 80,
		UpdatedAt:   now,
	}); err != nil {
		t.Fatalf("add feed: %v", err)
	}

	_, bd, err := f.svc.PayBill(ctx, app.PaymentRequest{
		Payer:       payerAddr,
		Asset:       "NGN",
		MeterID:     "M1",
		Consumption: 50,
		Currency:    "USD",
	})
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if !bd.Converted {
		t.Fatal("conversion should have applied")
	}
	if bd.Final != 25_000_000 {
		t.Errorf("final = %d, want 25_000_000", bd.Final)
	}
}

func TestPayBill_StaleFeedBlocksPayment(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	now := f.registry.clock.Now().Unix()

	if err := f.oracle.AddFeed(ctx, adminAddr, oracle.PriceFeed{
		Base:        "NGN",
		Quote:       "USD",
		Price:       50_000,
		Decimals:    5,
		Reliability: 80,
		UpdatedAt:   now - 7200,
	}); err != nil {
		t.Fatalf("add feed: %v", err)
	}

	_, _, err := f.svc.PayBill(ctx, app.PaymentRequest{
		Payer:       payerAddr,
		Asset:       "NGN",
		MeterID:     "M1",
		Consumption: 50,
		Currency:    "USD",
	})
	if !errors.Is(err, oracle.ErrDataTooOld) {
		t.Fatalf("err = %v, want ErrDataTooOld", err)
	}
	if got := f.ledger.Balance("NGN", holdingAddr); got != 0 {
		t.Errorf("blocked payment moved funds: %d", got)
	}
}

func TestPayBill_MissingFeedIsUnavailableRate(t *testing.T) {
	f := newBillingFixture(t)

	_, _, err := f.svc.PayBill(context.Background(), app.PaymentRequest{
		Payer:       payerAddr,
		Asset:       "NGN",
		MeterID:     "M1",
		Consumption: 50,
		Currency:    "USD",
	})
	if !errors.Is(err, billing.ErrExchangeRateUnavailable) {
		t.Fatalf("err = %v, want ErrExchangeRateUnavailable", err)
	}
}

func TestPayBill_Bounds(t *testing.T) {
	f := newBillingFixture(t)
	tt := f.liveTariff(t)
	tt.MinimumPayment = 50_000_000
	tt.MaximumPayment = 50_000_000
	f.putTariff(t, tt)

	// Both bounds are inclusive: an amount equal to them passes.
	if _, _, err := f.pay(50); err != nil {
		t.Fatalf("boundary amount rejected: %v", err)
	}
	f.registry.clock.Advance(time.Second)

	if _, _, err := f.pay(49); !errors.Is(err, billing.ErrBelowMinimumPayment) {
		t.Fatalf("err = %v, want ErrBelowMinimumPayment", err)
	}
	if _, _, err := f.pay(51); !errors.Is(err, billing.ErrAboveMaximumPayment) {
		t.Fatalf("err = %v, want ErrAboveMaximumPayment", err)
	}
}

func TestPayBill_FailedTransferLeavesStateUntouched(t *testing.T) {
	f := newBillingFixture(t)
	f.svc = app.NewBillingService(app.BillingDeps{
		Providers: f.registry.providers,
		Tariffs:   f.registry.tariffs,
		Meters:    f.registry.meters,
		Fees:      f.registry.fees,
		Records:   f.records,
		Oracle:    f.oracle,
		Ledger:    ledger.NewNoop(),
		Clock:     f.registry.clock,
		Bus:       events.NewBus(zerolog.Nop()),
		Logger:    zerolog.Nop(),
	}, holdingAddr)

	_, _, err := f.pay(50)
	if !errors.Is(err, ledger.ErrSettlementDisabled) {
		t.Fatalf("err = %v, want ErrSettlementDisabled", err)
	}

	p, _, _ := f.registry.svc.Provider(context.Background(), "P1")
	if p.TotalTransactions != 0 {
		t.Errorf("provider counter advanced on failed transfer: %d", p.TotalTransactions)
	}
	m, _, _ := f.registry.svc.Meter(context.Background(), "M1")
	if m.LastReading != 0 {
		t.Errorf("meter reading advanced on failed transfer: %d", m.LastReading)
	}
	if total, _ := f.svc.TotalPaid(context.Background(), "M1"); total != 0 {
		t.Errorf("record written on failed transfer: %d", total)
	}
}

func TestPayBill_InactiveMeter(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()

	m, err := f.registry.meters.Get(ctx, "M1")
	if err != nil {
		t.Fatalf("get meter: %v", err)
	}
	m.Active = false
	if err := f.registry.meters.Update(ctx, m); err != nil {
		t.Fatalf("update meter: %v", err)
	}

	if _, _, err := f.pay(50); !errors.Is(err, app.ErrMeterInactive) {
		t.Fatalf("err = %v, want ErrMeterInactive", err)
	}
}

func TestPayBill_MissingMeter(t *testing.T) {
	f := newBillingFixture(t)
	_, _, err := f.svc.PayBill(context.Background(), app.PaymentRequest{
		Payer:       payerAddr,
		Asset:       "NGN",
		MeterID:     "M404",
		Consumption: 50,
	})
	if !errors.Is(err, app.ErrMeterNotFound) {
		t.Fatalf("err = %v, want ErrMeterNotFound", err)
	}
}

func TestPayBill_SameSecondDuplicateMovesNoFunds(t *testing.T) {
	f := newBillingFixture(t)

	if _, _, err := f.pay(50); err != nil {
		t.Fatalf("first pay: %v", err)
	}
	// The clock has not advanced, so the second payment collides on the
	// (meter, timestamp) record key. It must fail before the transfer.
	if _, _, err := f.pay(50); !errors.Is(err, app.ErrRecordExists) {
		t.Fatalf("err = %v, want ErrRecordExists", err)
	}

	if got := f.ledger.Balance("NGN", holdingAddr); got != 50_000_000 {
		t.Errorf("holding balance = %d, want 50_000_000 after one payment", got)
	}
	if total, _ := f.svc.TotalPaid(context.Background(), "M1"); total != 50_000_000 {
		t.Errorf("total paid = %d, want 50_000_000", total)
	}
	p, _, _ := f.registry.svc.Provider(context.Background(), "P1")
	if p.TotalTransactions != 1 {
		t.Errorf("provider transactions = %d, want 1", p.TotalTransactions)
	}
}

func TestTotalPaid_AccumulatesAcrossPayments(t *testing.T) {
	f := newBillingFixture(t)

	if _, _, err := f.pay(50); err != nil {
		t.Fatalf("first pay: %v", err)
	}
	f.registry.clock.Advance(time.Second)
	if _, _, err := f.pay(30); err != nil {
		t.Fatalf("second pay: %v", err)
	}

	total, err := f.svc.TotalPaid(context.Background(), "M1")
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if total != 80_000_000 {
		t.Errorf("total = %d, want 80_000_000", total)
	}
}
