package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/artpar/utilibill/domain/billing"
	"github.com/artpar/utilibill/domain/meter"
	"github.com/artpar/utilibill/domain/money"
	"github.com/artpar/utilibill/domain/tariff"
	"github.com/artpar/utilibill/events"
	"github.com/artpar/utilibill/ports"
)

// BillingService runs the payment pipeline: resolve meter and tariff,
// compute the bill, transfer the asset, then persist the outcome. All
// validation and computation happens before the transfer; the transfer is
// the first state change, and a failed transfer leaves every store
// untouched.
type BillingService struct {
	providers ports.ProviderStore
	tariffs   ports.TariffStore
	meters    ports.MeterStore
	fees      ports.FeeStore
	records   ports.BillingStore
	oracle    *OracleService
	ledger    ports.Ledger
	clock     ports.Clock
	bus       *events.Bus
	logger    zerolog.Logger

	// holdingAddr receives every payment. Settlement to providers happens
	// out of band.
	holdingAddr string
}

// BillingDeps contains dependencies for BillingService.
type BillingDeps struct {
	Providers ports.ProviderStore
	Tariffs   ports.TariffStore
	Meters    ports.MeterStore
	Fees      ports.FeeStore
	Records   ports.BillingStore
	Oracle    *OracleService
	Ledger    ports.Ledger
	Clock     ports.Clock
	Bus       *events.Bus
	Logger    zerolog.Logger
}

// NewBillingService creates a billing service. holdingAddr is the
// collection account payments land on.
func NewBillingService(deps BillingDeps, holdingAddr string) *BillingService {
	return &BillingService{
		providers:   deps.Providers,
		tariffs:     deps.Tariffs,
		meters:      deps.Meters,
		fees:        deps.Fees,
		records:     deps.Records,
		oracle:      deps.Oracle,
		ledger:      deps.Ledger,
		clock:       deps.Clock,
		bus:         deps.Bus,
		logger:      deps.Logger,
		holdingAddr: holdingAddr,
	}
}

// PaymentRequest carries one bill payment.
type PaymentRequest struct {
	Payer       string
	Asset       string // ledger asset identifier the payer settles in
	MeterID     string
	Consumption int64
	Currency    string // payment currency; empty means the tariff's own
	ApplyFees   bool
}

// PayBill computes and settles one bill. On success the returned record
// has been persisted and the provider's transaction counter and the
// meter's reading have advanced; on any error no state has changed except
// that a transfer failure after validation is returned as-is.
func (s *BillingService) PayBill(ctx context.Context, req PaymentRequest) (billing.Record, billing.Breakdown, error) {
	now := s.clock.Now().Unix()

	m, err := s.meters.Get(ctx, req.MeterID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return billing.Record{}, billing.Breakdown{}, ErrMeterNotFound
		}
		return billing.Record{}, billing.Breakdown{}, fmt.Errorf("get meter: %w", err)
	}
	if !m.Active {
		return billing.Record{}, billing.Breakdown{}, ErrMeterInactive
	}

	p, err := s.providers.Get(ctx, m.ProviderID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return billing.Record{}, billing.Breakdown{}, ErrProviderNotFound
		}
		return billing.Record{}, billing.Breakdown{}, fmt.Errorf("get provider: %w", err)
	}
	if !p.Active {
		return billing.Record{}, billing.Breakdown{}, ErrProviderInactive
	}

	t, err := s.tariffs.Get(ctx, tariff.Key(m.ProviderID, p.Region))
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return billing.Record{}, billing.Breakdown{}, ErrTariffNotFound
		}
		return billing.Record{}, billing.Breakdown{}, fmt.Errorf("get tariff: %w", err)
	}
	if !t.Active {
		return billing.Record{}, billing.Breakdown{}, ErrTariffInactive
	}

	// A record already keyed (meter, now) must fail here, before any funds
	// move; the Create below remains the backstop under concurrent calls.
	if _, err := s.records.Get(ctx, req.MeterID, now); err == nil {
		return billing.Record{}, billing.Breakdown{}, ErrRecordExists
	} else if !errors.Is(err, ports.ErrNotFound) {
		return billing.Record{}, billing.Breakdown{}, fmt.Errorf("check record: %w", err)
	}

	bd, err := s.compute(ctx, req, m, t, now)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("meter_id", req.MeterID).
			Int64("consumption", req.Consumption).
			Msg("bill computation rejected")
		return billing.Record{}, billing.Breakdown{}, err
	}

	// First state change. Everything above is read-only.
	if err := s.ledger.Transfer(ctx, req.Asset, req.Payer, s.holdingAddr, bd.Final); err != nil {
		s.logger.Error().
			Err(err).
			Str("payer", req.Payer).
			Int64("amount", bd.Final).
			Msg("transfer failed")
		return billing.Record{}, billing.Breakdown{}, fmt.Errorf("transfer: %w", err)
	}

	rec := billing.Record{
		MeterID:       req.MeterID,
		Timestamp:     now,
		Consumption:   req.Consumption,
		BaseAmount:    bd.Base,
		TaxAmount:     bd.Tax,
		FeeAmount:     bd.Fee,
		FinalAmount:   bd.Final,
		Type:          m.Type,
		TariffVersion: t.Version,
	}
	if err := s.records.Create(ctx, rec); err != nil {
		if errors.Is(err, ports.ErrExists) {
			return billing.Record{}, billing.Breakdown{}, ErrRecordExists
		}
		return billing.Record{}, billing.Breakdown{}, fmt.Errorf("record bill: %w", err)
	}

	p.TotalTransactions++
	if err := s.providers.Update(ctx, p); err != nil {
		return billing.Record{}, billing.Breakdown{}, fmt.Errorf("update provider: %w", err)
	}
	m = meter.WithReading(m, m.LastReading+req.Consumption, now)
	if err := s.meters.Update(ctx, m); err != nil {
		return billing.Record{}, billing.Breakdown{}, fmt.Errorf("update meter: %w", err)
	}

	s.logger.Info().
		Str("meter_id", req.MeterID).
		Str("provider_id", m.ProviderID).
		Int64("consumption", req.Consumption).
		Int64("base", bd.Base).
		Int64("tax", bd.Tax).
		Int64("fee", bd.Fee).
		Int64("final", bd.Final).
		Str("tier", bd.TierName).
		Bool("time_of_use", bd.TimeOfUse).
		Bool("converted", bd.Converted).
		Msg("bill paid")
	s.bus.Emit(ctx, "billing", "bill_paid", map[string]any{
		"meter_id":    req.MeterID,
		"provider_id": m.ProviderID,
		"amount":      bd.Final,
		"currency":    paymentCurrency(req, t),
	})
	return rec, bd, nil
}

// compute runs the pure pipeline over an already-resolved meter and
// tariff. It reads the fee registry and the price store but writes
// nothing.
func (s *BillingService) compute(ctx context.Context, req PaymentRequest, m meter.Meter, t tariff.Tariff, now int64) (billing.Breakdown, error) {
	base, tierName, tou, err := billing.BaseAmount(t, req.Consumption, now)
	if err != nil {
		return billing.Breakdown{}, err
	}
	tax, err := billing.TaxAmount(t.Taxes, base)
	if err != nil {
		return billing.Breakdown{}, err
	}
	subtotal, err := money.Add(base, tax)
	if err != nil {
		return billing.Breakdown{}, err
	}

	var fee int64
	if req.ApplyFees {
		registered, err := s.fees.ListFor(ctx, m.ProviderID, m.Type)
		if err != nil {
			return billing.Breakdown{}, fmt.Errorf("list fees: %w", err)
		}
		fee, err = billing.FeeAmount(registered, subtotal)
		if err != nil {
			return billing.Breakdown{}, err
		}
	}
	total, err := money.Add(subtotal, fee)
	if err != nil {
		return billing.Breakdown{}, err
	}

	final := total
	converted := false
	if cur := paymentCurrency(req, t); cur != t.Currency {
		feed, err := s.oracle.UsableFeed(ctx, t.Currency, cur, now)
		if err != nil {
			return billing.Breakdown{}, err
		}
		final, err = billing.Convert(total, feed)
		if err != nil {
			return billing.Breakdown{}, err
		}
		converted = true
	}

	if err := billing.CheckBounds(final, t); err != nil {
		return billing.Breakdown{}, err
	}
	return billing.Breakdown{
		Base:      base,
		Tax:       tax,
		Fee:       fee,
		Subtotal:  subtotal,
		Final:     final,
		TierName:  tierName,
		TimeOfUse: tou,
		Converted: converted,
	}, nil
}

func paymentCurrency(req PaymentRequest, t tariff.Tariff) string {
	if req.Currency == "" {
		return t.Currency
	}
	return req.Currency
}

// TotalPaid returns the lifetime sum of final amounts billed to a meter.
func (s *BillingService) TotalPaid(ctx context.Context, meterID string) (int64, error) {
	return s.records.TotalPaid(ctx, meterID)
}

// BillingDetails is a point lookup by the record's (meter, timestamp) key.
// Absence is found=false, not an error.
func (s *BillingService) BillingDetails(ctx context.Context, meterID string, timestamp int64) (billing.Record, bool, error) {
	rec, err := s.records.Get(ctx, meterID, timestamp)
	if errors.Is(err, ports.ErrNotFound) {
		return billing.Record{}, false, nil
	}
	if err != nil {
		return billing.Record{}, false, err
	}
	return rec, true, nil
}
