// Package app provides application services that orchestrate domain logic.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/artpar/utilibill/domain/meter"
	"github.com/artpar/utilibill/domain/provider"
	"github.com/artpar/utilibill/domain/tariff"
	"github.com/artpar/utilibill/domain/utility"
	"github.com/artpar/utilibill/events"
	"github.com/artpar/utilibill/ports"
)

// RegistryService is the rate registry: providers, tariffs, meters and
// fee definitions. Mutations are admin- or provider-gated; the
// authorization check runs before any read that informs the decision.
type RegistryService struct {
	providers ports.ProviderStore
	tariffs   ports.TariffStore
	meters    ports.MeterStore
	fees      ports.FeeStore
	clock     ports.Clock
	bus       *events.Bus
	logger    zerolog.Logger

	adminAddr string
}

// RegistryDeps contains dependencies for RegistryService.
type RegistryDeps struct {
	Providers ports.ProviderStore
	Tariffs   ports.TariffStore
	Meters    ports.MeterStore
	Fees      ports.FeeStore
	Clock     ports.Clock
	Bus       *events.Bus
	Logger    zerolog.Logger
}

// NewRegistryService creates a registry service. adminAddr is the only
// address allowed to perform admin-gated mutations.
func NewRegistryService(deps RegistryDeps, adminAddr string) *RegistryService {
	return &RegistryService{
		providers: deps.Providers,
		tariffs:   deps.Tariffs,
		meters:    deps.Meters,
		fees:      deps.Fees,
		clock:     deps.Clock,
		bus:       deps.Bus,
		logger:    deps.Logger,
		adminAddr: adminAddr,
	}
}

// requireAdmin is the admission gate for admin operations. It runs before
// any read or write so a failed authorization never observes state.
func (s *RegistryService) requireAdmin(caller string) error {
	if caller != s.adminAddr {
		return ErrUnauthorized
	}
	return nil
}

// RegisterProviderInput carries the registration arguments.
type RegisterProviderInput struct {
	ProviderID string
	Name       string
	Address    string
	Type       uint8 // wire form, range-checked
	Region     string
	License    string
	Contact    string
}

// RegisterProvider registers a new utility provider. Admin only.
func (s *RegistryService) RegisterProvider(ctx context.Context, admin string, in RegisterProviderInput) error {
	if err := s.requireAdmin(admin); err != nil {
		return err
	}
	typ, err := utility.TypeFromWire(in.Type)
	if err != nil {
		return err
	}

	p := provider.Provider{
		ID:           in.ProviderID,
		Name:         in.Name,
		Address:      in.Address,
		Type:         typ,
		Region:       in.Region,
		Active:       true,
		RegisteredAt: s.clock.Now().Unix(),
		License:      in.License,
		Contact:      in.Contact,
		Rating:       provider.InitialRating,
	}
	if err := s.providers.Create(ctx, p); err != nil {
		if errors.Is(err, ports.ErrExists) {
			return ErrProviderExists
		}
		return fmt.Errorf("create provider: %w", err)
	}

	s.logger.Info().
		Str("provider_id", p.ID).
		Str("utility_type", typ.String()).
		Str("region", p.Region).
		Msg("provider registered")
	s.bus.Emit(ctx, "registry", "provider_registered", map[string]any{
		"provider_id":  p.ID,
		"utility_type": typ.String(),
		"region":       p.Region,
	})
	return nil
}

// AddTariffInput carries the arguments of a new rate schedule.
type AddTariffInput struct {
	TariffID       string
	Type           uint8 // wire form
	ProviderID     string
	Region         string
	BaseRate       int64
	Currency       string
	Decimals       uint32
	CycleDays      uint32
	GraceDays      uint32
	MinimumPayment int64
	MaximumPayment int64
}

// AddTariff adds a utility configuration for an existing, active provider
// of the matching utility type. The tariff starts at version 1 with the
// default late-fee policy. Admin only.
func (s *RegistryService) AddTariff(ctx context.Context, admin string, in AddTariffInput) error {
	if err := s.requireAdmin(admin); err != nil {
		return err
	}
	typ, err := utility.TypeFromWire(in.Type)
	if err != nil {
		return err
	}

	p, err := s.providers.Get(ctx, in.ProviderID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return ErrProviderNotFound
		}
		return fmt.Errorf("get provider: %w", err)
	}
	if !p.Active {
		return ErrProviderInactive
	}
	if p.Type != typ {
		return ErrUtilityTypeMismatch
	}

	t := tariff.Tariff{
		ID:             in.TariffID,
		Type:           typ,
		ProviderID:     in.ProviderID,
		Region:         in.Region,
		BaseRate:       in.BaseRate,
		Currency:       in.Currency,
		Decimals:       in.Decimals,
		LateFee:        tariff.DefaultLateFee(in.GraceDays),
		CycleDays:      in.CycleDays,
		GraceDays:      in.GraceDays,
		MinimumPayment: in.MinimumPayment,
		MaximumPayment: in.MaximumPayment,
		Active:         true,
		Version:        1,
		UpdatedAt:      s.clock.Now().Unix(),
	}
	if err := s.tariffs.Create(ctx, t); err != nil {
		if errors.Is(err, ports.ErrExists) {
			return ErrTariffExists
		}
		return fmt.Errorf("create tariff: %w", err)
	}

	s.logger.Info().
		Str("tariff_id", t.ID).
		Str("provider_id", t.ProviderID).
		Int64("base_rate", t.BaseRate).
		Msg("tariff added")
	s.bus.Emit(ctx, "registry", "tariff_added", map[string]any{
		"tariff_id":   t.ID,
		"provider_id": t.ProviderID,
		"region":      t.Region,
	})
	return nil
}

// RegisterMeterInput carries the meter registration arguments.
type RegisterMeterInput struct {
	MeterID    string
	Type       uint8 // wire form
	ProviderID string
	Customer   string
	Location   string
	Model      string
	Firmware   string
	Smart      bool
}

// RegisterMeter registers a meter. The caller must be the provider address
// on record for in.ProviderID (capability match), and the provider must be
// active.
func (s *RegistryService) RegisterMeter(ctx context.Context, callerAddr string, in RegisterMeterInput) error {
	typ, err := utility.TypeFromWire(in.Type)
	if err != nil {
		return err
	}

	p, err := s.providers.Get(ctx, in.ProviderID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return ErrProviderNotFound
		}
		return fmt.Errorf("get provider: %w", err)
	}
	if p.Address != callerAddr {
		return ErrUnauthorized
	}
	if !p.Active {
		return ErrProviderInactive
	}

	now := s.clock.Now().Unix()
	m := meter.Meter{
		ID:            in.MeterID,
		Type:          typ,
		ProviderID:    in.ProviderID,
		Customer:      in.Customer,
		InstalledAt:   now,
		LastReadingAt: now,
		Active:        true,
		Smart:         in.Smart,
		Location:      in.Location,
		Model:         in.Model,
		Firmware:      in.Firmware,
	}
	if err := s.meters.Create(ctx, m); err != nil {
		if errors.Is(err, ports.ErrExists) {
			return ErrMeterExists
		}
		return fmt.Errorf("create meter: %w", err)
	}

	s.logger.Info().
		Str("meter_id", m.ID).
		Str("provider_id", m.ProviderID).
		Bool("smart", m.Smart).
		Msg("meter registered")
	s.bus.Emit(ctx, "registry", "meter_registered", map[string]any{
		"meter_id":    m.ID,
		"provider_id": m.ProviderID,
	})
	return nil
}

// AddFeeInput carries the fee registration arguments.
type AddFeeInput struct {
	FeeID       string
	Type        uint8 // wire form
	ProviderID  string
	FeeType     uint8 // wire form
	Amount      int64
	Percent     *int64
	IsPercent   bool
	Description string
}

// AddFee registers a fee for an existing provider. Admin only.
func (s *RegistryService) AddFee(ctx context.Context, admin string, in AddFeeInput) error {
	if err := s.requireAdmin(admin); err != nil {
		return err
	}
	typ, err := utility.TypeFromWire(in.Type)
	if err != nil {
		return err
	}
	feeType, err := tariff.FeeTypeFromWire(in.FeeType)
	if err != nil {
		return err
	}

	if _, err := s.providers.Get(ctx, in.ProviderID); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return ErrProviderNotFound
		}
		return fmt.Errorf("get provider: %w", err)
	}

	f := tariff.Fee{
		ID:          in.FeeID,
		Type:        typ,
		ProviderID:  in.ProviderID,
		FeeType:     feeType,
		Amount:      in.Amount,
		Percent:     in.Percent,
		IsPercent:   in.IsPercent,
		Description: in.Description,
		Active:      true,
		CreatedAt:   s.clock.Now().Unix(),
	}
	if err := s.fees.Create(ctx, f); err != nil {
		if errors.Is(err, ports.ErrExists) {
			return ErrFeeExists
		}
		return fmt.Errorf("create fee: %w", err)
	}

	s.bus.Emit(ctx, "registry", "fee_added", map[string]any{
		"fee_id":      f.ID,
		"provider_id": f.ProviderID,
		"fee_type":    feeType.String(),
	})
	return nil
}

// UpdateProviderStatus toggles a provider's active flag. Admin only.
func (s *RegistryService) UpdateProviderStatus(ctx context.Context, admin, providerID string, active bool) error {
	if err := s.requireAdmin(admin); err != nil {
		return err
	}

	p, err := s.providers.Get(ctx, providerID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return ErrProviderNotFound
		}
		return fmt.Errorf("get provider: %w", err)
	}
	p.Active = active
	if err := s.providers.Update(ctx, p); err != nil {
		return fmt.Errorf("update provider: %w", err)
	}

	s.bus.Emit(ctx, "registry", "provider_status_updated", map[string]any{
		"provider_id": providerID,
		"active":      active,
	})
	return nil
}

// UpgradeTariff snapshots a version audit record, then overwrites the live
// tariff with version = old+1 and a refreshed timestamp. The version
// history is append-only; there is no rollback. Admin only.
func (s *RegistryService) UpgradeTariff(ctx context.Context, admin, tariffID string, next tariff.Tariff, description string) error {
	if err := s.requireAdmin(admin); err != nil {
		return err
	}

	old, err := s.tariffs.Get(ctx, tariffID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return ErrTariffNotFound
		}
		return fmt.Errorf("get tariff: %w", err)
	}

	now := s.clock.Now().Unix()
	if description == "" {
		description = "Configuration upgrade"
	}
	v := tariff.Version{
		TariffID:          tariffID,
		Type:              old.Type,
		Version:           old.Version + 1,
		DeployedAt:        now,
		Active:            true,
		MigrationRequired: true, // every upgrade is treated as migration-bearing
		Description:       description,
	}
	if err := s.tariffs.AppendVersion(ctx, v); err != nil {
		return fmt.Errorf("append version: %w", err)
	}

	next.ID = tariffID
	next.Version = old.Version + 1
	next.UpdatedAt = now
	if err := s.tariffs.Update(ctx, next); err != nil {
		return fmt.Errorf("update tariff: %w", err)
	}

	s.logger.Info().
		Str("tariff_id", tariffID).
		Uint32("version", next.Version).
		Msg("tariff upgraded")
	s.bus.Emit(ctx, "registry", "tariff_upgraded", map[string]any{
		"tariff_id": tariffID,
		"version":   next.Version,
	})
	return nil
}

// RecordMeterReading advances a meter's last reading. The caller must be
// the owning provider's address; smart-meter ingestion paths authenticate
// upstream and pass the provider address through.
func (s *RegistryService) RecordMeterReading(ctx context.Context, callerAddr, meterID string, reading int64) error {
	m, err := s.meters.Get(ctx, meterID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return ErrMeterNotFound
		}
		return fmt.Errorf("get meter: %w", err)
	}
	p, err := s.providers.Get(ctx, m.ProviderID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return ErrProviderNotFound
		}
		return fmt.Errorf("get provider: %w", err)
	}
	if p.Address != callerAddr {
		return ErrUnauthorized
	}

	m = meter.WithReading(m, reading, s.clock.Now().Unix())
	if err := s.meters.Update(ctx, m); err != nil {
		return fmt.Errorf("update meter: %w", err)
	}

	s.bus.Emit(ctx, "registry", "meter_reading_recorded", map[string]any{
		"meter_id": meterID,
		"reading":  reading,
	})
	return nil
}

// Provider is a point lookup. Absence is a found=false, not an error.
func (s *RegistryService) Provider(ctx context.Context, id string) (provider.Provider, bool, error) {
	p, err := s.providers.Get(ctx, id)
	if errors.Is(err, ports.ErrNotFound) {
		return provider.Provider{}, false, nil
	}
	if err != nil {
		return provider.Provider{}, false, err
	}
	return p, true, nil
}

// Tariff is a point lookup.
func (s *RegistryService) Tariff(ctx context.Context, id string) (tariff.Tariff, bool, error) {
	t, err := s.tariffs.Get(ctx, id)
	if errors.Is(err, ports.ErrNotFound) {
		return tariff.Tariff{}, false, nil
	}
	if err != nil {
		return tariff.Tariff{}, false, err
	}
	return t, true, nil
}

// Meter is a point lookup.
func (s *RegistryService) Meter(ctx context.Context, id string) (meter.Meter, bool, error) {
	m, err := s.meters.Get(ctx, id)
	if errors.Is(err, ports.ErrNotFound) {
		return meter.Meter{}, false, nil
	}
	if err != nil {
		return meter.Meter{}, false, err
	}
	return m, true, nil
}

// Fee is a point lookup.
func (s *RegistryService) Fee(ctx context.Context, id string) (tariff.Fee, bool, error) {
	f, err := s.fees.Get(ctx, id)
	if errors.Is(err, ports.ErrNotFound) {
		return tariff.Fee{}, false, nil
	}
	if err != nil {
		return tariff.Fee{}, false, err
	}
	return f, true, nil
}

// TariffVersions returns the append-only upgrade history, oldest first.
func (s *RegistryService) TariffVersions(ctx context.Context, tariffID string) ([]tariff.Version, error) {
	return s.tariffs.Versions(ctx, tariffID)
}

// ListProviders returns all active providers of a utility type in a
// region. Result order is unspecified; there is no pagination.
func (s *RegistryService) ListProviders(ctx context.Context, typeWire uint8, region string) ([]provider.Provider, error) {
	typ, err := utility.TypeFromWire(typeWire)
	if err != nil {
		return nil, err
	}
	all, err := s.providers.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	return provider.Filter(all, typ, region), nil
}
