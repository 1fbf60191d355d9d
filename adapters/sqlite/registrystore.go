package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/artpar/utilibill/domain/meter"
	"github.com/artpar/utilibill/domain/provider"
	"github.com/artpar/utilibill/domain/tariff"
	"github.com/artpar/utilibill/domain/utility"
	"github.com/artpar/utilibill/ports"
)

// translateConstraint maps a unique/primary-key violation to the store
// sentinel.
func translateConstraint(err error) error {
	var serr sqlite3.Error
	if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
		return ports.ErrExists
	}
	return err
}

// ProviderStore implements ports.ProviderStore with SQLite.
type ProviderStore struct {
	db *DB
}

// NewProviderStore creates a new SQLite provider store.
func NewProviderStore(db *DB) *ProviderStore {
	return &ProviderStore{db: db}
}

const providerColumns = `id, name, address, utility_type, region, active,
	registered_at, license, contact, rating, total_transactions`

func scanProvider(row interface{ Scan(...any) error }) (provider.Provider, error) {
	var p provider.Provider
	var typ uint8
	err := row.Scan(
		&p.ID, &p.Name, &p.Address, &typ, &p.Region, &p.Active,
		&p.RegisteredAt, &p.License, &p.Contact, &p.Rating, &p.TotalTransactions,
	)
	if err != nil {
		return provider.Provider{}, err
	}
	p.Type = utility.Type(typ)
	return p, nil
}

// Get retrieves a provider by ID.
func (s *ProviderStore) Get(ctx context.Context, id string) (provider.Provider, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+providerColumns+` FROM providers WHERE id = ?`, id)
	p, err := scanProvider(row)
	if errors.Is(err, sql.ErrNoRows) {
		return provider.Provider{}, ports.ErrNotFound
	}
	return p, err
}

// Create stores a new provider.
func (s *ProviderStore) Create(ctx context.Context, p provider.Provider) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO providers (`+providerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Address, p.Type.Wire(), p.Region, p.Active,
		p.RegisteredAt, p.License, p.Contact, p.Rating, p.TotalTransactions,
	)
	return translateConstraint(err)
}

// Update overwrites an existing provider.
func (s *ProviderStore) Update(ctx context.Context, p provider.Provider) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE providers SET name = ?, address = ?, utility_type = ?, region = ?,
			active = ?, registered_at = ?, license = ?, contact = ?,
			rating = ?, total_transactions = ?
		WHERE id = ?`,
		p.Name, p.Address, p.Type.Wire(), p.Region,
		p.Active, p.RegisteredAt, p.License, p.Contact,
		p.Rating, p.TotalTransactions, p.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// List returns all providers.
func (s *ProviderStore) List(ctx context.Context) ([]provider.Provider, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+providerColumns+` FROM providers`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []provider.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// TariffStore implements ports.TariffStore with SQLite. Nested rate
// structures are stored JSON-encoded; the schema only indexes what billing
// resolves by.
type TariffStore struct {
	db *DB
}

// NewTariffStore creates a new SQLite tariff store.
func NewTariffStore(db *DB) *TariffStore {
	return &TariffStore{db: db}
}

// encodeTariff JSON-encodes the nested rate structures in column order:
// tiers, time_of_use, seasonal, taxes, discounts, late_fee, payment_methods.
func encodeTariff(t tariff.Tariff) ([7][]byte, error) {
	var blobs [7][]byte
	for i, v := range []any{t.Tiers, t.TimeOfUse, t.Seasonal, t.Taxes, t.Discounts, t.LateFee, t.PaymentMethods} {
		b, err := json.Marshal(v)
		if err != nil {
			return blobs, fmt.Errorf("encode tariff: %w", err)
		}
		blobs[i] = b
	}
	return blobs, nil
}

const tariffColumns = `id, utility_type, provider_id, region, base_rate, currency,
	decimals, tiers, time_of_use, seasonal, taxes, discounts, late_fee,
	payment_methods, cycle_days, grace_days, minimum_payment, maximum_payment,
	active, version, updated_at`

func scanTariff(row interface{ Scan(...any) error }) (tariff.Tariff, error) {
	var t tariff.Tariff
	var typ uint8
	var tiers, tou, seasonal, taxes, discounts, lateFee, methods []byte
	err := row.Scan(
		&t.ID, &typ, &t.ProviderID, &t.Region, &t.BaseRate, &t.Currency,
		&t.Decimals, &tiers, &tou, &seasonal, &taxes, &discounts, &lateFee,
		&methods, &t.CycleDays, &t.GraceDays, &t.MinimumPayment, &t.MaximumPayment,
		&t.Active, &t.Version, &t.UpdatedAt,
	)
	if err != nil {
		return tariff.Tariff{}, err
	}
	t.Type = utility.Type(typ)
	for _, pair := range []struct {
		blob []byte
		dst  any
	}{
		{tiers, &t.Tiers},
		{tou, &t.TimeOfUse},
		{seasonal, &t.Seasonal},
		{taxes, &t.Taxes},
		{discounts, &t.Discounts},
		{lateFee, &t.LateFee},
		{methods, &t.PaymentMethods},
	} {
		if err := json.Unmarshal(pair.blob, pair.dst); err != nil {
			return tariff.Tariff{}, fmt.Errorf("decode tariff: %w", err)
		}
	}
	return t, nil
}

// Get retrieves a tariff by ID.
func (s *TariffStore) Get(ctx context.Context, id string) (tariff.Tariff, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tariffColumns+` FROM tariffs WHERE id = ?`, id)
	t, err := scanTariff(row)
	if errors.Is(err, sql.ErrNoRows) {
		return tariff.Tariff{}, ports.ErrNotFound
	}
	return t, err
}

// Create stores a new tariff.
func (s *TariffStore) Create(ctx context.Context, t tariff.Tariff) error {
	blobs, err := encodeTariff(t)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tariffs (`+tariffColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Type.Wire(), t.ProviderID, t.Region, t.BaseRate, t.Currency,
		t.Decimals, blobs[0], blobs[1], blobs[2], blobs[3], blobs[4], blobs[5],
		blobs[6], t.CycleDays, t.GraceDays, t.MinimumPayment, t.MaximumPayment,
		t.Active, t.Version, t.UpdatedAt,
	)
	return translateConstraint(err)
}

// Update overwrites an existing tariff.
func (s *TariffStore) Update(ctx context.Context, t tariff.Tariff) error {
	blobs, err := encodeTariff(t)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE tariffs SET utility_type = ?, provider_id = ?, region = ?,
			base_rate = ?, currency = ?, decimals = ?, tiers = ?, time_of_use = ?,
			seasonal = ?, taxes = ?, discounts = ?, late_fee = ?, payment_methods = ?,
			cycle_days = ?, grace_days = ?, minimum_payment = ?, maximum_payment = ?,
			active = ?, version = ?, updated_at = ?
		WHERE id = ?`,
		t.Type.Wire(), t.ProviderID, t.Region,
		t.BaseRate, t.Currency, t.Decimals, blobs[0], blobs[1],
		blobs[2], blobs[3], blobs[4], blobs[5], blobs[6],
		t.CycleDays, t.GraceDays, t.MinimumPayment, t.MaximumPayment,
		t.Active, t.Version, t.UpdatedAt, t.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// AppendVersion appends a version audit record.
func (s *TariffStore) AppendVersion(ctx context.Context, v tariff.Version) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tariff_versions (tariff_id, utility_type, version,
			deployed_at, active, migration_required, description)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.TariffID, v.Type.Wire(), v.Version,
		v.DeployedAt, v.Active, v.MigrationRequired, v.Description,
	)
	return translateConstraint(err)
}

// Versions returns the audit records for a tariff, oldest first.
func (s *TariffStore) Versions(ctx context.Context, tariffID string) ([]tariff.Version, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tariff_id, utility_type, version, deployed_at, active,
			migration_required, description
		FROM tariff_versions WHERE tariff_id = ? ORDER BY version ASC`, tariffID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []tariff.Version
	for rows.Next() {
		var v tariff.Version
		var typ uint8
		if err := rows.Scan(&v.TariffID, &typ, &v.Version, &v.DeployedAt,
			&v.Active, &v.MigrationRequired, &v.Description); err != nil {
			return nil, err
		}
		v.Type = utility.Type(typ)
		result = append(result, v)
	}
	return result, rows.Err()
}

// MeterStore implements ports.MeterStore with SQLite.
type MeterStore struct {
	db *DB
}

// NewMeterStore creates a new SQLite meter store.
func NewMeterStore(db *DB) *MeterStore {
	return &MeterStore{db: db}
}

const meterColumns = `id, utility_type, provider_id, customer, installed_at,
	last_reading, last_reading_at, active, smart, location, model, firmware`

// Get retrieves a meter by ID.
func (s *MeterStore) Get(ctx context.Context, id string) (meter.Meter, error) {
	var m meter.Meter
	var typ uint8
	err := s.db.QueryRowContext(ctx,
		`SELECT `+meterColumns+` FROM meters WHERE id = ?`, id).Scan(
		&m.ID, &typ, &m.ProviderID, &m.Customer, &m.InstalledAt,
		&m.LastReading, &m.LastReadingAt, &m.Active, &m.Smart,
		&m.Location, &m.Model, &m.Firmware,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return meter.Meter{}, ports.ErrNotFound
	}
	if err != nil {
		return meter.Meter{}, err
	}
	m.Type = utility.Type(typ)
	return m, nil
}

// Create stores a new meter.
func (s *MeterStore) Create(ctx context.Context, m meter.Meter) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meters (`+meterColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Type.Wire(), m.ProviderID, m.Customer, m.InstalledAt,
		m.LastReading, m.LastReadingAt, m.Active, m.Smart,
		m.Location, m.Model, m.Firmware,
	)
	return translateConstraint(err)
}

// Update overwrites an existing meter.
func (s *MeterStore) Update(ctx context.Context, m meter.Meter) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE meters SET utility_type = ?, provider_id = ?, customer = ?,
			installed_at = ?, last_reading = ?, last_reading_at = ?,
			active = ?, smart = ?, location = ?, model = ?, firmware = ?
		WHERE id = ?`,
		m.Type.Wire(), m.ProviderID, m.Customer,
		m.InstalledAt, m.LastReading, m.LastReadingAt,
		m.Active, m.Smart, m.Location, m.Model, m.Firmware, m.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// FeeStore implements ports.FeeStore with SQLite.
type FeeStore struct {
	db *DB
}

// NewFeeStore creates a new SQLite fee store.
func NewFeeStore(db *DB) *FeeStore {
	return &FeeStore{db: db}
}

const feeColumns = `id, utility_type, provider_id, fee_type, amount, percent,
	is_percent, description, active, created_at`

func scanFee(row interface{ Scan(...any) error }) (tariff.Fee, error) {
	var f tariff.Fee
	var typ, feeType uint8
	var percent sql.NullInt64
	err := row.Scan(
		&f.ID, &typ, &f.ProviderID, &feeType, &f.Amount, &percent,
		&f.IsPercent, &f.Description, &f.Active, &f.CreatedAt,
	)
	if err != nil {
		return tariff.Fee{}, err
	}
	f.Type = utility.Type(typ)
	f.FeeType = tariff.FeeType(feeType)
	if percent.Valid {
		f.Percent = &percent.Int64
	}
	return f, nil
}

// Get retrieves a fee by ID.
func (s *FeeStore) Get(ctx context.Context, id string) (tariff.Fee, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+feeColumns+` FROM fees WHERE id = ?`, id)
	f, err := scanFee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return tariff.Fee{}, ports.ErrNotFound
	}
	return f, err
}

// Create stores a new fee.
func (s *FeeStore) Create(ctx context.Context, f tariff.Fee) error {
	var percent sql.NullInt64
	if f.Percent != nil {
		percent = sql.NullInt64{Int64: *f.Percent, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fees (`+feeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.Type.Wire(), f.ProviderID, f.FeeType.Wire(), f.Amount, percent,
		f.IsPercent, f.Description, f.Active, f.CreatedAt,
	)
	return translateConstraint(err)
}

// ListFor returns the fees registered for a provider and utility type, in
// creation order.
func (s *FeeStore) ListFor(ctx context.Context, providerID string, t utility.Type) ([]tariff.Fee, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+feeColumns+` FROM fees
		WHERE provider_id = ? AND utility_type = ? ORDER BY created_at ASC`,
		providerID, t.Wire())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []tariff.Fee
	for rows.Next() {
		f, err := scanFee(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

// Ensure interface compliance.
var (
	_ ports.ProviderStore = (*ProviderStore)(nil)
	_ ports.TariffStore   = (*TariffStore)(nil)
	_ ports.MeterStore    = (*MeterStore)(nil)
	_ ports.FeeStore      = (*FeeStore)(nil)
)
