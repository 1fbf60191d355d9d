package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/artpar/utilibill/domain/billing"
	"github.com/artpar/utilibill/domain/utility"
	"github.com/artpar/utilibill/ports"
)

// BillingStore implements ports.BillingStore with SQLite. Records are
// immutable once written; the (meter, timestamp) primary key doubles as
// the duplicate-payment guard.
type BillingStore struct {
	db *DB
}

// NewBillingStore creates a new SQLite billing store.
func NewBillingStore(db *DB) *BillingStore {
	return &BillingStore{db: db}
}

const billingColumns = `meter_id, timestamp, consumption, base_amount,
	tax_amount, fee_amount, final_amount, utility_type, tariff_version`

// Create stores a billing record.
func (s *BillingStore) Create(ctx context.Context, rec billing.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO billing_records (`+billingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.MeterID, rec.Timestamp, rec.Consumption, rec.BaseAmount,
		rec.TaxAmount, rec.FeeAmount, rec.FinalAmount, rec.Type.Wire(), rec.TariffVersion,
	)
	return translateConstraint(err)
}

// Get retrieves a record by its (meter, timestamp) key.
func (s *BillingStore) Get(ctx context.Context, meterID string, timestamp int64) (billing.Record, error) {
	var rec billing.Record
	var typ uint8
	err := s.db.QueryRowContext(ctx,
		`SELECT `+billingColumns+` FROM billing_records
		WHERE meter_id = ? AND timestamp = ?`, meterID, timestamp).Scan(
		&rec.MeterID, &rec.Timestamp, &rec.Consumption, &rec.BaseAmount,
		&rec.TaxAmount, &rec.FeeAmount, &rec.FinalAmount, &typ, &rec.TariffVersion,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.Record{}, ports.ErrNotFound
	}
	if err != nil {
		return billing.Record{}, err
	}
	rec.Type = utility.Type(typ)
	return rec, nil
}

// TotalPaid returns the sum of final amounts recorded for a meter.
func (s *BillingStore) TotalPaid(ctx context.Context, meterID string) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(final_amount), 0) FROM billing_records WHERE meter_id = ?`,
		meterID).Scan(&total)
	return total, err
}

// Ensure interface compliance.
var _ ports.BillingStore = (*BillingStore)(nil)
