package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/artpar/utilibill/domain/oracle"
	"github.com/artpar/utilibill/domain/utility"
	"github.com/artpar/utilibill/ports"
)

// FeedStore implements ports.FeedStore with SQLite.
type FeedStore struct {
	db *DB
}

// NewFeedStore creates a new SQLite feed store.
func NewFeedStore(db *DB) *FeedStore {
	return &FeedStore{db: db}
}

const feedColumns = `id, source, base, quote, decimals, price, reliability, updated_at`

func scanFeed(row interface{ Scan(...any) error }) (oracle.PriceFeed, error) {
	var f oracle.PriceFeed
	err := row.Scan(
		&f.ID, &f.Source, &f.Base, &f.Quote, &f.Decimals,
		&f.Price, &f.Reliability, &f.UpdatedAt,
	)
	return f, err
}

// Get retrieves a feed by ID.
func (s *FeedStore) Get(ctx context.Context, id string) (oracle.PriceFeed, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+feedColumns+` FROM price_feeds WHERE id = ?`, id)
	f, err := scanFeed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return oracle.PriceFeed{}, ports.ErrNotFound
	}
	return f, err
}

// Create stores a new feed.
func (s *FeedStore) Create(ctx context.Context, f oracle.PriceFeed) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO price_feeds (`+feedColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.Source, f.Base, f.Quote, f.Decimals,
		f.Price, f.Reliability, f.UpdatedAt,
	)
	return translateConstraint(err)
}

// Update overwrites an existing feed.
func (s *FeedStore) Update(ctx context.Context, f oracle.PriceFeed) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE price_feeds SET source = ?, base = ?, quote = ?, decimals = ?,
			price = ?, reliability = ?, updated_at = ?
		WHERE id = ?`,
		f.Source, f.Base, f.Quote, f.Decimals,
		f.Price, f.Reliability, f.UpdatedAt, f.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// List returns all feeds.
func (s *FeedStore) List(ctx context.Context) ([]oracle.PriceFeed, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+feedColumns+` FROM price_feeds`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []oracle.PriceFeed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

// RateStore implements ports.RateStore with SQLite.
type RateStore struct {
	db *DB
}

// NewRateStore creates a new SQLite rate store.
func NewRateStore(db *DB) *RateStore {
	return &RateStore{db: db}
}

const rateColumns = `id, utility_type, region, rate_per_unit, currency, reliability, updated_at`

// Get retrieves a rate by ID.
func (s *RateStore) Get(ctx context.Context, id string) (oracle.CommodityRate, error) {
	var r oracle.CommodityRate
	var typ uint8
	err := s.db.QueryRowContext(ctx,
		`SELECT `+rateColumns+` FROM commodity_rates WHERE id = ?`, id).Scan(
		&r.ID, &typ, &r.Region, &r.RatePerUnit,
		&r.Currency, &r.Reliability, &r.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return oracle.CommodityRate{}, ports.ErrNotFound
	}
	if err != nil {
		return oracle.CommodityRate{}, err
	}
	r.Type = utility.Type(typ)
	return r, nil
}

// Create stores a new rate.
func (s *RateStore) Create(ctx context.Context, r oracle.CommodityRate) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO commodity_rates (`+rateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Type.Wire(), r.Region, r.RatePerUnit,
		r.Currency, r.Reliability, r.UpdatedAt,
	)
	return translateConstraint(err)
}

// Update overwrites an existing rate.
func (s *RateStore) Update(ctx context.Context, r oracle.CommodityRate) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE commodity_rates SET utility_type = ?, region = ?, rate_per_unit = ?,
			currency = ?, reliability = ?, updated_at = ?
		WHERE id = ?`,
		r.Type.Wire(), r.Region, r.RatePerUnit,
		r.Currency, r.Reliability, r.UpdatedAt, r.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Ensure interface compliance.
var (
	_ ports.FeedStore = (*FeedStore)(nil)
	_ ports.RateStore = (*RateStore)(nil)
)
