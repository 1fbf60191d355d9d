// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/utilibill/domain/billing"
	"github.com/artpar/utilibill/domain/meter"
	"github.com/artpar/utilibill/domain/oracle"
	"github.com/artpar/utilibill/domain/provider"
	"github.com/artpar/utilibill/domain/tariff"
	"github.com/artpar/utilibill/domain/utility"
)

// Store sentinels. Adapters translate their backend's absence/conflict
// signals into these; services translate them into entity-specific errors.
var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// Hasher abstracts credential hashing for the admin API token.
type Hasher interface {
	Hash(plaintext string) ([]byte, error)
	Compare(hash []byte, plaintext string) bool
}

// -----------------------------------------------------------------------------
// Rate Registry Ports
// -----------------------------------------------------------------------------

// ProviderStore persists utility providers.
type ProviderStore interface {
	// Get retrieves a provider by ID.
	Get(ctx context.Context, id string) (provider.Provider, error)

	// Create stores a new provider; ErrExists if the ID is taken.
	Create(ctx context.Context, p provider.Provider) error

	// Update overwrites an existing provider; ErrNotFound if absent.
	Update(ctx context.Context, p provider.Provider) error

	// List returns all providers in unspecified order.
	List(ctx context.Context) ([]provider.Provider, error)
}

// TariffStore persists tariffs and their append-only version history.
type TariffStore interface {
	// Get retrieves a tariff by ID.
	Get(ctx context.Context, id string) (tariff.Tariff, error)

	// Create stores a new tariff; ErrExists if the ID is taken.
	Create(ctx context.Context, t tariff.Tariff) error

	// Update overwrites an existing tariff; ErrNotFound if absent.
	Update(ctx context.Context, t tariff.Tariff) error

	// AppendVersion appends a version audit record.
	AppendVersion(ctx context.Context, v tariff.Version) error

	// Versions returns the audit records for a tariff, oldest first.
	Versions(ctx context.Context, tariffID string) ([]tariff.Version, error)
}

// MeterStore persists utility meters.
type MeterStore interface {
	// Get retrieves a meter by ID.
	Get(ctx context.Context, id string) (meter.Meter, error)

	// Create stores a new meter; ErrExists if the ID is taken.
	Create(ctx context.Context, m meter.Meter) error

	// Update overwrites an existing meter; ErrNotFound if absent.
	Update(ctx context.Context, m meter.Meter) error
}

// FeeStore persists registered fees.
type FeeStore interface {
	// Get retrieves a fee by ID.
	Get(ctx context.Context, id string) (tariff.Fee, error)

	// Create stores a new fee; ErrExists if the ID is taken.
	Create(ctx context.Context, f tariff.Fee) error

	// ListFor returns the fees registered for a provider and utility type.
	ListFor(ctx context.Context, providerID string, t utility.Type) ([]tariff.Fee, error)
}

// -----------------------------------------------------------------------------
// External Price Store Ports
// -----------------------------------------------------------------------------

// FeedStore persists exchange-rate price feeds.
type FeedStore interface {
	// Get retrieves a feed by ID.
	Get(ctx context.Context, id string) (oracle.PriceFeed, error)

	// Create stores a new feed; ErrExists if the ID is taken.
	Create(ctx context.Context, f oracle.PriceFeed) error

	// Update overwrites an existing feed; ErrNotFound if absent.
	Update(ctx context.Context, f oracle.PriceFeed) error

	// List returns all feeds in unspecified order.
	List(ctx context.Context) ([]oracle.PriceFeed, error)
}

// RateStore persists utility commodity rates.
type RateStore interface {
	// Get retrieves a rate by ID.
	Get(ctx context.Context, id string) (oracle.CommodityRate, error)

	// Create stores a new rate; ErrExists if the ID is taken.
	Create(ctx context.Context, r oracle.CommodityRate) error

	// Update overwrites an existing rate; ErrNotFound if absent.
	Update(ctx context.Context, r oracle.CommodityRate) error
}

// -----------------------------------------------------------------------------
// Billing Ports
// -----------------------------------------------------------------------------

// BillingStore persists immutable billing records.
type BillingStore interface {
	// Create stores a billing record keyed by (meter, timestamp).
	Create(ctx context.Context, rec billing.Record) error

	// Get retrieves a record by its key.
	Get(ctx context.Context, meterID string, timestamp int64) (billing.Record, error)

	// TotalPaid returns the sum of final amounts recorded for a meter.
	TotalPaid(ctx context.Context, meterID string) (int64, error)
}

// Ledger is the external asset-transfer primitive. A Transfer either moves
// the full amount or fails; partial transfers do not occur.
type Ledger interface {
	Transfer(ctx context.Context, asset, from, to string, amount int64) error
}
