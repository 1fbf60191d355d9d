// Package memory provides in-memory store implementations for testing and
// single-process deployments.
package memory

import (
	"context"
	"sync"

	"github.com/artpar/utilibill/domain/meter"
	"github.com/artpar/utilibill/domain/provider"
	"github.com/artpar/utilibill/domain/tariff"
	"github.com/artpar/utilibill/domain/utility"
	"github.com/artpar/utilibill/ports"
)

// ProviderStore is an in-memory implementation of ports.ProviderStore.
type ProviderStore struct {
	mu        sync.RWMutex
	providers map[string]provider.Provider
}

// NewProviderStore creates a new in-memory provider store.
func NewProviderStore() *ProviderStore {
	return &ProviderStore{providers: make(map[string]provider.Provider)}
}

// Get retrieves a provider by ID.
func (s *ProviderStore) Get(ctx context.Context, id string) (provider.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.providers[id]
	if !ok {
		return provider.Provider{}, ports.ErrNotFound
	}
	return p, nil
}

// Create stores a new provider.
func (s *ProviderStore) Create(ctx context.Context, p provider.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.providers[p.ID]; ok {
		return ports.ErrExists
	}
	s.providers[p.ID] = p
	return nil
}

// Update overwrites an existing provider.
func (s *ProviderStore) Update(ctx context.Context, p provider.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.providers[p.ID]; !ok {
		return ports.ErrNotFound
	}
	s.providers[p.ID] = p
	return nil
}

// List returns all providers in unspecified order.
func (s *ProviderStore) List(ctx context.Context) ([]provider.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]provider.Provider, 0, len(s.providers))
	for _, p := range s.providers {
		result = append(result, p)
	}
	return result, nil
}

// TariffStore is an in-memory implementation of ports.TariffStore.
type TariffStore struct {
	mu       sync.RWMutex
	tariffs  map[string]tariff.Tariff
	versions map[string][]tariff.Version // append order preserved
}

// NewTariffStore creates a new in-memory tariff store.
func NewTariffStore() *TariffStore {
	return &TariffStore{
		tariffs:  make(map[string]tariff.Tariff),
		versions: make(map[string][]tariff.Version),
	}
}

// Get retrieves a tariff by ID.
func (s *TariffStore) Get(ctx context.Context, id string) (tariff.Tariff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tariffs[id]
	if !ok {
		return tariff.Tariff{}, ports.ErrNotFound
	}
	return t, nil
}

// Create stores a new tariff.
func (s *TariffStore) Create(ctx context.Context, t tariff.Tariff) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tariffs[t.ID]; ok {
		return ports.ErrExists
	}
	s.tariffs[t.ID] = t
	return nil
}

// Update overwrites an existing tariff.
func (s *TariffStore) Update(ctx context.Context, t tariff.Tariff) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tariffs[t.ID]; !ok {
		return ports.ErrNotFound
	}
	s.tariffs[t.ID] = t
	return nil
}

// AppendVersion appends a version audit record.
func (s *TariffStore) AppendVersion(ctx context.Context, v tariff.Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.versions[v.TariffID] = append(s.versions[v.TariffID], v)
	return nil
}

// Versions returns the audit records for a tariff, oldest first.
func (s *TariffStore) Versions(ctx context.Context, tariffID string) ([]tariff.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vs := s.versions[tariffID]
	result := make([]tariff.Version, len(vs))
	copy(result, vs)
	return result, nil
}

// MeterStore is an in-memory implementation of ports.MeterStore.
type MeterStore struct {
	mu     sync.RWMutex
	meters map[string]meter.Meter
}

// NewMeterStore creates a new in-memory meter store.
func NewMeterStore() *MeterStore {
	return &MeterStore{meters: make(map[string]meter.Meter)}
}

// Get retrieves a meter by ID.
func (s *MeterStore) Get(ctx context.Context, id string) (meter.Meter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.meters[id]
	if !ok {
		return meter.Meter{}, ports.ErrNotFound
	}
	return m, nil
}

// Create stores a new meter.
func (s *MeterStore) Create(ctx context.Context, m meter.Meter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.meters[m.ID]; ok {
		return ports.ErrExists
	}
	s.meters[m.ID] = m
	return nil
}

// Update overwrites an existing meter.
func (s *MeterStore) Update(ctx context.Context, m meter.Meter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.meters[m.ID]; !ok {
		return ports.ErrNotFound
	}
	s.meters[m.ID] = m
	return nil
}

// FeeStore is an in-memory implementation of ports.FeeStore.
type FeeStore struct {
	mu   sync.RWMutex
	fees map[string]tariff.Fee
}

// NewFeeStore creates a new in-memory fee store.
func NewFeeStore() *FeeStore {
	return &FeeStore{fees: make(map[string]tariff.Fee)}
}

// Get retrieves a fee by ID.
func (s *FeeStore) Get(ctx context.Context, id string) (tariff.Fee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.fees[id]
	if !ok {
		return tariff.Fee{}, ports.ErrNotFound
	}
	return f, nil
}

// Create stores a new fee.
func (s *FeeStore) Create(ctx context.Context, f tariff.Fee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.fees[f.ID]; ok {
		return ports.ErrExists
	}
	s.fees[f.ID] = f
	return nil
}

// ListFor returns the fees registered for a provider and utility type.
func (s *FeeStore) ListFor(ctx context.Context, providerID string, t utility.Type) ([]tariff.Fee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []tariff.Fee
	for _, f := range s.fees {
		if f.ProviderID == providerID && f.Type == t {
			result = append(result, f)
		}
	}
	return result, nil
}

// Ensure interface compliance.
var (
	_ ports.ProviderStore = (*ProviderStore)(nil)
	_ ports.TariffStore   = (*TariffStore)(nil)
	_ ports.MeterStore    = (*MeterStore)(nil)
	_ ports.FeeStore      = (*FeeStore)(nil)
)
