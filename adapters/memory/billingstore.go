package memory

import (
	"context"
	"strconv"
	"sync"

	"github.com/artpar/utilibill/domain/billing"
	"github.com/artpar/utilibill/ports"
)

// BillingStore is an in-memory implementation of ports.BillingStore.
type BillingStore struct {
	mu      sync.RWMutex
	records map[string]billing.Record // by meterID + "_" + timestamp
}

// NewBillingStore creates a new in-memory billing store.
func NewBillingStore() *BillingStore {
	return &BillingStore{records: make(map[string]billing.Record)}
}

func recordKey(meterID string, timestamp int64) string {
	return meterID + "_" + strconv.FormatInt(timestamp, 10)
}

// Create stores a billing record keyed by (meter, timestamp).
func (s *BillingStore) Create(ctx context.Context, rec billing.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := recordKey(rec.MeterID, rec.Timestamp)
	if _, ok := s.records[k]; ok {
		return ports.ErrExists
	}
	s.records[k] = rec
	return nil
}

// Get retrieves a record by its key.
func (s *BillingStore) Get(ctx context.Context, meterID string, timestamp int64) (billing.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[recordKey(meterID, timestamp)]
	if !ok {
		return billing.Record{}, ports.ErrNotFound
	}
	return rec, nil
}

// TotalPaid returns the sum of final amounts recorded for a meter.
func (s *BillingStore) TotalPaid(ctx context.Context, meterID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, rec := range s.records {
		if rec.MeterID == meterID {
			total += rec.FinalAmount
		}
	}
	return total, nil
}

// Ensure interface compliance.
var _ ports.BillingStore = (*BillingStore)(nil)
