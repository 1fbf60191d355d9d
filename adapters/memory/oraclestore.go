package memory

import (
	"context"
	"sync"

	"github.com/artpar/utilibill/domain/oracle"
	"github.com/artpar/utilibill/ports"
)

// FeedStore is an in-memory implementation of ports.FeedStore.
type FeedStore struct {
	mu    sync.RWMutex
	feeds map[string]oracle.PriceFeed
}

// NewFeedStore creates a new in-memory feed store.
func NewFeedStore() *FeedStore {
	return &FeedStore{feeds: make(map[string]oracle.PriceFeed)}
}

// Get retrieves a feed by ID.
func (s *FeedStore) Get(ctx context.Context, id string) (oracle.PriceFeed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.feeds[id]
	if !ok {
		return oracle.PriceFeed{}, ports.ErrNotFound
	}
	return f, nil
}

// Create stores a new feed.
func (s *FeedStore) Create(ctx context.Context, f oracle.PriceFeed) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.feeds[f.ID]; ok {
		return ports.ErrExists
	}
	s.feeds[f.ID] = f
	return nil
}

// Update overwrites an existing feed.
func (s *FeedStore) Update(ctx context.Context, f oracle.PriceFeed) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.feeds[f.ID]; !ok {
		return ports.ErrNotFound
	}
	s.feeds[f.ID] = f
	return nil
}

// List returns all feeds in unspecified order.
func (s *FeedStore) List(ctx context.Context) ([]oracle.PriceFeed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]oracle.PriceFeed, 0, len(s.feeds))
	for _, f := range s.feeds {
		result = append(result, f)
	}
	return result, nil
}

// RateStore is an in-memory implementation of ports.RateStore.
type RateStore struct {
	mu    sync.RWMutex
	rates map[string]oracle.CommodityRate
}

// NewRateStore creates a new in-memory rate store.
func NewRateStore() *RateStore {
	return &RateStore{rates: make(map[string]oracle.CommodityRate)}
}

// Get retrieves a rate by ID.
func (s *RateStore) Get(ctx context.Context, id string) (oracle.CommodityRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rates[id]
	if !ok {
		return oracle.CommodityRate{}, ports.ErrNotFound
	}
	return r, nil
}

// Create stores a new rate.
func (s *RateStore) Create(ctx context.Context, r oracle.CommodityRate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rates[r.ID]; ok {
		return ports.ErrExists
	}
	s.rates[r.ID] = r
	return nil
}

// Update overwrites an existing rate.
func (s *RateStore) Update(ctx context.Context, r oracle.CommodityRate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rates[r.ID]; !ok {
		return ports.ErrNotFound
	}
	s.rates[r.ID] = r
	return nil
}

// Ensure interface compliance.
var (
	_ ports.FeedStore = (*FeedStore)(nil)
	_ ports.RateStore = (*RateStore)(nil)
)
