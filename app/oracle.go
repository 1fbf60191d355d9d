package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/artpar/utilibill/domain/billing"
	"github.com/artpar/utilibill/domain/oracle"
	"github.com/artpar/utilibill/domain/utility"
	"github.com/artpar/utilibill/events"
	"github.com/artpar/utilibill/ports"
)

// OracleService manages the external price store and enforces the
// reliability and staleness gate over everything read from it. The gate
// configuration is hot-swappable; the reliability and cost trackers are
// process-wide and reset only at re-initialization.
type OracleService struct {
	feeds  ports.FeedStore
	rates  ports.RateStore
	clock  ports.Clock
	bus    *events.Bus
	logger zerolog.Logger

	cfg atomic.Pointer[oracle.Config]

	mu            sync.Mutex
	reliability   oracle.Reliability
	cost          oracle.Cost
	feedsSyncedAt int64
	ratesSyncedAt int64

	adminAddr string
}

// OracleDeps contains dependencies for OracleService.
type OracleDeps struct {
	Feeds  ports.FeedStore
	Rates  ports.RateStore
	Clock  ports.Clock
	Bus    *events.Bus
	Logger zerolog.Logger
}

// NewOracleService creates an oracle service with the given gate
// configuration.
func NewOracleService(deps OracleDeps, cfg oracle.Config, adminAddr string) *OracleService {
	s := &OracleService{
		feeds:       deps.Feeds,
		rates:       deps.Rates,
		clock:       deps.Clock,
		bus:         deps.Bus,
		logger:      deps.Logger,
		reliability: oracle.NewReliability(),
		adminAddr:   adminAddr,
	}
	s.cfg.Store(&cfg)
	return s
}

// Config returns the current gate configuration.
func (s *OracleService) Config() oracle.Config {
	return *s.cfg.Load()
}

// SetConfig swaps the gate configuration. Safe to call while billing runs.
func (s *OracleService) SetConfig(cfg oracle.Config) {
	s.cfg.Store(&cfg)
	s.logger.Info().
		Int64("max_age_seconds", cfg.MaxAgeSeconds).
		Int("min_reliability", cfg.MinReliability).
		Msg("oracle gate configuration updated")
}

func (s *OracleService) requireAdmin(caller string) error {
	if caller != s.adminAddr {
		return ErrUnauthorized
	}
	return nil
}

// AddFeed registers a new price feed. The price passes the generic
// external-data bound check before it is stored. Admin only.
func (s *OracleService) AddFeed(ctx context.Context, admin string, f oracle.PriceFeed) error {
	if err := s.requireAdmin(admin); err != nil {
		return err
	}
	if err := oracle.ValidateExternalData(f.Price, 1, int64(1)<<62, f.Decimals); err != nil {
		return err
	}
	if f.ID == "" {
		f.ID = oracle.FeedID(f.Base, f.Quote)
	}
	if f.Reliability == 0 {
		f.Reliability = oracle.InitialScore
	}
	if f.UpdatedAt == 0 {
		f.UpdatedAt = s.clock.Now().Unix()
	}

	if err := s.feeds.Create(ctx, f); err != nil {
		if errors.Is(err, ports.ErrExists) {
			return ErrFeedExists
		}
		return fmt.Errorf("create feed: %w", err)
	}

	s.bus.Emit(ctx, "oracle", "feed_added", map[string]any{
		"feed_id": f.ID,
		"price":   f.Price,
	})
	return nil
}

// UpdateFeed revises an existing feed's price and timestamp. Admin only.
func (s *OracleService) UpdateFeed(ctx context.Context, admin, feedID string, price, timestamp int64) error {
	if err := s.requireAdmin(admin); err != nil {
		return err
	}
	f, err := s.feeds.Get(ctx, feedID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return ErrFeedNotFound
		}
		return fmt.Errorf("get feed: %w", err)
	}
	if err := oracle.ValidateExternalData(price, 1, int64(1)<<62, f.Decimals); err != nil {
		return err
	}

	if timestamp == 0 {
		timestamp = s.clock.Now().Unix()
	}
	f.Price = price
	f.UpdatedAt = timestamp
	if err := s.feeds.Update(ctx, f); err != nil {
		return fmt.Errorf("update feed: %w", err)
	}

	s.bus.Emit(ctx, "oracle", "feed_updated", map[string]any{
		"feed_id": feedID,
		"price":   price,
	})
	return nil
}

// Feed is a point lookup. Absence is found=false, not an error.
func (s *OracleService) Feed(ctx context.Context, feedID string) (oracle.PriceFeed, bool, error) {
	f, err := s.feeds.Get(ctx, feedID)
	if errors.Is(err, ports.ErrNotFound) {
		return oracle.PriceFeed{}, false, nil
	}
	if err != nil {
		return oracle.PriceFeed{}, false, err
	}
	return f, true, nil
}

// UsableFeed resolves the feed for a currency pair and applies the gate.
// An absent feed fails with billing.ErrExchangeRateUnavailable; a present
// feed that fails the gate surfaces the gate's own error so a stale or
// distrusted price can never reach a transfer.
func (s *OracleService) UsableFeed(ctx context.Context, base, quote string, now int64) (oracle.PriceFeed, error) {
	f, err := s.feeds.Get(ctx, oracle.FeedID(base, quote))
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return oracle.PriceFeed{}, billing.ErrExchangeRateUnavailable
		}
		return oracle.PriceFeed{}, fmt.Errorf("get feed: %w", err)
	}
	if err := oracle.UsableFeed(f, now, s.Config()); err != nil {
		return oracle.PriceFeed{}, err
	}
	return f, nil
}

// AddRate registers a new commodity rate. Admin only.
func (s *OracleService) AddRate(ctx context.Context, admin string, r oracle.CommodityRate) error {
	if err := s.requireAdmin(admin); err != nil {
		return err
	}
	if err := oracle.ValidateExternalData(r.RatePerUnit, 1, int64(1)<<62, 0); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = oracle.RateID(r.Type, r.Region)
	}
	if r.Reliability == 0 {
		r.Reliability = oracle.InitialScore
	}
	if r.UpdatedAt == 0 {
		r.UpdatedAt = s.clock.Now().Unix()
	}

	if err := s.rates.Create(ctx, r); err != nil {
		if errors.Is(err, ports.ErrExists) {
			return ErrRateExists
		}
		return fmt.Errorf("create rate: %w", err)
	}

	s.bus.Emit(ctx, "oracle", "rate_added", map[string]any{
		"rate_id": r.ID,
		"rate":    r.RatePerUnit,
	})
	return nil
}

// UpdateRate revises an existing commodity rate and timestamp. Admin only.
func (s *OracleService) UpdateRate(ctx context.Context, admin, rateID string, rate, timestamp int64) error {
	if err := s.requireAdmin(admin); err != nil {
		return err
	}
	r, err := s.rates.Get(ctx, rateID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return ErrRateNotFound
		}
		return fmt.Errorf("get rate: %w", err)
	}
	if err := oracle.ValidateExternalData(rate, 1, int64(1)<<62, 0); err != nil {
		return err
	}

	if timestamp == 0 {
		timestamp = s.clock.Now().Unix()
	}
	r.RatePerUnit = rate
	r.UpdatedAt = timestamp
	if err := s.rates.Update(ctx, r); err != nil {
		return fmt.Errorf("update rate: %w", err)
	}

	s.bus.Emit(ctx, "oracle", "rate_updated", map[string]any{
		"rate_id": rateID,
		"rate":    rate,
	})
	return nil
}

// Rate is a point lookup. Absence is found=false, not an error.
func (s *OracleService) Rate(ctx context.Context, rateID string) (oracle.CommodityRate, bool, error) {
	r, err := s.rates.Get(ctx, rateID)
	if errors.Is(err, ports.ErrNotFound) {
		return oracle.CommodityRate{}, false, nil
	}
	if err != nil {
		return oracle.CommodityRate{}, false, err
	}
	return r, true, nil
}

// UsableRate resolves the commodity rate for a utility type and region
// and applies the gate.
func (s *OracleService) UsableRate(ctx context.Context, t utility.Type, region string, now int64) (oracle.CommodityRate, error) {
	r, err := s.rates.Get(ctx, oracle.RateID(t, region))
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return oracle.CommodityRate{}, ErrRateNotFound
		}
		return oracle.CommodityRate{}, fmt.Errorf("get rate: %w", err)
	}
	if err := oracle.UsableRate(r, now, s.Config()); err != nil {
		return oracle.CommodityRate{}, err
	}
	return r, nil
}

// FallbackPrice returns the price for a pair only when fallback is
// enabled and the stored feed passes the gate. Stale or distrusted data
// is treated as absent.
func (s *OracleService) FallbackPrice(ctx context.Context, base, quote string) (int64, bool) {
	cfg := s.Config()
	if !cfg.FallbackEnabled {
		return 0, false
	}
	f, err := s.feeds.Get(ctx, oracle.FeedID(base, quote))
	if err != nil {
		return 0, false
	}
	if oracle.UsableFeed(f, s.clock.Now().Unix(), cfg) != nil {
		return 0, false
	}
	return f.Price, true
}

// ReliabilityScore returns the process-wide reliability tracker.
func (s *OracleService) ReliabilityScore() oracle.Reliability {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reliability
}

// RecordOutcome feeds one oracle call outcome into the reliability
// tracker.
func (s *OracleService) RecordOutcome(success bool, latencyMs int64) oracle.Reliability {
	cfg := s.Config()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reliability = s.reliability.Observe(success, latencyMs, cfg.SlowCallMs)
	return s.reliability
}

// CostStats returns the process-wide cost accumulator.
func (s *OracleService) CostStats() oracle.Cost {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cost
}

// TrackCost accounts one oracle call of the declared cost, rejecting it
// when the cost exceeds the per-call ceiling.
func (s *OracleService) TrackCost(cost int64) (oracle.Cost, error) {
	cfg := s.Config()
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := s.cost.Track(cost, cfg)
	if err != nil {
		return s.cost, err
	}
	s.cost = next
	return s.cost, nil
}

// ShouldSyncFeeds reports whether the price feeds are due for a refresh:
// the last sync is older than the gate's maximum age.
func (s *OracleService) ShouldSyncFeeds() bool {
	cfg := s.Config()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.Now().Unix()-s.feedsSyncedAt >= cfg.MaxAgeSeconds
}

// MarkFeedsSynced stamps the price feeds as just refreshed.
func (s *OracleService) MarkFeedsSynced() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedsSyncedAt = s.clock.Now().Unix()
}

// ShouldSyncRates reports whether the commodity rates are due for a
// refresh.
func (s *OracleService) ShouldSyncRates() bool {
	cfg := s.Config()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.Now().Unix()-s.ratesSyncedAt >= cfg.MaxAgeSeconds
}

// MarkRatesSynced stamps the commodity rates as just refreshed.
func (s *OracleService) MarkRatesSynced() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ratesSyncedAt = s.clock.Now().Unix()
}
