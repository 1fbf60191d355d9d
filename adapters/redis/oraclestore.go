// Package redis provides Redis-backed implementations of the external
// price store ports. Feeds and rates are small JSON documents under
// namespaced keys; an optional TTL lets Redis expire data the staleness
// gate would reject anyway.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/artpar/utilibill/domain/oracle"
	"github.com/artpar/utilibill/ports"
)

const (
	feedKeyPrefix = "utilibill:feed:"
	rateKeyPrefix = "utilibill:rate:"
	feedIndexKey  = "utilibill:feeds"
)

// Options configures the Redis stores.
type Options struct {
	Addr     string
	Password string
	DB       int

	// TTL expires entries server-side. Zero keeps them forever; the
	// freshness gate still applies either way.
	TTL time.Duration
}

// Client wraps a Redis connection shared by the feed and rate stores.
type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{rdb: rdb, ttl: opts.TTL}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// FeedStore implements ports.FeedStore on Redis.
type FeedStore struct {
	c *Client
}

// NewFeedStore creates a Redis feed store.
func NewFeedStore(c *Client) *FeedStore {
	return &FeedStore{c: c}
}

// Get retrieves a feed by ID.
func (s *FeedStore) Get(ctx context.Context, id string) (oracle.PriceFeed, error) {
	raw, err := s.c.rdb.Get(ctx, feedKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return oracle.PriceFeed{}, ports.ErrNotFound
	}
	if err != nil {
		return oracle.PriceFeed{}, fmt.Errorf("redis get: %w", err)
	}
	var f oracle.PriceFeed
	if err := json.Unmarshal(raw, &f); err != nil {
		return oracle.PriceFeed{}, fmt.Errorf("decode feed: %w", err)
	}
	return f, nil
}

// Create stores a new feed. SetNX gives the create-once semantics.
func (s *FeedStore) Create(ctx context.Context, f oracle.PriceFeed) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode feed: %w", err)
	}
	ok, err := s.c.rdb.SetNX(ctx, feedKeyPrefix+f.ID, raw, s.c.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return ports.ErrExists
	}
	if err := s.c.rdb.SAdd(ctx, feedIndexKey, f.ID).Err(); err != nil {
		return fmt.Errorf("redis sadd: %w", err)
	}
	return nil
}

// Update overwrites an existing feed.
func (s *FeedStore) Update(ctx context.Context, f oracle.PriceFeed) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode feed: %w", err)
	}
	ok, err := s.c.rdb.SetXX(ctx, feedKeyPrefix+f.ID, raw, s.c.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setxx: %w", err)
	}
	if !ok {
		return ports.ErrNotFound
	}
	return nil
}

// List returns all feeds still present. Index members whose value has
// expired are skipped.
func (s *FeedStore) List(ctx context.Context) ([]oracle.PriceFeed, error) {
	ids, err := s.c.rdb.SMembers(ctx, feedIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	var result []oracle.PriceFeed
	for _, id := range ids {
		f, err := s.Get(ctx, id)
		if errors.Is(err, ports.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, nil
}

// RateStore implements ports.RateStore on Redis.
type RateStore struct {
	c *Client
}

// NewRateStore creates a Redis rate store.
func NewRateStore(c *Client) *RateStore {
	return &RateStore{c: c}
}

// Get retrieves a rate by ID.
func (s *RateStore) Get(ctx context.Context, id string) (oracle.CommodityRate, error) {
	raw, err := s.c.rdb.Get(ctx, rateKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return oracle.CommodityRate{}, ports.ErrNotFound
	}
	if err != nil {
		return oracle.CommodityRate{}, fmt.Errorf("redis get: %w", err)
	}
	var r oracle.CommodityRate
	if err := json.Unmarshal(raw, &r); err != nil {
		return oracle.CommodityRate{}, fmt.Errorf("decode rate: %w", err)
	}
	return r, nil
}

// Create stores a new rate.
func (s *RateStore) Create(ctx context.Context, r oracle.CommodityRate) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode rate: %w", err)
	}
	ok, err := s.c.rdb.SetNX(ctx, rateKeyPrefix+r.ID, raw, s.c.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return ports.ErrExists
	}
	return nil
}

// Update overwrites an existing rate.
func (s *RateStore) Update(ctx context.Context, r oracle.CommodityRate) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode rate: %w", err)
	}
	ok, err := s.c.rdb.SetXX(ctx, rateKeyPrefix+r.ID, raw, s.c.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setxx: %w", err)
	}
	if !ok {
		return ports.ErrNotFound
	}
	return nil
}

// Ensure interface compliance.
var (
	_ ports.FeedStore = (*FeedStore)(nil)
	_ ports.RateStore = (*RateStore)(nil)
)
