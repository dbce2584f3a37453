// Package cache holds the Redis-backed read caches refreshed by the
// realtime loop.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// BidSummary is the denormalized roll-up of a quote's current bids, rebuilt
// whenever the bid feed reports changes for that quote.
type BidSummary struct {
	QuoteID      string    `json:"quote_id"`
	BidCount     int       `json:"bid_count"`
	LowestAmount float64   `json:"lowest_amount"`
	Currency     string    `json:"currency"`
	LatestStatus string    `json:"latest_status"`
	RefreshedAt  time.Time `json:"refreshed_at"`
}

// RedisStore caches bid summaries keyed by quote id.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "bidsummary:",
		ttl:    24 * time.Hour,
	}
}

func (s *RedisStore) key(quoteID string) string {
	return s.prefix + quoteID
}

func (s *RedisStore) SaveSummary(ctx context.Context, summary BidSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal bid summary: %w", err)
	}
	if err := s.client.Set(ctx, s.key(summary.QuoteID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save bid summary: %w", err)
	}
	return nil
}

// GetSummary returns the cached summary, or (nil, nil) on a cache miss.
func (s *RedisStore) GetSummary(ctx context.Context, quoteID string) (*BidSummary, error) {
	data, err := s.client.Get(ctx, s.key(quoteID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get bid summary: %w", err)
	}

	var summary BidSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("unmarshal bid summary: %w", err)
	}
	return &summary, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Client exposes the underlying connection for components sharing it.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}
