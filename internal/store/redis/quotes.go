// Package redis holds the Redis-backed quote cache and quote bus.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"tradedesk/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	quoteKeyPrefix     = "quote:"
	quoteChannelPrefix = "pub:quote:"
	defaultQuoteTTL    = 15 * time.Second
)

// Config configures the Redis client.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
	QuoteTTL time.Duration
}

// Client implements model.QuoteCache and model.QuoteBus on Redis.
// Every round-trip goes through a circuit breaker so a dead Redis degrades
// to cache misses instead of stalling requests.
type Client struct {
	rdb *goredis.Client
	cb  *CircuitBreaker
	ttl time.Duration
}

var (
	_ model.QuoteCache = (*Client)(nil)
	_ model.QuoteBus   = (*Client)(nil)
)

// New connects and pings the server.
func New(cfg Config) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	ttl := cfg.QuoteTTL
	if ttl <= 0 {
		ttl = defaultQuoteTTL
	}
	cb := NewCircuitBreaker(5, 10*time.Second)
	cb.OnStateChange = func(from, to State) {
		log.Printf("[redis] circuit %s -> %s", from, to)
	}

	log.Printf("[redis] connected to %s (quote ttl %v)", cfg.Addr, ttl)
	return &Client{rdb: rdb, cb: cb, ttl: ttl}, nil
}

// Breaker exposes the circuit breaker for health reporting.
func (c *Client) Breaker() *CircuitBreaker { return c.cb }

// QuoteKey is the cache key for a symbol.
func QuoteKey(symbol string) string { return quoteKeyPrefix + strings.ToUpper(symbol) }

// QuoteChannel is the pub/sub channel for a symbol.
func QuoteChannel(symbol string) string { return quoteChannelPrefix + strings.ToUpper(symbol) }

// GetQuote returns the cached quote, or nil, nil on a miss.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*model.Quote, error) {
	var raw []byte
	err := c.cb.Execute(func() error {
		b, err := c.rdb.Get(ctx, QuoteKey(symbol)).Bytes()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		raw = b
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("redis get quote %s: %w", symbol, err)
	}
	if raw == nil {
		return nil, nil
	}
	var q model.Quote
	if err := json.Unmarshal(raw, &q); err != nil {
		return nil, fmt.Errorf("redis decode quote %s: %w", symbol, err)
	}
	return &q, nil
}

// SetQuote caches q for the configured TTL.
func (c *Client) SetQuote(ctx context.Context, q model.Quote) error {
	data, err := json.Marshal(q)
	if err != nil {
		return err
	}
	return c.cb.Execute(func() error {
		return c.rdb.Set(ctx, QuoteKey(q.Symbol), data, c.ttl).Err()
	})
}

// PublishQuote caches q and publishes it in one pipeline.
func (c *Client) PublishQuote(ctx context.Context, q model.Quote) error {
	data, err := json.Marshal(q)
	if err != nil {
		return err
	}
	return c.cb.Execute(func() error {
		pipe := c.rdb.Pipeline()
		pipe.Set(ctx, QuoteKey(q.Symbol), data, c.ttl)
		pipe.Publish(ctx, QuoteChannel(q.Symbol), data)
		_, err := pipe.Exec(ctx)
		return err
	})
}

// SubscribeQuotes pattern-subscribes to every quote channel and calls fn per
// message until ctx is cancelled.
func (c *Client) SubscribeQuotes(ctx context.Context, fn func(model.Quote)) error {
	pubsub := c.rdb.PSubscribe(ctx, quoteChannelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis psubscribe: %w", err)
	}
	log.Printf("[redis] subscribed to %s*", quoteChannelPrefix)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var q model.Quote
			if err := json.Unmarshal([]byte(msg.Payload), &q); err != nil {
				log.Printf("[redis] bad quote on %s: %v", msg.Channel, err)
				continue
			}
			fn(q)
		}
	}
}

// Ping checks connectivity, bypassing the breaker.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the underlying client.
func (c *Client) Close() error {
	return c.rdb.Close()
}
