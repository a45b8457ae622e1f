// Package memory provides in-process quote cache and quote bus
// implementations used when Redis is not configured.
package memory

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"tradedesk/internal/model"
)

var (
	_ model.QuoteCache = (*Cache)(nil)
	_ model.QuoteBus   = (*Bus)(nil)
)

type cached struct {
	q       model.Quote
	expires time.Time
}

// Cache is a TTL map of quotes keyed by upper-cased symbol.
type Cache struct {
	mu  sync.RWMutex
	m   map[string]cached
	ttl time.Duration
	now func() time.Time
}

// NewCache creates a cache whose entries expire after ttl.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{m: make(map[string]cached), ttl: ttl, now: time.Now}
}

// GetQuote returns the cached quote or nil, nil when absent or expired.
func (c *Cache) GetQuote(_ context.Context, symbol string) (*model.Quote, error) {
	c.mu.RLock()
	e, ok := c.m[strings.ToUpper(symbol)]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expires) {
		return nil, nil
	}
	q := e.q
	return &q, nil
}

// SetQuote stores q.
func (c *Cache) SetQuote(_ context.Context, q model.Quote) error {
	c.mu.Lock()
	c.m[strings.ToUpper(q.Symbol)] = cached{q: q, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

// Bus broadcasts quotes to every subscriber. A subscriber whose buffer is
// full misses the quote so a slow consumer never blocks publishers.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]chan model.Quote
	nextID  int
	bufSize int

	// OnDrop is called when a quote is dropped for a subscriber.
	OnDrop func(symbol string)
}

// NewBus creates a bus with the given per-subscriber buffer.
func NewBus(bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Bus{subs: make(map[int]chan model.Quote), bufSize: bufSize}
}

// PublishQuote delivers q to all current subscribers.
func (b *Bus) PublishQuote(_ context.Context, q model.Quote) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- q:
		default:
			if b.OnDrop != nil {
				b.OnDrop(q.Symbol)
			} else {
				log.Printf("[bus] subscriber full, dropping quote %s", q.Symbol)
			}
		}
	}
	return nil
}

// SubscribeQuotes registers a subscriber and calls fn for each quote until
// ctx is cancelled.
func (b *Bus) SubscribeQuotes(ctx context.Context, fn func(model.Quote)) error {
	ch := make(chan model.Quote, b.bufSize)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case q := <-ch:
			fn(q)
		}
	}
}

// Subscribers returns the number of active subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
