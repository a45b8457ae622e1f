package redis

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"tradedesk/internal/model"
)

// BufferedPublisher wraps a quote bus. While the breaker is open, quotes are
// held locally (newest per symbol) and replayed once the breaker closes.
type BufferedPublisher struct {
	bus model.QuoteBus

	mu      sync.Mutex
	pending map[string]model.Quote
	order   []string
	maxBuf  int

	OnBuffer func()          // called when a quote is held back
	OnFlush  func(count int) // called after a replay
}

var _ model.QuoteBus = (*BufferedPublisher)(nil)

// NewBufferedPublisher wraps bus and hooks replay onto cb closing.
// cb may be nil when the caller triggers Flush itself.
func NewBufferedPublisher(bus model.QuoteBus, cb *CircuitBreaker, maxSymbols int) *BufferedPublisher {
	if maxSymbols <= 0 {
		maxSymbols = 10000
	}
	bp := &BufferedPublisher{
		bus:     bus,
		pending: make(map[string]model.Quote),
		maxBuf:  maxSymbols,
	}
	if cb != nil {
		prev := cb.OnStateChange
		cb.OnStateChange = func(from, to State) {
			if prev != nil {
				prev(from, to)
			}
			if to == StateClosed {
				go bp.Flush(context.Background())
			}
		}
	}
	return bp
}

// PublishQuote publishes q, holding it back if the breaker is open.
func (bp *BufferedPublisher) PublishQuote(ctx context.Context, q model.Quote) error {
	err := bp.bus.PublishQuote(ctx, q)
	if errors.Is(err, ErrCircuitOpen) {
		bp.hold(q)
		return nil
	}
	return err
}

// SubscribeQuotes delegates to the wrapped bus.
func (bp *BufferedPublisher) SubscribeQuotes(ctx context.Context, fn func(model.Quote)) error {
	return bp.bus.SubscribeQuotes(ctx, fn)
}

func (bp *BufferedPublisher) hold(q model.Quote) {
	sym := strings.ToUpper(q.Symbol)

	bp.mu.Lock()
	if _, ok := bp.pending[sym]; !ok {
		if len(bp.order) >= bp.maxBuf {
			oldest := bp.order[0]
			bp.order = bp.order[1:]
			delete(bp.pending, oldest)
		}
		bp.order = append(bp.order, sym)
	}
	bp.pending[sym] = q
	bp.mu.Unlock()

	if bp.OnBuffer != nil {
		bp.OnBuffer()
	}
}

// Flush replays held quotes in first-held order. Quotes that fail again are
// held for the next replay.
func (bp *BufferedPublisher) Flush(ctx context.Context) int {
	bp.mu.Lock()
	if len(bp.order) == 0 {
		bp.mu.Unlock()
		return 0
	}
	order, pending := bp.order, bp.pending
	bp.order, bp.pending = nil, make(map[string]model.Quote)
	bp.mu.Unlock()

	flushed := 0
	for _, sym := range order {
		q := pending[sym]
		if err := bp.bus.PublishQuote(ctx, q); err != nil {
			if errors.Is(err, ErrCircuitOpen) {
				bp.hold(q)
				continue
			}
			log.Printf("[redis] replay %s: %v", sym, err)
			continue
		}
		flushed++
	}

	log.Printf("[redis] replayed %d held quotes", flushed)
	if bp.OnFlush != nil {
		bp.OnFlush(flushed)
	}
	return flushed
}

// PendingCount returns the number of symbols waiting for replay.
func (bp *BufferedPublisher) PendingCount() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.order)
}
