package gateway

import (
	"context"
	"errors"
	"log"
	"time"

	"tradedesk/internal/model"
)

// QuoteRouter subscribes to the quote bus (Redis pub/sub or in-process) and
// routes every quote to the broadcaster.
type QuoteRouter struct {
	hub *Hub

	// RetryDelay is the pause before resubscribing after the bus fails.
	RetryDelay time.Duration
}

// NewQuoteRouter creates a QuoteRouter backed by the given Hub.
func NewQuoteRouter(hub *Hub) *QuoteRouter {
	return &QuoteRouter{hub: hub, RetryDelay: 2 * time.Second}
}

// Run subscribes to bus and forwards quotes until ctx is cancelled,
// resubscribing when the subscription drops.
func (r *QuoteRouter) Run(ctx context.Context, bus model.QuoteBus) error {
	for {
		log.Printf("[gateway] subscribing to quote bus")
		err := bus.SubscribeQuotes(ctx, r.hub.PublishQuote)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = errors.New("subscription closed")
		}
		log.Printf("[gateway] quote bus: %v; retrying in %s", err, r.RetryDelay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.RetryDelay):
		}
	}
}
