package sqlite

import (
	"context"
	"log"
	"time"

	"tradedesk/internal/model"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// RunQuoteWriter reads quotes from quoteCh and inserts them into market_data
// in batched transactions. Flushes every defaultBatchSize quotes OR every
// defaultFlushDelay, whichever first. Blocks until ctx is cancelled or
// quoteCh is closed.
func (s *Store) RunQuoteWriter(ctx context.Context, quoteCh <-chan model.Quote) {
	batch := make([]model.Quote, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		// Use a fresh context so the final flush still lands after cancellation.
		if err := s.insertQuoteBatch(context.Background(), batch); err != nil {
			log.Printf("[sqlite] quote batch insert error: %v", err)
		} else {
			log.Printf("[sqlite] committed %d quotes in %v", len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case q, ok := <-quoteCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, q)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}
