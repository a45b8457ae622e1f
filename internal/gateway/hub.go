// Package gateway streams live quotes, market status, order fills and alert
// triggers to browser clients over WebSocket.
//
// Every message is an envelope {"channel","data","ts","seq","channel_seq"}.
// Channels:
//
//	quote:{SYMBOL}  latest quote, sent to clients subscribed to SYMBOL
//	market          market open/closed status, sent to everyone
//	alert           a triggered price alert, sent to its owner only
//	order           an order fill, sent to its owner only
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tradedesk/internal/markethours"
	"tradedesk/internal/metrics"
	"tradedesk/internal/model"
)

const (
	ChannelMarket = "market"
	ChannelAlert  = "alert"
	ChannelOrder  = "order"
	quotePrefix   = "quote:"

	replayCapacity = 500 // envelopes kept per channel
	sendBuffer     = 256
)

// QuoteChannel returns the channel carrying symbol's quotes.
func QuoteChannel(symbol string) string { return quotePrefix + strings.ToUpper(symbol) }

// Hub manages WebSocket clients and fans messages out to them.
// It delegates to focused components:
//   - QuoteRouter: quote bus subscription
//   - Broadcaster: envelope construction + client-filtered fan-out
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry
	seq     int64

	// Per-channel monotonic sequence numbers for gap detection
	channelSeqs map[string]int64

	// Per-channel replay buffers for gap backfill
	replayBufs map[string]*ReplayBuffer

	// Quote timestamp to fan-out lag
	Latency *LatencyTracker

	metrics *metrics.Metrics
	now     func() time.Time

	// Sub-components
	Router      *QuoteRouter
	Broadcaster *Broadcaster
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64 // per-channel seq for gap detection
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	h := &Hub{
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replayBufs:  make(map[string]*ReplayBuffer),
		Latency:     NewLatencyTracker(10000),
		now:         time.Now,
	}
	h.Router = NewQuoteRouter(h)
	h.Broadcaster = NewBroadcaster(h)
	return h
}

// SetMetrics enables Prometheus instrumentation.
func (h *Hub) SetMetrics(m *metrics.Metrics) { h.metrics = m }

// Run forwards quotes from bus to subscribed clients. Blocks until ctx is
// cancelled.
func (h *Hub) Run(ctx context.Context, bus model.QuoteBus) error {
	return h.Router.Run(ctx, bus)
}

// PublishQuote sends q to clients subscribed to its symbol.
func (h *Hub) PublishQuote(q model.Quote) {
	data, err := json.Marshal(q)
	if err != nil {
		log.Printf("[gateway] marshal quote %s: %v", q.Symbol, err)
		return
	}
	if !q.Timestamp.IsZero() && h.Latency != nil {
		if lag := h.now().Sub(q.Timestamp); lag >= 0 {
			h.Latency.Record(float64(lag.Microseconds()) / 1000.0)
		}
	}
	sym := strings.ToUpper(q.Symbol)
	h.Broadcaster.Broadcast(QuoteChannel(sym), data, true, func(c *Client) bool { return c.Subscribed(sym) })
}

// PublishAlert sends a triggered alert to its owner's connections.
func (h *Hub) PublishAlert(a model.PriceAlert) {
	h.publishToUser(ChannelAlert, a.UserID, a)
}

// PublishFill sends an order fill to its owner's connections.
func (h *Hub) PublishFill(o model.Order, e model.Execution) {
	h.publishToUser(ChannelOrder, o.UserID, map[string]any{"order": o, "execution": e})
}

func (h *Hub) publishToUser(channel string, userID int64, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[gateway] marshal %s: %v", channel, err)
		return
	}
	h.Broadcaster.Broadcast(channel, data, false, func(c *Client) bool { return c.userID == userID })
}

// Register adds an upgraded connection for userID and starts its pumps.
func (h *Hub) Register(conn *websocket.Conn, userID int64) *Client {
	client := newClient(h, conn, userID)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.WSClients.Set(float64(count))
	}

	log.Printf("[gateway] ws client connected user=%d (%d total)", userID, count)

	client.sendInitialState()
	go client.writePump()
	go client.readPump()
	return client
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	close(c.send)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.WSClients.Set(float64(count))
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	conns := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		h.RemoveClient(c)
	}
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Latest returns the most recent payload of a replayable channel.
func (h *Hub) Latest(channel string) (json.RawMessage, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.latest[channel]
	return e.Data, ok
}

// GetReplayRange returns buffered envelopes for a channel in [fromSeq, toSeq].
// Used by the missed-messages REST endpoint for client gap backfill.
func (h *Hub) GetReplayRange(channel string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	rb, exists := h.replayBufs[channel]
	h.mu.RUnlock()
	if !exists {
		return nil
	}
	entries := rb.Range(fromSeq, toSeq)
	result := make([][]byte, len(entries))
	for i, e := range entries {
		result[i] = e.Data
	}
	return result
}

// ChannelSeq returns the current sequence number for a channel.
func (h *Hub) ChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// MarketStatus is the payload of the market channel.
type MarketStatus struct {
	markethours.Status
	Clients    int     `json:"clients"`
	LatencyP50 float64 `json:"latency_p50_ms"`
	LatencyP95 float64 `json:"latency_p95_ms"`
	LatencyP99 float64 `json:"latency_p99_ms"`
}

// BroadcastStatus sends the current market status to every client.
func (h *Hub) BroadcastStatus(now time.Time) {
	st := MarketStatus{Status: markethours.StatusAt(now), Clients: h.ClientCount()}
	if h.Latency != nil {
		st.LatencyP50, st.LatencyP95, st.LatencyP99 = h.Latency.Percentiles()
	}
	if h.metrics != nil {
		open := 0.0
		if st.IsOpen {
			open = 1
		}
		h.metrics.MarketState.Set(open)
	}
	data, _ := json.Marshal(st)
	h.Broadcaster.Broadcast(ChannelMarket, data, true, nil)
}

// StartStatusBroadcast sends market status every interval until ctx is done.
func (h *Hub) StartStatusBroadcast(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	h.BroadcastStatus(h.now())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.BroadcastStatus(h.now())
		}
	}
}
