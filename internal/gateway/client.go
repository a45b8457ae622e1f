package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
	maxSymbols     = 100
)

// Client represents a single WebSocket peer.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	userID int64

	subMu   sync.RWMutex
	symbols map[string]bool
	all     bool // subscribed with "*"
}

func newClient(h *Hub, conn *websocket.Conn, userID int64) *Client {
	return &Client{
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		hub:     h,
		userID:  userID,
		symbols: make(map[string]bool),
	}
}

// inbound is any message a client may send.
//
//	{"symbols":["AAPL","MSFT"]}                    subscribe
//	{"type":"unsubscribe","symbols":["MSFT"]}      unsubscribe
//	{"ping":1718000000000}                          latency ping
type inbound struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
	Ping    int64    `json:"ping"`
}

// Subscribed reports whether the client wants quotes for symbol.
func (c *Client) Subscribed(symbol string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return c.all || c.symbols[symbol]
}

// Symbols returns the client's subscriptions, sorted.
func (c *Client) Symbols() []string {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	out := make([]string, 0, len(c.symbols)+1)
	if c.all {
		out = append(out, "*")
	}
	for s := range c.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// sendInitialState replays the latest market status to a new client.
func (c *Client) sendInitialState() {
	c.replay([]string{ChannelMarket})
}

// replay queues the latest envelope of each channel, marked initial.
func (c *Client) replay(channels []string) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	for _, channel := range channels {
		entry, ok := c.hub.latest[channel]
		if !ok {
			continue
		}
		env := envelope(channel, entry.Data, entry.TS.AppendFormat(nil, time.RFC3339Nano), c.hub.seq, entry.Seq, true)
		select {
		case c.send <- env:
		default:
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Printf("[gateway] ws client disconnected user=%d", c.userID)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var msg inbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.reply(map[string]any{"type": "error", "detail": "invalid message: " + err.Error()})
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg inbound) {
	switch {
	case msg.Ping > 0:
		c.reply(map[string]any{"type": "pong", "ping": msg.Ping, "server_ts": time.Now().UnixMilli()})
	case strings.EqualFold(msg.Type, "unsubscribe"):
		c.unsubscribe(msg.Symbols)
		c.reply(map[string]any{"type": "unsubscribed", "symbols": c.Symbols()})
	case msg.Type == "" || strings.EqualFold(msg.Type, "subscribe"):
		added, err := c.subscribe(msg.Symbols)
		if err != nil {
			c.reply(map[string]any{"type": "error", "detail": err.Error()})
			return
		}
		c.reply(map[string]any{"type": "subscribed", "symbols": c.Symbols()})
		channels := make([]string, len(added))
		for i, s := range added {
			channels[i] = QuoteChannel(s)
		}
		c.replay(channels)
	default:
		c.reply(map[string]any{"type": "error", "detail": "unknown message type " + msg.Type})
	}
}

// subscribe adds symbols and returns the ones newly added.
func (c *Client) subscribe(symbols []string) ([]string, error) {
	if len(symbols) == 0 {
		return nil, errors.New("symbols are required")
	}
	c.subMu.Lock()
	defer c.subMu.Unlock()

	var added []string
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		switch {
		case s == "*":
			c.all = true
		case s == "" || len(s) > 20:
			continue
		case !c.symbols[s]:
			if len(c.symbols) >= maxSymbols {
				return added, fmt.Errorf("at most %d symbols per connection", maxSymbols)
			}
			c.symbols[s] = true
			added = append(added, s)
		}
	}
	log.Printf("[gateway] user=%d subscribed %v", c.userID, added)
	return added, nil
}

func (c *Client) unsubscribe(symbols []string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "*" {
			c.all = false
			continue
		}
		delete(c.symbols, s)
	}
}

// reply queues a direct (non-envelope) message to this client only.
func (c *Client) reply(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}
