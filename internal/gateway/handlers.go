package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"tradedesk/internal/model"
)

// Authenticator resolves a bearer token (JWT or API key) to a user.
type Authenticator func(ctx context.Context, token string) (*model.User, error)

// Handler upgrades authenticated requests to WebSocket connections.
type Handler struct {
	hub      *Hub
	auth     Authenticator
	upgrader websocket.Upgrader
}

// NewHandler creates the /ws handler. origins lists the allowed browser
// origins; empty or "*" allows any.
func NewHandler(hub *Hub, auth Authenticator, origins []string) *Handler {
	allowAll := len(origins) == 0
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(o, "/")] = true
	}
	return &Handler{
		hub:  hub,
		auth: auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowAll || origin == "" || allowed[origin]
			},
		},
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

// token reads the credential from ?token=, then the Authorization header.
func token(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.Header.Get("X-API-Key")
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tok := token(r)
	if tok == "" {
		writeDetail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	user, err := h.auth(r.Context(), tok)
	if err != nil || user == nil {
		writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] ws upgrade error: %v", err)
		return
	}
	h.hub.Register(conn, user.ID)
}

// Missed serves buffered envelopes of a replayable channel so a client that
// saw a channel_seq gap can backfill: GET ?channel=quote:AAPL&from=10&to=20.
func (h *Handler) Missed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	channel := q.Get("channel")
	if channel != ChannelMarket && !strings.HasPrefix(channel, quotePrefix) {
		writeDetail(w, http.StatusBadRequest, "channel must be market or quote:{symbol}")
		return
	}
	from, err1 := strconv.ParseInt(q.Get("from"), 10, 64)
	to, err2 := strconv.ParseInt(q.Get("to"), 10, 64)
	if err1 != nil || err2 != nil || from < 1 || to < from {
		writeDetail(w, http.StatusBadRequest, "from and to must be sequence numbers with from <= to")
		return
	}

	msgs := h.hub.GetReplayRange(channel, from, to)
	out := make([]json.RawMessage, len(msgs))
	for i, m := range msgs {
		out[i] = m
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"channel":     channel,
		"channel_seq": h.hub.ChannelSeq(channel),
		"messages":    out,
	})
}
