package gateway

import (
	"strconv"
	"time"
)

// Broadcaster constructs envelope JSON and sends filtered messages to clients.
type Broadcaster struct {
	hub *Hub
}

// NewBroadcaster creates a Broadcaster backed by the given Hub.
func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

// Broadcast sends data on a channel to every client accepted by filter (all
// clients when filter is nil). Replayable channels keep their latest value
// and a replay buffer; per-user channels are never stored.
func (b *Broadcaster) Broadcast(channel string, data []byte, replayable bool, filter func(*Client) bool) {
	now := b.hub.now().UTC()

	b.hub.mu.Lock()
	b.hub.channelSeqs[channel]++
	channelSeq := b.hub.channelSeqs[channel]
	b.hub.seq++
	seq := b.hub.seq
	var rb *ReplayBuffer
	if replayable {
		b.hub.latest[channel] = latestEntry{Data: data, TS: now, Seq: channelSeq}
		rb = b.hub.replayBufs[channel]
		if rb == nil {
			rb = NewReplayBuffer(replayCapacity)
			b.hub.replayBufs[channel] = rb
		}
	}
	b.hub.mu.Unlock()

	buf := envelope(channel, data, now.AppendFormat(nil, time.RFC3339Nano), seq, channelSeq, false)
	if rb != nil {
		rb.Push(channelSeq, buf)
	}

	// Fan out to matching clients
	sent, dropped := 0, 0
	b.hub.mu.RLock()
	for client := range b.hub.clients {
		if filter != nil && !filter(client) {
			continue
		}
		select {
		case client.send <- buf:
			sent++
		default:
			dropped++
		}
	}
	b.hub.mu.RUnlock()

	if m := b.hub.metrics; m != nil {
		m.Broadcasted.Add(float64(sent))
		m.WSDropped.Add(float64(dropped))
	}
}

// envelope hand-crafts the envelope JSON; data must already be valid JSON.
func envelope(channel string, data, ts []byte, seq, channelSeq int64, initial bool) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+len(ts)+96)
	buf = append(buf, `{"channel":`...)
	buf = strconv.AppendQuote(buf, channel)
	buf = append(buf, `,"data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = append(buf, ts...)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	if initial {
		buf = append(buf, `,"initial":true`...)
	}
	buf = append(buf, '}')
	return buf
}
