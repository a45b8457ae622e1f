package gateway

import "sync"

// replayEntry holds a single broadcast envelope for replay.
type replayEntry struct {
	Seq  int64
	Data []byte // pre-built envelope JSON
}

// ReplayBuffer keeps the last N envelopes of one channel. Channel sequence
// numbers are contiguous, so Range indexes directly instead of scanning.
type ReplayBuffer struct {
	mu      sync.RWMutex
	buf     []replayEntry
	head    int   // physical index of the oldest entry
	n       int   // entries held
	lastSeq int64 // seq of the newest entry
}

// NewReplayBuffer creates a replay buffer with the given capacity.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = replayCapacity
	}
	return &ReplayBuffer{buf: make([]replayEntry, capacity)}
}

// Push appends an envelope, evicting the oldest when full. A seq that does
// not follow the previous one restarts the buffer.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.n > 0 && seq != rb.lastSeq+1 {
		rb.head, rb.n = 0, 0
	}
	cp := make([]byte, len(data))
	copy(cp, data)

	if rb.n < len(rb.buf) {
		rb.buf[(rb.head+rb.n)%len(rb.buf)] = replayEntry{Seq: seq, Data: cp}
		rb.n++
	} else {
		rb.buf[rb.head] = replayEntry{Seq: seq, Data: cp}
		rb.head = (rb.head + 1) % len(rb.buf)
	}
	rb.lastSeq = seq
}

// Range returns the held entries with seq in [fromSeq, toSeq], oldest first.
func (rb *ReplayBuffer) Range(fromSeq, toSeq int64) []replayEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rb.n == 0 {
		return nil
	}

	firstSeq := rb.lastSeq - int64(rb.n) + 1
	fromSeq = max(fromSeq, firstSeq)
	toSeq = min(toSeq, rb.lastSeq)
	if fromSeq > toSeq {
		return nil
	}
	out := make([]replayEntry, 0, toSeq-fromSeq+1)
	for s := fromSeq; s <= toSeq; s++ {
		out = append(out, rb.buf[(rb.head+int(s-firstSeq))%len(rb.buf)])
	}
	return out
}

// Len returns the number of entries currently in the buffer.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.n
}
