package coordinator

import (
	"time"

	"enterprise-chatbot/internal/engine"
)

// Record is one handled query as kept in the history.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Query     string    `json:"query"`
	engine.Result
}

// History is a fixed-capacity FIFO of records. Once full, each Push
// evicts the oldest record. Not safe for concurrent use.
type History struct {
	buf   []Record
	start int
	size  int
}

// NewHistory allocates a history holding up to capacity records.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{buf: make([]Record, capacity)}
}

// Push appends r and returns the evicted record, if any.
func (h *History) Push(r Record) (Record, bool) {
	if h.size < len(h.buf) {
		h.buf[(h.start+h.size)%len(h.buf)] = r
		h.size++
		return Record{}, false
	}

	evicted := h.buf[h.start]
	h.buf[h.start] = r
	h.start = (h.start + 1) % len(h.buf)
	return evicted, true
}

func (h *History) Len() int { return h.size }

func (h *History) Cap() int { return len(h.buf) }

// Snapshot copies the newest limit records (all when limit <= 0), oldest first.
func (h *History) Snapshot(limit int) []Record {
	n := h.size
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]Record, n)
	skip := h.size - n
	for i := range n {
		out[i] = h.buf[(h.start+skip+i)%len(h.buf)]
	}
	return out
}
