package botmonitor

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stages of a relayed event.
const (
	StageInbound        = "inbound"
	StageBackendRequest = "backend_request"
	StageBackendReply   = "backend_reply"
	StageOutbound       = "outbound"
)

const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

type Event struct {
	Timestamp  time.Time         `json:"timestamp"`
	TraceID    string            `json:"trace_id"`
	BotID      string            `json:"bot_id"`
	SenderID   string            `json:"sender_id"`
	Stage      string            `json:"stage"`
	Status     string            `json:"status"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	DurationMs int64             `json:"duration_ms"`
}

type Stats struct {
	TotalInbound         int64   `json:"total_inbound"`
	TotalBackendRequests int64   `json:"total_backend_requests"`
	TotalBackendReplies  int64   `json:"total_backend_replies"`
	TotalOutbound        int64   `json:"total_outbound"`
	TotalErrors          int64   `json:"total_errors"`
	RecentEvents         []Event `json:"recent_events"`
}

// Monitor keeps relay counters and the most recent events in a ring buffer.
type Monitor struct {
	ttl time.Duration
	now func() time.Time

	eventsMu sync.Mutex
	events   []Event
	idx      int
	count    int

	totalInbound         int64
	totalBackendRequests int64
	totalBackendReplies  int64
	totalOutbound        int64
	totalErrors          int64
}

// New keeps up to size events. Events older than ttl are hidden from
// GetStats; a zero ttl keeps them until overwritten.
func New(size int, ttl time.Duration) *Monitor {
	if size <= 0 {
		size = 200
	}
	return &Monitor{
		ttl:    ttl,
		now:    time.Now,
		events: make([]Event, size),
	}
}

func (m *Monitor) Record(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = m.now().UTC()
	}

	switch e.Stage {
	case StageInbound:
		atomic.AddInt64(&m.totalInbound, 1)
	case StageBackendRequest:
		atomic.AddInt64(&m.totalBackendRequests, 1)
	case StageBackendReply:
		if e.Status == StatusOK {
			atomic.AddInt64(&m.totalBackendReplies, 1)
		}
	case StageOutbound:
		if e.Status == StatusOK {
			atomic.AddInt64(&m.totalOutbound, 1)
		}
	}
	if e.Status == StatusError {
		atomic.AddInt64(&m.totalErrors, 1)
	}

	m.eventsMu.Lock()
	m.events[m.idx] = e
	m.idx = (m.idx + 1) % len(m.events)
	if m.count < len(m.events) {
		m.count++
	}
	m.eventsMu.Unlock()
}

// GetStats returns the counters and the retained events, oldest first.
func (m *Monitor) GetStats() Stats {
	var cutoff time.Time
	if m.ttl > 0 {
		cutoff = m.now().UTC().Add(-m.ttl)
	}

	m.eventsMu.Lock()
	recent := make([]Event, 0, m.count)
	start := (m.idx - m.count + len(m.events)) % len(m.events)
	for i := 0; i < m.count; i++ {
		e := m.events[(start+i)%len(m.events)]
		if !cutoff.IsZero() && e.Timestamp.Before(cutoff) {
			continue
		}
		recent = append(recent, e)
	}
	m.eventsMu.Unlock()

	return Stats{
		TotalInbound:         atomic.LoadInt64(&m.totalInbound),
		TotalBackendRequests: atomic.LoadInt64(&m.totalBackendRequests),
		TotalBackendReplies:  atomic.LoadInt64(&m.totalBackendReplies),
		TotalOutbound:        atomic.LoadInt64(&m.totalOutbound),
		TotalErrors:          atomic.LoadInt64(&m.totalErrors),
		RecentEvents:         recent,
	}
}
