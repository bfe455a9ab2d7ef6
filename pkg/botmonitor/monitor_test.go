package botmonitor

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCountsByStage(t *testing.T) {
	m := New(10, 0)

	m.Record(Event{Stage: StageInbound, Status: StatusOK})
	m.Record(Event{Stage: StageBackendRequest, Status: StatusOK})
	m.Record(Event{Stage: StageBackendReply, Status: StatusOK})
	m.Record(Event{Stage: StageBackendReply, Status: StatusError, Error: "timeout"})
	m.Record(Event{Stage: StageOutbound, Status: StatusOK})
	m.Record(Event{Stage: StageOutbound, Status: StatusError})

	s := m.GetStats()
	assert.Equal(t, int64(1), s.TotalInbound)
	assert.Equal(t, int64(1), s.TotalBackendRequests)
	assert.Equal(t, int64(1), s.TotalBackendReplies)
	assert.Equal(t, int64(1), s.TotalOutbound)
	assert.Equal(t, int64(2), s.TotalErrors)
	require.Len(t, s.RecentEvents, 6)
	assert.False(t, s.RecentEvents[0].Timestamp.IsZero())
}

func TestRingBufferKeepsNewestInOrder(t *testing.T) {
	m := New(3, 0)
	for i := 1; i <= 5; i++ {
		m.Record(Event{Stage: StageInbound, TraceID: fmt.Sprint(i)})
	}

	s := m.GetStats()
	require.Len(t, s.RecentEvents, 3)
	assert.Equal(t, "3", s.RecentEvents[0].TraceID)
	assert.Equal(t, "5", s.RecentEvents[2].TraceID)
	assert.Equal(t, int64(5), s.TotalInbound)
}

func TestExpiredEventsAreHidden(t *testing.T) {
	m := New(10, time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	m.Record(Event{Stage: StageInbound, TraceID: "old", Timestamp: now.Add(-2 * time.Minute)})
	m.Record(Event{Stage: StageInbound, TraceID: "new"})

	s := m.GetStats()
	require.Len(t, s.RecentEvents, 1)
	assert.Equal(t, "new", s.RecentEvents[0].TraceID)
	assert.Equal(t, int64(2), s.TotalInbound)
}

func TestConcurrentRecord(t *testing.T) {
	m := New(50, 0)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				m.Record(Event{Stage: StageOutbound, Status: StatusOK})
			}
		}()
	}
	wg.Wait()

	s := m.GetStats()
	assert.Equal(t, int64(200), s.TotalOutbound)
	assert.Len(t, s.RecentEvents, 50)
}
