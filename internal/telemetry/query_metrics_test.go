package telemetry

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircularBuffer_EvictsOldest(t *testing.T) {
	buf := NewCircularBuffer[string](3)

	for _, q := range []string{"q1", "q2", "q3", "q4", "q5"} {
		buf.Add(q)
	}

	assert.Equal(t, 3, buf.Size())
	assert.Equal(t, []string{"q3", "q4", "q5"}, buf.Items())
}

func TestCircularBuffer_Empty(t *testing.T) {
	buf := NewCircularBuffer[int](0)

	assert.Empty(t, buf.Items())
	assert.Equal(t, 0, buf.Size())
}

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		latency time.Duration
		want    LatencyBucket
	}{
		{5 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{75 * time.Millisecond, BucketP100},
		{250 * time.Millisecond, BucketP500},
		{2 * time.Second, BucketP1000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LatencyToBucket(tt.latency), tt.latency.String())
	}
}

func TestExtractTerms(t *testing.T) {
	assert.Equal(t, []string{"can", "use", "flash", "drive?"}, ExtractTerms("Can I use a flash drive?"))
	assert.Nil(t, ExtractTerms("  "))
}

func TestQueryMetrics_RecordAndSnapshot(t *testing.T) {
	// Given: a collector and a mix of events
	m := NewQueryMetrics(10, 10)
	m.Record(QueryEvent{Query: "vpn setup", Intent: "procedure", Strategy: "hybrid", ResultCount: 3, Latency: 5 * time.Millisecond})
	m.Record(QueryEvent{Query: "vpn policy", Intent: "policy", Strategy: "hybrid", ResultCount: 0, Latency: 30 * time.Millisecond})
	m.Record(QueryEvent{Query: "vpn", Intent: "unknown", Strategy: "lexical", Degraded: true, ResultCount: 1})

	// When: taking a snapshot
	s := m.Snapshot()

	// Then: aggregates reflect every event
	assert.Equal(t, int64(3), s.TotalQueries)
	assert.Equal(t, int64(1), s.ZeroResultCount)
	assert.Equal(t, int64(1), s.DegradedCount)
	assert.Equal(t, []string{"vpn policy"}, s.ZeroResultQueries)
	assert.Equal(t, int64(2), s.StrategyCounts["hybrid"])
	assert.Equal(t, int64(1), s.IntentCounts["policy"])
	require.NotEmpty(t, s.TopTerms)
	assert.Equal(t, TermCount{Term: "vpn", Count: 3}, s.TopTerms[0])
	assert.InDelta(t, 33.33, s.ZeroResultPercentage(), 0.01)
}

func TestQueryMetrics_ConcurrentRecord(t *testing.T) {
	m := NewQueryMetrics(10, 10)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Record(QueryEvent{Query: "printer", ResultCount: 1})
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), m.Snapshot().TotalQueries)
}

func TestMetrics_ObserveAndServe(t *testing.T) {
	// Given: a metrics registry
	m := NewMetrics()

	// When: recording searches, ingests and feedback
	m.ObserveSearch(QueryEvent{Query: "usb", Strategy: "hybrid", Intent: "policy", Degraded: true, ResultCount: 2})
	m.ObserveIngest(OutcomeIndexed, 4)
	m.ObserveIngest(OutcomeSkipped, 0)
	m.ObserveFeedback("helpful")
	m.RerankFailed()

	// Then: counters move
	assert.Equal(t, 1.0, testutil.ToFloat64(m.searchDegraded))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ingestChunks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ingestDocuments.WithLabelValues(OutcomeSkipped)))
	assert.Equal(t, int64(1), m.Queries().Snapshot().TotalQueries)

	// And: the handler exposes them
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.True(t, strings.Contains(rec.Body.String(), "amankb_search_degraded_total 1"))
}

func TestMetrics_NilIsNoOp(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveSearch(QueryEvent{})
		m.ObserveIngest(OutcomeFailed, 0)
		m.ObserveFeedback("helpful")
		m.ObserveRecompute()
		m.RerankFailed()
	})
	assert.Nil(t, m.Queries())
}
