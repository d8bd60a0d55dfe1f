// Package telemetry collects local search and ingest metrics. Nothing is
// reported externally; the Prometheus registry is only served when a metrics
// address is configured.
package telemetry

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LatencyBucket is a coarse latency histogram bucket for status output.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// QueryEvent is one completed search.
type QueryEvent struct {
	Query       string
	Namespace   string
	Intent      string
	Strategy    string
	Degraded    bool
	ResultCount int
	Latency     time.Duration
	Timestamp   time.Time
}

// IsZeroResult reports whether the search returned nothing.
func (e QueryEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	items    []T
	head     int
	size     int
	capacity int
	mu       sync.RWMutex
}

// NewCircularBuffer creates a buffer holding at most capacity items.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add appends item, evicting the oldest when full.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns the buffered items oldest first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
	} else {
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}

// Size returns the number of buffered items.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// ExtractTerms lowercases query and keeps words of three or more bytes.
func ExtractTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// TermCount is a query term and how often it was searched.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// QueryMetricsSnapshot is a point-in-time copy of QueryMetrics.
type QueryMetricsSnapshot struct {
	IntentCounts        map[string]int64        `json:"intent_counts"`
	StrategyCounts      map[string]int64        `json:"strategy_counts"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	DegradedCount       int64                   `json:"degraded_count"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the share of searches that found nothing.
func (s *QueryMetricsSnapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// QueryMetrics aggregates query events in memory. Safe for concurrent use.
type QueryMetrics struct {
	mu sync.Mutex

	intents     map[string]int64
	strategies  map[string]int64
	latencies   map[LatencyBucket]int64
	topTerms    *lru.Cache[string, int64]
	zeroResults *CircularBuffer[string]

	total    int64
	zero     int64
	degraded int64
	since    time.Time
}

// NewQueryMetrics tracks up to termCapacity distinct terms and the last
// zeroCapacity zero-result queries.
func NewQueryMetrics(termCapacity, zeroCapacity int) *QueryMetrics {
	if termCapacity <= 0 {
		termCapacity = 100
	}
	terms, _ := lru.New[string, int64](termCapacity)
	return &QueryMetrics{
		intents:     make(map[string]int64),
		strategies:  make(map[string]int64),
		latencies:   make(map[LatencyBucket]int64),
		topTerms:    terms,
		zeroResults: NewCircularBuffer[string](zeroCapacity),
		since:       time.Now(),
	}
}

// Record adds one event.
func (m *QueryMetrics) Record(e QueryEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	m.intents[e.Intent]++
	m.strategies[e.Strategy]++
	m.latencies[LatencyToBucket(e.Latency)]++
	if e.Degraded {
		m.degraded++
	}
	if e.IsZeroResult() {
		m.zero++
		m.zeroResults.Add(e.Query)
	}
	for _, term := range ExtractTerms(e.Query) {
		n, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, n+1)
	}
}

// Snapshot copies the current aggregates.
func (m *QueryMetrics) Snapshot() *QueryMetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &QueryMetricsSnapshot{
		IntentCounts:        make(map[string]int64, len(m.intents)),
		StrategyCounts:      make(map[string]int64, len(m.strategies)),
		LatencyDistribution: make(map[LatencyBucket]int64, len(m.latencies)),
		ZeroResultQueries:   m.zeroResults.Items(),
		TotalQueries:        m.total,
		ZeroResultCount:     m.zero,
		DegradedCount:       m.degraded,
		Since:               m.since,
	}
	for k, v := range m.intents {
		s.IntentCounts[k] = v
	}
	for k, v := range m.strategies {
		s.StrategyCounts[k] = v
	}
	for k, v := range m.latencies {
		s.LatencyDistribution[k] = v
	}
	for _, term := range m.topTerms.Keys() {
		if n, ok := m.topTerms.Peek(term); ok {
			s.TopTerms = append(s.TopTerms, TermCount{Term: term, Count: n})
		}
	}
	sortTermCounts(s.TopTerms)
	return s
}

func sortTermCounts(terms []TermCount) {
	slices.SortFunc(terms, func(a, b TermCount) int {
		if a.Count != b.Count {
			return cmp.Compare(b.Count, a.Count)
		}
		return strings.Compare(a.Term, b.Term)
	})
}
