package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/metrics"
)

type fakePublisher struct {
	mu      sync.Mutex
	events  []kafka.Event
	batches int
	err     error
	block   chan struct{}
}

func (f *fakePublisher) PublishBatch(ctx context.Context, events []kafka.Event) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.batches++
	f.events = append(f.events, events...)
	return nil
}

func (f *fakePublisher) published() []kafka.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]kafka.Event(nil), f.events...)
}

func event(tag string, returned int) QueryEvent {
	return QueryEvent{Type: EventQuery, Tag: tag, Field: "score", PageSize: 10, Returned: returned, Timestamp: time.Now()}
}

func TestCollectorPublishesOnClose(t *testing.T) {
	pub := &fakePublisher{}
	agg := NewAggregator()
	c := NewCollector(pub, agg, nil, CollectorOptions{BufferSize: 16, BatchSize: 2, FlushInterval: time.Hour})
	c.Start(context.Background())

	for _, tag := range []string{"go", "rust", "go"} {
		c.Track(event(tag, 1))
	}
	c.Close()

	events := pub.published()
	require.Len(t, events, 3)
	assert.Equal(t, "go", events[0].Key)
	assert.Equal(t, "rust", events[1].Value.(QueryEvent).Tag)
	assert.EqualValues(t, 3, agg.Stats().TotalQueries)
}

func TestCollectorDropsOnOverflow(t *testing.T) {
	pub := &fakePublisher{block: make(chan struct{})}
	m := metrics.New(prometheus.NewRegistry())
	c := NewCollector(pub, nil, m, CollectorOptions{BufferSize: 1, BatchSize: 1, FlushInterval: time.Hour})
	c.Start(context.Background())

	// the loop takes one event and blocks publishing it; the buffer then
	// holds one more and everything after that is dropped
	c.Track(event("a", 1))
	require.Eventually(t, func() bool { return len(c.eventCh) == 0 }, time.Second, time.Millisecond)
	c.Track(event("b", 1))
	for range 5 {
		c.Track(event("c", 1))
	}
	assert.Equal(t, 5.0, testutil.ToFloat64(m.AnalyticsDropped))

	close(pub.block)
	c.Close()
	assert.Len(t, pub.published(), 2)
}

func TestCollectorCountsFailedBatches(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	m := metrics.New(prometheus.NewRegistry())
	c := NewCollector(pub, nil, m, CollectorOptions{BatchSize: 10, FlushInterval: time.Hour})
	c.Start(context.Background())
	c.Track(event("go", 1))
	c.Track(event("go", 1))
	c.Close()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AnalyticsDropped))
}

func TestCollectorWithoutPublisher(t *testing.T) {
	agg := NewAggregator()
	c := NewCollector(nil, agg, nil, CollectorOptions{})
	c.Start(context.Background())
	c.Track(event("go", 0))
	c.Close()
	c.Close()
	assert.EqualValues(t, 1, agg.Stats().ZeroResultCount)
}

func TestAggregatorStats(t *testing.T) {
	agg := NewAggregator()
	for i := range 20 {
		e := event("go", 5)
		e.LatencyMs = int64(i)
		e.Strategy = "bitmap"
		agg.Record(e)
	}
	b := event("go", 0)
	b.Type = EventBoolean
	b.Tag2 = "rust"
	b.Operator = "AND"
	agg.Record(b)
	failed := event("nope", 0)
	failed.Error = "invalid tag"
	agg.Record(failed)

	stats := agg.Stats()
	assert.EqualValues(t, 22, stats.TotalQueries)
	assert.EqualValues(t, 1, stats.BooleanQueries)
	assert.EqualValues(t, 1, stats.Failed)
	assert.EqualValues(t, 1, stats.ZeroResultCount)
	assert.EqualValues(t, 21, stats.CacheMisses)
	assert.Equal(t, []TagCount{{"go", 20}, {"go AND rust", 1}}, stats.TopTags)
	assert.Equal(t, []TagCount{{"go AND rust", 1}}, stats.ZeroResultTags)
	assert.EqualValues(t, 20, stats.Strategies["bitmap"])
	assert.EqualValues(t, 9, stats.P50LatencyMs)
	assert.EqualValues(t, 19, stats.P99LatencyMs)
}

func TestAggregatorLatencyRing(t *testing.T) {
	agg := NewAggregator()
	for i := range maxLatencySamples + 10 {
		e := event("go", 1)
		e.LatencyMs = int64(i)
		agg.Record(e)
	}
	assert.Len(t, agg.latencies, maxLatencySamples)
	// samples 0..9 were overwritten, leaving 10..maxLatencySamples+9
	stats := agg.Stats()
	assert.EqualValues(t, maxLatencySamples/2+10, stats.P50LatencyMs)
	assert.InDelta(t, float64(maxLatencySamples-1)/2+10, stats.AvgLatencyMs, 0.001)
}

func TestHandlerStats(t *testing.T) {
	agg := NewAggregator()
	agg.Record(event("go", 3))
	rec := httptest.NewRecorder()
	NewHandler(agg).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var stats AggregatedStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.EqualValues(t, 1, stats.TotalQueries)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestHandlerStatsTop(t *testing.T) {
	agg := NewAggregator()
	for i, tag := range []string{"go", "sql", "redis"} {
		for range i + 1 {
			agg.Record(event(tag, 1))
		}
	}
	h := NewHandler(agg)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics?top=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats AggregatedStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, []TagCount{{Tag: "redis", Count: 3}, {Tag: "sql", Count: 2}}, stats.TopTags)

	for _, top := range []string{"0", "101", "ten"} {
		rec := httptest.NewRecorder()
		h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics?top="+top, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, top)
		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Contains(t, body["error"], "top must be an integer")
	}
}

func TestHandleEvent(t *testing.T) {
	agg := NewAggregator()
	handle := HandleEvent(agg)

	value, err := json.Marshal(QueryEvent{Type: EventBoolean, Tag: "go", Tag2: "sql", Operator: "AND", Strategy: "bitmap", Returned: 4})
	require.NoError(t, err)
	require.NoError(t, handle(context.Background(), []byte("go"), value))
	assert.Error(t, handle(context.Background(), nil, []byte("not json")))

	stats := agg.Stats()
	assert.EqualValues(t, 1, stats.TotalQueries)
	assert.EqualValues(t, 1, stats.BooleanQueries)
	assert.EqualValues(t, 1, stats.Strategies["bitmap"])
}
