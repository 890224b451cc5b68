package analytics

import (
	"cmp"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// maxLatencySamples bounds memory: once full, new samples overwrite the
// oldest.
const maxLatencySamples = 10000

// Bounds for the tag rankings in a snapshot.
const (
	DefaultTopTags = 10
	MaxTopTags     = 100
)

type AggregatedStats struct {
	TotalQueries     int64            `json:"total_queries"`
	BooleanQueries   int64            `json:"boolean_queries"`
	Failed           int64            `json:"failed"`
	CacheHits        int64            `json:"cache_hits"`
	CacheMisses      int64            `json:"cache_misses"`
	ZeroResultCount  int64            `json:"zero_result_count"`
	AvgLatencyMs     float64          `json:"avg_latency_ms"`
	P50LatencyMs     int64            `json:"p50_latency_ms"`
	P95LatencyMs     int64            `json:"p95_latency_ms"`
	P99LatencyMs     int64            `json:"p99_latency_ms"`
	TopTags          []TagCount       `json:"top_tags"`
	ZeroResultTags   []TagCount       `json:"zero_result_tags"`
	Strategies       map[string]int64 `json:"strategies"`
	QueriesPerMinute float64          `json:"queries_per_minute"`
}

type TagCount struct {
	Tag   string `json:"tag"`
	Count int64  `json:"count"`
}

// Aggregator keeps running totals over QueryEvents in process.
type Aggregator struct {
	mu             sync.RWMutex
	totalQueries   atomic.Int64
	booleanQueries atomic.Int64
	failed         atomic.Int64
	cacheHits      atomic.Int64
	cacheMisses    atomic.Int64
	zeroResults    atomic.Int64
	latencies      []int64
	next           int
	tagCounts      map[string]int64
	zeroResultTags map[string]int64
	strategies     map[string]int64
	startTime      time.Time
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:      make([]int64, 0, 1024),
		tagCounts:      make(map[string]int64),
		zeroResultTags: make(map[string]int64),
		strategies:     make(map[string]int64),
		startTime:      time.Now(),
	}
}

func (a *Aggregator) Record(event QueryEvent) {
	a.totalQueries.Add(1)
	if event.Type == EventBoolean {
		a.booleanQueries.Add(1)
	}
	if event.Error != "" {
		a.failed.Add(1)
		return
	}
	if event.CacheHit {
		a.cacheHits.Add(1)
	} else {
		a.cacheMisses.Add(1)
	}
	zero := event.Returned == 0 && event.Skip == 0
	if zero {
		a.zeroResults.Add(1)
	}

	label := event.Tag
	if event.Tag2 != "" {
		label = event.Tag + " " + event.Operator + " " + event.Tag2
	}

	a.mu.Lock()
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.next] = event.LatencyMs
		a.next = (a.next + 1) % maxLatencySamples
	}
	a.tagCounts[label]++
	if zero {
		a.zeroResultTags[label]++
	}
	if event.Strategy != "" {
		a.strategies[event.Strategy]++
	}
	a.mu.Unlock()
}

// Stats is Snapshot with DefaultTopTags entries per tag ranking.
func (a *Aggregator) Stats() AggregatedStats {
	return a.Snapshot(DefaultTopTags)
}

// Snapshot aggregates everything recorded so far, keeping the top most
// queried and most fruitless tags.
func (a *Aggregator) Snapshot(top int) AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalQueries:    a.totalQueries.Load(),
		BooleanQueries:  a.booleanQueries.Load(),
		Failed:          a.failed.Load(),
		CacheHits:       a.cacheHits.Load(),
		CacheMisses:     a.cacheMisses.Load(),
		ZeroResultCount: a.zeroResults.Load(),
		Strategies:      make(map[string]int64, len(a.strategies)),
	}
	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopTags = topN(a.tagCounts, top)
	stats.ZeroResultTags = topN(a.zeroResultTags, top)
	for k, v := range a.strategies {
		stats.Strategies[k] = v
	}
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalQueries) / elapsed
	}

	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count, then by tag so ties are stable.
func topN(counts map[string]int64, n int) []TagCount {
	result := make([]TagCount, 0, len(counts))
	for tag, count := range counts {
		result = append(result, TagCount{Tag: tag, Count: count})
	}
	slices.SortFunc(result, func(a, b TagCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Tag, b.Tag)
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
