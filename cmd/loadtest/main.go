package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	RPS         float64
	Strategies  []string
	Tags        []string
}

var operators = []string{"AND", "OR", "AND-NOT", "OR-NOT"}

var sortFields = []string{"creationDate", "lastActivityDate", "score", "viewCount", "answerCount"}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	cacheHits     atomic.Int64
	latencies     map[string][]time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make(map[string][]time.Duration),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(strategy string, duration time.Duration, statusCode int, cacheHit bool, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}
	if cacheHit {
		s.cacheHits.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies[strategy] = append(s.latencies[strategy], duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the query service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	rps := flag.Float64("rps", 0, "overall request rate limit (0 means unlimited)")
	strategies := flag.String("strategies", "naive,pooled,streaming,bitmap,bloom", "comma-separated strategies to exercise")
	tagCount := flag.Int("tags", 50, "number of most common tags to draw queries from")
	flag.Parse()

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        *concurrency * 2,
			MaxIdleConnsPerHost: *concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	tags, err := fetchTags(client, *baseURL, *tagCount)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to discover tags: %v\n", err)
		os.Exit(1)
	}
	if len(tags) == 0 {
		fmt.Fprintln(os.Stderr, "the index has no tags")
		os.Exit(1)
	}

	cfg := Config{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Duration:    *duration,
		RPS:         *rps,
		Strategies:  strings.Split(*strategies, ","),
		Tags:        tags,
	}

	fmt.Println("=== Tag Query Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Tags:        %d\n", len(cfg.Tags))
	fmt.Printf("Strategies:  %s\n", strings.Join(cfg.Strategies, ", "))
	fmt.Println()

	stats := runLoadTest(client, cfg)
	printReport(stats, cfg.Duration)
}

func fetchTags(client *http.Client, baseURL string, n int) ([]string, error) {
	resp, err := client.Get(fmt.Sprintf("%s/api/v1/tags?take=%d", baseURL, n))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var body struct {
		Tags []struct {
			Tag string `json:"tag"`
		} `json:"tags"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	tags := make([]string, len(body.Tags))
	for i, t := range body.Tags {
		tags[i] = t.Tag
	}
	return tags, nil
}

// queryURL builds a random boolean query. Roughly one in four carries an
// exclusion.
func queryURL(rng *rand.Rand, cfg Config, strategy string) string {
	q := url.Values{
		"tag1":     {cfg.Tags[rng.IntN(len(cfg.Tags))]},
		"tag2":     {cfg.Tags[rng.IntN(len(cfg.Tags))]},
		"op":       {operators[rng.IntN(len(operators))]},
		"sort":     {sortFields[rng.IntN(len(sortFields))]},
		"strategy": {strategy},
		"pageSize": {"20"},
		"skip":     {fmt.Sprint(20 * rng.IntN(5))},
	}
	if rng.IntN(4) == 0 {
		q.Set("exclude", cfg.Tags[rng.IntN(len(cfg.Tags))])
	}
	return cfg.BaseURL + "/api/v1/questions/boolean?" + q.Encode()
}

func runLoadTest(client *http.Client, cfg Config) *Stats {
	stats := NewStats()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	limiter := rate.NewLimiter(limit, cfg.Concurrency)

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(uint64(workerID), uint64(time.Now().UnixNano())))
			n := workerID

			for {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				strategy := cfg.Strategies[n%len(cfg.Strategies)]
				n++

				start := time.Now()
				resp, err := client.Do(mustNewRequest(ctx, queryURL(rng, cfg, strategy)))
				duration := time.Since(start)

				if err != nil {
					if ctx.Err() != nil {
						return
					}
					stats.RecordRequest(strategy, duration, 0, false, err)
					continue
				}
				var body struct {
					CacheHit bool `json:"cache_hit"`
				}
				json.NewDecoder(resp.Body).Decode(&body)
				resp.Body.Close()

				stats.RecordRequest(strategy, duration, resp.StatusCode, body.CacheHit, nil)
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func mustNewRequest(ctx context.Context, rawURL string) *http.Request {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		panic(fmt.Sprintf("creating request: %v", err))
	}
	return req
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", errors)
	fmt.Printf("Cache Hits:      %d\n", stats.cacheHits.Load())

	if total > 0 {
		errorRate := float64(errors) / float64(total) * 100
		fmt.Printf("Error Rate:      %.2f%%\n", errorRate)
		rps := float64(total) / duration.Seconds()
		fmt.Printf("Requests/sec:    %.2f\n", rps)
	}

	stats.latenciesMu.Lock()
	byStrategy := make(map[string][]time.Duration, len(stats.latencies))
	var all []time.Duration
	for s, l := range stats.latencies {
		byStrategy[s] = slices.Clone(l)
		all = append(all, l...)
	}
	stats.latenciesMu.Unlock()

	if len(all) > 0 {
		slices.Sort(all)

		var sum time.Duration
		for _, l := range all {
			sum += l
		}
		avg := sum / time.Duration(len(all))

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", all[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(all, 50))
		fmt.Printf("P90:    %s\n", percentile(all, 90))
		fmt.Printf("P95:    %s\n", percentile(all, 95))
		fmt.Printf("P99:    %s\n", percentile(all, 99))
		fmt.Printf("Max:    %s\n", all[len(all)-1])

		var sumSquared float64
		avgFloat := float64(avg)
		for _, l := range all {
			diff := float64(l) - avgFloat
			sumSquared += diff * diff
		}
		stddev := time.Duration(math.Sqrt(sumSquared / float64(len(all))))
		fmt.Printf("StdDev: %s\n", stddev)

		fmt.Println()
		fmt.Println("=== Latency by Strategy ===")
		names := make([]string, 0, len(byStrategy))
		for s := range byStrategy {
			names = append(names, s)
		}
		sort.Strings(names)
		for _, s := range names {
			l := byStrategy[s]
			slices.Sort(l)
			fmt.Printf("  %-10s n=%-7d p50=%-10s p99=%s\n", s, len(l), percentile(l, 50), percentile(l, 99))
		}
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		count := stats.statusCodes[code].Load()
		fmt.Printf("  %d: %d\n", code, count)
	}
	stats.statusCodesMu.Unlock()

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
