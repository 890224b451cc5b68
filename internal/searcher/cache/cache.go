package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/searcher/executor"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/resilience"
)

const keyPrefix = "tq:page:"

// Backend is the subset of the Redis client the cache needs.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Key identifies one page of one query. Two keys that differ only in
// exclusion order or repeats hash the same.
type Key struct {
	Tag        string
	Tag2       string
	Operator   string
	Field      string
	Strategy   string
	Skip       int
	PageSize   int
	Exclusions []string
}

// Entry is what gets cached: positions, not documents, since the documents
// live in the in-process store.
type Entry struct {
	Positions []document.Position `json:"positions"`
	Stats     executor.Stats      `json:"stats"`
}

// BreakerName labels the page cache's circuit breaker in logs and metrics.
const BreakerName = "redis-page-cache"

type PageCache struct {
	backend    Backend
	ttl        time.Duration
	generation string
	breaker    *resilience.CircuitBreaker
	group      singleflight.Group
	logger     *slog.Logger
	hits       atomic.Int64
	misses     atomic.Int64
}

type options struct {
	breaker  resilience.CircuitBreakerConfig
	observer func(resilience.State)
}

// Option configures a PageCache.
type Option func(*options)

// WithBreakerConfig overrides the Redis circuit breaker thresholds.
func WithBreakerConfig(cfg resilience.CircuitBreakerConfig) Option {
	return func(o *options) {
		o.breaker = cfg
	}
}

// WithBreakerObserver registers fn to receive the breaker state at
// construction and on every transition after it.
func WithBreakerObserver(fn func(resilience.State)) Option {
	return func(o *options) {
		o.observer = fn
	}
}

// New creates a page cache. generation is mixed into every key so entries
// written for a different corpus are never served.
func New(backend Backend, ttl time.Duration, generation string, opts ...Option) *PageCache {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.observer != nil {
		observer, next := o.observer, o.breaker.OnStateChange
		o.breaker.OnStateChange = func(name string, from, to resilience.State) {
			observer(to)
			if next != nil {
				next(name, from, to)
			}
		}
	}
	c := &PageCache{
		backend:    backend,
		ttl:        ttl,
		generation: generation,
		breaker:    resilience.NewCircuitBreaker(BreakerName, o.breaker),
		logger:     slog.Default().With("component", "page-cache"),
	}
	if o.observer != nil {
		o.observer(c.breaker.GetState())
	}
	return c
}

// Get looks k up and counts exactly one hit or miss.
func (c *PageCache) Get(ctx context.Context, k Key) (*Entry, bool) {
	entry, ok := c.lookup(ctx, c.buildKey(k))
	c.record(ok)
	return entry, ok
}

// lookup reads key through the breaker without touching the hit counters.
// Corrupt entries are evicted and reported as absent.
func (c *PageCache) lookup(ctx context.Context, key string) (*Entry, bool) {
	var data string
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.backend.Get(ctx, key)
		if pkgredis.IsNilError(err) {
			return nil
		}
		return err
	})
	if err != nil {
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	if data == "" {
		return nil, false
	}
	var entry Entry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		c.logger.Error("cache unmarshal failed, evicting", "key", key, "error", err)
		if err := c.backend.Del(ctx, key); err != nil {
			c.logger.Warn("cache evict failed", "key", key, "error", err)
		}
		return nil, false
	}
	c.logger.Debug("cache hit", "key", key)
	return &entry, true
}

func (c *PageCache) record(hit bool) {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
}

func (c *PageCache) Set(ctx context.Context, k Key, entry *Entry) {
	c.store(ctx, c.buildKey(k), entry)
}

func (c *PageCache) store(ctx context.Context, key string, entry *Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.backend.Set(ctx, key, data, c.ttl)
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute serves k from the cache, or computes it once for all
// concurrent callers asking for the same key and stores the result. The
// boolean reports a cache hit, and each call counts one hit or one miss to
// match it. A caller that waited on another's computation is a miss.
func (c *PageCache) GetOrCompute(ctx context.Context, k Key, compute func() (*Entry, error)) (*Entry, bool, error) {
	key := c.buildKey(k)
	if entry, ok := c.lookup(ctx, key); ok {
		c.record(true)
		return entry, true, nil
	}
	c.record(false)
	val, err, _ := c.group.Do(key, func() (any, error) {
		// a flight that finished just before this one began may have stored it
		if entry, ok := c.lookup(ctx, key); ok {
			return entry, nil
		}
		entry, err := compute()
		if err != nil {
			return nil, err
		}
		c.store(ctx, key, entry)
		return entry, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*Entry), false, nil
}

func (c *PageCache) Invalidate(ctx context.Context) error {
	deleted, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

func (c *PageCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// BreakerState reports the Redis circuit breaker state.
func (c *PageCache) BreakerState() resilience.State {
	return c.breaker.GetState()
}

func (c *PageCache) buildKey(k Key) string {
	excl := slices.Clone(k.Exclusions)
	slices.Sort(excl)
	excl = slices.Compact(excl)
	raw := strings.Join([]string{
		c.generation,
		k.Tag, k.Tag2, k.Operator, k.Field, k.Strategy,
		fmt.Sprintf("skip=%d", k.Skip),
		fmt.Sprintf("size=%d", k.PageSize),
		"not:" + strings.Join(excl, ","),
	}, "|")
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
