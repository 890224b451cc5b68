package executor

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/searcher/parser"
)

// fullResult pages through the whole result with the maximum page size.
func fullResult(t *testing.T, e *Engine, req BooleanRequest) []document.Position {
	t.Helper()
	req.PageSize = MaxPageSize
	var out []document.Position
	for req.Skip = 0; ; req.Skip += MaxPageSize {
		page, err := e.BooleanQuery(context.Background(), req)
		require.NoError(t, err)
		out = append(out, page.Positions...)
		if len(page.Positions) < MaxPageSize {
			return out
		}
	}
}

// isSubsequence reports whether every element of sub appears in seq in the
// same relative order.
func isSubsequence(sub, seq []document.Position) bool {
	i := 0
	for _, p := range seq {
		if i < len(sub) && sub[i] == p {
			i++
		}
	}
	return i == len(sub)
}

func TestStrategiesAgree(t *testing.T) {
	e := newEngine(t, randomDocs(17, 1500, 40), Options{})
	tags := e.Index().Tags()
	rng := rand.New(rand.NewPCG(2024, 7))
	ctx := context.Background()

	for i := range 300 {
		req := sampleRequest(rng, tags, 0)
		name := fmt.Sprintf("%d/%s_%s_%s/%s/skip%d/take%d/excl%v", i, req.Tag1, req.Operator, req.Tag2, req.Field, req.Skip, req.PageSize, req.Exclusions)
		t.Run(name, func(t *testing.T) {
			pages := make(map[parser.Strategy]*Page)
			for _, s := range parser.Strategies {
				req.Strategy = s
				page, err := e.BooleanQuery(ctx, req)
				require.NoError(t, err)
				assert.Len(t, page.Documents, len(page.Positions))
				assert.Equal(t, len(page.Positions), page.Stats.Returned)
				assert.LessOrEqual(t, len(page.Positions), req.PageSize)
				pages[s] = page
			}

			want := pages[parser.Naive].Positions
			assert.Equal(t, want, pages[parser.Pooled].Positions, "pooled")
			assert.Equal(t, want, pages[parser.Streaming].Positions, "streaming")
			// rank-space bitmaps decode in field order, so even the order matches
			assert.Equal(t, want, pages[parser.Bitmap].Positions, "bitmap")

			assert.Equal(t, pages[parser.Naive].Stats, pages[parser.Pooled].Stats)
			assert.LessOrEqual(t, pages[parser.Streaming].Stats.Scanned, pages[parser.Naive].Stats.Scanned)
		})
	}
}

func TestBloomOnlyOverExcludes(t *testing.T) {
	for _, bitsPer := range []int{1, 2, 10} {
		t.Run(fmt.Sprintf("bits%d", bitsPer), func(t *testing.T) {
			e := newEngine(t, randomDocs(23, 1200, 30), Options{BloomBitsPerElement: bitsPer})
			tags := e.Index().Tags()
			rng := rand.New(rand.NewPCG(uint64(bitsPer), 3))
			for range 60 {
				req := sampleRequest(rng, tags, 0)
				req.Strategy = parser.Streaming
				exact := fullResult(t, e, req)
				req.Strategy = parser.Bloom
				approx := fullResult(t, e, req)

				assert.LessOrEqual(t, len(approx), len(exact))
				assert.True(t, isSubsequence(approx, exact), "bloom result is not an ordered subset")
				if len(req.Exclusions) == 0 {
					assert.Equal(t, exact, approx)
				}
			}
		})
	}
}

func TestBooleanPaginationPartitionsResult(t *testing.T) {
	e := newEngine(t, randomDocs(5, 900, 20), Options{})
	ctx := context.Background()
	for _, s := range parser.Strategies {
		for _, op := range operators {
			req := BooleanRequest{
				Field: document.ViewCount, Tag1: "tag1", Tag2: "tag2", Operator: op,
				Exclusions: []string{"tag4"}, Strategy: s,
			}
			full := fullResult(t, e, req)

			var paged []document.Position
			req.PageSize = 13
			for req.Skip = 0; ; req.Skip += req.PageSize {
				page, err := e.BooleanQuery(ctx, req)
				require.NoError(t, err)
				if len(page.Positions) == 0 {
					break
				}
				paged = append(paged, page.Positions...)
			}
			assert.Equal(t, full, paged, "%s %s", s, op)
		}
	}
}

func TestResultOrderFollowsField(t *testing.T) {
	e := newEngine(t, randomDocs(8, 700, 15), Options{})
	store := e.Index().Store()
	for _, s := range parser.Strategies {
		for _, f := range document.SortFields {
			req := BooleanRequest{Field: f, Tag1: "tag0", Tag2: "tag1", Operator: parser.Or, Strategy: s}
			got := fullResult(t, e, req)
			assert.True(t, slices.IsSortedFunc(got, func(a, b document.Position) int {
				return store.Compare(f, a, b)
			}), "%s %s", s, f)
			assert.Len(t, got, len(slices.Compact(slices.Sorted(slices.Values(got)))), "duplicates in %s %s", s, f)
		}
	}
}

func TestOrIsTrueMergeForSkewedTags(t *testing.T) {
	// "big" has many low-score documents, "small" one high-score document
	// that must come first regardless of list lengths.
	var docs []document.Document
	for i := range 50 {
		docs = append(docs, document.Document{ID: int64(i + 1), Tags: []string{"big"}, Score: document.Int32(int32(i))})
	}
	docs = append(docs, document.Document{ID: 100, Tags: []string{"small"}, Score: document.Int32(1000)})
	e := newEngine(t, docs, Options{})

	for _, s := range parser.Strategies {
		page, err := e.BooleanQuery(context.Background(), BooleanRequest{
			Field: document.Score, Tag1: "big", Tag2: "small", Operator: parser.Or, PageSize: 3, Strategy: s,
		})
		require.NoError(t, err)
		assert.Equal(t, []int64{100, 50, 49}, pageIDs(page), s.String())
	}
}

func TestConcurrentQueriesUseSeparateScratch(t *testing.T) {
	e := newEngine(t, randomDocs(31, 1000, 20), Options{})
	tags := e.Index().Tags()
	rng := rand.New(rand.NewPCG(5, 5))

	type job struct {
		req  BooleanRequest
		want []document.Position
	}
	jobs := make([]job, 40)
	for i := range jobs {
		req := sampleRequest(rng, tags, 0)
		req.Strategy = parser.Naive
		page, err := e.BooleanQuery(context.Background(), req)
		require.NoError(t, err)
		jobs[i] = job{req: req, want: page.Positions}
	}

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i, j := range jobs {
				req := j.req
				req.Strategy = []parser.Strategy{parser.Pooled, parser.Streaming, parser.Bitmap}[(i+w)%3]
				page, err := e.BooleanQuery(context.Background(), req)
				if assert.NoError(t, err) {
					assert.Equal(t, j.want, page.Positions)
				}
			}
		}(w)
	}
	wg.Wait()
}
