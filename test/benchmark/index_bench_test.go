// Package benchmark contains Go benchmarks for the index build and the query
// strategies, measuring throughput and allocation behaviour over synthetic
// corpora with a skewed tag distribution.
package benchmark

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/indexer"
)

// corpus generates n documents. Tag i is chosen with weight roughly 1/(i+1),
// so a few tags are very large and most are small.
func corpus(n, tags int) []document.Document {
	rng := rand.New(rand.NewPCG(42, uint64(n)))
	zipf := rand.NewZipf(rng, 1.1, 1, uint64(tags-1))
	base := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	docs := make([]document.Document, n)
	for i := range docs {
		d := document.Document{
			ID:           int64(i + 1),
			Title:        fmt.Sprintf("question %d", i),
			CreationDate: base.Add(time.Duration(rng.IntN(1 << 20)) * time.Minute),
			Score:        document.Int32(int32(rng.IntN(200) - 20)),
			ViewCount:    document.Int32(int32(rng.IntN(100000))),
		}
		if rng.IntN(4) != 0 {
			d.LastActivityDate = d.CreationDate.Add(time.Duration(rng.IntN(1 << 16)) * time.Minute)
		}
		if rng.IntN(3) != 0 {
			d.AnswerCount = document.Int32(int32(rng.IntN(12)))
		}
		for range 1 + rng.IntN(5) {
			d.Tags = append(d.Tags, fmt.Sprintf("tag%d", zipf.Uint64()))
		}
		docs[i] = d
	}
	return docs
}

func build(b *testing.B, n, tags int) *indexer.Index {
	b.Helper()
	ix, err := indexer.Build(context.Background(), document.NewStore(corpus(n, tags)), indexer.Options{})
	if err != nil {
		b.Fatal(err)
	}
	return ix
}

// BenchmarkBuild measures the full build (grouping, sorting every field,
// bitmaps and verification) at several corpus sizes.
func BenchmarkBuild(b *testing.B) {
	for _, n := range []int{1000, 10000, 100000} {
		b.Run(fmt.Sprintf("docs_%d", n), func(b *testing.B) {
			docs := corpus(n, 500)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := indexer.Build(context.Background(), document.NewStore(docs), indexer.Options{}); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkBuildParallelism compares a single build worker with the default.
func BenchmarkBuildParallelism(b *testing.B) {
	docs := corpus(50000, 500)
	for _, workers := range []int{1, 0} {
		b.Run(fmt.Sprintf("workers_%d", workers), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := indexer.Build(context.Background(), document.NewStore(docs), indexer.Options{Parallelism: workers}); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkFingerprint(b *testing.B) {
	ix := build(b, 50000, 500)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ix.Fingerprint()
	}
}
