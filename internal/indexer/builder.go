// Package indexer builds the immutable tag index: per tag and sort field a
// postings list and a rank-space bitmap, plus the ALL universe entry, all
// verified before the index is handed out.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/bitmap"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/tracing"
)

type Options struct {
	// Parallelism bounds concurrent sort and bitmap workers. Zero means
	// GOMAXPROCS.
	Parallelism int
}

// Build indexes every document in store. Any invariant violation found
// after the build is returned as an error wrapping ErrBuildInvariant and no
// index is produced.
func Build(ctx context.Context, store *document.Store, opts Options) (*Index, error) {
	logger := slog.Default().With("component", "indexer")
	ctx, span := tracing.StartChildSpan(ctx, "index.build")
	defer span.End()
	start := time.Now()

	workers := opts.Parallelism
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	ix := group(ctx, store)
	logger.Debug("positions grouped", "tags", len(ix.names), "documents", store.Len())

	if err := sortPostings(ctx, ix, workers); err != nil {
		return nil, err
	}
	logger.Debug("postings sorted")

	if err := buildBitmaps(ctx, ix, workers); err != nil {
		return nil, err
	}
	logger.Debug("bitmaps built")

	_, verifySpan := tracing.StartChildSpan(ctx, "index.verify")
	err := Verify(ix)
	verifySpan.End()
	if err != nil {
		return nil, err
	}

	span.SetAttr("tags", len(ix.names))
	span.SetAttr("documents", store.Len())
	logger.Info("index built",
		"tags", len(ix.names),
		"documents", store.Len(),
		"max_tag_count", ix.maxCount,
		"duration", time.Since(start),
	)
	return ix, nil
}

// group makes one pass over the store collecting each tag's positions in
// store order. The grouped positions are kept in Postings[0] until sorting.
func group(ctx context.Context, store *document.Store) *Index {
	_, span := tracing.StartChildSpan(ctx, "index.group")
	defer span.End()

	n := store.Len()
	ix := &Index{
		store: store,
		tags:  make(map[string]*TagEntry),
	}
	for i := range n {
		pos := document.Position(i)
		for _, tag := range store.At(pos).Tags {
			e, ok := ix.tags[tag]
			if !ok {
				e = &TagEntry{Name: tag, Members: roaring.New()}
				ix.tags[tag] = e
				ix.names = append(ix.names, tag)
			}
			e.Postings[0] = append(e.Postings[0], pos)
			e.Members.Add(uint32(pos))
		}
	}
	slices.Sort(ix.names)

	all := make(Postings, n)
	for i := range all {
		all[i] = document.Position(i)
	}
	members := roaring.New()
	members.AddRange(0, uint64(n))
	ix.universe = &TagEntry{Name: UniverseTag, Members: members}
	ix.universe.Postings[0] = all

	for _, e := range ix.tags {
		e.Members.RunOptimize()
		ix.maxCount = max(ix.maxCount, len(e.Postings[0]))
	}
	span.SetAttr("tags", len(ix.names))
	return ix
}

// sortPostings orders each entry's positions for every field. Entries are
// sorted independently so workers never share mutable state.
func sortPostings(ctx context.Context, ix *Index, workers int) error {
	ctx, span := tracing.StartChildSpan(ctx, "index.sort")
	defer span.End()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, e := range ix.entries() {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			grouped := e.Postings[0]
			for _, f := range document.SortFields {
				sorted := slices.Clone(grouped)
				slices.SortFunc(sorted, func(a, b document.Position) int {
					return ix.store.Compare(f, a, b)
				})
				e.Postings[f] = sorted
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("sorting postings: %w", err)
	}
	return nil
}

// buildBitmaps walks the universe postings of each field in rank order and
// sets bit rank in the bitmap of every tag the document carries. Fields run
// in parallel; each writes only its own Bitmaps slot.
func buildBitmaps(ctx context.Context, ix *Index, workers int) error {
	ctx, span := tracing.StartChildSpan(ctx, "index.bitmaps")
	defer span.End()

	n := uint64(ix.store.Len())
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, f := range document.SortFields {
		g.Go(func() error {
			for _, e := range ix.tags {
				e.Bitmaps[f] = bitmap.New(n)
			}
			for rank, pos := range ix.universe.Postings[f] {
				if rank%4096 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				for _, tag := range ix.store.At(pos).Tags {
					if err := ix.tags[tag].Bitmaps[f].Set(uint64(rank)); err != nil {
						return fmt.Errorf("tag %q field %s: %w", tag, f, err)
					}
				}
			}
			universe := bitmap.New(n)
			universe.Not()
			ix.universe.Bitmaps[f] = universe
			for _, e := range ix.tags {
				e.Bitmaps[f].Shrink()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("building bitmaps: %w", err)
	}
	return nil
}
