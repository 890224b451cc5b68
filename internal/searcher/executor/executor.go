package executor

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/bloom"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/scratch"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/logger"
)

const (
	MinPageSize = 1
	MaxPageSize = 250

	DefaultBloomBitsPerElement = 10
)

// Stats are diagnostic counters for one query. Scanned is the number of
// candidate positions the strategy pulled from postings or bitmaps; the lazy
// strategies stop early, so it varies by strategy. Excluded is how many of
// those were dropped by the exclusion set.
type Stats struct {
	Scanned  int `json:"scanned"`
	Excluded int `json:"excluded"`
	Returned int `json:"returned"`
}

type Page struct {
	Documents []document.Document `json:"results"`
	Positions []document.Position `json:"-"`
	Stats     Stats               `json:"stats"`
}

type QueryRequest struct {
	Field      document.SortField
	Tag        string
	PageSize   int
	Skip       int
	Exclusions []string
}

type BooleanRequest struct {
	Field      document.SortField
	Tag1       string
	Tag2       string
	Operator   parser.Operator
	PageSize   int
	Skip       int
	Exclusions []string
	Strategy   parser.Strategy
}

type Options struct {
	// BloomBitsPerElement sizes the bloom filters as documents times this.
	BloomBitsPerElement int
}

// Engine answers queries against one built index. It is safe for concurrent
// use; every query borrows its own scratch from the engine's pool.
type Engine struct {
	index      *indexer.Index
	pool       *scratch.Pool
	strategies map[parser.Strategy]Strategy
	logger     *slog.Logger
}

func New(ix *indexer.Index, opts Options) *Engine {
	bitsPer := opts.BloomBitsPerElement
	if bitsPer <= 0 {
		bitsPer = DefaultBloomBitsPerElement
	}
	return &Engine{
		index:      ix,
		pool: scratch.NewPool(scratch.Sizes{
			Excluded:  ix.Len(),
			Set:       ix.MaxTagCount(),
			BloomBits: bloom.SizeFor(ix.Len(), bitsPer),
		}),
		strategies: strategies(),
		logger:     slog.Default().With("component", "query-engine"),
	}
}

func (e *Engine) Index() *indexer.Index {
	return e.index
}

// Pool exposes the scratch pool for diagnostics.
func (e *Engine) Pool() *scratch.Pool {
	return e.pool
}

// Query returns one page of documents carrying tag, in field order. Without
// exclusions the page is a slice of the postings; with exclusions the
// postings are streamed through the pooled exclusion set until the page is
// full.
func (e *Engine) Query(ctx context.Context, req QueryRequest) (*Page, error) {
	if err := validateWindow(req.Field, req.PageSize, req.Skip); err != nil {
		return nil, err
	}
	entry, err := e.index.Lookup(req.Tag)
	if err != nil {
		return nil, err
	}
	postings := entry.Sorted(req.Field)
	exclusions := e.index.ExclusionEntries(req.Exclusions)

	page := &Page{}
	if len(exclusions) == 0 {
		win := slices.Clone(postings.Window(req.Skip, req.PageSize))
		page.Stats.Scanned = len(win)
		e.fill(page, win)
	} else {
		s := e.pool.Get()
		defer e.pool.Put(s)
		loadExclusions(&Plan{Field: req.Field, Exclusions: exclusions}, s.Excluded)
		seq := window(each(postings), s.Excluded.Contains, req.Skip, req.PageSize, &page.Stats)
		e.collect(page, seq, req.PageSize)
	}

	logger.FromContext(ctx).Debug("tag query executed",
		"tag", req.Tag,
		"field", req.Field.String(),
		"skip", req.Skip,
		"page_size", req.PageSize,
		"exclusions", len(exclusions),
		"scanned", page.Stats.Scanned,
		"excluded", page.Stats.Excluded,
		"returned", page.Stats.Returned,
	)
	return page, nil
}

// BooleanQuery combines two tags with an operator, removes documents
// carrying any excluded tag and returns one page in field order, using the
// requested strategy. An unknown tag on either side fails the whole call.
func (e *Engine) BooleanQuery(ctx context.Context, req BooleanRequest) (*Page, error) {
	plan, err := e.Plan(req)
	if err != nil {
		return nil, err
	}
	strategy, ok := e.strategies[req.Strategy]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidStrategy, req.Strategy)
	}

	s := e.pool.Get()
	defer e.pool.Put(s)

	page := &Page{}
	seq, err := strategy.Evaluate(plan, s, &page.Stats)
	if err != nil {
		e.logger.Error("strategy failed",
			"strategy", req.Strategy.String(),
			"operator", req.Operator.String(),
			"error", err,
		)
		return nil, err
	}
	e.collect(page, seq, req.PageSize)

	logger.FromContext(ctx).Debug("boolean query executed",
		"tag1", req.Tag1,
		"tag2", req.Tag2,
		"operator", req.Operator.String(),
		"strategy", req.Strategy.String(),
		"field", req.Field.String(),
		"exclusions", len(plan.Exclusions),
		"scanned", page.Stats.Scanned,
		"excluded", page.Stats.Excluded,
		"returned", page.Stats.Returned,
	)
	return page, nil
}

// Plan validates req and resolves its tags.
func (e *Engine) Plan(req BooleanRequest) (*Plan, error) {
	if err := validateWindow(req.Field, req.PageSize, req.Skip); err != nil {
		return nil, err
	}
	if req.Operator < parser.And || req.Operator > parser.OrNot {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidOperator, req.Operator)
	}
	left, err := e.index.Lookup(req.Tag1)
	if err != nil {
		return nil, err
	}
	right, err := e.index.Lookup(req.Tag2)
	if err != nil {
		return nil, err
	}
	return &Plan{
		Index:      e.index,
		Field:      req.Field,
		Left:       left,
		Right:      right,
		Operator:   req.Operator,
		Exclusions: e.index.ExclusionEntries(req.Exclusions),
		Skip:       req.Skip,
		Take:       req.PageSize,
	}, nil
}

// Materialize rebuilds a page from positions computed earlier, such as a
// cached page. Positions outside the store are an internal error.
func (e *Engine) Materialize(positions []document.Position, stats Stats) (*Page, error) {
	n := e.index.Len()
	for _, pos := range positions {
		if int(pos) >= n {
			return nil, fmt.Errorf("%w: position %d outside store of %d documents", apperrors.ErrInternal, pos, n)
		}
	}
	page := &Page{Stats: stats}
	e.fill(page, slices.Clone(positions))
	return page, nil
}

func validateWindow(field document.SortField, pageSize, skip int) error {
	if !field.Valid() {
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidSortField, field)
	}
	if pageSize < MinPageSize || pageSize > MaxPageSize {
		return fmt.Errorf("%w: %d not in [%d,%d]", apperrors.ErrInvalidPageSize, pageSize, MinPageSize, MaxPageSize)
	}
	if skip < 0 {
		return fmt.Errorf("%w: negative skip %d", apperrors.ErrInvalidInput, skip)
	}
	return nil
}

// collect drains seq while the scratch it may read from is still borrowed.
func (e *Engine) collect(page *Page, seq iter.Seq[document.Position], pageSize int) {
	positions := make([]document.Position, 0, pageSize)
	for pos := range seq {
		positions = append(positions, pos)
	}
	e.fill(page, positions)
}

func (e *Engine) fill(page *Page, positions []document.Position) {
	page.Positions = positions
	page.Documents = e.index.Store().Resolve(positions)
	page.Stats.Returned = len(positions)
}
