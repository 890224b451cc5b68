package executor

import (
	"fmt"
	"iter"

	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/scratch"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/searcher/parser"
)

// bitmapStrategy combines the precomputed rank-space bitmaps and decodes the
// window. Bit i stands for rank i of the universe postings for the field, so
// decoding in ascending bit order is already field order.
type bitmapStrategy struct{}

func (bitmapStrategy) Kind() parser.Strategy { return parser.Bitmap }

func (bitmapStrategy) Evaluate(p *Plan, _ *scratch.Scratch, st *Stats) (iter.Seq[document.Position], error) {
	res := p.Left.Bitmap(p.Field).Clone()
	right := p.Right.Bitmap(p.Field)

	var err error
	switch p.Operator {
	case parser.And:
		err = res.And(right)
	case parser.Or:
		err = res.Or(right)
	case parser.AndNot:
		err = res.AndNot(right)
	default:
		if err = res.Or(p.Index.Universe().Bitmap(p.Field)); err == nil {
			err = res.AndNot(right)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%s of %q and %q: %w", p.Operator, p.Left.Name, p.Right.Name, err)
	}

	candidates := res.Cardinality()
	if len(p.Exclusions) > 0 {
		mask, err := indexer.ExclusionBitmap(p.Field, p.Exclusions)
		if err != nil {
			return nil, err
		}
		if err := res.AndNot(mask); err != nil {
			return nil, fmt.Errorf("applying exclusions: %w", err)
		}
	}
	survivors := res.Cardinality()
	st.Scanned += int(candidates)
	st.Excluded += int(candidates - survivors)

	ranks := p.universe()
	return func(yield func(document.Position) bool) {
		if p.Skip < 0 || p.Take <= 0 {
			return
		}
		for rank := range res.Positions(uint64(p.Skip), uint64(p.Take)) {
			if !yield(ranks[rank]) {
				return
			}
		}
	}, nil
}
