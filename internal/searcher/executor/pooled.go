package executor

import (
	"iter"

	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/scratch"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/searcher/parser"
)

// pooled computes the whole result like naive but through the borrowed
// position sets and result buffer, so a warm scratch makes it allocation
// free.
type pooled struct{}

func (pooled) Kind() parser.Strategy { return parser.Pooled }

func (pooled) Evaluate(p *Plan, s *scratch.Scratch, st *Stats) (iter.Seq[document.Position], error) {
	loadExclusions(p, s.Excluded)

	keep := func(pos document.Position) {
		st.Scanned++
		if s.Excluded.Contains(pos) {
			st.Excluded++
			return
		}
		s.Buf = append(s.Buf, pos)
	}

	left, right := p.Left.Sorted(p.Field), p.Right.Sorted(p.Field)
	switch p.Operator {
	case parser.And:
		small, large := left, right
		if len(large) < len(small) {
			small, large = large, small
		}
		fill(s.Set, small)
		for _, pos := range large {
			if s.Set.Remove(pos) {
				keep(pos)
			}
		}
	case parser.Or:
		small, large := left, right
		if len(large) < len(small) {
			small, large = large, small
		}
		fill(s.Set, small)
		for pos := range merge(small, large, p.compare, s.Set.Contains) {
			keep(pos)
		}
	case parser.AndNot:
		fill(s.Set, right)
		for _, pos := range left {
			if !s.Set.Contains(pos) {
				keep(pos)
			}
		}
	default:
		fill(s.Set, right)
		for _, pos := range p.universe() {
			if !s.Set.Contains(pos) {
				keep(pos)
			}
		}
	}
	return sliceWindow(s.Buf, p.Skip, p.Take), nil
}

func fill(set *scratch.PositionSet, p indexer.Postings) {
	for _, pos := range p {
		set.Add(pos)
	}
}

// loadExclusions adds every position carrying an excluded tag.
func loadExclusions(p *Plan, set *scratch.PositionSet) {
	for _, e := range p.Exclusions {
		fill(set, e.Sorted(p.Field))
	}
}
