package executor

import (
	"iter"

	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/scratch"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/searcher/parser"
)

// Plan is a validated boolean query with its tags resolved.
type Plan struct {
	Index    *indexer.Index
	Field    document.SortField
	Left     *indexer.TagEntry
	Right    *indexer.TagEntry
	Operator parser.Operator
	// Exclusions holds only tags present in the index, without repeats.
	Exclusions []*indexer.TagEntry
	Skip       int
	Take       int
}

func (p *Plan) compare(a, b document.Position) int {
	return p.Index.Store().Compare(p.Field, a, b)
}

func (p *Plan) universe() indexer.Postings {
	return p.Index.Universe().Sorted(p.Field)
}

// Strategy evaluates a plan into the requested page window. The returned
// sequence may read from s and must be drained before s goes back to the
// pool. Scanned and Excluded are accumulated into st as the sequence is
// consumed.
type Strategy interface {
	Kind() parser.Strategy
	Evaluate(p *Plan, s *scratch.Scratch, st *Stats) (iter.Seq[document.Position], error)
}

func strategies() map[parser.Strategy]Strategy {
	m := make(map[parser.Strategy]Strategy)
	for _, s := range []Strategy{naive{}, pooled{}, streaming{}, bitmapStrategy{}, bloomStrategy{}} {
		m[s.Kind()] = s
	}
	return m
}

// window drops excluded candidates, skips the first skip survivors and
// yields at most take, stopping the candidate sequence as soon as the page
// is full.
func window(candidates iter.Seq[document.Position], excluded func(document.Position) bool, skip, take int, st *Stats) iter.Seq[document.Position] {
	return func(yield func(document.Position) bool) {
		if take <= 0 {
			return
		}
		skip, take := skip, take
		for pos := range candidates {
			st.Scanned++
			if excluded != nil && excluded(pos) {
				st.Excluded++
				continue
			}
			if skip > 0 {
				skip--
				continue
			}
			if !yield(pos) {
				return
			}
			if take--; take == 0 {
				return
			}
		}
	}
}

// sliceWindow yields buf[skip:skip+take].
func sliceWindow(buf []document.Position, skip, take int) iter.Seq[document.Position] {
	return func(yield func(document.Position) bool) {
		if skip >= len(buf) || take <= 0 {
			return
		}
		for _, pos := range buf[skip:min(skip+take, len(buf))] {
			if !yield(pos) {
				return
			}
		}
	}
}

func each(p indexer.Postings) iter.Seq[document.Position] {
	return func(yield func(document.Position) bool) {
		for _, pos := range p {
			if !yield(pos) {
				return
			}
		}
	}
}

// filtered yields positions of base for which keep holds.
func filtered(base indexer.Postings, keep func(document.Position) bool) iter.Seq[document.Position] {
	return func(yield func(document.Position) bool) {
		for _, pos := range base {
			if keep(pos) && !yield(pos) {
				return
			}
		}
	}
}

// merge yields the union of two postings lists sorted by the same total
// order, in that order. A position present in both is yielded once.
// skipRight, when set, drops right-hand positions the caller already knows
// the left side carries.
func merge(left, right indexer.Postings, compare func(a, b document.Position) int, skipRight func(document.Position) bool) iter.Seq[document.Position] {
	return func(yield func(document.Position) bool) {
		i, j := 0, 0
		for i < len(left) || j < len(right) {
			if j < len(right) && skipRight != nil && skipRight(right[j]) {
				j++
				continue
			}
			var pos document.Position
			switch {
			case j >= len(right):
				pos = left[i]
				i++
			case i >= len(left):
				pos = right[j]
				j++
			default:
				c := compare(left[i], right[j])
				switch {
				case c < 0:
					pos = left[i]
					i++
				case c > 0:
					pos = right[j]
					j++
				default:
					pos = left[i]
					i++
					j++
				}
			}
			if !yield(pos) {
				return
			}
		}
	}
}

// candidates is the lazy operator result in field order, used by the
// streaming strategies. Membership in the other operand is answered by the
// tag's position-space bitmap, so nothing is materialised.
func candidates(p *Plan) iter.Seq[document.Position] {
	left, right := p.Left.Sorted(p.Field), p.Right.Sorted(p.Field)
	switch p.Operator {
	case parser.And:
		base, other := p.Left, p.Right
		if len(right) < len(left) {
			base, other = p.Right, p.Left
		}
		return filtered(base.Sorted(p.Field), other.Contains)
	case parser.Or:
		return merge(left, right, p.compare, nil)
	case parser.AndNot:
		return filtered(left, func(pos document.Position) bool { return !p.Right.Contains(pos) })
	default:
		// (left ∪ universe) \ right; the union is the universe itself.
		return filtered(p.universe(), func(pos document.Position) bool { return !p.Right.Contains(pos) })
	}
}
