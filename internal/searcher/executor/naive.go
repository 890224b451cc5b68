package executor

import (
	"iter"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/scratch"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/searcher/parser"
)

// naive materialises the full result with freshly allocated maps, sorts it
// in field order, and only then cuts the window. It ignores the scratch.
type naive struct{}

func (naive) Kind() parser.Strategy { return parser.Naive }

func (naive) Evaluate(p *Plan, _ *scratch.Scratch, st *Stats) (iter.Seq[document.Position], error) {
	left := toSet(p.Left.Sorted(p.Field))
	right := toSet(p.Right.Sorted(p.Field))

	var result map[document.Position]struct{}
	switch p.Operator {
	case parser.And:
		result = intersect(left, right)
	case parser.Or:
		result = union(left, right)
	case parser.AndNot:
		result = difference(left, right)
	default:
		result = difference(union(left, toSet(p.universe())), right)
	}

	excluded := make(map[document.Position]struct{})
	for _, e := range p.Exclusions {
		for _, pos := range e.Sorted(p.Field) {
			excluded[pos] = struct{}{}
		}
	}
	st.Scanned += len(result)
	for pos := range excluded {
		if _, ok := result[pos]; ok {
			delete(result, pos)
			st.Excluded++
		}
	}

	out := make([]document.Position, 0, len(result))
	for pos := range result {
		out = append(out, pos)
	}
	slices.SortFunc(out, p.compare)
	return sliceWindow(out, p.Skip, p.Take), nil
}

func toSet(p indexer.Postings) map[document.Position]struct{} {
	m := make(map[document.Position]struct{}, len(p))
	for _, pos := range p {
		m[pos] = struct{}{}
	}
	return m
}

func intersect(a, b map[document.Position]struct{}) map[document.Position]struct{} {
	if len(b) < len(a) {
		a, b = b, a
	}
	out := make(map[document.Position]struct{}, len(a))
	for pos := range a {
		if _, ok := b[pos]; ok {
			out[pos] = struct{}{}
		}
	}
	return out
}

func union(a, b map[document.Position]struct{}) map[document.Position]struct{} {
	out := make(map[document.Position]struct{}, len(a)+len(b))
	for pos := range a {
		out[pos] = struct{}{}
	}
	for pos := range b {
		out[pos] = struct{}{}
	}
	return out
}

func difference(a, b map[document.Position]struct{}) map[document.Position]struct{} {
	out := make(map[document.Position]struct{}, len(a))
	for pos := range a {
		if _, ok := b[pos]; !ok {
			out[pos] = struct{}{}
		}
	}
	return out
}
