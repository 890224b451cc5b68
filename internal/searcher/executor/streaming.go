package executor

import (
	"iter"

	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/scratch"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/searcher/parser"
)

// streaming loads the exclusions into the pooled set, then walks the
// operator result lazily in field order and stops once skip+take survivors
// have been seen.
type streaming struct{}

func (streaming) Kind() parser.Strategy { return parser.Streaming }

func (streaming) Evaluate(p *Plan, s *scratch.Scratch, st *Stats) (iter.Seq[document.Position], error) {
	var excluded func(document.Position) bool
	if len(p.Exclusions) > 0 {
		loadExclusions(p, s.Excluded)
		excluded = s.Excluded.Contains
	}
	return window(candidates(p), excluded, p.Skip, p.Take, st), nil
}

// bloomStrategy is streaming with the exclusion test answered by the bloom
// filter. False positives drop documents that should have been kept; an
// excluded document is never kept.
type bloomStrategy struct{}

func (bloomStrategy) Kind() parser.Strategy { return parser.Bloom }

func (bloomStrategy) Evaluate(p *Plan, s *scratch.Scratch, st *Stats) (iter.Seq[document.Position], error) {
	var excluded func(document.Position) bool
	if len(p.Exclusions) > 0 {
		for _, e := range p.Exclusions {
			for _, pos := range e.Sorted(p.Field) {
				s.Bloom.Add(pos)
			}
		}
		excluded = s.Bloom.PossiblyContains
	}
	return window(candidates(p), excluded, p.Skip, p.Take, st), nil
}
