package executor

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/searcher/parser"
)

var operators = []parser.Operator{parser.And, parser.Or, parser.AndNot, parser.OrNot}

type AuditOptions struct {
	Samples int
	Seed    uint64
}

// Mismatch is one strategy disagreeing with the naive reference.
type Mismatch struct {
	Sample   int    `json:"sample"`
	Strategy string `json:"strategy"`
	Request  string `json:"request"`
	Detail   string `json:"detail"`
}

// AuditReport summarises an Audit. BloomShortfall counts positions the bloom
// strategy dropped relative to the exact strategies on first pages.
type AuditReport struct {
	Samples        int           `json:"samples"`
	Mismatches     []Mismatch    `json:"mismatches"`
	BloomShortfall int           `json:"bloom_shortfall"`
	Duration       time.Duration `json:"duration"`
}

func (r *AuditReport) OK() bool {
	return len(r.Mismatches) == 0
}

// Audit runs random boolean queries through every strategy. Pooled,
// streaming and bitmap must return exactly the naive page. Bloom may return
// less, but every position it returns must satisfy the query and the page
// must be in field order.
func Audit(ctx context.Context, e *Engine, opts AuditOptions) (*AuditReport, error) {
	start := time.Now()
	report := &AuditReport{}
	tags := e.index.Tags()
	if len(tags) == 0 {
		report.Duration = time.Since(start)
		return report, nil
	}
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	for i := range opts.Samples {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		req := sampleRequest(rng, tags, e.index.Len())
		report.Samples++

		pages := make(map[parser.Strategy][]document.Position, len(parser.Strategies))
		for _, s := range parser.Strategies {
			req.Strategy = s
			page, err := e.BooleanQuery(ctx, req)
			if err != nil {
				report.Mismatches = append(report.Mismatches, Mismatch{
					Sample: i, Strategy: s.String(), Request: describe(req), Detail: err.Error(),
				})
				continue
			}
			pages[s] = page.Positions
		}
		reference, ok := pages[parser.Naive]
		if !ok {
			continue
		}
		for _, s := range []parser.Strategy{parser.Pooled, parser.Streaming, parser.Bitmap} {
			got, ok := pages[s]
			if ok && !slices.Equal(got, reference) {
				report.Mismatches = append(report.Mismatches, Mismatch{
					Sample: i, Strategy: s.String(), Request: describe(req),
					Detail: fmt.Sprintf("got %v, naive %v", got, reference),
				})
			}
		}
		if got, ok := pages[parser.Bloom]; ok {
			if detail := e.checkBloom(req, got); detail != "" {
				report.Mismatches = append(report.Mismatches, Mismatch{
					Sample: i, Strategy: parser.Bloom.String(), Request: describe(req), Detail: detail,
				})
			}
			if req.Skip == 0 {
				report.BloomShortfall += len(reference) - len(got)
			}
		}
	}
	report.Duration = time.Since(start)
	return report, nil
}

// checkBloom returns "" when every position satisfies req and the page is
// strictly ordered by the field.
func (e *Engine) checkBloom(req BooleanRequest, got []document.Position) string {
	plan, err := e.Plan(req)
	if err != nil {
		return err.Error()
	}
	for i, pos := range got {
		if !plan.matches(pos) {
			return fmt.Sprintf("position %d does not satisfy the query", pos)
		}
		if i > 0 && plan.compare(got[i-1], pos) >= 0 {
			return fmt.Sprintf("positions %d and %d out of order", got[i-1], pos)
		}
	}
	return ""
}

// matches evaluates the plan for a single document.
func (p *Plan) matches(pos document.Position) bool {
	var in bool
	switch p.Operator {
	case parser.And:
		in = p.Left.Contains(pos) && p.Right.Contains(pos)
	case parser.Or:
		in = p.Left.Contains(pos) || p.Right.Contains(pos)
	case parser.AndNot:
		in = p.Left.Contains(pos) && !p.Right.Contains(pos)
	case parser.OrNot:
		in = !p.Right.Contains(pos)
	}
	if !in {
		return false
	}
	for _, ex := range p.Exclusions {
		if ex.Contains(pos) {
			return false
		}
	}
	return true
}

func sampleRequest(rng *rand.Rand, tags []string, n int) BooleanRequest {
	pick := func() string {
		if rng.IntN(12) == 0 {
			return indexer.UniverseTag
		}
		return tags[rng.IntN(len(tags))]
	}
	var exclusions []string
	for range rng.IntN(4) {
		if rng.IntN(5) == 0 {
			exclusions = append(exclusions, "not-a-tag")
			continue
		}
		exclusions = append(exclusions, pick())
	}
	skips := []int{0, 0, 3, 40, 400}
	if n > 0 {
		skips = append(skips, rng.IntN(n))
	}
	return BooleanRequest{
		Field:      document.SortFields[rng.IntN(document.NumSortFields)],
		Tag1:       pick(),
		Tag2:       pick(),
		Operator:   operators[rng.IntN(len(operators))],
		PageSize:   []int{1, 5, 20, MaxPageSize}[rng.IntN(4)],
		Skip:       skips[rng.IntN(len(skips))],
		Exclusions: exclusions,
	}
}

func describe(req BooleanRequest) string {
	return fmt.Sprintf("%s %s %s by %s skip=%d size=%d not=%v",
		req.Tag1, req.Operator, req.Tag2, req.Field, req.Skip, req.PageSize, req.Exclusions)
}
