package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/searcher/parser"
)

func TestAuditRandomCorpus(t *testing.T) {
	e := newEngine(t, randomDocs(5, 800, 25), Options{BloomBitsPerElement: 4})
	report, err := Audit(context.Background(), e, AuditOptions{Samples: 150, Seed: 11})
	require.NoError(t, err)
	assert.Equal(t, 150, report.Samples)
	assert.True(t, report.OK(), "%v", report.Mismatches)
	assert.GreaterOrEqual(t, report.BloomShortfall, 0)
}

func TestAuditEmptyIndex(t *testing.T) {
	e := newEngine(t, nil, Options{})
	report, err := Audit(context.Background(), e, AuditOptions{Samples: 10})
	require.NoError(t, err)
	assert.Zero(t, report.Samples)
	assert.True(t, report.OK())
}

func TestAuditCancelled(t *testing.T) {
	e := newEngine(t, scenarioDocs(), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := Audit(ctx, e, AuditOptions{Samples: 10})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, report.Samples)
}

func TestPlanMatches(t *testing.T) {
	e := newEngine(t, scenarioDocs(), Options{})
	req := BooleanRequest{Tag1: "a", Tag2: "b", Operator: parser.And, PageSize: 10}
	plan, err := e.Plan(req)
	require.NoError(t, err)
	// store positions: 0 {a,b}, 1 {b}, 2 {a}
	assert.True(t, plan.matches(0))
	assert.False(t, plan.matches(1))
	assert.False(t, plan.matches(2))

	req.Exclusions = []string{"b"}
	req.Operator = parser.Or
	plan, err = e.Plan(req)
	require.NoError(t, err)
	assert.False(t, plan.matches(0))
	assert.False(t, plan.matches(1))
	assert.True(t, plan.matches(2))
}
