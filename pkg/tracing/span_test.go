package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpanTree(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "request", "")
	require.NotEmpty(t, root.TraceID)

	childCtx, child := StartChildSpan(ctx, "query")
	_, grandchild := StartChildSpan(childCtx, "evaluate")
	grandchild.SetAttr("strategy", "bitmap")
	grandchild.End()
	child.End()
	root.End()

	assert.Equal(t, root.TraceID, grandchild.TraceID)
	assert.Same(t, child, SpanFromContext(childCtx))
	found := root.Find("evaluate")
	require.NotNil(t, found)
	assert.Equal(t, "bitmap", found.Attrs["strategy"])
	assert.Nil(t, root.Find("missing"))

	var buf bytes.Buffer
	root.Log(slog.New(slog.NewTextHandler(&buf, nil)))
	assert.Equal(t, 3, strings.Count(buf.String(), "msg=span"))
	assert.Contains(t, buf.String(), "strategy=bitmap")
}

func TestDetachedChild(t *testing.T) {
	ctx, span := StartChildSpan(context.Background(), "orphan")
	span.End()
	assert.Empty(t, span.TraceID)
	assert.Same(t, span, SpanFromContext(ctx))
	assert.Nil(t, SpanFromContext(context.Background()))
}
