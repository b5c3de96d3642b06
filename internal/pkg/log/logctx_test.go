package log

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrom_DefaultWhenEmpty(t *testing.T) {
	require.Same(t, slog.Default(), From(context.Background()))
}

func TestIntoFrom_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, nil)).With(slog.String("request_id", "rid-1"))

	ctx := Into(context.Background(), l)
	require.Same(t, l, From(ctx))

	From(ctx).Info("hello")
	require.Contains(t, buf.String(), "request_id=rid-1")
	require.Contains(t, buf.String(), "msg=hello")
}

func TestFrom_NilLoggerFallsBack(t *testing.T) {
	var nilLogger *slog.Logger
	ctx := Into(context.Background(), nilLogger)
	require.Same(t, slog.Default(), From(ctx))
}

func TestInto_ChildOverridesParent(t *testing.T) {
	parent := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	child := parent.With(slog.String("k", "v"))

	ctx := Into(context.Background(), parent)
	ctx = Into(ctx, child)

	require.Same(t, child, From(ctx))
}
