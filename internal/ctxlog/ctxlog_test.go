package ctxlog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromContext(t *testing.T) {
	t.Parallel()
	require.Same(t, slog.Default(), FromContext(context.Background()))

	logger := slog.New(slog.DiscardHandler)
	ctx := WithLogger(context.Background(), logger)
	require.Same(t, logger, FromContext(ctx))
}

func TestWith(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))

	ctx, logger := With(ctx, "component", "transform")
	require.Same(t, logger, FromContext(ctx))

	FromContext(ctx).Info("Hello.")
	require.Contains(t, buf.String(), "component=transform")
}
