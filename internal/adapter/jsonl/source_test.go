package jsonl

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func writeLines(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "observations.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestExtractBatch_ReadsInBatches(t *testing.T) {
	path := writeLines(t,
		`{"id":"1"}`,
		``,
		`{"id":"2"}`,
		`   `,
		`{"id":"3"}`,
	)
	src := NewSource(path, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = src.Close() })
	ctx := context.Background()

	first, err := src.ExtractBatch(ctx, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, `{"id":"1"}`, string(first[0].Value))
	assert.Equal(t, int64(1), first[0].Offset)
	assert.Equal(t, `{"id":"2"}`, string(first[1].Value))
	assert.Equal(t, int64(3), first[1].Offset)
	assert.Nil(t, first[0].Commit)
	assert.Equal(t, path, first[0].Topic)

	second, err := src.ExtractBatch(ctx, 2)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, `{"id":"3"}`, string(second[0].Value))

	third, err := src.ExtractBatch(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, third)
}

func TestExtractBatch_LongLine(t *testing.T) {
	body := strings.Repeat("停駛", 200_000)
	path := writeLines(t, `{"id":"1","content_html":"`+body+`"}`)
	src := NewSource(path, zap.NewNop())
	t.Cleanup(func() { _ = src.Close() })

	batch, err := src.ExtractBatch(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Contains(t, string(batch[0].Value), body)
}

func TestExtractBatch_MissingFile(t *testing.T) {
	src := NewSource(filepath.Join(t.TempDir(), "absent.jsonl"), zap.NewNop())

	batch, err := src.ExtractBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, batch)
	require.NoError(t, src.Close())
}

func TestExtractBatch_CancelledContext(t *testing.T) {
	path := writeLines(t, `{"id":"1"}`)
	src := NewSource(path, zap.NewNop())
	t.Cleanup(func() { _ = src.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := src.ExtractBatch(ctx, 10)
	require.ErrorIs(t, err, context.Canceled)
}
