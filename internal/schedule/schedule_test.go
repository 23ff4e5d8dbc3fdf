package schedule

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codes(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "1-2-AB01"
	}
	return out
}

func TestQueueInitSplitsBatches(t *testing.T) {
	t.Parallel()

	q, err := NewQueue(t.TempDir())
	require.NoError(t, err)

	n, err := q.Init(codes(25), 10)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "25 codes at size 10 is 3 batches")

	pending, processed, failed, err := q.Counts()
	require.NoError(t, err)
	assert.Equal(t, 3, pending)
	assert.Equal(t, 0, processed)
	assert.Equal(t, 0, failed)
}

func TestQueueDrain(t *testing.T) {
	t.Parallel()

	q, err := NewQueue(t.TempDir())
	require.NoError(t, err)
	_, err = q.Init(codes(15), 10)
	require.NoError(t, err)

	first, err := q.Next()
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Len(t, first.Codes, 10)
	require.NoError(t, q.MarkProcessed(first))

	second, err := q.Next()
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Len(t, second.Codes, 5)
	assert.NotEqual(t, first.ID, second.ID)
	require.NoError(t, q.MarkProcessed(second))

	drained, err := q.Next()
	require.NoError(t, err)
	assert.Nil(t, drained)
}

func TestQueueMarkFailed(t *testing.T) {
	t.Parallel()

	q, err := NewQueue(t.TempDir())
	require.NoError(t, err)
	_, err = q.Init(codes(5), 10)
	require.NoError(t, err)

	b, err := q.Next()
	require.NoError(t, err)
	require.NoError(t, q.MarkFailed(b, "coordinator flush failed"))

	pending, _, failed, err := q.Counts()
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
	assert.Equal(t, 1, failed)
}

func TestQueueInitContinuesSequence(t *testing.T) {
	t.Parallel()

	q, err := NewQueue(t.TempDir())
	require.NoError(t, err)

	_, err = q.Init(codes(10), 10)
	require.NoError(t, err)
	b, err := q.Next()
	require.NoError(t, err)
	require.NoError(t, q.MarkProcessed(b))

	// A second init must not reuse the processed batch's sequence number.
	_, err = q.Init(codes(10), 10)
	require.NoError(t, err)
	next, err := q.Next()
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.NotEqual(t, b.ID, next.ID)
}

func TestQueueNextSkipsCorruptBatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	q, err := NewQueue(dir)
	require.NoError(t, err)
	_, err = q.Init(codes(2), 1)
	require.NoError(t, err)

	// Clobber the first batch; the queue must drain past it.
	corrupt := filepath.Join(dir, pendingDir, "batch-0001.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{not json"), 0o644))

	b, err := q.Next()
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "batch-0002", b.ID)

	// The unreadable file is quarantined for inspection, not deleted.
	assert.FileExists(t, filepath.Join(dir, failedDir, "batch-0001.json"))
	pending, _, failed, err := q.Counts()
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
	assert.Equal(t, 1, failed)
}

func TestQueueNextAllCorrupt(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	q, err := NewQueue(dir)
	require.NoError(t, err)
	_, err = q.Init(codes(1), 1)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, pendingDir, "batch-0001.json"), []byte("]["), 0o644))

	b, err := q.Next()
	require.NoError(t, err)
	assert.Nil(t, b, "a queue of only corrupt batches drains to empty")
}

func TestQueueInitEmpty(t *testing.T) {
	t.Parallel()

	q, err := NewQueue(t.TempDir())
	require.NoError(t, err)

	n, err := q.Init(nil, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	b, err := q.Next()
	require.NoError(t, err)
	assert.Nil(t, b)
}
