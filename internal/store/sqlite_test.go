package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gastoabierto/ordenes-cli/internal/model"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()

	st := testStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "incremental")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	summary := &model.RunSummary{Resolved: 10, Processed: 8, Failed: 2, Documents: 19, DurationMS: 4200}
	require.NoError(t, st.CompleteRun(ctx, run.ID, model.RunStatusComplete, summary))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	require.NotNil(t, got.Summary)
	assert.Equal(t, 8, got.Summary.Processed)
	assert.Equal(t, 2, got.Summary.Failed)
}

func TestCompleteRunUnknownID(t *testing.T) {
	t.Parallel()

	st := testStore(t)
	err := st.CompleteRun(context.Background(), "no-such-run", model.RunStatusComplete, nil)
	assert.Error(t, err)
}

func TestGetRunUnknownID(t *testing.T) {
	t.Parallel()

	st := testStore(t)
	_, err := st.GetRun(context.Background(), "no-such-run")
	assert.Error(t, err)
}

func TestListRunsFilters(t *testing.T) {
	t.Parallel()

	st := testStore(t)
	ctx := context.Background()

	a, err := st.CreateRun(ctx, "incremental")
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, a.ID, model.RunStatusComplete, &model.RunSummary{}))

	_, err = st.CreateRun(ctx, "retry")
	require.NoError(t, err)

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	complete, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
	require.NoError(t, err)
	require.Len(t, complete, 1)
	assert.Equal(t, a.ID, complete[0].ID)

	retry, err := st.ListRuns(ctx, RunFilter{Mode: "retry"})
	require.NoError(t, err)
	require.Len(t, retry, 1)
	assert.Equal(t, model.RunStatusRunning, retry[0].Status)

	limited, err := st.ListRuns(ctx, RunFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
