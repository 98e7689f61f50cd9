package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/capacity-cli/internal/capacity"
	"github.com/sells-group/capacity-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// storeTestSuite exercises the run lifecycle against any Store.
func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	params := capacity.DefaultParams()
	params.DemandPer1000 = 120
	params.BaseCount = 250
	params.M2PerPerson = 10
	params.EPSG = 3857

	t.Run("CreateAndGetRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, "school", params)
		require.NoError(t, err)
		assert.NotEmpty(t, run.ID)
		assert.Equal(t, model.RunStatusRunning, run.Status)

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, run.ID, got.ID)
		assert.Equal(t, "school", got.Service)
		assert.Equal(t, model.RunStatusRunning, got.Status)
		assert.Equal(t, params, got.Params)
		assert.Nil(t, got.Summary)
		assert.False(t, got.Finished())
	})

	t.Run("CompleteRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, "school", params)
		require.NoError(t, err)

		summary := capacity.Summary{Facilities: 4, Kept: 3, Added: 200, NonConverged: 1}
		require.NoError(t, s.CompleteRun(ctx, run.ID, summary))

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusComplete, got.Status)
		require.NotNil(t, got.Summary)
		assert.Equal(t, summary, *got.Summary)
		assert.True(t, got.Finished())
	})

	t.Run("FailRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, "", params)
		require.NoError(t, err)
		require.NoError(t, s.FailRun(ctx, run.ID, "input has no coordinate reference system"))

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusFailed, got.Status)
		assert.Equal(t, "input has no coordinate reference system", got.Error)
	})

	t.Run("NotFound", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.GetRun(ctx, "nope")
		assert.True(t, eris.Is(err, ErrRunNotFound))
		assert.True(t, eris.Is(s.CompleteRun(ctx, "nope", capacity.Summary{}), ErrRunNotFound))
		assert.True(t, eris.Is(s.FailRun(ctx, "nope", "x"), ErrRunNotFound))
	})

	t.Run("ListRuns", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a, err := s.CreateRun(ctx, "school", params)
		require.NoError(t, err)
		_, err = s.CreateRun(ctx, "school", params)
		require.NoError(t, err)
		c, err := s.CreateRun(ctx, "hospital", params)
		require.NoError(t, err)
		require.NoError(t, s.CompleteRun(ctx, a.ID, capacity.Summary{}))
		require.NoError(t, s.FailRun(ctx, c.ID, "boom"))

		all, err := s.ListRuns(ctx, RunFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 3)

		schools, err := s.ListRuns(ctx, RunFilter{Service: "school"})
		require.NoError(t, err)
		assert.Len(t, schools, 2)

		failed, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusFailed})
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Equal(t, c.ID, failed[0].ID)

		page, err := s.ListRuns(ctx, RunFilter{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, page, 2)

		rest, err := s.ListRuns(ctx, RunFilter{Limit: 2, Offset: 2})
		require.NoError(t, err)
		assert.Len(t, rest, 1)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, func(t *testing.T) Store {
		return newTestSQLiteStore(t)
	})
}

func TestSQLiteStore_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestNewSQLite_BadPath(t *testing.T) {
	_, err := NewSQLite(filepath.Join(t.TempDir(), "missing", "dir", "runs.db"))
	require.Error(t, err)
}
