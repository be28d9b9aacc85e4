package log

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}

	logDB := NewDB(filepath.Join(t.TempDir(), "logs.db"), wg)
	require.NoError(t, logDB.Init(ctx))

	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return logDB
}

func TestDBQuery(t *testing.T) {
	logDB := newTestDB(t)

	logs := []Log{
		{Level: LevelError, Time: 1000, Src: "encoder", Job: "job1", Msg: "a"},
		{Level: LevelWarning, Time: 2000, Src: "encoder", Job: "job2", Msg: "b"},
		{Level: LevelInfo, Time: 3000, Src: "app", Job: "job1", Msg: "c"},
	}
	for _, l := range logs {
		require.NoError(t, logDB.saveLog(l))
	}

	t.Run("all", func(t *testing.T) {
		result, err := logDB.Query(Query{})
		require.NoError(t, err)

		// Newest first.
		require.Equal(t, []Log{logs[2], logs[1], logs[0]}, *result)
	})

	t.Run("levels", func(t *testing.T) {
		result, err := logDB.Query(Query{Levels: []Level{LevelError}})
		require.NoError(t, err)
		require.Equal(t, []Log{logs[0]}, *result)
	})

	t.Run("sources", func(t *testing.T) {
		result, err := logDB.Query(Query{Sources: []string{"app"}})
		require.NoError(t, err)
		require.Equal(t, []Log{logs[2]}, *result)
	})

	t.Run("jobs", func(t *testing.T) {
		result, err := logDB.Query(Query{Jobs: []string{"job1"}})
		require.NoError(t, err)
		require.Equal(t, []Log{logs[2], logs[0]}, *result)
	})

	t.Run("time", func(t *testing.T) {
		result, err := logDB.Query(Query{Time: 3000})
		require.NoError(t, err)
		require.Equal(t, []Log{logs[1], logs[0]}, *result)
	})

	t.Run("limit", func(t *testing.T) {
		result, err := logDB.Query(Query{Limit: 1})
		require.NoError(t, err)
		require.Equal(t, []Log{logs[2]}, *result)
	})

	t.Run("empty", func(t *testing.T) {
		result, err := newTestDB(t).Query(Query{})
		require.NoError(t, err)
		require.Empty(t, *result)
	})
}

func TestDBMaxKeys(t *testing.T) {
	logDB := newTestDB(t)
	logDB.maxKeys = 2

	require.NoError(t, logDB.saveLog(Log{Time: 1, Msg: "a"}))
	require.NoError(t, logDB.saveLog(Log{Time: 2, Msg: "b"}))
	require.NoError(t, logDB.saveLog(Log{Time: 3, Msg: "c"}))

	result, err := logDB.Query(Query{})
	require.NoError(t, err)

	require.Len(t, *result, 2)
	require.Equal(t, "c", (*result)[0].Msg)
	require.Equal(t, "b", (*result)[1].Msg)
}
