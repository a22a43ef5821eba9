package tasks

import (
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sceneward/sceneward/internal/config"
	"github.com/sceneward/sceneward/internal/failedsnatch"
	"github.com/sceneward/sceneward/internal/history"
	"github.com/sceneward/sceneward/internal/library/tv"
	"github.com/sceneward/sceneward/internal/namecache"
	"github.com/sceneward/sceneward/internal/scheduler"
	"github.com/sceneward/sceneward/internal/sceneexceptions"
	"github.com/sceneward/sceneward/internal/searchqueue"
	"github.com/sceneward/sceneward/internal/testutil"
)

func TestRegisterTasks(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	sched, err := scheduler.New(zerolog.Nop())
	require.NoError(t, err)
	defer func() { _ = sched.Stop() }()

	cfg := config.Default()
	historyService := history.NewService(tdb.Conn, clockwork.NewRealClock(), tdb.Logger)
	library := tv.NewService(tdb.Conn, tdb.Logger)
	queue := searchqueue.New(nil, tdb.Logger)
	reconciler := failedsnatch.NewReconciler(historyService, library, queue, cfg, nil, nil, tdb.Logger)
	exceptions := sceneexceptions.NewService(tdb.Cache, sceneexceptions.Config{}, nil, tdb.Logger)
	cache := namecache.New(namecache.NewSQLStore(tdb.Cache), exceptions, library, tdb.Logger)

	require.NoError(t, RegisterFailedSnatchTask(sched, reconciler, &cfg.FailedSnatch))
	require.NoError(t, RegisterNameCacheRebuildTask(sched, cache, cfg.Schedule.NameCacheRebuild))
	require.NoError(t, RegisterHistoryCleanupTask(sched, historyService, cfg.Schedule.HistoryTrim))

	tasks := sched.ListTasks()
	require.Len(t, tasks, 3)
	assert.Equal(t, FailedSnatchTaskID, tasks[0].ID)
	assert.Equal(t, "1h0m0s", tasks[0].Interval)
	assert.Equal(t, HistoryCleanupTaskID, tasks[1].ID)
	assert.Equal(t, "0 2 * * *", tasks[1].Cron)
	assert.Equal(t, NameCacheRebuildTaskID, tasks[2].ID)
}
