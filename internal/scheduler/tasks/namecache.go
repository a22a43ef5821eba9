package tasks

import (
	"github.com/sceneward/sceneward/internal/namecache"
	"github.com/sceneward/sceneward/internal/scheduler"
)

const NameCacheRebuildTaskID = "namecache-rebuild"

// RegisterNameCacheRebuildTask registers the name cache rebuild for all
// shows. It also runs once at startup.
func RegisterNameCacheRebuildTask(sched *scheduler.Scheduler, cache *namecache.Cache, cronExpr string) error {
	return sched.RegisterTask(&scheduler.TaskConfig{
		ID:          NameCacheRebuildTaskID,
		Name:        "Name Cache Rebuild",
		Description: "Rebuild scene name mappings from show names and scene exceptions",
		Cron:        cronExpr,
		RunOnStart:  true,
		Func:        cache.RebuildAll,
	})
}
