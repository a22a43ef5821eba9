package tasks

import (
	"time"

	"github.com/sceneward/sceneward/internal/config"
	"github.com/sceneward/sceneward/internal/failedsnatch"
	"github.com/sceneward/sceneward/internal/scheduler"
)

const FailedSnatchTaskID = "failed-snatch"

const defaultFailedSnatchIntervalMin = 60

// RegisterFailedSnatchTask registers the failed snatch search. The task is
// registered even when the feature is disabled; each run checks the setting.
func RegisterFailedSnatchTask(sched *scheduler.Scheduler, reconciler *failedsnatch.Reconciler, cfg *config.FailedSnatchConfig) error {
	intervalMin := cfg.IntervalMin
	if intervalMin <= 0 {
		intervalMin = defaultFailedSnatchIntervalMin
	}

	return sched.RegisterTask(&scheduler.TaskConfig{
		ID:          FailedSnatchTaskID,
		Name:        "Failed Snatch Search",
		Description: "Queue episodes whose snatched release never finished downloading for a new search",
		Interval:    time.Duration(intervalMin) * time.Minute,
		RunOnStart:  false,
		Func:        reconciler.RunScheduled,
	})
}
