package tasks

import (
	"context"
	"errors"

	"github.com/sceneward/sceneward/internal/history"
	"github.com/sceneward/sceneward/internal/scheduler"
)

const HistoryCleanupTaskID = "history-cleanup"

// RegisterHistoryCleanupTask registers the history cleanup task with the scheduler.
// The task deletes history and failed history older than the retention period.
func RegisterHistoryCleanupTask(sched *scheduler.Scheduler, historyService *history.Service, cronExpr string) error {
	return sched.RegisterTask(&scheduler.TaskConfig{
		ID:          HistoryCleanupTaskID,
		Name:        "History Cleanup",
		Description: "Deletes history entries older than the retention period",
		Cron:        cronExpr,
		RunOnStart:  false,
		Func: func(ctx context.Context) error {
			return errors.Join(historyService.Trim(ctx), historyService.TrimFailed(ctx))
		},
	})
}
