package scheduler

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"fairplay/internal/metrics"
	"fairplay/pkg/models"
)

// dispatchOnce claims at most one scheduled work item and runs it to
// completion, recording its Completed/Failed outcome. A completely empty
// queue is not an error.
func dispatchOnce(ctx context.Context, deps *Deps) error {
	item, err := claimNextWorkItem(ctx, deps.Database.DB)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	runErr := runWorkItem(ctx, deps, item)

	now := time.Now().UTC()
	item.EndTime = &now
	if runErr != nil {
		item.Status = models.WorkFailed
	} else {
		item.Status = models.WorkCompleted
	}
	metrics.Get().RecordWorkItem(string(item.WorkType), string(item.Status))
	return deps.Database.DB.WithContext(ctx).Save(item).Error
}

func runWorkItem(ctx context.Context, deps *Deps, item *models.WorkItem) error {
	switch item.WorkType {
	case models.WorkCompilation:
		return runCompilationWorkItem(ctx, deps, item)
	case models.WorkRunMatch:
		return runMatchWorkItem(ctx, deps, item)
	default:
		return errors.New("scheduler: unknown work type")
	}
}
