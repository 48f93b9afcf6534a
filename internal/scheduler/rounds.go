package scheduler

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"fairplay/internal/metrics"
	"fairplay/pkg/models"
)

// schedulingRound enqueues work: one RunMatch item per active game (unless
// the queue is already saturated), and one Compilation item per program
// still in ProgramNew that doesn't already have a pending compile.
func schedulingRound(ctx context.Context, deps *Deps, cfg Config) error {
	var scheduledCount int64
	if err := deps.Database.DB.WithContext(ctx).Model(&models.WorkItem{}).
		Where("status = ?", models.WorkScheduled).
		Count(&scheduledCount).Error; err != nil {
		return fmt.Errorf("count scheduled work: %w", err)
	}
	metrics.Get().WorkQueueDepth.WithLabelValues(string(models.WorkScheduled)).Set(float64(scheduledCount))

	if int(scheduledCount) < cfg.MaxScheduledWorkItems {
		var games []models.Game
		if err := deps.Database.DB.WithContext(ctx).Where("status = ?", models.GameActive).Find(&games).Error; err != nil {
			return fmt.Errorf("list active games: %w", err)
		}
		for _, g := range games {
			if err := scheduleMatchForGame(ctx, deps, g.ID); err != nil {
				return err
			}
		}
	}

	var newPrograms []models.Program
	if err := deps.Database.DB.WithContext(ctx).Where("status = ?", models.ProgramNew).Find(&newPrograms).Error; err != nil {
		return fmt.Errorf("list new programs: %w", err)
	}
	for _, p := range newPrograms {
		if err := scheduleCompilation(ctx, deps, p.ID); err != nil {
			return err
		}
	}
	return nil
}

// scheduleMatchForGame enqueues a RunMatch item for gameID unless one is
// already scheduled or running.
func scheduleMatchForGame(ctx context.Context, deps *Deps, gameID uint) error {
	var existing int64
	if err := deps.Database.DB.WithContext(ctx).Model(&models.WorkItem{}).
		Where("work_type = ? AND game_id = ? AND status IN ?", models.WorkRunMatch, gameID,
			[]models.WorkStatus{models.WorkScheduled, models.WorkStarted}).
		Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		return nil
	}
	return deps.Database.DB.WithContext(ctx).Create(&models.WorkItem{
		CreationTime: time.Now().UTC(),
		WorkType:     models.WorkRunMatch,
		Status:       models.WorkScheduled,
		GameID:       &gameID,
		Priority:     0,
	}).Error
}

// scheduleCompilation enqueues a Compilation item for programID unless one
// is already scheduled or running.
func scheduleCompilation(ctx context.Context, deps *Deps, programID uint) error {
	var existing int64
	if err := deps.Database.DB.WithContext(ctx).Model(&models.WorkItem{}).
		Where("work_type = ? AND program_id = ? AND status IN ?", models.WorkCompilation, programID,
			[]models.WorkStatus{models.WorkScheduled, models.WorkStarted}).
		Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		return nil
	}
	// Compilation is prioritized over match runs: a bot sitting uncompiled
	// blocks it from ever being drawn into a match.
	return deps.Database.DB.WithContext(ctx).Create(&models.WorkItem{
		CreationTime: time.Now().UTC(),
		WorkType:     models.WorkCompilation,
		Status:       models.WorkScheduled,
		ProgramID:    &programID,
		Priority:     10,
	}).Error
}

// claimNextWorkItem picks the highest-priority, oldest-created Scheduled
// item and marks it Started, all inside one transaction so two dispatch
// loops (in a multi-node deployment) never claim the same item.
func claimNextWorkItem(ctx context.Context, db_ *gorm.DB) (*models.WorkItem, error) {
	var item models.WorkItem
	err := db_.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("status = ?", models.WorkScheduled).
			Order("priority DESC, creation_time ASC").
			First(&item).Error
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		item.Status = models.WorkStarted
		item.StartTime = &now
		return tx.Save(&item).Error
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}
