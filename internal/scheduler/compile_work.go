package scheduler

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"fairplay/internal/sandbox"
	"fairplay/pkg/models"
)

// runCompilationWorkItem compiles item.ProgramID's source, records the
// outcome on the Program row, and flips the SystemStatus of every Bot that
// references it so ineligible bots stop being drawn into matches.
func runCompilationWorkItem(ctx context.Context, deps *Deps, item *models.WorkItem) error {
	if item.ProgramID == nil {
		return fmt.Errorf("compilation work item %d has no program", item.ID)
	}
	programID := *item.ProgramID

	var program models.Program
	if err := deps.Database.DB.WithContext(ctx).First(&program, programID).Error; err != nil {
		return fmt.Errorf("load program %d: %w", programID, err)
	}

	now := time.Now().UTC()
	program.Status = models.ProgramCompiling
	program.StatusUpdateTime = now
	if err := deps.Database.DB.WithContext(ctx).Save(&program).Error; err != nil {
		return err
	}

	source, err := deps.Files.Read(ctx, models.OwningProgram, &programID, "source")
	if err != nil {
		return fmt.Errorf("read source for program %d: %w", programID, err)
	}

	result, err := deps.Compiler.EnsureCompiled(ctx, sandbox.Language(program.Language), source)
	if err != nil {
		return fmt.Errorf("compile program %d: %w", programID, err)
	}

	return deps.Database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		finished := time.Now().UTC()
		program.StatusUpdateTime = finished
		program.StatusReason = result.BuildLog
		botStatus := models.SystemStatusOk
		if result.Succeeded {
			program.Status = models.ProgramCompilationSucceded
		} else {
			program.Status = models.ProgramCompilationFailed
			botStatus = models.SystemStatusDeactivated
		}
		if err := tx.Save(&program).Error; err != nil {
			return err
		}

		return tx.Model(&models.Bot{}).
			Where("program_id = ?", programID).
			Updates(map[string]interface{}{
				"system_status":        botStatus,
				"system_status_reason": program.StatusReason,
				"status_update_time":   finished,
			}).Error
	})
}
