package scheduler

import (
	"context"
	"fmt"

	"fairplay/pkg/models"
)

// cleanupMatchesBatch keeps cfg.KeepMatchesPerGame most recent finished
// matches for each game and deletes older ones, bounded to
// cfg.MaxDeleteMatchesPerPass per pass so a backlog doesn't lock the table
// for too long in one go.
func cleanupMatchesBatch(ctx context.Context, deps *Deps, cfg Config) error {
	var games []models.Game
	if err := deps.Database.DB.WithContext(ctx).Find(&games).Error; err != nil {
		return fmt.Errorf("list games: %w", err)
	}

	remaining := cfg.MaxDeleteMatchesPerPass
	for _, g := range games {
		if remaining <= 0 {
			break
		}
		n, err := cleanupMatchesForGame(ctx, deps, g.ID, cfg.KeepMatchesPerGame, remaining)
		if err != nil {
			return fmt.Errorf("cleanup matches for game %d: %w", g.ID, err)
		}
		remaining -= n
	}
	return nil
}

func cleanupMatchesForGame(ctx context.Context, deps *Deps, gameID uint, keep, limit int) (int, error) {
	var keepIDs []uint
	if err := deps.Database.DB.WithContext(ctx).Model(&models.Match{}).
		Where("game_id = ? AND end_time IS NOT NULL", gameID).
		Order("end_time DESC").
		Limit(keep).
		Pluck("id", &keepIDs).Error; err != nil {
		return 0, err
	}

	var stale []models.Match
	q := deps.Database.DB.WithContext(ctx).
		Where("game_id = ? AND end_time IS NOT NULL", gameID).
		Limit(limit)
	if len(keepIDs) > 0 {
		q = q.Where("id NOT IN ?", keepIDs)
	}
	if err := q.Find(&stale).Error; err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	ids := make([]uint, len(stale))
	for i, m := range stale {
		ids[i] = m.ID
	}

	if err := deps.Database.DB.WithContext(ctx).Where("match_id IN ?", ids).Delete(&models.MatchParticipation{}).Error; err != nil {
		return 0, err
	}
	if err := deps.Database.DB.WithContext(ctx).Where("id IN ?", ids).Delete(&models.Match{}).Error; err != nil {
		return 0, err
	}
	for _, id := range ids {
		matchID := id
		_ = deps.Files.Delete(ctx, models.OwningMatch, &matchID, "replay.log")
	}
	return len(stale), nil
}
