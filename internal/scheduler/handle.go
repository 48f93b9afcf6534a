package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"fairplay/internal/logging"
)

// Handle controls the four background loops started by Start: dispatch,
// scheduling, match-history cleanup, and sandbox-directory cleanup. Each
// runs on its own ticker; all four share one context, so canceling it stops
// them together, and no single loop can be stopped on its own.
type Handle struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Start launches all four loops and returns a Handle to stop them.
func Start(cfg Config, deps *Deps) *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{cancel: cancel}

	h.run(ctx, "dispatch", cfg.DispatchPeriod, func(ctx context.Context) {
		if err := dispatchOnce(ctx, deps); err != nil {
			logging.L().Warn("dispatch loop iteration failed", zap.Error(err))
		}
	})
	h.run(ctx, "scheduling", cfg.SchedulingPeriod, func(ctx context.Context) {
		if err := schedulingRound(ctx, deps, cfg); err != nil {
			logging.L().Warn("scheduling round failed", zap.Error(err))
		}
	})
	h.run(ctx, "match-cleanup", cfg.MatchCleanupPeriod, func(ctx context.Context) {
		if err := cleanupMatchesBatch(ctx, deps, cfg); err != nil {
			logging.L().Warn("match cleanup failed", zap.Error(err))
		}
	})
	h.run(ctx, "sandbox-cleanup", cfg.SandboxCleanupPeriod, func(ctx context.Context) {
		if _, err := deps.Manager.CleanupStaleMatchDirs(); err != nil {
			logging.L().Warn("sandbox cleanup failed", zap.Error(err))
		}
	})

	return h
}

// run spawns one ticker-driven loop under h's WaitGroup, naming it in logs
// for anyone watching the process's diagnostic output.
func (h *Handle) run(ctx context.Context, name string, period time.Duration, tick func(context.Context)) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		logging.L().Debug("scheduler loop starting", zap.String("loop", name))
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logging.L().Debug("scheduler loop stopping", zap.String("loop", name))
				return
			case <-ticker.C:
				tick(ctx)
			}
		}
	}()
}

// Cancel signals every loop to stop after its current iteration.
func (h *Handle) Cancel() {
	h.cancel()
}

// Join waits up to timeout for every loop to exit after Cancel, returning
// an error if they don't.
func (h *Handle) Join(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("scheduler: loops did not stop within %s", timeout)
	}
}
