package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fairplay/internal/sandbox"
)

func TestHandle_StartCancelJoin(t *testing.T) {
	deps := newTestDeps(t)
	manager, err := sandbox.NewManager(sandbox.Config{MatchRunDir: t.TempDir()})
	require.NoError(t, err)
	defer manager.Close()
	deps.Manager = manager

	cfg := Config{
		DispatchPeriod:          10 * time.Millisecond,
		SchedulingPeriod:        10 * time.Millisecond,
		MatchCleanupPeriod:      10 * time.Millisecond,
		SandboxCleanupPeriod:    10 * time.Millisecond,
		MaxScheduledWorkItems:   50,
		KeepMatchesPerGame:      200,
		MaxDeleteMatchesPerPass: 500,
	}

	h := Start(cfg, deps)
	time.Sleep(50 * time.Millisecond)
	h.Cancel()
	require.NoError(t, h.Join(5*time.Second))
}
