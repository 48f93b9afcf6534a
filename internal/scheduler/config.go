package scheduler

import "time"

// Config holds the periods and bounds that govern how aggressively the
// background loops enqueue and reclaim work.
type Config struct {
	DispatchPeriod          time.Duration
	SchedulingPeriod        time.Duration
	MatchCleanupPeriod      time.Duration
	SandboxCleanupPeriod    time.Duration
	ShutdownTimeout         time.Duration
	MaxScheduledWorkItems   int
	KeepMatchesPerGame      int
	MaxDeleteMatchesPerPass int
}

// DefaultConfig returns periods suitable for a single-node deployment.
func DefaultConfig() Config {
	return Config{
		DispatchPeriod:          time.Second,
		SchedulingPeriod:        5 * time.Second,
		MatchCleanupPeriod:      time.Minute,
		SandboxCleanupPeriod:    time.Minute,
		ShutdownTimeout:         60 * time.Second,
		MaxScheduledWorkItems:   50,
		KeepMatchesPerGame:      200,
		MaxDeleteMatchesPerPass: 500,
	}
}
