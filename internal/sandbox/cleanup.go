package sandbox

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"fairplay/internal/logging"
)

// allowedDeletePathSubstrings bounds DeleteDirIfSafe to paths that are
// obviously scratch space, so a misconfigured MatchRunDir can never cause
// this to recursively delete something real.
var allowedDeletePathSubstrings = []string{"/prod/", "/tmp/"}

// ErrUnsafePath is returned when a path doesn't contain any allow-listed
// substring and so is refused.
var ErrUnsafePath = fmt.Errorf("sandbox: refusing to delete a path outside the allow-list")

// DeleteDirIfSafe recursively removes dir, but only if dir contains one of
// allowedDeletePathSubstrings. This is the only place in the codebase that
// does a recursive delete of scheduler-managed scratch space, specifically
// so that guard can't be bypassed.
func DeleteDirIfSafe(dir string) error {
	safe := false
	for _, s := range allowedDeletePathSubstrings {
		if strings.Contains(dir, s) {
			safe = true
			break
		}
	}
	if !safe {
		return ErrUnsafePath
	}
	return os.RemoveAll(dir)
}

// CleanupStaleMatchDirs removes per-match scratch directories under
// cfg.MatchRunDir whose modification time is older than cfg.MatchDirMaxAge.
// It is invoked periodically by the scheduler's sandbox cleanup loop, never
// inline with a match's own teardown.
func (m *Manager) CleanupStaleMatchDirs() (removed int, err error) {
	entries, err := os.ReadDir(m.cfg.MatchRunDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read match run dir: %w", err)
	}

	cutoff := time.Now().Add(-m.cfg.MatchDirMaxAge)
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		dir := m.cfg.MatchRunDir + "/" + e.Name()
		if err := DeleteDirIfSafe(dir); err != nil {
			logging.L().Warn("skip stale match dir cleanup", zap.String("dir", dir), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}
