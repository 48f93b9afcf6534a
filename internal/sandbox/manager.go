// Package sandbox drives Docker to compile submitted programs and to run
// them, network-isolated and resource-capped, as the agents and game
// server of a live match.
package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/client"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"fairplay/internal/logging"
)

// Config holds the deployment-tunable knobs for sandboxing.
type Config struct {
	DockerHost            string
	ContainerNamePrefix   string
	CacheDir              string // parent dir of the temporary compile workspaces
	MatchRunDir           string // per-match scratch dirs (FIFOs, workspaces)
	TemplateDir           string // per-language compiler/runtime base images' build contexts
	CompilationTimeout    time.Duration
	AgentContainerTimeout time.Duration
	StdioLimitBytes       int64
	MatchDirMaxAge        time.Duration // how long a finished match's scratch dir is kept
	// SecurityRuntime names the Docker runtime used for untrusted code, e.g.
	// "runsc" for gVisor. Empty uses the daemon's default runtime, which is
	// acceptable only in development.
	SecurityRuntime string
	// DockerOpsPerSecond throttles calls into the Docker daemon so a burst of
	// scheduled work can't starve it; see golang.org/x/time/rate.
	DockerOpsPerSecond float64
}

// DefaultConfig returns development-friendly defaults. Production
// deployments must set SecurityRuntime.
func DefaultConfig() Config {
	return Config{
		ContainerNamePrefix:   "fairplay",
		CacheDir:              "/var/lib/fairplay/cache",
		MatchRunDir:           "/var/run/fairplay/matches",
		TemplateDir:           "/etc/fairplay/templates",
		CompilationTimeout:    60 * time.Second,
		AgentContainerTimeout: 24 * time.Hour,
		StdioLimitBytes:       16 * 1024 * 1024,
		MatchDirMaxAge:        1 * time.Hour,
		DockerOpsPerSecond:    10,
	}
}

// Manager owns the Docker client and enforces the resource limits and
// security flags every sandboxed container runs under.
type Manager struct {
	cfg     Config
	cli     *client.Client
	limiter *rate.Limiter
}

// NewManager connects to the Docker daemon described by cfg.DockerHost (or
// the environment, if empty).
func NewManager(cfg Config) (*Manager, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if cfg.DockerHost != "" {
		opts = append(opts, client.WithHost(cfg.DockerHost))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("docker client init: %w", err)
	}
	rps := cfg.DockerOpsPerSecond
	if rps <= 0 {
		rps = 10
	}
	return &Manager{
		cfg:     cfg,
		cli:     cli,
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)*2),
	}, nil
}

// throttle blocks until the next Docker API call is allowed to proceed.
func (m *Manager) throttle(ctx context.Context) error {
	return m.limiter.Wait(ctx)
}

// Close releases the Docker client's connections.
func (m *Manager) Close() error {
	return m.cli.Close()
}

// MatchRunDir is where per-match scratch directories (FIFOs, agent
// workspaces) are created.
func (m *Manager) MatchRunDir() string {
	return m.cfg.MatchRunDir
}

func (m *Manager) containerName(kind, id string) string {
	return fmt.Sprintf("%s-%s-%s", m.cfg.ContainerNamePrefix, kind, id)
}

// removeContainer force-removes a container, logging rather than
// propagating failures since it runs from defer/cleanup paths.
func (m *Manager) removeContainer(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.throttle(ctx); err != nil {
		return
	}
	if err := m.cli.ContainerRemove(ctx, containerID, containerRemoveOptions()); err != nil {
		logging.L().Warn("container cleanup failed", zap.Error(err))
	}
}
