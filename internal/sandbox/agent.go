package sandbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"

	"fairplay/internal/logging"
	"fairplay/internal/metrics"

	"go.uber.org/zap"
)

// AgentSpec describes one long-running process (a bot, or the game server)
// to start as part of a match.
type AgentSpec struct {
	Name         string // used in the container name, e.g. "player-0" or "server"
	Language     Language
	WorkspaceDir string   // host dir holding the compiled artifact
	FifoDir      string   // host dir holding "in" and "out" named pipes, bind-mounted at /fifo
	ExtraArgs    []string // appended to the language's run command, e.g. game server params
}

// Agent is a running container backing one AgentSpec.
type Agent struct {
	ContainerID string
	Name        string
}

// StartAgent launches one agent container. Its stdin is the "in" FIFO and
// its stdout is the "out" FIFO, both under FifoDir, so the caller (the
// match runner) can talk to it purely as line streams without attaching to
// the container directly.
func (m *Manager) StartAgent(ctx context.Context, matchID string, spec AgentSpec) (*Agent, error) {
	langSpec, err := specFor(spec.Language)
	if err != nil {
		return nil, err
	}

	runCmd := append(append([]string{}, langSpec.RunCommand...), spec.ExtraArgs...)
	shellCmd := fmt.Sprintf("%s < /fifo/in > /fifo/out", strings.Join(quoteArgs(runCmd), " "))

	hostConfig := &container.HostConfig{
		Resources: agentResources(),
		Mounts: []mount.Mount{
			{Type: mount.TypeBind, Source: spec.WorkspaceDir, Target: "/workspace"},
			{Type: mount.TypeBind, Source: spec.FifoDir, Target: "/fifo"},
		},
	}
	hostConfig.Mounts = append(hostConfig.Mounts, scratchTmpfs(10*1024*1024)...)
	m.securityHostConfig(hostConfig)

	if err := m.throttle(ctx); err != nil {
		return nil, err
	}
	created, err := m.cli.ContainerCreate(ctx, &container.Config{
		Image:      m.imageForLanguage(spec.Language),
		WorkingDir: "/workspace",
		Cmd:        []string{"sh", "-c", shellCmd},
	}, hostConfig, nil, nil, m.containerName("match-"+matchID, spec.Name))
	if err != nil {
		return nil, fmt.Errorf("create agent container %s: %w", spec.Name, err)
	}

	if err := m.throttle(ctx); err != nil {
		m.removeContainer(created.ID)
		return nil, err
	}
	if err := m.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		m.removeContainer(created.ID)
		return nil, fmt.Errorf("start agent container %s: %w", spec.Name, err)
	}

	metrics.Get().ActiveContainers.Inc()
	return &Agent{ContainerID: created.ID, Name: spec.Name}, nil
}

// Stop kills and removes the agent's container. Safe to call more than
// once; errors are logged rather than returned since this mostly runs from
// teardown paths where the caller has nothing left to do about a failure.
func (m *Manager) Stop(a *Agent) {
	if a == nil {
		return
	}
	metrics.Get().ActiveContainers.Dec()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.throttle(ctx); err == nil {
		if err := m.cli.ContainerKill(ctx, a.ContainerID, "SIGKILL"); err != nil {
			logging.L().Debug("agent already stopped", zap.String("agent", a.Name), zap.Error(err))
		}
	}
	m.removeContainer(a.ContainerID)
}

// quoteArgs wraps each argument in single quotes for the sh -c string,
// escaping any embedded single quote the POSIX-shell way.
func quoteArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
	}
	return out
}
