package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
)

// CompileResult is the outcome of one compilation attempt.
type CompileResult struct {
	Succeeded bool
	Artifact  []byte // contents of the compiled artifact, if Succeeded
	BuildLog  string
}

// imageForLanguage names the compiler image built from cfg.TemplateDir for
// l. Deployments build these once per language and keep them pinned.
func (m *Manager) imageForLanguage(l Language) string {
	return fmt.Sprintf("%s-compiler-%s:latest", m.cfg.ContainerNamePrefix, l)
}

// Compile writes source into a scratch workspace, builds it inside a
// network-isolated, resource-capped container, and returns the produced
// artifact. For interpreted languages (no BuildCommand) it is a no-op that
// returns source unchanged.
func (m *Manager) Compile(ctx context.Context, l Language, source []byte) (CompileResult, error) {
	spec, err := specFor(l)
	if err != nil {
		return CompileResult{}, err
	}
	if len(spec.BuildCommand) == 0 {
		return CompileResult{Succeeded: true, Artifact: source}, nil
	}

	workspaceDir, err := os.MkdirTemp(m.cfg.CacheDir, "compile-*")
	if err != nil {
		return CompileResult{}, fmt.Errorf("create compile workspace: %w", err)
	}
	defer os.RemoveAll(workspaceDir)

	if err := os.WriteFile(filepath.Join(workspaceDir, spec.SourceFilename), source, 0600); err != nil {
		return CompileResult{}, fmt.Errorf("write source: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.CompilationTimeout)
	defer cancel()

	hostConfig := &container.HostConfig{
		Resources: compileResources(),
		Mounts: append([]mount.Mount{
			{Type: mount.TypeBind, Source: workspaceDir, Target: "/workspace"},
		}, scratchTmpfs(50*1024*1024)...),
	}
	m.securityHostConfig(hostConfig)

	if err := m.throttle(ctx); err != nil {
		return CompileResult{}, err
	}
	created, err := m.cli.ContainerCreate(ctx, &container.Config{
		Image:      m.imageForLanguage(l),
		WorkingDir: "/workspace",
		Cmd:        spec.BuildCommand,
	}, hostConfig, nil, nil, m.containerName("compile", uuid.NewString()))
	if err != nil {
		return CompileResult{}, fmt.Errorf("create compile container: %w", err)
	}
	defer m.removeContainer(created.ID)

	if err := m.throttle(ctx); err != nil {
		return CompileResult{}, err
	}
	if err := m.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return CompileResult{}, fmt.Errorf("start compile container: %w", err)
	}

	waitCh, errCh := m.cli.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case err := <-errCh:
		return CompileResult{}, fmt.Errorf("wait for compile container: %w", err)
	case resp := <-waitCh:
		exitCode = resp.StatusCode
	case <-ctx.Done():
		return CompileResult{BuildLog: "compilation timed out"}, nil
	}

	buildLog, err := m.readCompileLogs(ctx, created.ID)
	if err != nil {
		buildLog = "log read failed: " + err.Error()
	}

	if exitCode != 0 {
		return CompileResult{Succeeded: false, BuildLog: buildLog}, nil
	}

	artifact, err := os.ReadFile(filepath.Join(workspaceDir, spec.Artifact))
	if err != nil {
		return CompileResult{Succeeded: false, BuildLog: buildLog + "\nartifact missing: " + err.Error()}, nil
	}
	return CompileResult{Succeeded: true, Artifact: artifact, BuildLog: buildLog}, nil
}

func (m *Manager) readCompileLogs(ctx context.Context, containerID string) (string, error) {
	rc, err := m.cli.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var stdout, stderr bytes.Buffer
	limited := io.LimitReader(rc, m.cfg.StdioLimitBytes)
	if _, err := stdcopy.StdCopy(&stdout, &stderr, limited); err != nil && err != io.EOF {
		return "", err
	}
	return stdout.String() + stderr.String(), nil
}
