package sandbox

import (
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
)

func containerRemoveOptions() container.RemoveOptions {
	return container.RemoveOptions{Force: true, RemoveVolumes: true}
}

// compileResources caps a one-shot compilation container: one CPU, 512MiB,
// and a pid ceiling that stops a fork bomb in a build script.
func compileResources() container.Resources {
	pids := int64(256)
	return container.Resources{
		NanoCPUs:  1_000_000_000,
		Memory:    512 * 1024 * 1024,
		PidsLimit: &pids,
	}
}

// agentResources caps one running bot: a fraction of a CPU and a small
// memory ceiling, since a match may run dozens of these concurrently.
func agentResources() container.Resources {
	pids := int64(100)
	return container.Resources{
		NanoCPUs:  300_000_000,
		Memory:    128 * 1024 * 1024,
		PidsLimit: &pids,
	}
}

// scratchTmpfs mounts fresh, size-capped tmpfs at the paths a build or run
// step commonly writes to, so nothing persists across containers and a
// disk-filling program can't exhaust the host.
func scratchTmpfs(sizeBytes int64) []mount.Mount {
	return []mount.Mount{
		{Type: mount.TypeTmpfs, Target: "/tmp", TmpfsOptions: &mount.TmpfsOptions{SizeBytes: sizeBytes}},
		{Type: mount.TypeTmpfs, Target: "/var/tmp", TmpfsOptions: &mount.TmpfsOptions{SizeBytes: sizeBytes}},
		{Type: mount.TypeTmpfs, Target: "/dev/shm", TmpfsOptions: &mount.TmpfsOptions{SizeBytes: sizeBytes}},
	}
}

// securityHostConfig applies the flags every sandboxed container runs
// under regardless of what it does: no network, read-only root filesystem,
// and (in production) the hardened container runtime.
func (m *Manager) securityHostConfig(hc *container.HostConfig) {
	hc.NetworkMode = "none"
	hc.ReadonlyRootfs = true
	if m.cfg.SecurityRuntime != "" {
		hc.Runtime = m.cfg.SecurityRuntime
	}
}
