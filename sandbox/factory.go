package sandbox

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/isdmx/coderunner/config"
)

// Default Podman API sockets.
const (
	podmanRootSocket     = "unix:///run/podman/podman.sock"
	podmanRootlessSocket = "podman/podman.sock"
)

// NewRuntime creates the container runtime selected by sandbox.backend.
func NewRuntime(cfg *config.Config, logger *zap.Logger) (*DockerRuntime, error) {
	switch cfg.Sandbox.Backend {
	case config.BackendDocker:
		return NewDockerRuntime(logger, cfg.Sandbox.Host)
	case config.BackendPodman:
		return NewDockerRuntime(logger, PodmanHost(cfg.Sandbox.Host))
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Sandbox.Backend)
	}
}

// PodmanHost returns host, or the Podman socket for the current user when host is empty.
func PodmanHost(host string) string {
	if host != "" {
		return host
	}
	if h := os.Getenv("CONTAINER_HOST"); h != "" {
		return h
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" && os.Getuid() != 0 {
		return "unix://" + filepath.Join(dir, podmanRootlessSocket)
	}
	return podmanRootSocket
}
