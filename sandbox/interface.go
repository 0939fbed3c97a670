package sandbox

import (
	"context"
	"errors"
	"io"
	"time"
)

// Safety limits applied to every sandbox at creation time. They are not
// configurable per request.
const (
	MemoryLimitBytes = 128 * 1024 * 1024
	CPUPeriod        = 100_000
	CPUQuota         = 50_000 // 50% of one core

	CompileTimeout = 10 * time.Second
	RunTimeout     = 5 * time.Second

	// TimeoutExitCode is the status the inner timeout(1) wrapper exits with
	// when it had to kill the compile or run step. The wrapper passes the
	// program's own status through unchanged, so a program that exits with
	// 124 by itself cannot be told apart and is reported as timed out too.
	TimeoutExitCode = 124
)

// Paths and labels inside the sandbox.
const (
	WorkDir        = "/app"
	Shell          = "/bin/sh"
	ManagedLabel   = "coderunner.managed"
	WorkspaceLabel = "coderunner.workspace"
)

var (
	// ErrNotFound means the container no longer exists.
	ErrNotFound = errors.New("container not found")
	// ErrTimeout means a deadline elapsed before the sandbox finished.
	ErrTimeout = errors.New("execution timeout")
)

// Limits are the resource constraints of one container.
type Limits struct {
	MemoryBytes     int64
	CPUPeriod       int64
	CPUQuota        int64
	NetworkDisabled bool
	AutoRemove      bool
}

// DefaultLimits returns the fixed limits every sandbox runs under.
func DefaultLimits() Limits {
	return Limits{
		MemoryBytes:     MemoryLimitBytes,
		CPUPeriod:       CPUPeriod,
		CPUQuota:        CPUQuota,
		NetworkDisabled: true,
		AutoRemove:      true,
	}
}

// ContainerSpec is everything the runtime needs to create one sandbox.
type ContainerSpec struct {
	Name       string
	Image      string
	Cmd        []string
	WorkingDir string
	// HostDir is bind-mounted read-write at WorkingDir.
	HostDir string
	Labels  map[string]string
	Limits  Limits
}

// WaitResult carries the exit status of a container, or why it could not be obtained.
type WaitResult struct {
	ExitCode int
	Err      error
}

// ContainerState is the subset of inspect data the runner uses.
type ContainerState struct {
	Running  bool
	ExitCode int
}

// Runtime is the container-runtime API the runner drives. Implementations
// must be safe for concurrent use; one Runtime is shared by all executions.
type Runtime interface {
	Create(ctx context.Context, spec ContainerSpec) (string, error)
	// Attach returns the combined, multiplexed stdout/stderr stream.
	Attach(ctx context.Context, id string) (io.ReadCloser, error)
	// Wait registers interest in the container's exit. It must be called before
	// Start so that an auto-removed container cannot exit unobserved.
	Wait(ctx context.Context, id string) <-chan WaitResult
	Start(ctx context.Context, id string) error
	Inspect(ctx context.Context, id string) (ContainerState, error)
	// Remove force-removes the container. It returns an error wrapping
	// ErrNotFound when the container is already gone.
	Remove(ctx context.Context, id string) error
	// List returns the ids of all containers carrying label=value.
	List(ctx context.Context, label, value string) ([]string, error)
	Close() error
}
