package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"go.uber.org/zap"
)

// DockerRuntime implements Runtime against the Docker Engine API. Podman's
// Docker-compatible socket works as well.
type DockerRuntime struct {
	logger *zap.Logger
	cli    *client.Client
}

var _ Runtime = (*DockerRuntime)(nil)

// NewDockerRuntime connects to the engine at host, or to the one described by
// DOCKER_HOST and friends when host is empty.
func NewDockerRuntime(logger *zap.Logger, host string) (*DockerRuntime, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &DockerRuntime{logger: logger.Named("docker"), cli: cli}, nil
}

// Ping checks that the engine is reachable.
func (d *DockerRuntime) Ping(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return fmt.Errorf("ping container engine at %s: %w", d.cli.DaemonHost(), err)
	}
	return nil
}

func (d *DockerRuntime) Create(ctx context.Context, spec ContainerSpec) (string, error) {
	cfg := &container.Config{
		Image:           spec.Image,
		Cmd:             spec.Cmd,
		WorkingDir:      spec.WorkingDir,
		Labels:          spec.Labels,
		AttachStdout:    true,
		AttachStderr:    true,
		Tty:             false,
		NetworkDisabled: spec.Limits.NetworkDisabled,
	}

	networkMode := container.NetworkMode("default")
	if spec.Limits.NetworkDisabled {
		networkMode = "none"
	}

	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: spec.HostDir,
			Target: spec.WorkingDir,
		}},
		NetworkMode: networkMode,
		AutoRemove:  spec.Limits.AutoRemove,
		CapDrop:     []string{"ALL"},
		SecurityOpt: []string{"no-new-privileges"},
		Resources: container.Resources{
			Memory:     spec.Limits.MemoryBytes,
			MemorySwap: spec.Limits.MemoryBytes, // no swap on top of the memory ceiling
			CPUPeriod:  spec.Limits.CPUPeriod,
			CPUQuota:   spec.Limits.CPUQuota,
		},
	}

	resp, err := d.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, spec.Name)
	if err != nil {
		return "", err
	}
	for _, w := range resp.Warnings {
		d.logger.Warn("container create warning", zap.String("container", shortID(resp.ID)), zap.String("warning", w))
	}
	return resp.ID, nil
}

func (d *DockerRuntime) Attach(ctx context.Context, id string) (io.ReadCloser, error) {
	resp, err := d.cli.ContainerAttach(ctx, id, container.AttachOptions{
		Stream: true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return nil, classify(err)
	}
	return &hijackedStream{resp: resp}, nil
}

func (d *DockerRuntime) Wait(ctx context.Context, id string) <-chan WaitResult {
	out := make(chan WaitResult, 1)
	waitCh, errCh := d.cli.ContainerWait(ctx, id, container.WaitConditionNextExit)
	go func() {
		select {
		case res := <-waitCh:
			if res.Error != nil && res.Error.Message != "" {
				out <- WaitResult{ExitCode: int(res.StatusCode), Err: errors.New(res.Error.Message)}
				return
			}
			out <- WaitResult{ExitCode: int(res.StatusCode)}
		case err := <-errCh:
			out <- WaitResult{Err: classify(err)}
		}
	}()
	return out
}

func (d *DockerRuntime) Start(ctx context.Context, id string) error {
	return classify(d.cli.ContainerStart(ctx, id, container.StartOptions{}))
}

func (d *DockerRuntime) Inspect(ctx context.Context, id string) (ContainerState, error) {
	info, err := d.cli.ContainerInspect(ctx, id)
	if err != nil {
		return ContainerState{}, classify(err)
	}
	if info.ContainerJSONBase == nil || info.State == nil {
		return ContainerState{}, fmt.Errorf("inspect %s: no state reported", shortID(id))
	}
	return ContainerState{Running: info.State.Running, ExitCode: info.State.ExitCode}, nil
}

func (d *DockerRuntime) Remove(ctx context.Context, id string) error {
	err := d.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
	if err != nil && errdefs.IsConflict(err) && strings.Contains(err.Error(), "already in progress") {
		// auto-remove got there first
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return classify(err)
}

func (d *DockerRuntime) List(ctx context.Context, label, value string) ([]string, error) {
	containers, err := d.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", label+"="+value)),
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(containers))
	for _, c := range containers {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

func (d *DockerRuntime) Close() error {
	return d.cli.Close()
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if errdefs.IsNotFound(err) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}

// hijackedStream adapts the attach connection to io.ReadCloser.
type hijackedStream struct {
	resp types.HijackedResponse
}

func (s *hijackedStream) Read(p []byte) (int, error) {
	return s.resp.Reader.Read(p)
}

func (s *hijackedStream) Close() error {
	s.resp.Close()
	return nil
}
