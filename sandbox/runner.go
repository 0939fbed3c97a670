package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/coderunner/language"
	"github.com/isdmx/coderunner/workspace"
)

// NamePrefix prefixes every container name.
const NamePrefix = "coderunner-"

// cleanupTimeout bounds a destroy issued after the caller's context is gone.
const cleanupTimeout = 10 * time.Second

// Handle is one launched sandbox, bound to one workspace for the lifetime of one execution.
type Handle struct {
	ContainerID string
	Workspace   string

	stream io.ReadCloser
	wait   <-chan WaitResult

	once sync.Once
}

// CloseStream closes the attached stream, unblocking any reader.
func (h *Handle) CloseStream() error {
	if h.stream == nil {
		return nil
	}
	return h.stream.Close()
}

// Runner drives the container runtime through the lifecycle of one execution:
// create, attach, start, wait and destroy.
type Runner struct {
	logger *zap.Logger
	rt     Runtime
	limits Limits
}

// RunnerOption defines a functional option for Runner
type RunnerOption func(*Runner)

// WithLimits overrides the default limits. Only tests should need this.
func WithLimits(l Limits) RunnerOption {
	return func(r *Runner) {
		r.limits = l
	}
}

// NewRunner creates a Runner on top of rt
func NewRunner(logger *zap.Logger, rt Runtime, opts ...RunnerOption) *Runner {
	r := &Runner{
		logger: logger.Named("sandbox"),
		rt:     rt,
		limits: DefaultLimits(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Launch creates a sandbox for recipe with ws as its working directory, attaches
// to its output and starts it. If any step fails the container is destroyed
// before Launch returns, so a nil Handle never leaves anything behind.
func (r *Runner) Launch(ctx context.Context, recipe language.Recipe, ws *workspace.Workspace, hasInput bool) (*Handle, error) {
	spec := ContainerSpec{
		Name:       NamePrefix + ws.ID,
		Image:      recipe.Image,
		Cmd:        BuildCommand(recipe, hasInput),
		WorkingDir: WorkDir,
		HostDir:    ws.HostPath,
		Labels: map[string]string{
			ManagedLabel:   "true",
			WorkspaceLabel: ws.ID,
		},
		Limits: r.limits,
	}

	id, err := r.rt.Create(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("create container: %w", err)
	}
	h := &Handle{ContainerID: id, Workspace: ws.ID}
	log := r.logger.With(zap.String("container", shortID(id)), zap.String("workspace", ws.ID))
	log.Debug("container created", zap.String("image", spec.Image), zap.Strings("cmd", spec.Cmd))

	launched := false
	defer func() {
		if !launched {
			_ = r.Destroy(ctx, h)
		}
	}()

	// Attach and register the wait before starting, otherwise early output or a
	// fast exit of an auto-removed container would be lost.
	h.stream, err = r.rt.Attach(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("attach container: %w", err)
	}
	h.wait = r.rt.Wait(ctx, id)

	if err := r.rt.Start(ctx, id); err != nil {
		return nil, fmt.Errorf("start container: %w", err)
	}

	launched = true
	log.Debug("container started")
	return h, nil
}

// AttachOutput returns the live multiplexed output stream of h. It can be consumed once.
func (r *Runner) AttachOutput(h *Handle) io.Reader {
	return h.stream
}

// AwaitCompletion blocks until the sandbox exits or ctx is done. On ctx expiry
// it returns an error wrapping ErrTimeout and the caller must destroy h.
func (r *Runner) AwaitCompletion(ctx context.Context, h *Handle) (int, error) {
	select {
	case res := <-h.wait:
		if res.Err == nil {
			return res.ExitCode, nil
		}
		if ctx.Err() != nil {
			return 0, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
		}
		// The wait stream can fail independently of the container (e.g. a
		// dropped connection); fall back to inspecting it.
		state, err := r.rt.Inspect(ctx, h.ContainerID)
		if err != nil {
			return 0, fmt.Errorf("wait container: %w", errors.Join(res.Err, err))
		}
		if state.Running {
			return 0, fmt.Errorf("wait container: %w", res.Err)
		}
		return state.ExitCode, nil
	case <-ctx.Done():
		return 0, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	}
}

// Destroy force-removes the sandbox and closes its stream. It is idempotent:
// only the first call does anything and later calls return nil. A container
// that is already gone is not an error; any other failure is logged and returned.
func (r *Runner) Destroy(ctx context.Context, h *Handle) error {
	if h == nil {
		return nil
	}
	var err error
	h.once.Do(func() {
		log := r.logger.With(zap.String("container", shortID(h.ContainerID)))

		if cerr := h.CloseStream(); cerr != nil {
			log.Debug("failed to close output stream", zap.Error(cerr))
		}

		// The caller's deadline may already be spent; removal must still happen.
		rmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()

		rmErr := r.rt.Remove(rmCtx, h.ContainerID)
		switch {
		case rmErr == nil:
			log.Debug("container removed")
		case errors.Is(rmErr, ErrNotFound):
			log.Debug("container already gone", zap.Error(rmErr))
		default:
			log.Error("failed to remove container", zap.Error(rmErr))
			err = fmt.Errorf("remove container %s: %w", shortID(h.ContainerID), rmErr)
		}
	})
	return err
}

// Sweep removes every managed container, e.g. ones orphaned by a crash.
// It must only run before the first Launch.
func (r *Runner) Sweep(ctx context.Context) (int, error) {
	ids, err := r.rt.List(ctx, ManagedLabel, "true")
	if err != nil {
		return 0, fmt.Errorf("list containers: %w", err)
	}
	removed := 0
	for _, id := range ids {
		if err := r.rt.Remove(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
			r.logger.Warn("failed to sweep container", zap.String("container", shortID(id)), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
