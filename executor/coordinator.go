package executor

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/isdmx/coderunner/config"
	"github.com/isdmx/coderunner/language"
	"github.com/isdmx/coderunner/sandbox"
	"github.com/isdmx/coderunner/workspace"
)

// DefaultDeadline is the outer wall-clock ceiling of one execution. It is
// larger than the inner compile and run timeouts combined so that those
// normally fire first.
const DefaultDeadline = 15 * time.Second

// Resolver looks up language recipes.
type Resolver interface {
	Resolve(id string) (language.Recipe, error)
}

// Workspaces allocates and releases per-execution directories.
type Workspaces interface {
	Create() (*workspace.Workspace, error)
	WriteSource(ws *workspace.Workspace, filename, code string) error
	WriteInput(ws *workspace.Workspace, content string) error
	Destroy(ws *workspace.Workspace)
}

// Sandbox runs one program in an isolated container.
type Sandbox interface {
	Launch(ctx context.Context, recipe language.Recipe, ws *workspace.Workspace, hasInput bool) (*sandbox.Handle, error)
	AttachOutput(h *sandbox.Handle) io.Reader
	AwaitCompletion(ctx context.Context, h *sandbox.Handle) (int, error)
	Destroy(ctx context.Context, h *sandbox.Handle) error
}

var (
	_ Resolver   = (*language.Registry)(nil)
	_ Workspaces = (*workspace.Manager)(nil)
	_ Sandbox    = (*sandbox.Runner)(nil)
)

// Coordinator runs execution requests end to end. It is safe for concurrent
// use; executions share nothing but the read-only registry.
type Coordinator struct {
	logger     *zap.Logger
	resolver   Resolver
	workspaces Workspaces
	sandbox    Sandbox
	metrics    *Metrics

	sem       *semaphore.Weighted
	deadline  time.Duration
	maxOutput int
}

// Option defines a functional option for Coordinator
type Option func(*Coordinator)

// WithMaxConcurrent bounds the number of executions holding a sandbox at once.
// Zero or less means unbounded.
func WithMaxConcurrent(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.sem = semaphore.NewWeighted(int64(n))
		} else {
			c.sem = nil
		}
	}
}

// WithDeadline sets the outer deadline.
func WithDeadline(d time.Duration) Option {
	return func(c *Coordinator) {
		c.deadline = d
	}
}

// WithMaxOutputBytes caps the captured output.
func WithMaxOutputBytes(n int) Option {
	return func(c *Coordinator) {
		c.maxOutput = n
	}
}

// WithMetrics records executions in m.
func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// New creates a Coordinator.
func New(logger *zap.Logger, resolver Resolver, workspaces Workspaces, sb Sandbox, opts ...Option) *Coordinator {
	c := &Coordinator{
		logger:     logger.Named("executor"),
		resolver:   resolver,
		workspaces: workspaces,
		sandbox:    sb,
		deadline:   DefaultDeadline,
		maxOutput:  1 << 20,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig creates a Coordinator with the sandbox section's limits.
func NewFromConfig(cfg *config.Config, logger *zap.Logger, registry *language.Registry, manager *workspace.Manager, runner *sandbox.Runner, metrics *Metrics) *Coordinator {
	return New(logger, registry, manager, runner,
		WithMaxConcurrent(cfg.Sandbox.MaxConcurrent),
		WithMaxOutputBytes(cfg.MaxOutputBytes()),
		WithMetrics(metrics),
	)
}

// Execute validates req, runs it in a fresh workspace and sandbox and returns
// the verdict. The workspace and the sandbox are destroyed before Execute
// returns, whatever the outcome.
//
// A program that fails to compile, exits non-zero or runs into a deadline
// still yields a Result. Errors are reserved for invalid requests and engine
// failures, and always wrap one of the Err* kinds.
func (c *Coordinator) Execute(ctx context.Context, req Request) (Result, error) {
	start := time.Now()

	if req.Language == "" || req.Code == "" {
		c.metrics.observe("", OutcomeInvalid, 0)
		return Result{}, invalid(MsgMissingFields)
	}
	recipe, err := c.resolver.Resolve(req.Language)
	if err != nil {
		c.metrics.observe("", OutcomeInvalid, 0)
		return Result{}, invalid(MsgUnsupportedLanguage)
	}

	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			c.metrics.observe(req.Language, OutcomeUnavailable, 0)
			return Result{}, &Error{Kind: ErrUnavailable, Message: "no execution slot available", Err: err}
		}
		defer c.sem.Release(1)
	}
	defer c.metrics.begin()()

	res, err := c.run(ctx, req, recipe, start)

	outcome := OutcomeError
	switch {
	case err != nil:
	case res.TimedOut:
		outcome = OutcomeTimeout
	case res.Success:
		outcome = OutcomeSuccess
	default:
		outcome = OutcomeFailure
	}
	c.metrics.observe(req.Language, outcome, time.Since(start))
	return res, err
}

func (c *Coordinator) run(ctx context.Context, req Request, recipe language.Recipe, start time.Time) (Result, error) {
	ws, err := c.workspaces.Create()
	if err != nil {
		return Result{}, &Error{Kind: ErrResource, Message: "failed to prepare workspace", Err: err}
	}
	defer c.workspaces.Destroy(ws)

	log := c.logger.With(zap.String("language", req.Language), zap.String("workspace", ws.ID))

	if err := c.workspaces.WriteSource(ws, recipe.SourceFile, req.Code); err != nil {
		return Result{}, &Error{Kind: ErrResource, Message: "failed to prepare workspace", Err: err}
	}
	if err := c.workspaces.WriteInput(ws, req.Input); err != nil {
		return Result{}, &Error{Kind: ErrResource, Message: "failed to prepare workspace", Err: err}
	}

	runCtx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()

	h, err := c.sandbox.Launch(runCtx, recipe, ws, req.Input != "")
	if err != nil {
		if c.deadlineHit(ctx, runCtx) {
			log.Warn("sandbox launch hit the deadline", zap.Error(err))
			return c.timedOut(req, "", false, start), nil
		}
		log.Error("failed to launch sandbox", zap.Error(err))
		return Result{}, &Error{Kind: ErrRuntime, Message: "failed to launch sandbox", Err: err}
	}
	defer c.destroy(ctx, log, h)

	out := &sandbox.CappedBuffer{Max: c.maxOutput}
	drained := make(chan error, 1)
	go func() {
		_, err := sandbox.Demux(out, c.sandbox.AttachOutput(h))
		drained <- err
	}()

	waited := make(chan completion, 1)
	go func() {
		code, err := c.sandbox.AwaitCompletion(runCtx, h)
		waited <- completion{code: code, err: err}
	}()

	var (
		done      completion
		drainErr  error
		isDrained bool
	)
	select {
	case drainErr = <-drained:
		isDrained = true
		if drainErr != nil {
			// A broken stream ends the execution even if the program is still running.
			log.Error("failed to read sandbox output", zap.Error(drainErr))
			c.destroy(ctx, log, h)
			cancel()
			<-waited
			return Result{}, &Error{Kind: ErrRuntime, Message: "failed to read sandbox output", Err: drainErr}
		}
		done = <-waited
	case done = <-waited:
	}

	if done.err != nil {
		// Removing the sandbox closes its stream and releases the reader.
		c.destroy(ctx, log, h)
		if !isDrained {
			drainErr = <-drained
		}
		if drainErr != nil {
			log.Warn("sandbox output ended with an error", zap.Error(drainErr))
		}
		if errors.Is(done.err, sandbox.ErrTimeout) && c.deadlineHit(ctx, runCtx) {
			log.Warn("execution hit the deadline", zap.Duration("deadline", c.deadline))
			return c.timedOut(req, out.String(), out.Truncated(), start), nil
		}
		log.Error("failed to await sandbox", zap.Error(done.err))
		return Result{}, &Error{Kind: ErrRuntime, Message: "execution failed", Err: done.err}
	}

	// The container has exited; the rest of its output is already in flight.
	if !isDrained {
		select {
		case drainErr = <-drained:
		case <-runCtx.Done():
			c.destroy(ctx, log, h)
			if err := <-drained; err != nil {
				log.Warn("sandbox output ended with an error", zap.Error(err))
			}
			if c.deadlineHit(ctx, runCtx) {
				return c.timedOut(req, out.String(), out.Truncated(), start), nil
			}
			drainErr = runCtx.Err()
		}
	}
	if drainErr != nil {
		log.Error("failed to read sandbox output", zap.Error(drainErr))
		return Result{}, &Error{Kind: ErrRuntime, Message: "failed to read sandbox output", Err: drainErr}
	}

	code := done.code
	if code == sandbox.TimeoutExitCode {
		log.Info("program killed by inner timeout")
		return c.timedOut(req, out.String(), out.Truncated(), start), nil
	}

	res := Result{
		Language:  req.Language,
		Output:    out.String(),
		ExitCode:  &code,
		Success:   code == 0,
		Elapsed:   time.Since(start),
		Truncated: out.Truncated(),
	}
	log.Info("execution completed",
		zap.Int("exit_code", code),
		zap.Duration("elapsed", res.Elapsed),
		zap.Int("output_len", len(res.Output)),
		zap.Bool("truncated", res.Truncated))
	return res, nil
}

// completion is the outcome of waiting for a sandbox to exit.
type completion struct {
	code int
	err  error
}

// deadlineHit reports whether runCtx ended because of the outer deadline
// rather than because the caller went away.
func (c *Coordinator) deadlineHit(parent, runCtx context.Context) bool {
	return errors.Is(runCtx.Err(), context.DeadlineExceeded) && parent.Err() == nil
}

func (c *Coordinator) timedOut(req Request, output string, truncated bool, start time.Time) Result {
	if output != "" {
		output += "\n"
	}
	return Result{
		Language:  req.Language,
		Output:    output + TimedOutMessage,
		Success:   false,
		Elapsed:   time.Since(start),
		TimedOut:  true,
		Truncated: truncated,
	}
}

func (c *Coordinator) destroy(ctx context.Context, log *zap.Logger, h *sandbox.Handle) {
	if err := c.sandbox.Destroy(ctx, h); err != nil {
		log.Warn("sandbox cleanup failed", zap.Error(err))
		c.metrics.cleanupFailed()
	}
}
