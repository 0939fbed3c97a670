// Package sandboxtest provides an in-memory sandbox.Runtime for tests.
package sandboxtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/pkg/stdcopy"

	"github.com/isdmx/coderunner/sandbox"
)

// KilledExitCode is reported to waiters of a force-removed container.
const KilledExitCode = 137

// Chunk is one write to a container's stdout or stderr.
type Chunk struct {
	Stream stdcopy.StdType
	Data   string
}

// Stdout returns a stdout chunk.
func Stdout(s string) Chunk { return Chunk{Stream: stdcopy.Stdout, Data: s} }

// Stderr returns a stderr chunk.
func Stderr(s string) Chunk { return Chunk{Stream: stdcopy.Stderr, Data: s} }

// Program is the scripted behavior of one fake container.
type Program struct {
	// Raw is written to the attach stream verbatim, before Output.
	Raw      []byte
	Output   []Chunk
	ExitCode int
	// Delay postpones the output after start.
	Delay time.Duration
	// Hang keeps the container running until it is removed.
	Hang bool
}

// Script decides what a container does from how it was created.
type Script func(spec sandbox.ContainerSpec) Program

// Runtime is a scripted, concurrency-safe sandbox.Runtime.
type Runtime struct {
	Script Script

	CreateErr error
	AttachErr error
	StartErr  error
	RemoveErr error
	ListErr   error

	mu          sync.Mutex
	seq         int
	containers  map[string]*container
	live        map[string]*container
	specs       []sandbox.ContainerSpec
	creates     int
	starts      int
	removeCalls int
	maxLive     int
	closed      bool
}

var _ sandbox.Runtime = (*Runtime)(nil)

type container struct {
	id      string
	spec    sandbox.ContainerSpec
	program Program

	pr *io.PipeReader
	pw *io.PipeWriter

	waiters  []chan sandbox.WaitResult
	exited   bool
	exitCode int

	kill     chan struct{}
	killOnce sync.Once
	doneOnce sync.Once
}

// New returns a Runtime running script.
func New(script Script) *Runtime {
	return &Runtime{
		Script:     script,
		containers: make(map[string]*container),
		live:       make(map[string]*container),
	}
}

// Seed registers an idle container with the given labels, as if left behind
// by an earlier process.
func (r *Runtime) Seed(labels map[string]string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	id := fmt.Sprintf("seeded%058d", r.seq)
	c := newContainer(id, sandbox.ContainerSpec{Labels: labels}, Program{Hang: true})
	r.containers[id] = c
	r.live[id] = c
	return id
}

func newContainer(id string, spec sandbox.ContainerSpec, p Program) *container {
	pr, pw := io.Pipe()
	return &container{id: id, spec: spec, program: p, pr: pr, pw: pw, kill: make(chan struct{})}
}

func (r *Runtime) Create(_ context.Context, spec sandbox.ContainerSpec) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", errors.New("runtime closed")
	}
	if r.CreateErr != nil {
		return "", r.CreateErr
	}
	r.seq++
	id := fmt.Sprintf("%064d", r.seq)

	p := Program{}
	if r.Script != nil {
		p = r.Script(spec)
	}
	c := newContainer(id, spec, p)
	r.containers[id] = c
	r.live[id] = c
	r.specs = append(r.specs, spec)
	r.creates++
	if len(r.live) > r.maxLive {
		r.maxLive = len(r.live)
	}
	return id, nil
}

func (r *Runtime) Attach(_ context.Context, id string) (io.ReadCloser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.AttachErr != nil {
		return nil, r.AttachErr
	}
	c, ok := r.live[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", sandbox.ErrNotFound, id)
	}
	return c.pr, nil
}

func (r *Runtime) Wait(_ context.Context, id string) <-chan sandbox.WaitResult {
	ch := make(chan sandbox.WaitResult, 1)
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.containers[id]
	switch {
	case !ok:
		ch <- sandbox.WaitResult{Err: fmt.Errorf("%w: %s", sandbox.ErrNotFound, id)}
	case c.exited:
		ch <- sandbox.WaitResult{ExitCode: c.exitCode}
	default:
		c.waiters = append(c.waiters, ch)
	}
	return ch
}

func (r *Runtime) Start(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.StartErr != nil {
		return r.StartErr
	}
	c, ok := r.live[id]
	if !ok {
		return fmt.Errorf("%w: %s", sandbox.ErrNotFound, id)
	}
	r.starts++
	go r.run(c)
	return nil
}

func (r *Runtime) run(c *container) {
	p := c.program
	if p.Delay > 0 {
		select {
		case <-time.After(p.Delay):
		case <-c.kill:
			return
		}
	}
	if len(p.Raw) > 0 {
		if _, err := c.pw.Write(p.Raw); err != nil {
			return
		}
	}
	for _, chunk := range p.Output {
		w := stdcopy.NewStdWriter(c.pw, chunk.Stream)
		if _, err := w.Write([]byte(chunk.Data)); err != nil {
			return
		}
	}
	if p.Hang {
		<-c.kill
		return
	}
	r.finish(c, p.ExitCode)
}

func (r *Runtime) finish(c *container, code int) {
	c.doneOnce.Do(func() {
		r.mu.Lock()
		c.exited = true
		c.exitCode = code
		waiters := c.waiters
		c.waiters = nil
		if c.spec.Limits.AutoRemove {
			delete(r.live, c.id)
		}
		r.mu.Unlock()

		_ = c.pw.Close()
		for _, w := range waiters {
			w <- sandbox.WaitResult{ExitCode: code}
		}
	})
}

func (r *Runtime) Inspect(_ context.Context, id string) (sandbox.ContainerState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.live[id]
	if !ok {
		return sandbox.ContainerState{}, fmt.Errorf("%w: %s", sandbox.ErrNotFound, id)
	}
	return sandbox.ContainerState{Running: !c.exited, ExitCode: c.exitCode}, nil
}

func (r *Runtime) Remove(_ context.Context, id string) error {
	r.mu.Lock()
	r.removeCalls++
	if r.RemoveErr != nil {
		err := r.RemoveErr
		r.mu.Unlock()
		return err
	}
	c, ok := r.live[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", sandbox.ErrNotFound, id)
	}
	delete(r.live, id)
	r.mu.Unlock()

	c.killOnce.Do(func() { close(c.kill) })
	r.finish(c, KilledExitCode)
	return nil
}

func (r *Runtime) List(_ context.Context, label, value string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ListErr != nil {
		return nil, r.ListErr
	}
	var ids []string
	for id, c := range r.live {
		if c.spec.Labels[label] == value {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *Runtime) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

// Specs returns the spec of every container created so far.
func (r *Runtime) Specs() []sandbox.ContainerSpec {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sandbox.ContainerSpec(nil), r.specs...)
}

// Creates returns the number of containers created.
func (r *Runtime) Creates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.creates
}

// Starts returns the number of containers started.
func (r *Runtime) Starts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts
}

// RemoveCalls returns the number of Remove calls, successful or not.
func (r *Runtime) RemoveCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeCalls
}

// Live returns the number of containers that still exist.
func (r *Runtime) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// MaxLive returns the highest number of containers that existed at once.
func (r *Runtime) MaxLive() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxLive
}

// Step is one timeout-wrapped command of a sandbox command line.
type Step struct {
	Timeout string
	Cmd     string
	Stdin   string
}

// Steps splits a command built by sandbox.BuildCommand back into its steps.
func Steps(cmd []string) []Step {
	if len(cmd) != 3 {
		return nil
	}
	var steps []Step
	for _, part := range strings.Split(cmd[2], " && ") {
		var s Step
		if rest, ok := strings.CutPrefix(part, "timeout "); ok {
			s.Timeout, part, _ = strings.Cut(rest, " ")
		}
		s.Cmd, s.Stdin, _ = strings.Cut(part, " < ")
		steps = append(steps, s)
	}
	return steps
}
