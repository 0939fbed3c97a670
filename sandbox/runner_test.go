package sandbox_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/coderunner/language"
	"github.com/isdmx/coderunner/sandbox"
	"github.com/isdmx/coderunner/sandbox/sandboxtest"
	"github.com/isdmx/coderunner/workspace"
)

var python = language.Recipe{Image: "python:3.12-slim", SourceFile: "main.py", RunCmd: "python main.py"}

func newWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	m, err := workspace.NewManager(zaptest.NewLogger(t), t.TempDir())
	require.NoError(t, err)
	ws, err := m.Create()
	require.NoError(t, err)
	return ws
}

func TestRunnerLaunchSpec(t *testing.T) {
	rt := sandboxtest.New(nil)
	r := sandbox.NewRunner(zaptest.NewLogger(t), rt)
	ws := newWorkspace(t)

	h, err := r.Launch(context.Background(), python, ws, true)
	require.NoError(t, err)
	defer r.Destroy(context.Background(), h)

	specs := rt.Specs()
	require.Len(t, specs, 1)
	spec := specs[0]
	assert.Equal(t, "coderunner-"+ws.ID, spec.Name)
	assert.Equal(t, "python:3.12-slim", spec.Image)
	assert.Equal(t, "/app", spec.WorkingDir)
	assert.Equal(t, ws.HostPath, spec.HostDir)
	assert.Equal(t, sandbox.DefaultLimits(), spec.Limits)
	assert.Equal(t, "true", spec.Labels[sandbox.ManagedLabel])
	assert.Equal(t, ws.ID, spec.Labels[sandbox.WorkspaceLabel])
	assert.Equal(t, []sandboxtest.Step{{Timeout: "5s", Cmd: "python main.py", Stdin: "input.txt"}}, sandboxtest.Steps(spec.Cmd))
	assert.Equal(t, 1, rt.Starts())
}

func TestRunnerRunToCompletion(t *testing.T) {
	rt := sandboxtest.New(func(sandbox.ContainerSpec) sandboxtest.Program {
		return sandboxtest.Program{
			Output:   []sandboxtest.Chunk{sandboxtest.Stdout("hello\n"), sandboxtest.Stderr("oops\n")},
			ExitCode: 3,
		}
	})
	r := sandbox.NewRunner(zaptest.NewLogger(t), rt)
	ctx := context.Background()

	h, err := r.Launch(ctx, python, newWorkspace(t), false)
	require.NoError(t, err)

	var out bytes.Buffer
	done := make(chan error, 1)
	go func() {
		_, err := sandbox.Demux(&out, r.AttachOutput(h))
		done <- err
	}()

	code, err := r.AwaitCompletion(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, 3, code)
	require.NoError(t, <-done)
	assert.Equal(t, "hello\noops", sandbox.Normalize(out.Bytes()))

	// auto-removed on exit; destroying afterwards is still fine
	require.NoError(t, r.Destroy(ctx, h))
	assert.Equal(t, 0, rt.Live())
}

func TestRunnerLaunchFailureCleansUp(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(rt *sandboxtest.Runtime)
		creates int
	}{
		{"create", func(rt *sandboxtest.Runtime) { rt.CreateErr = errors.New("no such image") }, 0},
		{"attach", func(rt *sandboxtest.Runtime) { rt.AttachErr = errors.New("attach refused") }, 1},
		{"start", func(rt *sandboxtest.Runtime) { rt.StartErr = errors.New("oci runtime error") }, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := sandboxtest.New(nil)
			tt.setup(rt)
			r := sandbox.NewRunner(zaptest.NewLogger(t), rt)

			h, err := r.Launch(context.Background(), python, newWorkspace(t), false)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.name)
			assert.Nil(t, h)
			assert.Equal(t, tt.creates, rt.Creates())
			assert.Equal(t, 0, rt.Live())
		})
	}
}

func TestRunnerTimeout(t *testing.T) {
	rt := sandboxtest.New(func(sandbox.ContainerSpec) sandboxtest.Program {
		return sandboxtest.Program{Output: []sandboxtest.Chunk{sandboxtest.Stdout("tick\n")}, Hang: true}
	})
	r := sandbox.NewRunner(zaptest.NewLogger(t), rt)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	h, err := r.Launch(ctx, python, newWorkspace(t), false)
	require.NoError(t, err)

	var out bytes.Buffer
	done := make(chan struct{})
	go func() {
		_, _ = sandbox.Demux(&out, r.AttachOutput(h))
		close(done)
	}()

	_, err = r.AwaitCompletion(ctx, h)
	require.ErrorIs(t, err, sandbox.ErrTimeout)

	// ctx is spent, removal must happen anyway
	require.NoError(t, r.Destroy(ctx, h))
	<-done
	assert.Equal(t, 0, rt.Live())
	assert.Equal(t, "tick", sandbox.Normalize(out.Bytes()))
}

func TestRunnerDestroyIdempotent(t *testing.T) {
	rt := sandboxtest.New(func(sandbox.ContainerSpec) sandboxtest.Program {
		return sandboxtest.Program{Hang: true}
	})
	r := sandbox.NewRunner(zaptest.NewLogger(t), rt)
	ctx := context.Background()

	h, err := r.Launch(ctx, python, newWorkspace(t), false)
	require.NoError(t, err)

	require.NoError(t, r.Destroy(ctx, h))
	require.NoError(t, r.Destroy(ctx, h))
	require.NoError(t, r.Destroy(ctx, nil))
	assert.Equal(t, 1, rt.RemoveCalls())
	assert.Equal(t, 0, rt.Live())
}

func TestRunnerDestroyFailure(t *testing.T) {
	rt := sandboxtest.New(func(sandbox.ContainerSpec) sandboxtest.Program {
		return sandboxtest.Program{Hang: true}
	})
	r := sandbox.NewRunner(zaptest.NewLogger(t), rt)
	ctx := context.Background()

	h, err := r.Launch(ctx, python, newWorkspace(t), false)
	require.NoError(t, err)

	rt.RemoveErr = errors.New("daemon unavailable")
	err = r.Destroy(ctx, h)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daemon unavailable")

	// reported once, never raised again
	require.NoError(t, r.Destroy(ctx, h))
	assert.Equal(t, 1, rt.RemoveCalls())
}

func TestRunnerSweep(t *testing.T) {
	rt := sandboxtest.New(nil)
	rt.Seed(map[string]string{sandbox.ManagedLabel: "true"})
	rt.Seed(map[string]string{sandbox.ManagedLabel: "true"})
	rt.Seed(map[string]string{"other": "x"})
	r := sandbox.NewRunner(zaptest.NewLogger(t), rt)

	n, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, rt.Live())
}

func TestRunnerSweepListError(t *testing.T) {
	rt := sandboxtest.New(nil)
	rt.ListErr = errors.New("permission denied")
	r := sandbox.NewRunner(zaptest.NewLogger(t), rt)

	_, err := r.Sweep(context.Background())
	assert.Error(t, err)
}
