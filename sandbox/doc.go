// Package sandbox runs untrusted programs in disposable containers.
//
// A Runner drives a Runtime (the Docker Engine API, or Podman through its
// Docker-compatible socket) through the life of one execution: create a
// container with the workspace bind-mounted at /app, attach to its output,
// start it, wait for it and force-remove it. Every container runs with a fixed
// memory and CPU ceiling, no network, all capabilities dropped and auto-removal
// enabled.
//
// The attach stream is multiplexed. Demux and CappedBuffer turn it back into
// plain text.
//
// Usage:
//
//	rt, err := sandbox.NewRuntime(cfg, logger)
//	runner := sandbox.NewRunner(logger, rt)
//	h, err := runner.Launch(ctx, recipe, ws, false)
//	defer runner.Destroy(ctx, h)
//	go sandbox.Demux(&out, runner.AttachOutput(h))
//	code, err := runner.AwaitCompletion(ctx, h)
package sandbox
