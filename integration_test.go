package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/coderunner/config"
	"github.com/isdmx/coderunner/executor"
	"github.com/isdmx/coderunner/httpapi"
	"github.com/isdmx/coderunner/language"
	"github.com/isdmx/coderunner/logger"
	"github.com/isdmx/coderunner/mcpserver"
	"github.com/isdmx/coderunner/sandbox"
	"github.com/isdmx/coderunner/sandbox/sandboxtest"
	"github.com/isdmx/coderunner/workspace"
)

// stack is the full engine behind an httptest server.
type stack struct {
	server *httptest.Server
}

func newStack(t *testing.T, cfg *config.Config, rt sandbox.Runtime) *stack {
	t.Helper()

	log := zaptest.NewLogger(t)
	registry, err := language.NewFromConfig(cfg)
	require.NoError(t, err)
	workspaces, err := workspace.NewFromConfig(cfg, log)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	coord := executor.NewFromConfig(cfg, log, registry, workspaces, sandbox.NewRunner(log, rt), executor.NewMetrics(reg))

	mcp, err := mcpserver.New(cfg, log, coord, registry)
	require.NoError(t, err)

	api := httpapi.New(log, coord, registry,
		httpapi.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		httpapi.WithGatherer(reg),
		httpapi.WithMCPHandler(mcp.Handler()),
	)
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return &stack{server: srv}
}

func (s *stack) compile(t *testing.T, body string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(s.server.URL+"/api/compile", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("CODERUNNER_SANDBOX_WORKSPACE_ROOT", t.TempDir())
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

// TestIntegrationConfigLogger tests that the default configuration yields a working logger
func TestIntegrationConfigLogger(t *testing.T) {
	cfg := loadConfig(t)

	log, err := logger.NewFromConfig(cfg)
	require.NoError(t, err)
	log.Info("Integration test started")
	_ = log.Sync()
}

// TestIntegrationHTTPStack drives the whole stack over HTTP with a scripted runtime.
func TestIntegrationHTTPStack(t *testing.T) {
	cfg := loadConfig(t)
	rt := sandboxtest.New(func(sandbox.ContainerSpec) sandboxtest.Program {
		return sandboxtest.Program{Output: []sandboxtest.Chunk{sandboxtest.Stdout("Hello, World!\n")}}
	})
	s := newStack(t, cfg, rt)

	t.Run("health", func(t *testing.T) {
		resp, err := http.Get(s.server.URL + "/api/health")
		require.NoError(t, err)
		defer resp.Body.Close()

		var body httpapi.HealthResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "OK", body.Status)
		_, err = time.Parse(time.RFC3339, body.Timestamp)
		assert.NoError(t, err)
	})

	t.Run("hello world", func(t *testing.T) {
		status, body := s.compile(t, `{"language":"python","code":"print('Hello, World!')"}`)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "Hello, World!", body["output"])
		assert.InDelta(t, 0, body["exitCode"], 0)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "python", body["language"])
		assert.Contains(t, body, "executionTime")
	})

	t.Run("unsupported language", func(t *testing.T) {
		before := rt.Creates()
		status, body := s.compile(t, `{"language":"ruby","code":"puts 1"}`)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "Unsupported language", body["error"])
		assert.Equal(t, false, body["success"])
		assert.Equal(t, before, rt.Creates())
	})

	t.Run("missing code", func(t *testing.T) {
		status, body := s.compile(t, `{"language":"python"}`)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "Language and code are required", body["error"])
	})

	t.Run("metrics", func(t *testing.T) {
		resp, err := http.Get(s.server.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	entries, err := os.ReadDir(cfg.Sandbox.WorkspaceRoot)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 0, rt.Live())
}

// TestIntegrationDocker runs real programs. It needs a Docker daemon with the
// default images pulled and is skipped unless CODERUNNER_DOCKER_TESTS=1.
func TestIntegrationDocker(t *testing.T) {
	if os.Getenv("CODERUNNER_DOCKER_TESTS") != "1" {
		t.Skip("set CODERUNNER_DOCKER_TESTS=1 to run against a Docker daemon")
	}

	cfg := loadConfig(t)
	rt, err := sandbox.NewRuntime(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	require.NoError(t, rt.Ping(context.Background()))
	s := newStack(t, cfg, rt)

	hello := map[string]string{
		"python": `print("Hello, World!")`,
		"cpp":    "#include <iostream>\nint main() { std::cout << \"Hello, World!\" << std::endl; }\n",
		"java":   "public class Main { public static void main(String[] a) { System.out.println(\"Hello, World!\"); } }\n",
	}
	for lang, code := range hello {
		t.Run("hello "+lang, func(t *testing.T) {
			status, body := s.compile(t, request(lang, code, ""))
			assert.Equal(t, http.StatusOK, status)
			assert.Equal(t, "Hello, World!", body["output"])
			assert.InDelta(t, 0, body["exitCode"], 0)
			assert.Equal(t, true, body["success"])
		})
	}

	t.Run("input", func(t *testing.T) {
		status, body := s.compile(t, request("python", "name = input()\nprint(f'Hello, {name}!')", "Developer"))
		assert.Equal(t, http.StatusOK, status)
		assert.Contains(t, body["output"], "Developer")
	})

	t.Run("infinite loop", func(t *testing.T) {
		status, body := s.compile(t, request("python", "while True:\n    pass", ""))
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, false, body["success"])
		assert.Nil(t, body["exitCode"])
		assertNoContainers(t, rt)
	})

	t.Run("compile error", func(t *testing.T) {
		status, body := s.compile(t, request("cpp", "int main( { return 0; }", ""))
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, false, body["success"])
		assert.Contains(t, body["output"], "error")
	})

	t.Run("no network", func(t *testing.T) {
		code := "import socket\nsocket.create_connection(('1.1.1.1', 53), timeout=2)"
		_, body := s.compile(t, request("python", code, ""))
		assert.Equal(t, false, body["success"])
	})

	t.Run("concurrent isolation", func(t *testing.T) {
		const n = 4
		var wg sync.WaitGroup
		outputs := make([]any, n)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				code := fmt.Sprintf("import os\nprint('marker-%d', sorted(os.listdir('.')))", i)
				_, body := s.compile(t, request("python", code, ""))
				outputs[i] = body["output"]
			}()
		}
		wg.Wait()
		for i := range n {
			assert.Equal(t, fmt.Sprintf("marker-%d ['main.py']", i), outputs[i])
		}
	})

	assertNoContainers(t, rt)
}

func request(lang, code, input string) string {
	b, _ := json.Marshal(executor.Request{Language: lang, Code: code, Input: input})
	return string(b)
}

func assertNoContainers(t *testing.T, rt sandbox.Runtime) {
	t.Helper()
	ids, err := rt.List(context.Background(), sandbox.ManagedLabel, "true")
	require.NoError(t, err)
	assert.Empty(t, ids)
}
