// Package workspace manages the per-execution directories.
//
// Every execution gets a directory named by a fresh UUID under a common
// root. It holds the source file and, when present, input.txt, and is
// bind-mounted into the sandbox as its working directory. Uniqueness of the
// directory name is the only isolation mechanism between concurrent
// executions; no locks are involved.
//
// Usage:
//
//	m, err := workspace.NewManager(logger, "/var/lib/coderunner")
//	ws, err := m.Create()
//	defer m.Destroy(ws)
//	err = m.WriteSource(ws, "main.py", code)
package workspace
