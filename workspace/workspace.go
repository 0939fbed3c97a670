package workspace

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isdmx/coderunner/config"
)

// InputFilename is the name of the stdin file inside a workspace.
const InputFilename = "input.txt"

// Permissions. The directory is world-writable because the sandbox runs with
// every capability dropped and must still be able to write compiler output into it.
const (
	DirPermission  = 0o777
	RootPermission = 0o755
	FilePermission = 0o644
)

// ErrUnsafeFilename is returned when a file name would resolve outside the workspace.
var ErrUnsafeFilename = errors.New("unsafe file name")

// Workspace is one request-scoped directory.
type Workspace struct {
	ID string
	// Path is the directory as seen by this process.
	Path string
	// HostPath is the directory as seen by the container runtime; it differs from
	// Path only when the service itself runs inside a container.
	HostPath string

	destroyed atomic.Bool
}

// File returns the absolute path of name inside the workspace.
func (w *Workspace) File(name string) string {
	return filepath.Join(w.Path, name)
}

// Manager creates and destroys workspaces under a root directory.
type Manager struct {
	logger   *zap.Logger
	root     string
	hostRoot string
	fs       FileSystem
}

// Option defines a functional option for Manager
type Option func(*Manager)

// WithFileSystem sets the FileSystem for Manager
func WithFileSystem(fs FileSystem) Option {
	return func(m *Manager) {
		m.fs = fs
	}
}

// WithHostRoot sets the root as seen by the container runtime.
func WithHostRoot(hostRoot string) Option {
	return func(m *Manager) {
		m.hostRoot = hostRoot
	}
}

// NewManager creates a Manager rooted at root, creating the root if needed.
func NewManager(logger *zap.Logger, root string, opts ...Option) (*Manager, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}

	m := &Manager{
		logger: logger.Named("workspace"),
		root:   abs,
		fs:     RealFileSystem{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.hostRoot == "" {
		m.hostRoot = m.root
	}

	if err := m.fs.MkdirAll(m.root, RootPermission); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}

	return m, nil
}

// NewFromConfig creates a Manager from the sandbox section of the configuration.
func NewFromConfig(cfg *config.Config, logger *zap.Logger) (*Manager, error) {
	return NewManager(logger, cfg.Sandbox.WorkspaceRoot, WithHostRoot(cfg.Sandbox.HostWorkspaceRoot))
}

// Root returns the absolute workspace root.
func (m *Manager) Root() string {
	return m.root
}

// Create allocates a fresh, uniquely named workspace directory.
func (m *Manager) Create() (*Workspace, error) {
	id := uuid.NewString()
	ws := &Workspace{
		ID:       id,
		Path:     filepath.Join(m.root, id),
		HostPath: filepath.Join(m.hostRoot, id),
	}

	if err := m.fs.Mkdir(ws.Path, DirPermission); err != nil {
		return nil, fmt.Errorf("create workspace %s: %w", id, err)
	}
	// Mkdir is subject to the umask.
	if err := m.fs.Chmod(ws.Path, DirPermission); err != nil {
		m.Destroy(ws)
		return nil, fmt.Errorf("chmod workspace %s: %w", id, err)
	}

	m.logger.Debug("workspace created", zap.String("workspace", id))
	return ws, nil
}

// WriteSource writes the program source as filename. Each file can be written once.
func (m *Manager) WriteSource(ws *Workspace, filename, code string) error {
	if filename == "" || filepath.Base(filename) != filename || filename == InputFilename {
		return fmt.Errorf("%w: %q", ErrUnsafeFilename, filename)
	}
	if err := m.fs.CreateFile(ws.File(filename), []byte(code), FilePermission); err != nil {
		return fmt.Errorf("write source: %w", err)
	}
	return nil
}

// WriteInput writes the stdin file. Empty content writes nothing.
func (m *Manager) WriteInput(ws *Workspace, content string) error {
	if content == "" {
		return nil
	}
	if err := m.fs.CreateFile(ws.File(InputFilename), []byte(content), FilePermission); err != nil {
		return fmt.Errorf("write input: %w", err)
	}
	return nil
}

// Destroy recursively removes the workspace. It is idempotent and never fails:
// removal errors are logged and swallowed.
func (m *Manager) Destroy(ws *Workspace) {
	if ws == nil {
		return
	}
	if ws.destroyed.Swap(true) {
		m.logger.Debug("workspace already destroyed", zap.String("workspace", ws.ID))
		return
	}
	if err := m.fs.RemoveAll(ws.Path); err != nil {
		m.logger.Warn("failed to remove workspace", zap.String("workspace", ws.ID), zap.String("path", ws.Path), zap.Error(err))
		return
	}
	m.logger.Debug("workspace destroyed", zap.String("workspace", ws.ID))
}

// Sweep removes workspace directories left behind by a previous process.
// It must only run before the first Create.
func (m *Manager) Sweep() (int, error) {
	entries, err := m.fs.ReadDir(m.root)
	if err != nil {
		return 0, fmt.Errorf("read workspace root: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := uuid.Parse(e.Name()); err != nil {
			continue
		}
		path := filepath.Join(m.root, e.Name())
		if err := m.fs.RemoveAll(path); err != nil {
			m.logger.Warn("failed to sweep workspace", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}
