package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rmkenv/OS-ST-GIS/internal/core/observability"
)

// Workspace is a temporary directory owned by one pipeline run. Callers
// defer Close so the directory is removed on every exit path.
type Workspace struct {
	mu     sync.Mutex
	dir    string
	closed bool
}

// NewWorkspace creates a run directory under parent ("" for os.TempDir).
func NewWorkspace(parent string) (*Workspace, error) {
	if parent != "" {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return nil, fmt.Errorf("create export root: %w", err)
		}
	}
	dir, err := os.MkdirTemp(parent, "run-*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

func (w *Workspace) Dir() string { return w.dir }

var ErrWorkspaceClosed = errors.New("workspace closed")

// WriteCombined serializes t to combined_data.csv and returns its path and
// size. A failed write leaves no partial file behind.
func (w *Workspace) WriteCombined(t Table) (string, int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return "", 0, ErrWorkspaceClosed
	}

	path := filepath.Join(w.dir, CombinedFileName)
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create %s: %w", CombinedFileName, err)
	}
	cw := &countingWriter{w: f}
	werr := Serialize(cw, t)
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("write %s: %w", CombinedFileName, err)
	}
	observability.AddExportBytes(cw.n)
	return path, cw.n, nil
}

// Close removes the directory. It is safe to call more than once.
func (w *Workspace) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if err := os.RemoveAll(w.dir); err != nil {
		return fmt.Errorf("remove workspace: %w", err)
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
