package rootfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/BrianJOC/host-harden/utils/rootexec"
)

const defaultMode os.FileMode = 0o644

// Executor is the subset of rootexec.Executor the writer needs.
type Executor interface {
	Run(ctx context.Context, argv []string, opts ...rootexec.RunOption) (*rootexec.Result, error)
}

// Writer reads and writes root-owned files. When elevating, content is staged
// in a private scratch directory and copied into place with the executor.
type Writer struct {
	exec       Executor
	elevate    bool
	scratchDir string
	now        func() time.Time
	newID      func() string
}

// Option configures a Writer.
type Option func(*Writer)

// WithElevation stages writes and copies them through the executor.
func WithElevation() Option {
	return func(w *Writer) {
		w.elevate = true
	}
}

// WithScratchDir overrides the staging directory.
func WithScratchDir(dir string) Option {
	return func(w *Writer) {
		if strings.TrimSpace(dir) != "" {
			w.scratchDir = dir
		}
	}
}

// WithClock injects the time source used for staging and backup names.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) {
		if now != nil {
			w.now = now
		}
	}
}

// New constructs a Writer.
func New(exec Executor, opts ...Option) *Writer {
	w := &Writer{
		exec:       exec,
		scratchDir: filepath.Join(os.TempDir(), "harden"),
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(w)
	}
	return w
}

// WriteOption tunes a single Write.
type WriteOption func(*writeOptions)

type writeOptions struct {
	mode os.FileMode
}

// WithMode sets the destination permission bits (default 0644).
func WithMode(mode os.FileMode) WriteOption {
	return func(o *writeOptions) {
		o.mode = mode
	}
}

// Write replaces path with content.
func (w *Writer) Write(ctx context.Context, path string, content []byte, opts ...WriteOption) error {
	if err := validatePath(path); err != nil {
		return err
	}
	o := writeOptions{mode: defaultMode}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&o)
	}

	if !w.elevate {
		return w.writeDirect(path, content, o.mode)
	}
	return w.writeStaged(ctx, path, content, o.mode)
}

func (w *Writer) writeDirect(path string, content []byte, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return WriteError{Path: path, Err: err}
	}
	if err := os.WriteFile(path, content, mode); err != nil {
		return WriteError{Path: path, Err: err}
	}
	// WriteFile keeps the old mode of an existing file.
	if err := os.Chmod(path, mode); err != nil {
		return WriteError{Path: path, Err: err}
	}
	return nil
}

func (w *Writer) writeStaged(ctx context.Context, path string, content []byte, mode os.FileMode) error {
	if w.exec == nil {
		return ExecutorError{}
	}
	if err := os.MkdirAll(w.scratchDir, 0o700); err != nil {
		return StageError{Path: path, Err: err}
	}
	if err := checkScratch(w.scratchDir); err != nil {
		return StageError{Path: path, Err: err}
	}

	staged := filepath.Join(w.scratchDir, w.stagingName(path))
	defer func() {
		_ = os.Remove(staged)
	}()

	f, err := os.OpenFile(staged, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return StageError{Path: path, Err: err}
	}
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return StageError{Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return StageError{Path: path, Err: err}
	}

	argv := []string{"install", "-D", "-m", fmt.Sprintf("%04o", mode.Perm()), staged, path}
	if _, err := w.exec.Run(ctx, argv, rootexec.Capture()); err != nil {
		return WriteError{Path: path, Err: err}
	}
	return nil
}

// checkScratch refuses a staging directory another user could tamper with
// between staging and the privileged copy.
func checkScratch(dir string) error {
	info, err := os.Lstat(dir)
	if err != nil {
		return err
	}
	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		return ScratchDirError{Dir: dir, Reason: "is a symlink"}
	case !info.IsDir():
		return ScratchDirError{Dir: dir, Reason: "is not a directory"}
	case info.Mode().Perm()&0o077 != 0:
		return ScratchDirError{Dir: dir, Reason: fmt.Sprintf("has mode %04o, want 0700", info.Mode().Perm())}
	}
	if st, ok := info.Sys().(*syscall.Stat_t); ok && int(st.Uid) != os.Geteuid() {
		return ScratchDirError{Dir: dir, Reason: fmt.Sprintf("is owned by uid %d", st.Uid)}
	}
	return nil
}

func (w *Writer) stagingName(path string) string {
	id := w.newID()
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%d-%s-%s.tmp", w.now().UnixNano(), sanitize(path), id)
}

// Read returns the content of path and whether it exists.
func (w *Writer) Read(ctx context.Context, path string) (string, bool, error) {
	if err := validatePath(path); err != nil {
		return "", false, err
	}
	if !w.elevate {
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		if err != nil {
			return "", false, ReadError{Path: path, Err: err}
		}
		return string(data), true, nil
	}

	if w.exec == nil {
		return "", false, ExecutorError{}
	}
	probe, err := w.exec.Run(ctx, []string{"test", "-f", path}, rootexec.Capture(), rootexec.AllowFail())
	if err != nil {
		return "", false, ReadError{Path: path, Err: err}
	}
	if !probe.Success() {
		return "", false, nil
	}
	res, err := w.exec.Run(ctx, []string{"cat", path}, rootexec.Capture())
	if err != nil {
		return "", false, ReadError{Path: path, Err: err}
	}
	return res.Stdout, true, nil
}

// Exists reports whether path is a regular file.
func (w *Writer) Exists(ctx context.Context, path string) (bool, error) {
	if err := validatePath(path); err != nil {
		return false, err
	}
	if !w.elevate {
		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		if err != nil {
			return false, ReadError{Path: path, Err: err}
		}
		return info.Mode().IsRegular(), nil
	}
	if w.exec == nil {
		return false, ExecutorError{}
	}
	res, err := w.exec.Run(ctx, []string{"test", "-f", path}, rootexec.Capture(), rootexec.AllowFail())
	if err != nil {
		return false, ReadError{Path: path, Err: err}
	}
	return res.Success(), nil
}

// Remove deletes path; a missing file is not an error.
func (w *Writer) Remove(ctx context.Context, path string) error {
	if err := validatePath(path); err != nil {
		return err
	}
	if !w.elevate {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return WriteError{Path: path, Err: err}
		}
		return nil
	}
	if w.exec == nil {
		return ExecutorError{}
	}
	if _, err := w.exec.Run(ctx, []string{"rm", "-f", path}, rootexec.Capture()); err != nil {
		return WriteError{Path: path, Err: err}
	}
	return nil
}

// Backup copies an existing file to path.bak.<timestamp> and returns the copy's
// path. It returns "" when there is nothing to back up.
func (w *Writer) Backup(ctx context.Context, path string) (string, error) {
	exists, err := w.Exists(ctx, path)
	if err != nil || !exists {
		return "", err
	}
	dest := fmt.Sprintf("%s.bak.%s", path, w.now().Format("20060102-150405"))
	if w.exec == nil {
		return "", ExecutorError{}
	}
	if _, err := w.exec.Run(ctx, []string{"cp", "-p", path, dest}, rootexec.Capture()); err != nil {
		return "", WriteError{Path: dest, Err: err}
	}
	return dest, nil
}

func validatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return PathError{Path: path, Reason: "path is required"}
	}
	if !filepath.IsAbs(path) {
		return PathError{Path: path, Reason: "path must be absolute"}
	}
	return nil
}

func sanitize(path string) string {
	var b strings.Builder
	for _, r := range strings.Trim(path, "/") {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := b.String()
	if len(out) > 64 {
		out = out[len(out)-64:]
	}
	if out == "" {
		return "root"
	}
	return out
}
