package output

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Target is where a finalized sink is written. Open is only called once the
// run has fetched everything, so failed runs never touch the destination.
type Target interface {
	// Open returns the writer to finalize into.
	Open() (io.Writer, error)

	// Commit makes the written output visible.
	Commit() error

	// Abort discards anything written since Open. Safe to call after Commit.
	Abort() error

	// String describes the target for messages.
	String() string
}

// FileTarget writes to a temporary file next to Path and renames it into
// place on Commit.
type FileTarget struct {
	Path string

	tmp       *os.File
	committed bool
}

// NewFileTarget creates a target for path.
func NewFileTarget(path string) *FileTarget {
	return &FileTarget{Path: path}
}

// Open implements Target.
func (t *FileTarget) Open() (io.Writer, error) {
	if t.tmp != nil {
		return nil, fmt.Errorf("target %s already open", t.Path)
	}

	dir := filepath.Dir(t.Path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(t.Path)+".*.tmp")
	if err != nil {
		return nil, &IOError{Op: "create", Path: t.Path, Err: err}
	}
	t.tmp = tmp
	return tmp, nil
}

// Commit implements Target.
func (t *FileTarget) Commit() error {
	if t.tmp == nil {
		return fmt.Errorf("target %s not open", t.Path)
	}

	name := t.tmp.Name()
	if err := t.tmp.Sync(); err != nil {
		t.Abort()
		return &IOError{Op: "sync", Path: t.Path, Err: err}
	}
	if err := t.tmp.Close(); err != nil {
		os.Remove(name)
		t.tmp = nil
		return &IOError{Op: "close", Path: t.Path, Err: err}
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		t.tmp = nil
		return &IOError{Op: "chmod", Path: t.Path, Err: err}
	}
	if err := os.Rename(name, t.Path); err != nil {
		os.Remove(name)
		t.tmp = nil
		return &IOError{Op: "rename", Path: t.Path, Err: err}
	}

	t.committed = true
	t.tmp = nil
	return nil
}

// Abort implements Target.
func (t *FileTarget) Abort() error {
	if t.tmp == nil {
		return nil
	}

	name := t.tmp.Name()
	closeErr := t.tmp.Close()
	t.tmp = nil
	if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &IOError{Op: "remove", Path: name, Err: err}
	}
	if closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
		return &IOError{Op: "close", Path: name, Err: closeErr}
	}
	return nil
}

// String implements Target.
func (t *FileTarget) String() string {
	return t.Path
}

// StreamTarget writes straight to an already open stream such as stdout.
// Nothing can be taken back once written, which is why sinks only write at
// Finalize.
type StreamTarget struct {
	W    io.Writer
	Name string
}

// NewStreamTarget creates a target for w.
func NewStreamTarget(w io.Writer, name string) *StreamTarget {
	return &StreamTarget{W: w, Name: name}
}

// Open implements Target.
func (t *StreamTarget) Open() (io.Writer, error) {
	return t.W, nil
}

// Commit implements Target.
func (t *StreamTarget) Commit() error {
	if f, ok := t.W.(interface{ Sync() error }); ok && IsSeekable(t.W) {
		if err := f.Sync(); err != nil {
			return &IOError{Op: "sync", Path: t.Name, Err: err}
		}
	}
	return nil
}

// Abort implements Target.
func (t *StreamTarget) Abort() error {
	return nil
}

// String implements Target.
func (t *StreamTarget) String() string {
	return t.Name
}
