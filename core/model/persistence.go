package model

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/YuminosukeSato/xclf/pkg/errors"
)

// Staging collects the files of one output directory in a temporary sibling
// directory. Commit moves them into place in one rename; Abort removes them.
// Nothing is written to the final path before Commit.
//
//	st, err := model.NewStaging(out)
//	if err != nil {
//	    return err
//	}
//	defer st.Abort()
//	f, err := st.Create("tree.bin")
//	...
//	return st.Commit()
type Staging struct {
	final string
	tmp   string
	done  bool
}

// NewStaging prepares a staging directory for dir.
func NewStaging(dir string) (*Staging, error) {
	final := filepath.Clean(dir)
	parent := filepath.Dir(final)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create %s", parent)
	}
	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(final)+".staging-")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create staging directory")
	}
	return &Staging{final: final, tmp: tmp}, nil
}

// Dir returns the staging directory.
func (s *Staging) Dir() string { return s.tmp }

// Final returns the directory that Commit will create.
func (s *Staging) Final() string { return s.final }

// Path returns the staged location of name.
func (s *Staging) Path(name string) string { return filepath.Join(s.tmp, name) }

// Create creates the staged file name, including parent directories.
func (s *Staging) Create(name string) (*os.File, error) {
	p := s.Path(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create directory for %s", name)
	}
	f, err := os.Create(p)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s", name)
	}
	return f, nil
}

// WriteFile stages name with the output of fn.
func (s *Staging) WriteFile(name string, fn func(w io.Writer) error) (err error) {
	f, err := s.Create(name)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "failed to close %s", name)
		}
	}()
	return fn(f)
}

// Commit replaces the final directory with the staged one. An existing
// final directory is moved aside first and restored if the swap fails.
func (s *Staging) Commit() error {
	if s.done {
		return errors.New("staging already finished")
	}
	s.done = true

	backup := ""
	if _, err := os.Stat(s.final); err == nil {
		backup = fmt.Sprintf("%s.old-%s", s.final, filepath.Base(s.tmp))
		if err := os.Rename(s.final, backup); err != nil {
			_ = os.RemoveAll(s.tmp)
			return errors.Wrapf(err, "failed to move existing %s aside", s.final)
		}
	}

	if err := os.Rename(s.tmp, s.final); err != nil {
		if backup != "" {
			_ = os.Rename(backup, s.final)
		}
		_ = os.RemoveAll(s.tmp)
		return errors.Wrapf(err, "failed to commit %s", s.final)
	}

	if backup != "" {
		if err := os.RemoveAll(backup); err != nil {
			return errors.Wrapf(err, "committed %s but failed to remove %s", s.final, backup)
		}
	}
	return nil
}

// Abort discards the staged files. It is a no-op after Commit.
func (s *Staging) Abort() error {
	if s.done {
		return nil
	}
	s.done = true
	return os.RemoveAll(s.tmp)
}

// WriteFileAtomic writes path through a temporary file in the same directory
// and renames it into place.
func WriteFileAtomic(path string, fn func(w io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", dir)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary file")
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	if err = fn(f); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", f.Name())
	}
	if err = os.Rename(f.Name(), path); err != nil {
		return errors.Wrapf(err, "failed to rename into %s", path)
	}
	return nil
}
