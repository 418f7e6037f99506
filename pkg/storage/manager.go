package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	errs "wxexport/pkg/errors"
	"wxexport/pkg/models"
)

// Manager owns the on-disk layout under one output root. File existence
// is the only record of what has been exported.
type Manager struct {
	root string
}

// NewManager creates a manager rooted at outputDir, creating it if needed
func NewManager(outputDir string) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeFilesystem, err, "failed to create output directory")
	}
	return &Manager{root: outputDir}, nil
}

// Root returns the output directory path
func (m *Manager) Root() string {
	return m.root
}

// Path returns the artifact path for ref in format f
func (m *Manager) Path(ref models.ArticleRef, f models.Format) string {
	return ref.ArtifactPath(m.root, f)
}

// Exists reports whether a regular file is present at path
func (m *Manager) Exists(path string) bool {
	return Exists(path)
}

// Exists reports whether a regular file is present at path
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Save streams r to path atomically via a temp file in the same directory
func (m *Manager) Save(r io.Reader, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errs.Wrap(errs.ErrorTypeFilesystem, err, "failed to create %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errs.Wrap(errs.ErrorTypeFilesystem, err, "failed to create temporary file")
	}
	tmpName := tmp.Name()

	_, err = io.Copy(tmp, r)
	closeErr := tmp.Close()

	if err != nil {
		os.Remove(tmpName)
		return errs.Wrap(errs.ErrorTypeFilesystem, err, "failed to write %s", path)
	}
	if closeErr != nil {
		os.Remove(tmpName)
		return errs.Wrap(errs.ErrorTypeFilesystem, closeErr, "failed to close %s", path)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errs.Wrap(errs.ErrorTypeFilesystem, err, "failed to rename temporary file")
	}
	return nil
}

// Commit lets write produce the file at a temporary path next to path and
// renames it into place only if write succeeds. It suits writers that
// insist on a file name rather than an io.Writer.
func (m *Manager) Commit(path string, write func(tmpPath string) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errs.Wrap(errs.ErrorTypeFilesystem, err, "failed to create %s", dir)
	}

	tmpName := filepath.Join(dir, fmt.Sprintf(".%s.%d.tmp%s", filepath.Base(path), time.Now().UnixNano(), filepath.Ext(path)))
	if err := write(tmpName); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errs.Wrap(errs.ErrorTypeFilesystem, err, "failed to rename temporary file")
	}
	return nil
}

// WriteFile is Save for an in-memory payload
func (m *Manager) WriteFile(path string, data []byte) error {
	return m.Save(bytes.NewReader(data), path)
}

// Remove deletes path and then its parent directory if that became empty.
// The output root itself is never removed.
func (m *Manager) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errs.Wrap(errs.ErrorTypeFilesystem, err, "failed to remove %s", path)
	}

	dir := filepath.Dir(path)
	if filepath.Clean(dir) == filepath.Clean(m.root) {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return errs.Wrap(errs.ErrorTypeFilesystem, err, "failed to read %s", dir)
	}
	if len(entries) == 0 {
		if err := os.Remove(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return errs.Wrap(errs.ErrorTypeFilesystem, err, "failed to remove %s", dir)
		}
	}
	return nil
}
