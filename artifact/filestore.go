package artifact

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// FileExtension is appended to artifact names on disk
const FileExtension = ".artifact"

// FileStore keeps one encoded artifact per file in a directory
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed and returns a store rooted in it
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create store directory %s", dir)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the root directory
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name+FileExtension)
}

// Put writes the encoding to a temporary file and then hard-links it into
// place. Link fails if the target exists, so publication is both atomic and
// write-once.
func (s *FileStore) Put(ctx context.Context, a *Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateName(a.Name); err != nil {
		return err
	}
	data, err := Marshal(a)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "."+a.Name+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to write %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", tmpName)
	}

	if err := os.Link(tmpName, s.path(a.Name)); err != nil {
		if os.IsExist(err) {
			return errors.Wrapf(ErrExists, "%s", a.Name)
		}
		return errors.Wrapf(err, "failed to publish %s", a.Name)
	}
	return nil
}

// Get reads and decodes the artifact stored under name
func (s *FileStore) Get(ctx context.Context, name string) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "%s", name)
		}
		return nil, errors.Wrapf(err, "failed to read %s", name)
	}
	return Unmarshal(data)
}

// List returns the names of published artifacts in sorted order.
// Temporary files from in-flight writes are ignored.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s", s.dir)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if name, ok := strings.CutSuffix(e.Name(), FileExtension); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}
