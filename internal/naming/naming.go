package naming

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// DefaultSubfolder is the per-source output folder used when no override is given.
const DefaultSubfolder = "cleaned"

// DirectoryError reports that the output directory for a file could not be created or accessed.
type DirectoryError struct {
	Dir string
	Err error
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("cannot prepare output directory %q: %v", e.Dir, e.Err)
}

func (e *DirectoryError) Unwrap() error { return e.Err }

// IsDirectoryError reports whether err is, or wraps, a DirectoryError.
func IsDirectoryError(err error) bool {
	var e *DirectoryError
	return errors.As(err, &e)
}

// Resolution is the outcome of naming one source file.
type Resolution struct {
	OutputDir  string
	DestPath   string
	Identifier string
	DirCreated bool
}

// Namer derives collision-resistant destination paths.
type Namer struct {
	subfolder string
	newID     func() string
	mkdirAll  func(path string, perm os.FileMode) error
}

// NewNamer returns a Namer that places files under subfolder when no override is given.
// An empty subfolder falls back to DefaultSubfolder.
func NewNamer(subfolder string) *Namer {
	if subfolder == "" {
		subfolder = DefaultSubfolder
	}
	return &Namer{
		subfolder: subfolder,
		newID:     uuid.NewString,
		mkdirAll:  os.MkdirAll,
	}
}

// WithIdentifierSource replaces the identifier generator. Intended for tests.
func (n *Namer) WithIdentifierSource(fn func() string) *Namer {
	n.newID = fn
	return n
}

// Extension returns the extension of path verbatim, including the leading dot, or "".
func Extension(path string) string {
	return filepath.Ext(path)
}

// OutputDir returns the directory a source file's output belongs in.
func (n *Namer) OutputDir(sourcePath, override string) string {
	if override != "" {
		return override
	}
	return filepath.Join(filepath.Dir(sourcePath), n.subfolder)
}

// Resolve picks a fresh identifier for sourcePath and ensures the output directory exists.
// Creating a directory that already exists is not an error.
func (n *Namer) Resolve(sourcePath, override string) (Resolution, error) {
	outDir := n.OutputDir(sourcePath, override)
	id := n.newID()

	res := Resolution{
		OutputDir:  outDir,
		DestPath:   filepath.Join(outDir, id+Extension(sourcePath)),
		Identifier: id,
	}

	created, err := n.ensureDir(outDir)
	if err != nil {
		return res, &DirectoryError{Dir: outDir, Err: err}
	}
	res.DirCreated = created
	return res, nil
}

// ensureDir creates dir and its parents. The leaf is created with a single Mkdir so
// that exactly one of several concurrent callers reports having created it; the
// others see it as already present, which is not an error.
func (n *Namer) ensureDir(dir string) (bool, error) {
	if err := n.mkdirAll(filepath.Dir(dir), 0755); err != nil {
		return false, err
	}

	err := os.Mkdir(dir, 0755)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, fs.ErrExist) {
		return false, err
	}

	info, err := os.Stat(dir)
	if err != nil {
		return false, err
	}
	if !info.IsDir() {
		return false, fmt.Errorf("%s exists and is not a directory", dir)
	}
	return false, nil
}
