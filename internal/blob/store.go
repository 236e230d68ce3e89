// Package blob stores uploaded file contents as uniquely named files in one
// flat directory. Attachments address blobs by a relative path of the form
// "/uploads/<name>".
package blob

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// URLPrefix is the public prefix of every stored relative path.
const URLPrefix = "/uploads/"

var (
	// ErrTooLarge is returned by Save when the body exceeds the size limit
	ErrTooLarge = errors.New("blob exceeds maximum size")
	// ErrInvalidPath is returned for relative paths that do not name a file
	ErrInvalidPath = errors.New("invalid blob path")
)

// Store is a flat-directory blob store on top of an afero filesystem whose
// root is the upload directory.
type Store struct {
	fs  afero.Fs
	now func() time.Time
}

// New creates the directory if needed and returns a store rooted at it
func New(dir string) (*Store, error) {
	osFs := afero.NewOsFs()
	if err := osFs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return NewFs(afero.NewBasePathFs(osFs, abs)), nil
}

// NewFs returns a store keeping its blobs at the root of fsys
func NewFs(fsys afero.Fs) *Store {
	return &Store{fs: fsys, now: time.Now}
}

// Save streams r into a new uniquely named blob and returns its relative
// path and size. The extension of originalName is kept. A body larger than
// maxSize (when positive) is discarded and ErrTooLarge returned.
func (s *Store) Save(r io.Reader, originalName string, maxSize int64) (string, int64, error) {
	name := fmt.Sprintf("%d-%s%s", s.now().UnixMilli(), uuid.NewString(), safeExt(originalName))
	full := "/" + name

	f, err := s.fs.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", 0, fmt.Errorf("creating blob: %w", err)
	}

	src := r
	if maxSize > 0 {
		src = io.LimitReader(r, maxSize+1)
	}
	written, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = s.fs.Remove(full)
		return "", 0, fmt.Errorf("writing blob: %w", err)
	}
	if maxSize > 0 && written > maxSize {
		_ = s.fs.Remove(full)
		return "", 0, ErrTooLarge
	}

	return URLPrefix + name, written, nil
}

// resolve maps a stored relative path to a name at the store root. Only the
// base name is honored so a stored path can never escape the store.
func resolve(rel string) (string, error) {
	base := path.Base(path.Clean("/" + strings.ReplaceAll(rel, `\`, "/")))
	if base == "/" || base == "." || base == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, rel)
	}
	return "/" + base, nil
}

// Exists reports whether the blob behind rel is present
func (s *Store) Exists(rel string) (bool, error) {
	name, err := resolve(rel)
	if err != nil {
		return false, err
	}
	return afero.Exists(s.fs, name)
}

// Open opens the blob behind rel for reading
func (s *Store) Open(rel string) (afero.File, error) {
	name, err := resolve(rel)
	if err != nil {
		return nil, err
	}
	return s.fs.Open(name)
}

// Remove deletes the blob behind rel. A missing blob yields an error
// matching fs.ErrNotExist.
func (s *Store) Remove(rel string) error {
	name, err := resolve(rel)
	if err != nil {
		return err
	}
	return s.fs.Remove(name)
}

// EnsurePlaceholder writes a placeholder text naming fileName when the blob
// behind rel is missing. It reports whether a placeholder was written.
func (s *Store) EnsurePlaceholder(rel, fileName string) (bool, error) {
	name, err := resolve(rel)
	if err != nil {
		return false, err
	}
	f, err := s.fs.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("creating placeholder: %w", err)
	}
	_, err = io.WriteString(f, PlaceholderContent(fileName))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = s.fs.Remove(name)
		return false, fmt.Errorf("writing placeholder: %w", err)
	}
	return true, nil
}

// PlaceholderContent is the text synthesized for a missing blob
func PlaceholderContent(fileName string) string {
	return fmt.Sprintf("Sample file: %s\nThis is a placeholder for demonstration purposes.", fileName)
}

// safeExt returns the extension of name when it is short and plain
func safeExt(name string) string {
	ext := filepath.Ext(path.Base(strings.ReplaceAll(name, `\`, "/")))
	if len(ext) > 16 || strings.ContainsAny(ext, "/\\\x00 ") {
		return ""
	}
	return strings.ToLower(ext)
}
