// Package media stores uploaded artifact images on the local filesystem.
//
// Files are written under <root>/<yyyy>/<mm>/<id><ext>. Every path is
// resolved against the root and rejected if it escapes it.
package media

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/danmuck/heritagectl/internal/heritage"
)

const (
	DefaultRoot           = "local/media"
	DefaultMaxUploadBytes = 10 << 20
)

var (
	ErrUnsupportedType = errors.New("media: unsupported file type")
	ErrTooLarge        = errors.New("media: file too large")
	ErrInvalidPath     = errors.New("media: invalid path")
)

// Store is a filesystem media adapter scoped to one root directory.
type Store struct {
	root     string
	maxBytes int64
}

// NewStore constructs a media store; empty root and non-positive max use defaults.
func NewStore(root string, maxBytes int64) Store {
	resolved := strings.TrimSpace(root)
	if resolved == "" {
		resolved = DefaultRoot
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return Store{root: resolved, maxBytes: maxBytes}
}

func (s Store) Root() string {
	return s.root
}

func (s Store) MaxBytes() int64 {
	return s.maxBytes
}

// Save writes r as the media for contribution id. name is the client file
// name and only contributes its extension. It returns the stored relative path.
func (s Store) Save(name, id string, at time.Time, r io.Reader) (string, int64, error) {
	if !heritage.IsImageName(name) {
		return "", 0, fmt.Errorf("%w: %q", ErrUnsupportedType, name)
	}
	if strings.TrimSpace(id) == "" || strings.ContainsAny(id, `/\`) {
		return "", 0, fmt.Errorf("%w: bad id %q", ErrInvalidPath, id)
	}
	ext := strings.ToLower(filepath.Ext(name))
	at = at.UTC()
	rel := fmt.Sprintf("%04d/%02d/%s%s", at.Year(), int(at.Month()), id, ext)

	p, err := s.resolvePath(rel)
	if err != nil {
		return "", 0, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", 0, err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", 0, err
	}
	n, copyErr := io.Copy(f, io.LimitReader(r, s.maxBytes+1))
	closeErr := f.Close()
	if copyErr == nil && n > s.maxBytes {
		copyErr = fmt.Errorf("%w: limit %d bytes", ErrTooLarge, s.maxBytes)
	}
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(p)
		return "", 0, copyErr
	}
	return rel, n, nil
}

// Open returns a reader for a stored relative path.
func (s Store) Open(rel string) (*os.File, error) {
	p, err := s.resolvePath(rel)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

// ModTime reports when a stored file was last written.
func (s Store) ModTime(rel string) (time.Time, error) {
	p, err := s.resolvePath(rel)
	if err != nil {
		return time.Time{}, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// Delete removes a stored file. Missing files are not an error.
func (s Store) Delete(rel string) error {
	p, err := s.resolvePath(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// List returns stored relative paths, sorted, optionally filtered by prefix.
func (s Store) List(prefix string) ([]string, error) {
	root, err := filepath.Abs(s.root)
	if err != nil {
		return nil, err
	}
	prefix = strings.TrimSpace(prefix)
	keys := make([]string, 0)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) && path == root {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if prefix == "" || strings.HasPrefix(rel, prefix) {
			keys = append(keys, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (s Store) resolvePath(pathArg string) (string, error) {
	rel := strings.TrimSpace(pathArg)
	if rel == "" {
		return "", fmt.Errorf("%w: missing path", ErrInvalidPath)
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: absolute path not allowed", ErrInvalidPath)
	}
	root, err := filepath.Abs(s.root)
	if err != nil {
		return "", err
	}
	p := filepath.Clean(filepath.Join(root, filepath.FromSlash(rel)))
	if !isWithin(p, root) || p == filepath.Clean(root) {
		return "", fmt.Errorf("%w: path escapes root", ErrInvalidPath)
	}
	return p, nil
}

func isWithin(path string, root string) bool {
	p := filepath.Clean(path)
	r := filepath.Clean(root)
	if p == r {
		return true
	}
	return strings.HasPrefix(p, r+string(os.PathSeparator))
}
