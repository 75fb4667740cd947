package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"github.com/tendant/simple-docstore/pkg/docstore"
)

const (
	backendName = "fs"

	// stageDir holds writes in progress; they are renamed into place
	stageDir = ".put-stage"

	// versionsDir holds the superseded versions of each key
	versionsDir = ".versions"
)

// Config options for the filesystem backend
type Config struct {
	BaseDir string  // Base directory for storing files
	Fs      afero.Fs // Optional filesystem, overrides BaseDir (tests use afero.NewMemMapFs)
}

// Backend is a filesystem implementation of the docstore.ObjectStore interface.
// Overwritten files are moved to numbered version files.
type Backend struct {
	mu      sync.Mutex
	fs      afero.Fs
	baseDir string
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	fs := config.Fs
	if fs == nil {
		if config.BaseDir == "" {
			return nil, errors.New("base directory is required")
		}
		if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", err)
		}
		fs = afero.NewBasePathFs(afero.NewOsFs(), config.BaseDir)
	}

	if err := fs.MkdirAll(stageDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	return &Backend{fs: fs, baseDir: config.BaseDir}, nil
}

// checkKey rejects keys that are empty, escape the base directory or land in
// a reserved directory. The failures wrap docstore.ErrInvalidIdentifier.
func checkKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", docstore.ErrInvalidIdentifier)
	}
	first := strings.SplitN(strings.TrimLeft(key, "/"), "/", 2)[0]
	if first == stageDir || first == versionsDir {
		return fmt.Errorf("%w: key %q conflicts with reserved directory %q", docstore.ErrInvalidIdentifier, key, first)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return fmt.Errorf("%w: key %q escapes the base directory", docstore.ErrInvalidIdentifier, key)
		}
	}
	return nil
}

func keyError(op, key string, err error) error {
	return &docstore.StorageError{Backend: backendName, Key: key, Op: op, Err: err}
}

// Put writes content to key. An existing file becomes the next numbered version.
func (b *Backend) Put(ctx context.Context, key string, reader io.Reader) error {
	if err := checkKey(key); err != nil {
		return keyError("put", key, err)
	}

	staged, err := afero.TempFile(b.fs, stageDir, "put-")
	if err != nil {
		return docstore.NewUnavailableError(backendName, "put", key, err)
	}
	stagedName := staged.Name()
	if _, err := io.Copy(staged, reader); err != nil {
		staged.Close()
		b.fs.Remove(stagedName)
		return docstore.NewUnavailableError(backendName, "put", key, fmt.Errorf("write: %w", err))
	}
	if err := staged.Close(); err != nil {
		b.fs.Remove(stagedName)
		return docstore.NewUnavailableError(backendName, "put", key, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.fs.MkdirAll(filepath.Dir(key), 0755); err != nil {
		return docstore.NewUnavailableError(backendName, "put", key, fmt.Errorf("ensuring directories: %w", err))
	}
	if live, err := b.isFile(key); err != nil {
		return docstore.NewUnavailableError(backendName, "put", key, err)
	} else if live {
		if err := b.archive(key); err != nil {
			return docstore.NewUnavailableError(backendName, "put", key, err)
		}
	}
	if err := b.fs.Rename(stagedName, key); err != nil {
		return docstore.NewUnavailableError(backendName, "put", key, err)
	}
	return nil
}

// archive moves the live file of key to its next version slot
func (b *Backend) archive(key string) error {
	dir := filepath.Join(versionsDir, key)
	if err := b.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("ensuring version directory: %w", err)
	}
	n, err := b.versionCount(key)
	if err != nil {
		return err
	}
	return b.fs.Rename(key, filepath.Join(dir, strconv.Itoa(n+1)))
}

func (b *Backend) versionCount(key string) (int, error) {
	entries, err := afero.ReadDir(b.fs, filepath.Join(versionsDir, key))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			n++
		}
	}
	return n, nil
}

func (b *Backend) isFile(key string) (bool, error) {
	fi, err := b.fs.Stat(key)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !fi.IsDir(), nil
}

// Get opens the live file of key
func (b *Backend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := checkKey(key); err != nil {
		return nil, keyError("get", key, err)
	}
	live, err := b.isFile(key)
	if err != nil {
		return nil, docstore.NewUnavailableError(backendName, "get", key, err)
	}
	if !live {
		return nil, docstore.NewNotFoundError(backendName, "get", key)
	}
	f, err := b.fs.Open(key)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, docstore.NewNotFoundError(backendName, "get", key)
		}
		return nil, docstore.NewUnavailableError(backendName, "get", key, err)
	}
	return f, nil
}

// Delete archives the live file of key; absent keys are ignored
func (b *Backend) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return keyError("delete", key, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	live, err := b.isFile(key)
	if err != nil {
		return docstore.NewUnavailableError(backendName, "delete", key, err)
	}
	if !live {
		return nil
	}
	if err := b.archive(key); err != nil {
		return docstore.NewUnavailableError(backendName, "delete", key, err)
	}
	return nil
}

// Exists reports whether a live file occupies key
func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	if err := checkKey(key); err != nil {
		return false, keyError("exists", key, err)
	}
	live, err := b.isFile(key)
	if err != nil {
		return false, docstore.NewUnavailableError(backendName, "exists", key, err)
	}
	return live, nil
}

// List walks the tree and returns the live keys starting with prefix
func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	const root = "."
	var keys []string
	err := afero.Walk(b.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		key := filepath.ToSlash(path)
		if info.IsDir() {
			if key == stageDir || key == versionsDir {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, docstore.NewUnavailableError(backendName, "list", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Versions returns the number of versions written to key, the live one included
func (b *Backend) Versions(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n, _ := b.versionCount(key)
	if live, _ := b.isFile(key); live {
		n++
	}
	return n
}

func (b *Backend) String() string {
	if b.baseDir != "" {
		return backendName + "@" + b.baseDir
	}
	return backendName
}
