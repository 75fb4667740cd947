package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/tendant/simple-docstore/pkg/docstore"
)

const backendName = "memory"

type object struct {
	versions [][]byte
	deleted  bool
}

// Backend is an in-memory implementation of the docstore.ObjectStore interface.
// Every Put appends a version; reads return the latest one.
type Backend struct {
	mu      sync.RWMutex
	objects map[string]*object
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		objects: make(map[string]*object),
	}
}

// Put stores content as the newest version of key
func (b *Backend) Put(ctx context.Context, key string, reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("failed to read content for %s: %w", key, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	obj, ok := b.objects[key]
	if !ok {
		obj = &object{}
		b.objects[key] = obj
	}
	obj.versions = append(obj.versions, data)
	obj.deleted = false
	return nil
}

// Get returns the latest version of key
func (b *Backend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, ok := b.objects[key]
	if !ok || obj.deleted {
		return nil, docstore.NewNotFoundError(backendName, "get", key)
	}
	latest := obj.versions[len(obj.versions)-1]
	return io.NopCloser(bytes.NewReader(latest)), nil
}

// Delete hides key; earlier versions are retained
func (b *Backend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if obj, ok := b.objects[key]; ok {
		obj.deleted = true
	}
	return nil
}

// Exists reports whether a live version of key is stored
func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, ok := b.objects[key]
	return ok && !obj.deleted, nil
}

// List returns the live keys starting with prefix in ascending order
func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var keys []string
	for key, obj := range b.objects {
		if !obj.deleted && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Versions returns the number of versions written to key, including hidden ones
func (b *Backend) Versions(key string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if obj, ok := b.objects[key]; ok {
		return len(obj.versions)
	}
	return 0
}

func (b *Backend) String() string {
	return backendName
}
