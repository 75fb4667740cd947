package docstore_test

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-docstore/pkg/docstore"
	memorystorage "github.com/tendant/simple-docstore/pkg/docstore/storage/memory"
)

// countingStore counts every call that reaches the wrapped store
type countingStore struct {
	docstore.ObjectStore
	mu    sync.Mutex
	calls map[string]int
}

func newCountingStore(store docstore.ObjectStore) *countingStore {
	return &countingStore{ObjectStore: store, calls: map[string]int{}}
}

func (c *countingStore) count(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[op]++
}

func (c *countingStore) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

func (c *countingStore) Put(ctx context.Context, key string, r io.Reader) error {
	c.count("put")
	return c.ObjectStore.Put(ctx, key, r)
}

func (c *countingStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	c.count("get")
	return c.ObjectStore.Get(ctx, key)
}

func (c *countingStore) Delete(ctx context.Context, key string) error {
	c.count("delete")
	return c.ObjectStore.Delete(ctx, key)
}

func (c *countingStore) Exists(ctx context.Context, key string) (bool, error) {
	c.count("exists")
	return c.ObjectStore.Exists(ctx, key)
}

func (c *countingStore) List(ctx context.Context, prefix string) ([]string, error) {
	c.count("list")
	return c.ObjectStore.List(ctx, prefix)
}

var errInjected = errors.New("injected transport failure")

// failingStore fails calls on selected keys with ErrStoreUnavailable
type failingStore struct {
	docstore.ObjectStore
	failGet    map[string]bool
	failDelete map[string]bool
	failExists bool
}

func (f *failingStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if f.failGet[key] {
		return nil, docstore.NewUnavailableError("failing", "get", key, errInjected)
	}
	return f.ObjectStore.Get(ctx, key)
}

func (f *failingStore) Delete(ctx context.Context, key string) error {
	if f.failDelete[key] {
		return docstore.NewUnavailableError("failing", "delete", key, errInjected)
	}
	return f.ObjectStore.Delete(ctx, key)
}

func (f *failingStore) Exists(ctx context.Context, key string) (bool, error) {
	if f.failExists {
		return false, docstore.NewUnavailableError("failing", "exists", key, errInjected)
	}
	return f.ObjectStore.Exists(ctx, key)
}

// seed writes the given key/value pairs into a fresh memory backend
func seed(t *testing.T, objects map[string]string) *memorystorage.Backend {
	t.Helper()
	store := memorystorage.New()
	for key, value := range objects {
		require.NoError(t, store.Put(context.Background(), key, strings.NewReader(value)))
	}
	return store
}

func read(t *testing.T, store docstore.ObjectStore, key string) string {
	t.Helper()
	r, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

// recordingSink keeps every published event
type recordingSink struct {
	mu     sync.Mutex
	events []docstore.Event
	err    error
}

func (r *recordingSink) Publish(ctx context.Context, event docstore.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingSink) types() []docstore.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]docstore.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

// singlePageTIFF returns a little-endian TIFF whose only IFD carries tags
func singlePageTIFF(tags ...uint16) []byte {
	le := binary.LittleEndian
	buf := make([]byte, 8, 8+2+12*len(tags)+4)
	copy(buf, "II")
	le.PutUint16(buf[2:], 42)
	le.PutUint32(buf[4:], 8)

	ifd := make([]byte, 2+12*len(tags)+4)
	le.PutUint16(ifd, uint16(len(tags)))
	for i, tag := range tags {
		entry := ifd[2+12*i:]
		le.PutUint16(entry, tag)
		le.PutUint16(entry[2:], 3)
		le.PutUint32(entry[4:], 1)
	}
	return append(buf, ifd...)
}
