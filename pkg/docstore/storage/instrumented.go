// Package storage holds the object store backends and their decorators.
package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/tendant/simple-docstore/pkg/docstore"
	"github.com/tendant/simple-docstore/pkg/docstore/metrics"
)

// Instrument wraps store so every call is logged at debug level and recorded.
func Instrument(logger *slog.Logger, recorder metrics.Recorder, store docstore.ObjectStore) docstore.ObjectStore {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &instrumentedStore{
		store:    store,
		recorder: recorder,
		logger:   logger.With("backend", store.String()),
	}
}

type instrumentedStore struct {
	store    docstore.ObjectStore
	recorder metrics.Recorder
	logger   *slog.Logger
}

func (i *instrumentedStore) observe(op, key string, start time.Time, err error) {
	result := metrics.ResultSuccess
	switch {
	case err == nil:
	case errors.Is(err, docstore.ErrNotFound):
		result = metrics.ResultNotFound
	default:
		result = metrics.ResultError
	}
	i.recorder.ObserveStoreOperation(i.store.String(), op, time.Since(start), result)
	if err != nil && result == metrics.ResultError {
		i.logger.Error("Storage operation failed", "op", op, "key", key, "error", err)
		return
	}
	i.logger.Debug("storage "+op, "key", key, "result", string(result))
}

func (i *instrumentedStore) Put(ctx context.Context, key string, reader io.Reader) error {
	start := time.Now()
	counter := &countingReader{reader: reader}
	err := i.store.Put(ctx, key, counter)
	i.observe("put", key, start, err)
	if err == nil {
		i.recorder.AddBytes(i.store.String(), "put", counter.n)
	}
	return err
}

func (i *instrumentedStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	start := time.Now()
	rc, err := i.store.Get(ctx, key)
	i.observe("get", key, start, err)
	if err != nil {
		return nil, err
	}
	return &countingReadCloser{ReadCloser: rc, done: func(n int64) {
		i.recorder.AddBytes(i.store.String(), "get", n)
	}}, nil
}

func (i *instrumentedStore) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := i.store.Delete(ctx, key)
	i.observe("delete", key, start, err)
	return err
}

func (i *instrumentedStore) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	ok, err := i.store.Exists(ctx, key)
	i.observe("exists", key, start, err)
	return ok, err
}

func (i *instrumentedStore) List(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	keys, err := i.store.List(ctx, prefix)
	i.observe("list", prefix, start, err)
	return keys, err
}

func (i *instrumentedStore) String() string {
	return i.store.String()
}

type countingReader struct {
	reader io.Reader
	n      int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.reader.Read(p)
	c.n += int64(n)
	return n, err
}

type countingReadCloser struct {
	io.ReadCloser
	n    int64
	done func(int64)
}

func (c *countingReadCloser) Read(p []byte) (int, error) {
	n, err := c.ReadCloser.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countingReadCloser) Close() error {
	if c.done != nil {
		c.done(c.n)
		c.done = nil
	}
	return c.ReadCloser.Close()
}
