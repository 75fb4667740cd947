// Package presets builds document store services for common setups.
package presets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/tendant/simple-docstore/pkg/docstore"
	"github.com/tendant/simple-docstore/pkg/docstore/config"
	fsstorage "github.com/tendant/simple-docstore/pkg/docstore/storage/fs"
	memorystorage "github.com/tendant/simple-docstore/pkg/docstore/storage/memory"
)

// NewDevelopment creates a service for local development: filesystem storage
// under ./dev-data, events logged, debug logging.
//
// The returned cleanup removes the storage directory.
//
//	svc, cleanup, err := presets.NewDevelopment()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cleanup()
func NewDevelopment(opts ...DevelopmentOption) (docstore.Service, func(), error) {
	cfg := &devConfig{
		storageDir: "./dev-data",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	backend, err := fsstorage.New(fsstorage.Config{BaseDir: cfg.storageDir})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create filesystem storage: %w", err)
	}

	svc, err := docstore.New(
		docstore.WithObjectStore(backend),
		docstore.WithFolder(cfg.folder),
		docstore.WithEventSink(docstore.NewLoggingEventSink(logger)),
		docstore.WithLogger(logger),
		docstore.WithTIFFTagAnnotations(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create service: %w", err)
	}

	cleanup := func() {
		os.RemoveAll(cfg.storageDir)
	}
	return svc, cleanup, nil
}

// NewTesting creates an isolated in-memory service for tests. Fixtures are
// written before the service is returned.
//
//	func TestMyFeature(t *testing.T) {
//	    svc := presets.NewTesting(t, presets.WithFixtures(map[string]string{"a.pdf": "%PDF"}))
//	}
func NewTesting(t testing.TB, opts ...TestingOption) docstore.Service {
	t.Helper()
	cfg := &testConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	store := memorystorage.New()
	for key, content := range cfg.fixtures {
		if err := store.Put(context.Background(), key, strings.NewReader(content)); err != nil {
			t.Fatalf("failed to write fixture %s: %v", key, err)
		}
	}

	options := append([]docstore.Option{
		docstore.WithObjectStore(store),
		docstore.WithReadOnly(cfg.readOnly),
	}, cfg.options...)

	svc, err := docstore.New(options...)
	if err != nil {
		t.Fatalf("failed to create test service: %v", err)
	}
	return svc
}

// NewProduction creates a service from DOCSTORE_* environment variables. The
// memory backend is rejected since it does not persist.
func NewProduction(ctx context.Context, logger *slog.Logger) (docstore.Service, func(), error) {
	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Backend == config.BackendMemory {
		return nil, nil, fmt.Errorf("production requires a persistent backend, got %q", cfg.Backend)
	}
	return cfg.BuildService(ctx, logger, nil)
}

// DevelopmentOption configures NewDevelopment
type DevelopmentOption func(*devConfig)

type devConfig struct {
	storageDir string
	folder     string
	logger     *slog.Logger
}

// WithDevStorage sets the development storage directory
func WithDevStorage(dir string) DevelopmentOption {
	return func(c *devConfig) {
		c.storageDir = dir
	}
}

// WithDevFolder sets the key folder documents are stored under
func WithDevFolder(folder string) DevelopmentOption {
	return func(c *devConfig) {
		c.folder = folder
	}
}

// WithDevLogger replaces the debug text logger
func WithDevLogger(logger *slog.Logger) DevelopmentOption {
	return func(c *devConfig) {
		c.logger = logger
	}
}

// TestingOption configures NewTesting
type TestingOption func(*testConfig)

type testConfig struct {
	fixtures map[string]string
	readOnly bool
	options  []docstore.Option
}

// WithFixtures seeds the store with key/content pairs
func WithFixtures(fixtures map[string]string) TestingOption {
	return func(c *testConfig) {
		c.fixtures = fixtures
	}
}

// WithReadOnlyStore makes the service read-only after fixtures are written
func WithReadOnlyStore() TestingOption {
	return func(c *testConfig) {
		c.readOnly = true
	}
}

// WithServiceOptions passes extra options to docstore.New
func WithServiceOptions(opts ...docstore.Option) TestingOption {
	return func(c *testConfig) {
		c.options = append(c.options, opts...)
	}
}
