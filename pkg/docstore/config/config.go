package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tendant/simple-docstore/pkg/docstore"
	pgevents "github.com/tendant/simple-docstore/pkg/docstore/events/postgres"
	"github.com/tendant/simple-docstore/pkg/docstore/metrics"
	"github.com/tendant/simple-docstore/pkg/docstore/storage"
	fsstorage "github.com/tendant/simple-docstore/pkg/docstore/storage/fs"
	memorystorage "github.com/tendant/simple-docstore/pkg/docstore/storage/memory"
	s3storage "github.com/tendant/simple-docstore/pkg/docstore/storage/s3"
)

// Backend names
const (
	BackendMemory = "memory"
	BackendFS     = "fs"
	BackendS3     = "s3"
)

// Event sink names
const (
	EventSinkNoop     = "noop"
	EventSinkLog      = "log"
	EventSinkPostgres = "postgres"
)

// Option applies configuration to a Config instance.
type Option func(*Config) error

// Load constructs a Config by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*Config, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() Config {
	return Config{
		Port:               "8080",
		LogLevel:           "info",
		Backend:            BackendMemory,
		CompoundResolution: string(docstore.CompoundAliased),
		S3: S3Config{
			EnableVersioning: true,
		},
		Events: EventsConfig{
			Sink: EventSinkLog,
		},
	}
}

// Config represents the document store configuration. The env tags are read
// by WithEnv; the yaml tags by WithFile.
type Config struct {
	Port     string `yaml:"port" env:"DOCSTORE_PORT" env-default:"8080"`
	LogLevel string `yaml:"log_level" env:"DOCSTORE_LOG_LEVEL" env-default:"info"`

	// Backend is one of "memory", "fs", "s3"
	Backend string   `yaml:"backend" env:"DOCSTORE_BACKEND" env-default:"memory"`
	Folder  string   `yaml:"folder" env:"DOCSTORE_FOLDER"`
	S3      S3Config `yaml:"s3"`
	FS      FSConfig `yaml:"fs"`

	ReadOnly           bool     `yaml:"read_only" env:"DOCSTORE_READ_ONLY" env-default:"false"`
	Debug              bool     `yaml:"debug" env:"DOCSTORE_DEBUG" env-default:"false"`
	TIFFTagAnnotations bool     `yaml:"tiff_tag_annotations" env:"DOCSTORE_TIFF_TAG_ANNOTATIONS" env-default:"false"`
	CompoundResolution string   `yaml:"compound_resolution" env:"DOCSTORE_COMPOUND_RESOLUTION" env-default:"aliased"`
	Extensions         []string `yaml:"extensions" env:"DOCSTORE_EXTENSIONS" env-separator:","`

	Events EventsConfig `yaml:"events"`

	// JWTSecret enables HS256 token verification on the HTTP API when set
	JWTSecret string `yaml:"jwt_secret" env:"DOCSTORE_JWT_SECRET"`

	// APIKeySHA256 requires a matching API key on the HTTP API when set
	APIKeySHA256 string `yaml:"api_key_sha256" env:"DOCSTORE_API_KEY_SHA256"`
}

// S3Config holds the S3 backend settings
type S3Config struct {
	Bucket                 string `yaml:"bucket" env:"DOCSTORE_S3_BUCKET"`
	Region                 string `yaml:"region" env:"DOCSTORE_S3_REGION"`
	AccessKeyID            string `yaml:"access_key_id" env:"DOCSTORE_S3_ACCESS_KEY_ID"`
	SecretAccessKey        string `yaml:"secret_access_key" env:"DOCSTORE_S3_SECRET_ACCESS_KEY"`
	Endpoint               string `yaml:"endpoint" env:"DOCSTORE_S3_ENDPOINT"`
	UsePathStyle           bool   `yaml:"use_path_style" env:"DOCSTORE_S3_USE_PATH_STYLE" env-default:"false"`
	EnableVersioning       bool   `yaml:"enable_versioning" env:"DOCSTORE_S3_ENABLE_VERSIONING" env-default:"true"`
	CreateBucketIfNotExist bool   `yaml:"create_bucket_if_not_exist" env:"DOCSTORE_S3_CREATE_BUCKET_IF_NOT_EXIST" env-default:"false"`
}

// FSConfig holds the filesystem backend settings
type FSConfig struct {
	BaseDir string `yaml:"base_dir" env:"DOCSTORE_FS_BASE_DIR"`
}

// EventsConfig selects where document events go
type EventsConfig struct {
	// Sink is one of "noop", "log", "postgres"
	Sink        string `yaml:"sink" env:"DOCSTORE_EVENT_SINK" env-default:"log"`
	DatabaseURL string `yaml:"database_url" env:"DOCSTORE_EVENTS_DATABASE_URL"`
	Migrate     bool   `yaml:"migrate" env:"DOCSTORE_EVENTS_MIGRATE" env-default:"false"`
}

// Validate validates the configuration. Every S3 credential must be present
// and non-empty.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}

	switch c.Backend {
	case BackendMemory:
	case BackendFS:
		if c.FS.BaseDir == "" {
			return errors.New("fs base_dir is required when using the fs backend")
		}
	case BackendS3:
		var missing []string
		if strings.TrimSpace(c.S3.Bucket) == "" {
			missing = append(missing, "bucket")
		}
		if strings.TrimSpace(c.S3.Region) == "" {
			missing = append(missing, "region")
		}
		if strings.TrimSpace(c.S3.AccessKeyID) == "" {
			missing = append(missing, "access_key_id")
		}
		if strings.TrimSpace(c.S3.SecretAccessKey) == "" {
			missing = append(missing, "secret_access_key")
		}
		if len(missing) > 0 {
			return fmt.Errorf("s3 backend is missing required settings: %s", strings.Join(missing, ", "))
		}
	default:
		return fmt.Errorf("backend must be 'memory', 'fs' or 's3', got: %s", c.Backend)
	}

	if _, err := docstore.ParseCompoundResolution(c.CompoundResolution); err != nil {
		return err
	}

	switch c.Events.Sink {
	case "", EventSinkNoop, EventSinkLog:
	case EventSinkPostgres:
		if c.Events.DatabaseURL == "" {
			return errors.New("events database_url is required when using the postgres event sink")
		}
	default:
		return fmt.Errorf("event sink must be 'noop', 'log' or 'postgres', got: %s", c.Events.Sink)
	}

	return nil
}

// SlogLevel returns the configured log level. Debug mode forces debug logging.
func (c *Config) SlogLevel() slog.Level {
	if c.Debug {
		return slog.LevelDebug
	}
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// BuildObjectStore creates the configured storage backend without instrumentation
func (c *Config) BuildObjectStore(ctx context.Context) (docstore.ObjectStore, error) {
	switch c.Backend {
	case BackendMemory:
		return memorystorage.New(), nil
	case BackendFS:
		return fsstorage.New(fsstorage.Config{BaseDir: c.FS.BaseDir})
	case BackendS3:
		backend, err := s3storage.New(s3storage.Config{
			Region:                 c.S3.Region,
			Bucket:                 c.S3.Bucket,
			AccessKeyID:            c.S3.AccessKeyID,
			SecretAccessKey:        c.S3.SecretAccessKey,
			Endpoint:               c.S3.Endpoint,
			UsePathStyle:           c.S3.UsePathStyle,
			EnableVersioning:       c.S3.EnableVersioning,
			CreateBucketIfNotExist: c.S3.CreateBucketIfNotExist,
		})
		if err != nil {
			return nil, err
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("unknown backend: %s", c.Backend)
	}
}

// BuildEventSink creates the configured event sink. The returned cleanup
// releases any connection the sink holds.
func (c *Config) BuildEventSink(ctx context.Context, logger *slog.Logger) (docstore.EventSink, func(), error) {
	switch c.Events.Sink {
	case EventSinkNoop:
		return docstore.NewNoopEventSink(), func() {}, nil
	case EventSinkPostgres:
		pool, err := pgevents.Connect(ctx, c.Events.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		sink := pgevents.NewWithPool(pool)
		if c.Events.Migrate {
			if err := sink.Migrate(ctx); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		return sink, pool.Close, nil
	default:
		return docstore.NewLoggingEventSink(logger), func() {}, nil
	}
}

// BuildService creates a Service instance from the configuration. The store is
// wrapped with logging and metrics instrumentation.
func (c *Config) BuildService(ctx context.Context, logger *slog.Logger, recorder metrics.Recorder) (docstore.Service, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}

	store, err := c.BuildObjectStore(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build object store: %w", err)
	}

	sink, cleanup, err := c.BuildEventSink(ctx, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build event sink: %w", err)
	}

	resolution, err := docstore.ParseCompoundResolution(c.CompoundResolution)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	svc, err := docstore.New(
		docstore.WithObjectStore(storage.Instrument(logger, recorder, store)),
		docstore.WithFolder(c.Folder),
		docstore.WithEventSink(sink),
		docstore.WithRecorder(recorder),
		docstore.WithLogger(logger),
		docstore.WithReadOnly(c.ReadOnly),
		docstore.WithDebug(c.Debug),
		docstore.WithTIFFTagAnnotations(c.TIFFTagAnnotations),
		docstore.WithCompoundResolution(resolution),
		docstore.WithDocumentExtensions(c.Extensions),
	)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	return svc, cleanup, nil
}
