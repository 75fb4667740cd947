package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/tendant/simple-docstore/pkg/docstore"
)

// WithEnv reads DOCSTORE_* environment variables. Unset variables fall back to
// their env-default, so WithEnv should come before explicit overrides.
func WithEnv() Option {
	return func(c *Config) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		return nil
	}
}

// WithFile reads a YAML, JSON, TOML or .env file, then the environment on top
func WithFile(path string) Option {
	return func(c *Config) error {
		if path == "" {
			return errors.New("config file path cannot be empty")
		}
		if err := cleanenv.ReadConfig(path, c); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		return nil
	}
}

// WithDotEnv loads .env files into the process environment. Missing files are
// ignored and variables already set are kept. Combine with WithEnv.
func WithDotEnv(paths ...string) Option {
	return func(c *Config) error {
		for _, path := range paths {
			if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to load %s: %w", path, err)
			}
		}
		return nil
	}
}

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *Config) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithLogLevel sets the log level (debug, info, warn, error)
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		if _, err := parseLevel(level); err != nil {
			return err
		}
		c.LogLevel = level
		return nil
	}
}

// WithFolder places every key under folder
func WithFolder(folder string) Option {
	return func(c *Config) error {
		c.Folder = folder
		return nil
	}
}

// WithMemoryStorage selects the in-memory backend
func WithMemoryStorage() Option {
	return func(c *Config) error {
		c.Backend = BackendMemory
		return nil
	}
}

// WithFilesystemStorage selects the filesystem backend rooted at baseDir
func WithFilesystemStorage(baseDir string) Option {
	return func(c *Config) error {
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}
		c.Backend = BackendFS
		c.FS.BaseDir = baseDir
		return nil
	}
}

// WithS3Storage selects the S3 backend
func WithS3Storage(bucket, region string) Option {
	return func(c *Config) error {
		if bucket == "" {
			return fmt.Errorf("S3 bucket cannot be empty")
		}
		c.Backend = BackendS3
		c.S3.Bucket = bucket
		c.S3.Region = region
		return nil
	}
}

// WithS3Credentials sets the static S3 credential pair
func WithS3Credentials(accessKeyID, secretAccessKey string) Option {
	return func(c *Config) error {
		c.S3.AccessKeyID = accessKeyID
		c.S3.SecretAccessKey = secretAccessKey
		return nil
	}
}

// WithS3Endpoint points the S3 backend at an S3-compatible service such as MinIO
func WithS3Endpoint(endpoint string, usePathStyle bool) Option {
	return func(c *Config) error {
		c.S3.Endpoint = endpoint
		c.S3.UsePathStyle = usePathStyle
		return nil
	}
}

// WithS3Versioning toggles enabling bucket versioning before the first write
func WithS3Versioning(enabled bool) Option {
	return func(c *Config) error {
		c.S3.EnableVersioning = enabled
		return nil
	}
}

// WithS3CreateBucket creates the bucket on startup when it does not exist
func WithS3CreateBucket(create bool) Option {
	return func(c *Config) error {
		c.S3.CreateBucketIfNotExist = create
		return nil
	}
}

// WithReadOnly rejects every mutating operation
func WithReadOnly(readOnly bool) Option {
	return func(c *Config) error {
		c.ReadOnly = readOnly
		return nil
	}
}

// WithDebug enables reversed display names and debug logging
func WithDebug(debug bool) Option {
	return func(c *Config) error {
		c.Debug = debug
		return nil
	}
}

// WithTIFFTagAnnotations reports embedded TIFF annotations as an extra layer
func WithTIFFTagAnnotations(enabled bool) Option {
	return func(c *Config) error {
		c.TIFFTagAnnotations = enabled
		return nil
	}
}

// WithCompoundResolution sets the compound resolution mode
func WithCompoundResolution(resolution string) Option {
	return func(c *Config) error {
		if _, err := docstore.ParseCompoundResolution(resolution); err != nil {
			return err
		}
		c.CompoundResolution = resolution
		return nil
	}
}

// WithDocumentExtensions sets the extensions ListDocuments accepts
func WithDocumentExtensions(extensions ...string) Option {
	return func(c *Config) error {
		c.Extensions = extensions
		return nil
	}
}

// WithEventSink selects the event sink. databaseURL is only used by "postgres".
func WithEventSink(sink, databaseURL string) Option {
	return func(c *Config) error {
		switch sink {
		case EventSinkNoop, EventSinkLog, EventSinkPostgres:
		default:
			return fmt.Errorf("event sink must be 'noop', 'log' or 'postgres', got: %s", sink)
		}
		c.Events.Sink = sink
		c.Events.DatabaseURL = databaseURL
		return nil
	}
}

// WithJWTSecret enables token verification on the HTTP API
func WithJWTSecret(secret string) Option {
	return func(c *Config) error {
		c.JWTSecret = secret
		return nil
	}
}

// WithAPIKeySHA256 sets the SHA-256 digest of the accepted API key
func WithAPIKeySHA256(digest string) Option {
	return func(c *Config) error {
		c.APIKeySHA256 = digest
		return nil
	}
}
