// Package config loads the sink settings from environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bitrise-io/go-appendblob/appendblob/objectkey"
	"github.com/docker/go-units"
)

// Backends ...
const (
	BackendAzure     = "azure"
	BackendS3Express = "s3express"
)

// Error is returned for missing or invalid settings.
type Error struct {
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Config holds every setting of the sink and the shipper.
type Config struct {
	Backend             string `env:"APPENDBLOB_BACKEND,opt[azure,s3express]"`
	Container           string `env:"APPENDBLOB_CONTAINER,required"`
	Path                string `env:"APPENDBLOB_PATH"`
	KeyFormat           string `env:"APPENDBLOB_OBJECT_KEY_FORMAT"`
	TimeSliceFormat     string `env:"APPENDBLOB_TIME_SLICE_FORMAT"`
	LocalTime           bool   `env:"APPENDBLOB_LOCALTIME"`
	AutoCreateContainer bool   `env:"APPENDBLOB_AUTO_CREATE_CONTAINER"`

	AzureStorageAccount   string `env:"AZURE_STORAGE_ACCOUNT"`
	AzureStorageAccessKey Secret `env:"AZURE_STORAGE_ACCESS_KEY"`
	AzureStorageSASToken  Secret `env:"AZURE_STORAGE_SAS_TOKEN"`
	AzureStorageEndpoint  string `env:"AZURE_STORAGE_ENDPOINT"`
	UseMSI                bool   `env:"AZURE_USE_MSI"`
	IMDSEndpoint          string `env:"AZURE_IMDS_ENDPOINT"`
	IMDSAPIVersion        string `env:"AZURE_IMDS_API_VERSION"`
	MSIClientID           string `env:"AZURE_MSI_CLIENT_ID"`
	// TokenRefreshMinutes is the managed identity token refresh interval.
	TokenRefreshMinutes int `env:"AZURE_TOKEN_REFRESH_INTERVAL"`

	AWSRegion          string `env:"AWS_REGION"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey Secret `env:"AWS_SECRET_ACCESS_KEY"`
	S3Endpoint         string `env:"AWS_ENDPOINT_URL_S3"`

	Patterns       []string `env:"SHIP_PATTERNS"`
	Workers        int      `env:"SHIP_WORKERS"`
	TimekeySeconds int      `env:"SHIP_TIMEKEY"`
	MaxChunkSize   string   `env:"SHIP_MAX_CHUNK_SIZE"`
	StateDir       string   `env:"SHIP_STATE_DIR"`
	Tag            string   `env:"SHIP_TAG"`
	RetryLimit     int      `env:"SHIP_RETRY_LIMIT"`
	RetryWaitSecs  int      `env:"SHIP_RETRY_WAIT"`

	// MaxChunkBytes is MaxChunkSize in bytes, set by Load.
	MaxChunkBytes int64
}

// Default returns the settings used for every unset variable.
func Default() Config {
	return Config{
		Backend:             BackendAzure,
		KeyFormat:           objectkey.DefaultKeyFormat,
		TimeSliceFormat:     objectkey.DefaultTimeSliceFormat,
		AutoCreateContainer: true,
		IMDSEndpoint:        "http://169.254.169.254/metadata/identity/oauth2/token",
		IMDSAPIVersion:      "2019-08-15",
		TokenRefreshMinutes: 60,
		Workers:             1,
		TimekeySeconds:      86400,
		MaxChunkSize:        "8MB",
		StateDir:            ".appendblob-state",
		Tag:                 "appendblob",
		RetryLimit:          3,
		RetryWaitSecs:       5,
	}
}

// workerIDPlaceholder is expanded by the shipper to the worker's index.
const workerIDPlaceholder = "${worker_id}"

// Load reads the settings from envs on top of the defaults and validates them.
func Load(envs EnvGetter) (Config, error) {
	cfg := Default()
	if err := parse(&cfg, envs); err != nil {
		return Config{}, &Error{Err: err}
	}
	if err := cfg.validate(); err != nil {
		return Config{}, &Error{Err: err}
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Backend {
	case BackendAzure:
		if c.AzureStorageAccount == "" {
			return errors.New("AZURE_STORAGE_ACCOUNT needs to be specified")
		}
		if c.AzureStorageAccessKey == "" && c.AzureStorageSASToken == "" {
			c.UseMSI = true
		}
		if c.UseMSI && c.TokenRefreshMinutes <= 0 {
			return fmt.Errorf("AZURE_TOKEN_REFRESH_INTERVAL must be positive, got %d", c.TokenRefreshMinutes)
		}
	case BackendS3Express:
		if c.AWSRegion == "" {
			return errors.New("AWS_REGION needs to be specified")
		}
	}

	if _, err := objectkey.New(c.NameOptions()); err != nil {
		return err
	}

	if c.Workers < 1 {
		return fmt.Errorf("SHIP_WORKERS must be at least 1, got %d", c.Workers)
	}
	if c.Workers > 1 && !strings.Contains(c.KeyFormat+c.Path, workerIDPlaceholder) {
		return fmt.Errorf("SHIP_WORKERS is %d but APPENDBLOB_OBJECT_KEY_FORMAT has no %s, workers would append to the same objects", c.Workers, workerIDPlaceholder)
	}
	if c.TimekeySeconds < 1 {
		return fmt.Errorf("SHIP_TIMEKEY must be positive, got %d", c.TimekeySeconds)
	}
	if c.RetryLimit < 0 || c.RetryWaitSecs < 0 {
		return errors.New("SHIP_RETRY_LIMIT and SHIP_RETRY_WAIT must not be negative")
	}

	size, err := units.RAMInBytes(c.MaxChunkSize)
	if err != nil {
		return fmt.Errorf("invalid SHIP_MAX_CHUNK_SIZE: %w", err)
	}
	if size <= 0 {
		return fmt.Errorf("SHIP_MAX_CHUNK_SIZE must be positive, got %s", c.MaxChunkSize)
	}
	c.MaxChunkBytes = size

	return nil
}

// NameOptions returns the object name settings.
func (c Config) NameOptions() objectkey.Options {
	return objectkey.Options{
		KeyFormat:       c.KeyFormat,
		Path:            c.Path,
		TimeSliceFormat: c.TimeSliceFormat,
		LocalTime:       c.LocalTime,
	}
}

// TokenRefreshInterval ...
func (c Config) TokenRefreshInterval() time.Duration {
	return time.Duration(c.TokenRefreshMinutes) * time.Minute
}

// Timekey is the width of a time bucket.
func (c Config) Timekey() time.Duration {
	return time.Duration(c.TimekeySeconds) * time.Second
}

// RetryWait ...
func (c Config) RetryWait() time.Duration {
	return time.Duration(c.RetryWaitSecs) * time.Second
}
