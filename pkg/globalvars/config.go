package globalvars

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/srediag/shmvars/pkg/serializer"
)

// Config holds facade construction parameters. ConfigFromEnv reads the
// tagged fields from SHMVARS_-prefixed environment variables.
type Config struct {
	// CacheCapacity bounds the process-local cache of open segment
	// handles.
	CacheCapacity int `envconfig:"CACHE_CAPACITY" default:"5"`
	// DefaultFormat names the serializer used when an operation doesn't
	// pick one ("binary" or "json").
	DefaultFormat string `envconfig:"DEFAULT_FORMAT" default:"binary"`
	// SegmentDir overrides the platform segment directory. Empty means
	// /dev/shm on Linux.
	SegmentDir string `envconfig:"SEGMENT_DIR"`
	// LogDir enables file logging under the given directory when set.
	LogDir string `envconfig:"LOG_DIR"`

	// Logger, Registry and Registerer are wired in code, not env.
	Logger     *zap.Logger           `ignored:"true"`
	Registry   *serializer.Registry  `ignored:"true"`
	Registerer prometheus.Registerer `ignored:"true"`
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() *Config {
	return &Config{
		CacheCapacity: 5,
		DefaultFormat: serializer.Binary{}.Name(),
	}
}

// ConfigFromEnv builds a Config from SHMVARS_* environment variables.
func ConfigFromEnv() (*Config, error) {
	c := &Config{}
	if err := envconfig.Process("shmvars", c); err != nil {
		return nil, err
	}
	return c, nil
}

// VerifyConfig checks a Config before the facade is built from it.
func VerifyConfig(c *Config) error {
	if c == nil {
		return fmt.Errorf("config must not be nil")
	}
	if c.CacheCapacity <= 0 {
		return fmt.Errorf("cache capacity must be positive, got %d", c.CacheCapacity)
	}
	registry := c.Registry
	if registry == nil {
		registry = serializer.NewRegistry()
	}
	if _, ok := registry.ByName(c.DefaultFormat); !ok {
		return fmt.Errorf("default format %q is not registered", c.DefaultFormat)
	}
	return nil
}
