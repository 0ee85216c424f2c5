package ext2

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

// Config is this engine's ambient configuration surface: everything that
// varies between a developer's laptop and a CI run or a production mount,
// read from the process environment rather than threaded through flags by
// hand. The EXT2FS_ prefix namespaces it away from unrelated env vars.
type Config struct {
	// VolumePath names a backing image file. mkext2fs and ext2cat take their
	// image path from flags and arguments and do not read it.
	VolumePath string `envconfig:"VOLUME_PATH" required:"true"`

	// LogLevel is parsed by logrus.ParseLevel: "debug", "info", "warn", ...
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// LogFormat selects "text" (human-readable, the default) or "json"
	// (for shipping to a log aggregator).
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
}

// LoadConfig reads Config from the process environment (component-external
// ambient configuration). Prefer the cli/v2 flags in cmd/ for
// interactively-invoked values (paths, sizes) and this for everything a
// long-running mount would rather pick up from its environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("ext2fs", &cfg); err != nil {
		return Config{}, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

// NewLogger builds the logrus.Logger this engine logs through, honoring
// Config's level and format.
func NewLogger(cfg Config) (*logrus.Logger, error) {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("configuring logger: %w", err)
	}
	log.SetLevel(level)

	switch cfg.LogFormat {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&logrus.TextFormatter{})
	default:
		return nil, fmt.Errorf("configuring logger: unknown log format `%s`", cfg.LogFormat)
	}

	return log, nil
}
