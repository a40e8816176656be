package download

import (
	"time"

	"github.com/hbomb79/Reelgest/pkg/worker"
)

// Config contains configuration options that allow
// customization of how media is downloaded.
type Config struct {
	// Controls the number of concurrent transfers. Media downloads are
	// far heavier than resolver calls, so this is kept smaller
	// than the resolver parallelism by default.
	Parallelism int `yaml:"parallelism" env:"DOWNLOAD_PARALLELISM" env-default:"3" validate:"min=1"`

	TargetSuccesses int `yaml:"target_successes" env:"DOWNLOAD_TARGET_SUCCESSES" env-default:"25" validate:"min=0"`
	MaxAttempts     int `yaml:"max_attempts" env:"DOWNLOAD_MAX_ATTEMPTS" env-default:"100" validate:"min=0"`

	// The directory media files are written to. Created if missing.
	OutputDir string `yaml:"output_dir" env:"DOWNLOAD_OUTPUT_DIR" env-default:"videos" validate:"required"`

	// The media kind (the 'type' of a media reference) which is downloaded.
	PrimaryKind string `yaml:"primary_kind" env:"DOWNLOAD_PRIMARY_KIND" env-default:"video" validate:"required"`

	// Used when neither the transport URL nor the MIME type of the
	// reference yield a known extension.
	FallbackExtension string `yaml:"fallback_extension" env:"DOWNLOAD_FALLBACK_EXTENSION" env-default:".mp4" validate:"required"`

	// Upper bound on a single transfer, including reading the body.
	TimeoutSeconds int `yaml:"timeout_seconds" env:"DOWNLOAD_TIMEOUT_SECONDS" env-default:"300" validate:"min=1"`
}

func (config *Config) Budget() worker.Budget {
	return worker.Budget{TargetSuccesses: config.TargetSuccesses, MaxAttempts: config.MaxAttempts}
}

func (config *Config) Timeout() time.Duration {
	return time.Duration(config.TimeoutSeconds) * time.Second
}
