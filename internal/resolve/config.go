package resolve

import "github.com/hbomb79/Reelgest/pkg/worker"

// Config contains configuration options that allow
// customization of how identifiers are resolved in to metadata.
type Config struct {
	// Controls the number of workers which may be talking to the
	// resolver at once. This is independent of the budget below.
	Parallelism int `yaml:"parallelism" env:"RESOLVE_PARALLELISM" env-default:"8" validate:"min=1"`

	// The number of successful resolutions wanted from a single run. Once
	// met, no further identifiers are dispatched. Zero disables the limit.
	TargetSuccesses int `yaml:"target_successes" env:"RESOLVE_TARGET_SUCCESSES" env-default:"25" validate:"min=0"`

	// The total number of identifiers which may be dispatched in a single run,
	// successful or otherwise. Zero disables the limit.
	MaxAttempts int `yaml:"max_attempts" env:"RESOLVE_MAX_ATTEMPTS" env-default:"100" validate:"min=0"`

	// Case-insensitive substrings which, when found in a resolver error,
	// indicate our credentials have been rejected.
	AuthMarkers []string `yaml:"auth_markers" env:"RESOLVE_AUTH_MARKERS" env-default:"401,403,unauthorized,forbidden,login required"`

	// Case-insensitive substrings which, when found in a resolver error,
	// indicate the identifier can never be resolved and should be logged
	// as a fetch error.
	PermanentMarkers []string `yaml:"permanent_markers" env:"RESOLVE_PERMANENT_MARKERS" env-default:"unsupported content type,not a video,not supported,invalid link,invalid url,404,not found"`
}

func (config *Config) Budget() worker.Budget {
	return worker.Budget{TargetSuccesses: config.TargetSuccesses, MaxAttempts: config.MaxAttempts}
}
