package internal

import (
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/hbomb79/Reelgest/internal/database"
	"github.com/hbomb79/Reelgest/internal/download"
	"github.com/hbomb79/Reelgest/internal/http/resolver"
	"github.com/hbomb79/Reelgest/internal/resolve"
	"github.com/hbomb79/Reelgest/internal/store/jsonfile"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/mitchellh/go-homedir"
)

const (
	StoreDriverJSON     = "json"
	StoreDriverPostgres = "postgres"
)

// ReelgestConfig is the struct used to contain the
// various user config supplied by file, environment, or
// manually inside the code.
type ReelgestConfig struct {
	Input    InputConfig     `yaml:"input"`
	Resolve  resolve.Config  `yaml:"resolve"`
	Download download.Config `yaml:"download"`
	Resolver resolver.Config `yaml:"resolver"`
	Store    StoreConfig     `yaml:"store"`
	Watch    WatchConfig     `yaml:"watch"`
	LogLevel string          `yaml:"log_level" env:"LOG_LEVEL" env-default:"info" validate:"oneof=verbose debug info success warning error"`
}

// InputConfig describes where the identifier list is read from.
type InputConfig struct {
	Path string `yaml:"path" env:"INPUT_PATH" env-default:"Data/identifiers.txt" validate:"required"`

	// By default the identifier list is processed newest-first (the reverse
	// of the file order). Ascending processes it in file order.
	Ascending bool `yaml:"ascending" env:"INPUT_ASCENDING" env-default:"false"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Driver   string          `yaml:"driver" env:"STORE_DRIVER" env-default:"json" validate:"oneof=json postgres"`
	JSON     jsonfile.Config `yaml:"json"`
	Database database.Config `yaml:"database"`
}

// WatchConfig is only used when the pipeline is run in watch mode.
type WatchConfig struct {
	// The watcher is the primary trigger, but a 'force' run is performed
	// on a regular interval to protect against the watcher failing.
	ForceSyncSeconds int `yaml:"force_sync_seconds" env:"WATCH_FORCE_SYNC_SECONDS" env-default:"900" validate:"min=1"`
}

// LoadConfig reads the configuration file at the path provided (if any)
// and the environment in to a ReelgestConfig, applying defaults for
// any values which are not provided.
func LoadConfig(configPath string) (*ReelgestConfig, error) {
	config := &ReelgestConfig{}
	if configPath != "" {
		path, err := homedir.Expand(configPath)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to expand config path %s", configPath)
		}

		if err := cleanenv.ReadConfig(path, config); err != nil {
			return nil, errors.WithHint(
				errors.Wrapf(err, "failed to load configuration from %s", path),
				"the configuration file must be YAML (or JSON/TOML with a matching extension)",
			)
		}
	} else if err := cleanenv.ReadEnv(config); err != nil {
		return nil, errors.Wrap(err, "failed to load configuration from environment")
	}

	if err := config.expandPaths(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the configuration is usable. Resolver settings are
// only required when the resolve stage is going to run.
func (config *ReelgestConfig) Validate(requireResolver bool) error {
	validate := validator.New()

	var err error
	if requireResolver {
		err = validate.Struct(config)
	} else {
		err = validate.StructExcept(config, "Resolver")
	}
	if err != nil {
		return errors.Wrap(err, "configuration is invalid")
	}

	return nil
}

func (config *ReelgestConfig) expandPaths() error {
	paths := []*string{
		&config.Input.Path,
		&config.Download.OutputDir,
		&config.Store.JSON.ItemsPath,
		&config.Store.JSON.HistoryPath,
		&config.Store.JSON.FetchErrorsPath,
		&config.Store.JSON.BrokenLinksPath,
	}

	for _, p := range paths {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return errors.Wrapf(err, "failed to expand path %s", *p)
		}

		*p = expanded
	}

	return nil
}
