package internal

import (
	"github.com/cockroachdb/errors"
	"github.com/hbomb79/Reelgest/internal/database"
	"github.com/hbomb79/Reelgest/internal/store"
	"github.com/hbomb79/Reelgest/internal/store/jsonfile"
	"github.com/hbomb79/Reelgest/internal/store/postgres"
	"github.com/hbomb79/Reelgest/pkg/logger"
)

// OpenStore constructs the store selected by the configuration. For the
// postgres driver this connects to the database and runs any outstanding
// migrations before returning.
func OpenStore(config StoreConfig) (store.Store, error) {
	switch config.Driver {
	case StoreDriverJSON, "":
		log.Emit(logger.DEBUG, "Using JSON file store (items at %s)\n", config.JSON.ItemsPath)
		return jsonfile.New(config.JSON), nil
	case StoreDriverPostgres:
		log.Emit(logger.NEW, "Connecting to database...\n")
		manager, err := database.Connect(config.Database)
		if err != nil {
			return nil, errors.Wrap(err, "failed to connect to database")
		}

		return postgres.New(manager), nil
	default:
		return nil, errors.Newf("unknown store driver %q", config.Driver)
	}
}
