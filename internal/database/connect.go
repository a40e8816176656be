package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hbomb79/Reelgest/pkg/logger"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	sqldblogger "github.com/simukti/sqldb-logger"
)

const (
	SqlDialect          = "postgres"
	SqlConnectionString = "host=%s user=%s password=%s dbname=%s port=%s sslmode=disable"

	connectAttempts = 5
)

var (
	//go:embed migrations/*.sql
	migrations embed.FS

	dbLogger = logger.Get("DB")

	ErrNotConnected = errors.New("DB manager has not yet connected")
)

type (
	// Config is a subset of the configuration focusing solely
	// on database connection items
	Config struct {
		User     string `yaml:"username" env:"DB_USERNAME"`
		Password string `yaml:"password" env:"DB_PASSWORD"`
		Name     string `yaml:"name" env:"DB_NAME" env-default:"REELGEST_DB"`
		Host     string `yaml:"host" env:"DB_HOST" env-default:"0.0.0.0"`
		Port     string `yaml:"port" env:"DB_PORT" env-default:"5432"`

		// RetryDelay is the delay between failed connection attempts
		RetryDelay time.Duration `yaml:"retry_delay" env:"DB_RETRY_DELAY" env-default:"3s"`
	}

	SqlLogger struct {
		logger logger.Logger
	}

	Manager interface {
		GetSqlxDb() *sqlx.DB
		WrapTx(func(*sqlx.Tx) error) error
		Close() error
	}

	manager struct {
		rawDb *sql.DB
		db    *sqlx.DB
	}
)

func (config Config) DSN() string {
	return fmt.Sprintf(SqlConnectionString, config.Host, config.User, config.Password, config.Name, config.Port)
}

// Connect opens a connection to the PostgreSQL server described by the
// config, retrying a few times if the server is not yet accepting connections,
// and then executes any pending migrations.
func Connect(config Config) (*manager, error) {
	return ConnectDSN(config.DSN(), config.RetryDelay)
}

func ConnectDSN(dsn string, retryDelay time.Duration) (*manager, error) {
	sql, err := sql.Open(SqlDialect, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open postgres connection")
	}

	sql = sqldblogger.OpenDriver(dsn, sql.Driver(), &SqlLogger{dbLogger})
	for attempt := 1; ; attempt++ {
		err := sql.Ping()
		if err == nil {
			break
		}

		if attempt >= connectAttempts {
			dbLogger.Emit(logger.ERROR, "All attempts FAILED!\n")
			_ = sql.Close()
			return nil, errors.Wrap(err, "failed to connect to postgres")
		}

		dbLogger.Emit(logger.WARNING, "Attempt (%v/%v) failed... Retrying in %s\n", attempt, connectAttempts, retryDelay)
		time.Sleep(retryDelay)
	}

	db := &manager{rawDb: sql, db: sqlx.NewDb(sql, SqlDialect)}
	if err := db.ExecuteMigrations(); err != nil {
		_ = sql.Close()
		return nil, err
	}

	dbLogger.Emit(logger.SUCCESS, "Database connection complete!\n")
	return db, nil
}

// ExecuteMigrations uses the comp-time embedded SQL migrations (found in the 'migrations'
// dir in this package) and runs them against the current DB instance.
func (db *manager) ExecuteMigrations() error {
	if db.rawDb == nil {
		return errors.Wrap(ErrNotConnected, "cannot execute migrations")
	}

	goose.SetBaseFS(migrations)
	goose.SetLogger(dbLogger)
	if err := goose.SetDialect(SqlDialect); err != nil {
		return errors.Wrap(err, "failed to set dialect for DB migration")
	}

	dbLogger.Emit(logger.INFO, "Checking for pending DB migrations...\n")
	if err := goose.Up(db.rawDb, "migrations"); err != nil {
		return errors.Wrap(err, "failed to migrate DB")
	}

	dbLogger.Emit(logger.SUCCESS, "DB Goose migration complete!\n")
	return nil
}

// GetSqlxDb returns the sqlx database connection
func (db *manager) GetSqlxDb() *sqlx.DB {
	return db.db
}

// WrapTx is a convinience method around the top-level WrapTx, which simply
// uses the managers DB instance as the first argument.
func (db *manager) WrapTx(f func(tx *sqlx.Tx) error) error {
	if db.db == nil {
		return ErrNotConnected
	}

	return WrapTx(db.db, f)
}

func (db *manager) Close() error {
	if db.db == nil {
		return nil
	}

	return db.db.Close()
}

func (l *SqlLogger) Log(_ context.Context, level sqldblogger.Level, msg string, data map[string]any) {
	template := "%s - %v\n"
	switch level {
	case sqldblogger.LevelTrace:
		l.logger.Verbosef(template, msg, data)
	case sqldblogger.LevelDebug, sqldblogger.LevelInfo:
		duration := data["duration"]
		query, ok := data["query"]
		if ok {
			l.logger.Debugf("%s [%.2fms] -- %s\n", msg, duration, query)
		} else {
			l.logger.Debugf("%s [%.2fms]\n", msg, duration)
		}
	case sqldblogger.LevelError:
		l.logger.Errorf(template, msg, data)
	}
}

// WrapTx starts a transaction against the provided DB, and then calls the user
// provided function. If this function errors, the transaction is rolled back - otherwise
// the transaction is committed.
func WrapTx(db *sqlx.DB, f func(tx *sqlx.Tx) error) error {
	tx, err := db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := f(tx); err != nil {
		dbLogger.Errorf("Transaction failed... rolling back. Error: %s\n", err.Error())
		return err
	}

	return tx.Commit()
}
