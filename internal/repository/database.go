package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file" // Required for file source
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver
)

// Supported values of database.driver.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open connects to the chat log store using the configured driver.
func Open(driver, dataSourceName string, logger *zap.Logger) (*sqlx.DB, error) {
	switch driver {
	case DriverPostgres:
		return NewPostgresDB(dataSourceName, logger)
	case DriverSQLite:
		return NewSQLiteDB(dataSourceName, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// NewPostgresDB establishes a new connection to the PostgreSQL database.
func NewPostgresDB(dataSourceName string, logger *zap.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Connect(DriverPostgres, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	logger.Info("Successfully connected to the database!", zap.String("driver", DriverPostgres))
	return db, nil
}

// NewSQLiteDB opens a SQLite database file (or ":memory:").
// A single connection is kept so that in-memory databases are shared by all queries.
func NewSQLiteDB(path string, logger *zap.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Open(DriverSQLite, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database: %w", err)
	}

	logger.Info("Successfully connected to the database!", zap.String("driver", DriverSQLite), zap.String("path", path))
	return db, nil
}

// MigrateDB provisions the chat log schema from migrationsPath. Only PostgreSQL is supported.
func MigrateDB(db *sqlx.DB, migrationsPath string, logger *zap.Logger) error {
	if db.DriverName() != DriverPostgres {
		return fmt.Errorf("migrations are not supported for driver %q", db.DriverName())
	}

	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("couldn't get database instance for running migrations: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, DriverPostgres, driver)
	if err != nil {
		return fmt.Errorf("couldn't create migrate instance: %w", err)
	}
	m.Log = newMigrateLogger()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("couldn't run database migration: %w", err)
	}

	logger.Info("Database migration was run successfully", zap.String("path", migrationsPath))
	return nil
}

// migrateLogger routes golang-migrate output through logrus.
type migrateLogger struct {
	log *logrus.Logger
}

func newMigrateLogger() *migrateLogger {
	return &migrateLogger{log: logrus.StandardLogger()}
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.log.Infof(strings.TrimSuffix(format, "\n"), v...)
}

func (l *migrateLogger) Verbose() bool {
	return l.log.IsLevelEnabled(logrus.DebugLevel)
}
