package database

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sqliteDialector "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrUnsupportedDialect indicates that no GORM dialector is available for the scheme.
	ErrUnsupportedDialect = errors.New("database.unsupported_dialect")

	errEmptyDatabaseURL    = errors.New("database.empty_database_url")
	errSQLiteEmptyPath     = errors.New("database.sqlite.empty_path")
	errSQLiteInvalidURL    = errors.New("database.sqlite.invalid_url")
	errUnsupportedNoScheme = errors.New("database.unsupported_no_scheme")
)

// Database wraps the GORM handle shared by the user directory and record store.
type Database struct {
	DB          *gorm.DB
	driverLabel string
}

// Driver exposes the selected database driver label.
func (database *Database) Driver() string {
	return database.driverLabel
}

// Open connects to databaseURL and migrates the supplied models.
func Open(ctx context.Context, databaseURL string, models ...any) (*Database, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("database.open: %w", errEmptyDatabaseURL)
	}
	dialector, driverLabel, err := resolveDialector(databaseURL)
	if err != nil {
		return nil, err
	}
	gormDB, openErr := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if openErr != nil {
		return nil, fmt.Errorf("database.open.%s: %w", driverLabel, openErr)
	}
	if driverLabel == "sqlite" {
		sqlDB, sqlErr := gormDB.DB()
		if sqlErr != nil {
			return nil, fmt.Errorf("database.open.%s: %w", driverLabel, sqlErr)
		}
		// SQLite allows a single writer; serialize access instead of surfacing SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
	}
	if len(models) > 0 {
		if migrateErr := gormDB.WithContext(ctx).AutoMigrate(models...); migrateErr != nil {
			return nil, fmt.Errorf("database.migrate.%s: %w", driverLabel, migrateErr)
		}
	}
	return &Database{DB: gormDB, driverLabel: driverLabel}, nil
}

// Ping checks that the underlying connection is alive.
func (database *Database) Ping(ctx context.Context) error {
	sqlDB, err := database.DB.DB()
	if err != nil {
		return fmt.Errorf("database.ping.%s: %w", database.driverLabel, err)
	}
	if pingErr := sqlDB.PingContext(ctx); pingErr != nil {
		return fmt.Errorf("database.ping.%s: %w", database.driverLabel, pingErr)
	}
	return nil
}

// Close releases the connection pool.
func (database *Database) Close() error {
	sqlDB, err := database.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func resolveDialector(databaseURL string) (gorm.Dialector, string, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("database.parse_url: %w", err)
	}
	if parsed.Scheme == "" {
		return nil, "", fmt.Errorf("database.dialect: %w", errUnsupportedNoScheme)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return postgres.Open(databaseURL), "postgres", nil
	case "sqlite", "sqlite3":
		dsn, dsnErr := buildSQLiteDSN(parsed)
		if dsnErr != nil {
			return nil, "", fmt.Errorf("database.sqlite: %w", dsnErr)
		}
		return sqliteDialector.Open(dsn), "sqlite", nil
	default:
		return nil, "", fmt.Errorf("database.dialect.%s: %w", strings.ToLower(parsed.Scheme), ErrUnsupportedDialect)
	}
}

func buildSQLiteDSN(parsed *url.URL) (string, error) {
	if parsed == nil {
		return "", errSQLiteInvalidURL
	}
	var builder strings.Builder
	switch {
	case parsed.Opaque != "":
		builder.WriteString(parsed.Opaque)
	case parsed.Host != "":
		builder.WriteString(parsed.Host)
		if parsed.Path != "" {
			if !strings.HasPrefix(parsed.Path, "/") {
				builder.WriteString("/")
			}
			builder.WriteString(parsed.Path)
		}
	default:
		builder.WriteString(parsed.Path)
	}
	if builder.Len() == 0 {
		return "", errSQLiteEmptyPath
	}
	if parsed.RawQuery != "" {
		builder.WriteString("?")
		builder.WriteString(parsed.RawQuery)
	}
	return builder.String(), nil
}
