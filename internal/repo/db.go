// Package repo is the GORM persistence layer of the sync engine: farmer
// credentials, the organization/field hierarchy, raw and normalized field
// operations, sync watermarks and pending OAuth states.
package repo

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/agricapture/fieldsync/internal/domain"
)

const (
	maxOpenConns       = 10
	slowQueryThreshold = 500 * time.Millisecond
)

// sqlitePragmas go into the DSN so that every pooled connection gets them.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
	"busy_timeout(5000)",
}

// OpenSQLite opens (or creates) the SQLite file at path. The parent directory
// must exist. Slow statements and driver errors are reported through zerolog,
// and the OpenTelemetry plugin traces every statement without bind variables
// since credential rows carry bearer tokens.
func OpenSQLite(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(sqliteDSN(path)), &gorm.Config{Logger: newQueryLogger()})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxOpenConns)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics(), tracing.WithoutQueryVariables())); err != nil {
		return nil, err
	}
	return db, nil
}

// sqliteDSN appends the connection pragmas unless the caller already passed
// query parameters of its own.
func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	q := url.Values{"_pragma": sqlitePragmas}
	return path + "?" + q.Encode()
}

// zerologWriter adapts the global zerolog logger to gorm's printf logger.
type zerologWriter struct{}

func (zerologWriter) Printf(format string, args ...any) {
	log.Warn().Str("component", "gorm").Msgf(strings.TrimSpace(format), args...)
}

func newQueryLogger() logger.Interface {
	return logger.New(zerologWriter{}, logger.Config{
		SlowThreshold:             slowQueryThreshold,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		ParameterizedQueries:      true,
		Colorful:                  false,
	})
}

// AutoMigrate creates or updates every table the sync service owns.
// Parents are listed before children so foreign keys resolve.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Credential{},
		&domain.Organization{},
		&domain.Field{},
		&domain.RawOperation{},
		&domain.NormalizedOperation{},
		&domain.SyncState{},
		&domain.AuthState{},
	)
}
