package datastore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mousetube/mousetube-go/internal/logging"
)

// DefaultSlowQueryThreshold defines the duration after which a query is
// considered slow. Migration batch queries can take most of a second, so the
// threshold sits above that to avoid noise during schema upgrades.
const DefaultSlowQueryThreshold = 1 * time.Second

// createGormLogger configures and returns a new GORM logger instance that
// forwards to the shared structured logger.
func createGormLogger() gormlogger.Interface {
	return &slogGormLogger{
		slowThreshold: DefaultSlowQueryThreshold,
		level:         gormlogger.Warn,
	}
}

// slogGormLogger adapts GORM's logger interface onto slog.
type slogGormLogger struct {
	slowThreshold time.Duration
	level         gormlogger.LogLevel
}

func (l *slogGormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *slogGormLogger) Info(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		logging.Info(fmt.Sprintf(msg, args...), "service", "datastore")
	}
}

func (l *slogGormLogger) Warn(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		logging.Warn(fmt.Sprintf(msg, args...), "service", "datastore")
	}
}

func (l *slogGormLogger) Error(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		logging.Error(fmt.Sprintf(msg, args...), "service", "datastore")
	}
}

func (l *slogGormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && err != gorm.ErrRecordNotFound && l.level >= gormlogger.Error:
		sql, rows := fc()
		logging.Error("Query failed",
			"service", "datastore",
			"sql", sql,
			"rows", rows,
			"elapsed", elapsed,
			"error", err)
	case elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		sql, rows := fc()
		logging.Warn("Slow query",
			"service", "datastore",
			"sql", sql,
			"rows", rows,
			"elapsed", elapsed)
	}
}

// performAutoMigration runs GORM auto-migration over the full schema.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(
		&User{},
		&UserProfile{},
		&Repository{},
		&Reference{},
		&Laboratory{},
		&Study{},
		&Species{},
		&Strain{},
		&AnimalProfile{},
		&Software{},
		&SoftwareVersion{},
		&Hardware{},
		&Protocol{},
		&RecordingSession{},
		&File{},
		&DepositionClaim{},
	); err != nil {
		return fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err)
	}

	if debug {
		logging.Debug("Database connection initialized",
			"service", "datastore",
			"type", dbType,
			"connection", connectionInfo)
	}
	return nil
}
