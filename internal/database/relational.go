package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/chedeval/progeval/internal/config"
	"github.com/chedeval/progeval/pkg/logger"
)

// OpenRelational opens the evaluation database for the configured driver and tunes its pool.
func OpenRelational(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.New(postgres.Config{
			DSN:                  cfg.DSN(),
			PreferSimpleProtocol: true, // PgBouncer transaction pooling
		})
	case "sqlite":
		sep := "?"
		if strings.Contains(cfg.SQLitePath, "?") {
			sep = "&"
		}
		dialector = sqlite.Open(cfg.SQLitePath + sep + "_foreign_keys=on&_busy_timeout=5000")
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         NewGormLogger(200 * time.Millisecond),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	TunePool(db, cfg)
	return db, nil
}

// TunePool applies connection budget limits; the pool is the one shared resource
// the query guard protects.
func TunePool(db *gorm.DB, cfg config.DatabaseConfig) {
	sqlDB, err := db.DB()
	if err != nil {
		logger.Warnf("pool tune err: %v", err)
		return
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxIdleTime(60 * time.Second)
	sqlDB.SetConnMaxLifetime(10 * time.Minute)
}

// Pool adapts a gorm handle to the guard's reconnect hook.
type Pool struct {
	DB       *gorm.DB
	MaxIdle  int
	PingWait time.Duration
}

// Reconnect pings the pool; when the ping fails it drops idle connections so the
// next checkout dials fresh, then pings once more.
func (p *Pool) Reconnect(ctx context.Context) error {
	sqlDB, err := p.DB.DB()
	if err != nil {
		return err
	}
	wait := p.PingWait
	if wait <= 0 {
		wait = 3 * time.Second
	}
	pctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	if err := sqlDB.PingContext(pctx); err == nil {
		return nil
	}
	logger.Warnf("database connection lost, resetting idle pool")
	sqlDB.SetMaxIdleConns(0)
	idle := p.MaxIdle
	if idle <= 0 {
		idle = 2
	}
	sqlDB.SetMaxIdleConns(idle)
	pctx2, cancel2 := context.WithTimeout(ctx, wait)
	defer cancel2()
	if err := sqlDB.PingContext(pctx2); err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}
	return nil
}

// Ping reports whether the relational store answers.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

type gormLog struct {
	slow  time.Duration
	level gormlogger.LogLevel
}

// NewGormLogger routes gorm's own logging through the service logger and
// reports queries slower than slow at warn level.
func NewGormLogger(slow time.Duration) gormlogger.Interface {
	return &gormLog{slow: slow, level: gormlogger.Warn}
}

func (l *gormLog) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *gormLog) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		logger.Infof("gorm: "+msg, data...)
	}
}

func (l *gormLog) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		logger.Warnf("gorm: "+msg, data...)
	}
}

func (l *gormLog) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		logger.Errorf("gorm: "+msg, data...)
	}
}

func (l *gormLog) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && err != gorm.ErrRecordNotFound && l.level >= gormlogger.Error:
		sql, rows := fc()
		logger.Errorf("gorm: %v [%s] rows=%d %s", err, elapsed, rows, sql)
	case l.slow > 0 && elapsed > l.slow && l.level >= gormlogger.Warn:
		sql, rows := fc()
		logger.Warnf("gorm: slow query [%s] rows=%d %s", elapsed, rows, sql)
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		logger.Debugf("gorm: [%s] rows=%d %s", elapsed, rows, sql)
	}
}

// OpenMemory opens a private in-memory sqlite database on a single
// connection; repository tests run against it.
func OpenMemory() (*gorm.DB, error) {
	return OpenRelational(config.DatabaseConfig{Driver: "sqlite", SQLitePath: "file::memory:", MaxOpenConns: 1, MaxIdleConns: 1})
}
