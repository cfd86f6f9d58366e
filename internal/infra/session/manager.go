// Package session owns the database engine and hands out request-scoped
// transactional sessions.
//
// A Manager is built once by the entry point, initialised with Init and
// closed at shutdown. Sessions never commit on their own: callers commit
// explicitly, and whatever is left uncommitted when the scope ends is rolled
// back.
package session

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	customErrors "github.com/Miraines/MoonyAndStarry/users-service/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/users-service/internal/domain/auth/model"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// EngineOptions configure the connection pool.
type EngineOptions struct {
	Echo            bool
	PoolPrePing     bool
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SessionOptions are applied to every session handed out by the manager.
type SessionOptions struct {
	PrepareStmt            bool
	SkipDefaultTransaction bool
	QueryFields            bool
}

type Manager struct {
	db   atomic.Pointer[gorm.DB]
	opts SessionOptions
	log  *zap.Logger
}

func NewManager(log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{log: log}
}

// Dialector picks the gorm driver from the DSN scheme.
func Dialector(dsn string) (gorm.Dialector, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return postgres.Open(dsn), nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(dsn, "sqlite://")), nil
	case strings.HasPrefix(dsn, "file:"):
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database url %q", dsn)
	}
}

// Init opens the engine. A second call replaces (and closes) the previous one.
func (m *Manager) Init(dsn string, eng EngineOptions, sess SessionOptions) error {
	dialector, err := Dialector(dsn)
	if err != nil {
		return err
	}

	level := gormlogger.Warn
	if eng.Echo {
		level = gormlogger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger: gormlogger.New(zap.NewStdLog(m.log), gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return customErrors.WrapInternal(err, "open database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return customErrors.WrapInternal(err, "db handle")
	}
	if eng.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(eng.MaxOpenConns)
	}
	if eng.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(eng.MaxIdleConns)
	}
	if eng.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(eng.ConnMaxLifetime)
	}

	if eng.PoolPrePing {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sqlDB.PingContext(ctx); err != nil {
			_ = sqlDB.Close()
			return customErrors.WrapInternal(err, "ping database")
		}
	}

	m.opts = sess
	if old := m.db.Swap(db); old != nil {
		m.log.Warn("session manager re-initialised, closing previous engine")
		closeEngine(old)
	}
	m.log.Info("database engine ready", zap.String("dialect", db.Dialector.Name()))
	return nil
}

func (m *Manager) engine() (*gorm.DB, error) {
	db := m.db.Load()
	if db == nil {
		return nil, customErrors.ErrUninitialized
	}
	return db, nil
}

// Scoped runs fn with a session of its own. An error or panic from fn rolls
// the session back and is handed back to the caller unchanged.
func (m *Manager) Scoped(ctx context.Context, fn func(ctx context.Context, s *Session) error) (err error) {
	db, err := m.engine()
	if err != nil {
		return err
	}

	s := &Session{root: db.Session(&gorm.Session{
		PrepareStmt:            m.opts.PrepareStmt,
		SkipDefaultTransaction: m.opts.SkipDefaultTransaction,
		QueryFields:            m.opts.QueryFields,
		Context:                ctx,
	})}

	defer func() {
		p := recover()
		if rbErr := s.Rollback(); rbErr != nil {
			m.log.Error("session rollback failed", zap.Error(rbErr))
		}
		if p != nil {
			m.log.Error("session aborted by panic", zap.Any("panic", p))
			panic(p)
		}
		if err != nil {
			m.log.Debug("session rolled back", zap.Error(err))
		}
	}()

	return fn(ctx, s)
}

// Connection runs fn inside a transaction on a dedicated connection. Unlike
// Scoped it commits when fn succeeds; it exists for schema operations.
func (m *Manager) Connection(ctx context.Context, fn func(tx *gorm.DB) error) error {
	db, err := m.engine()
	if err != nil {
		return err
	}
	if err := db.WithContext(ctx).Transaction(fn); err != nil {
		m.log.Error("database connection failed", zap.Error(err))
		return err
	}
	return nil
}

// Models lists every table the service owns.
func Models() []any {
	return []any{&model.User{}}
}

func (m *Manager) CreateAll(ctx context.Context) error {
	return m.Connection(ctx, func(tx *gorm.DB) error {
		return tx.AutoMigrate(Models()...)
	})
}

func (m *Manager) DropAll(ctx context.Context) error {
	return m.Connection(ctx, func(tx *gorm.DB) error {
		return tx.Migrator().DropTable(Models()...)
	})
}

// Dialect reports the active driver name ("postgres", "sqlite").
func (m *Manager) Dialect() (string, error) {
	db, err := m.engine()
	if err != nil {
		return "", err
	}
	return db.Dialector.Name(), nil
}

// SQLDB exposes the pool for tooling such as migrations.
func (m *Manager) SQLDB() (*sql.DB, error) {
	db, err := m.engine()
	if err != nil {
		return nil, err
	}
	return db.DB()
}

func (m *Manager) Ping(ctx context.Context) error {
	sqlDB, err := m.SQLDB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (m *Manager) Close() error {
	db := m.db.Swap(nil)
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func closeEngine(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// Session is a single unit of work. It is not safe for concurrent use.
type Session struct {
	root *gorm.DB
	tx   *gorm.DB
}

// DB returns the transactional handle, beginning the transaction on first use.
func (s *Session) DB() *gorm.DB {
	if s.tx == nil {
		s.tx = s.root.Begin()
	}
	return s.tx
}

// Commit persists the work done so far. The session stays usable; the next
// DB call opens a new transaction.
func (s *Session) Commit() error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	return tx.Commit().Error
}

func (s *Session) Rollback() error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	return tx.Rollback().Error
}
