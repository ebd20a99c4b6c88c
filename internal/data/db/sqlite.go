package db

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/yungbote/chatmemory-backend/internal/platform/envutil"
	"github.com/yungbote/chatmemory-backend/internal/platform/logger"
)

// SQLiteService backs local development. Writes go through one connection so
// transactions serialize in place of row locks.
type SQLiteService struct {
	db   *gorm.DB
	log  *logger.Logger
	path string
}

func NewSQLiteService(logg *logger.Logger) (*SQLiteService, error) {
	path := envutil.GetEnv("SQLITE_PATH", "chatmemory.db", logg)
	return OpenSQLite(path, logg)
}

func OpenSQLite(path string, logg *logger.Logger) (*SQLiteService, error) {
	serviceLog := logg.With("service", "SQLiteService")
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   newGormLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	serviceLog.Info("Opened sqlite database", "path", path)
	return &SQLiteService{db: db, log: serviceLog, path: path}, nil
}

func (s *SQLiteService) DB() *gorm.DB { return s.db }

func (s *SQLiteService) Driver() string { return DriverSQLite }
