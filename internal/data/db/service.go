package db

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/chatmemory-backend/internal/platform/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Service is an opened database.
type Service interface {
	DB() *gorm.DB
	Driver() string
}

// Open connects to the configured driver.
func Open(driver string, logg *logger.Logger) (Service, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverPostgres, "postgresql":
		return NewPostgresService(logg)
	case DriverSQLite, "sqlite3":
		return NewSQLiteService(logg)
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", driver)
	}
}
