package db

import (
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to the database described by the DSN.
//
// DSNs starting with "sqlite://" (or plain file paths ending in .db) open an
// SQLite database; everything else is treated as a PostgreSQL DSN.
func Open(dsn string) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("db: empty dsn")
	}

	cfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}

	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		return gorm.Open(sqlite.Open(strings.TrimPrefix(dsn, "sqlite://")), cfg)
	case strings.HasSuffix(dsn, ".db") && !strings.Contains(dsn, "://"):
		return gorm.Open(sqlite.Open(dsn), cfg)
	default:
		return gorm.Open(postgres.Open(dsn), cfg)
	}
}
