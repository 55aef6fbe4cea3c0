// Package kv is the durable string-keyed, string-valued storage the chat
// state is persisted into.
package kv

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store is synchronous get/set storage. Get reports whether the key exists.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open returns the backend named by driver ("sqlite", "mysql", "bolt" or "memory").
func Open(driver, dsn string) (Store, error) {
	switch driver {
	case "memory":
		return NewMemory(), nil
	case "bolt":
		return OpenBolt(dsn)
	case "sqlite":
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create storage dir: %w", err)
			}
		}
		return openGorm(sqlite.Open(dsn))
	case "mysql":
		return openGorm(mysql.Open(dsn))
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

func openGorm(dialector gorm.Dialector) (Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return NewGorm(db)
}
