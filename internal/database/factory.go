package database

import (
	"fmt"
	"path/filepath"

	"qnote/internal/config"
	"qnote/internal/qn"
)

// DefaultFileName is the name of the database file inside its directory.
const DefaultFileName = "qnote.db"

// NewDatabaseFromConfig creates a Database based on the database config type.
// For sqlite, the file lives in cfg.DataDir, or at defaultPath when DataDir
// is empty. A memory database is migrated immediately since it always starts
// empty.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, defaultPath string) (qn.Database, error) {
	switch cfg.Type {
	case "sqlite", "":
		path := defaultPath
		if cfg.DataDir != "" {
			path = filepath.Join(cfg.DataDir, DefaultFileName)
		}
		if path == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		db, err := NewSQLiteDatabase(path)
		if err != nil {
			return nil, err
		}
		return db, nil
	case "memory":
		db, err := NewSQLiteDatabase(":memory:")
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrating memory database: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
