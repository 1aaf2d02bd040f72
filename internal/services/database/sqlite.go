package database

import (
	"fmt"

	"github.com/Egham-7/support-resilience/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func sqliteDialector(config models.DatabaseConfig) (gorm.Dialector, error) {
	if config.FilePath == "" {
		return nil, fmt.Errorf("file_path is required for SQLite")
	}
	return sqlite.Open(config.FilePath), nil
}
