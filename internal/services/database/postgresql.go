package database

import (
	"fmt"

	"github.com/Egham-7/support-resilience/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func postgresDialector(config models.DatabaseConfig) gorm.Dialector {
	dsn := config.DSN
	if dsn == "" {
		dsn = fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			config.Host,
			config.Port,
			config.Username,
			config.Password,
			config.Database,
			getSSLMode(config.SSLMode),
		)
	}
	return postgres.Open(dsn)
}

func getSSLMode(mode string) string {
	if mode == "" {
		return "disable"
	}
	return mode
}
