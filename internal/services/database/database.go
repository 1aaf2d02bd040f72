package database

import (
	"context"
	"fmt"
	"time"

	"github.com/Egham-7/support-resilience/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the system-of-record connection shared by the durable cache table
// and the customer service
type DB struct {
	*gorm.DB
	config     models.DatabaseConfig
	driverName string
}

func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks connectivity within ctx
func (db *DB) Ping(ctx context.Context) error {
	if db.DB == nil {
		return fmt.Errorf("database not connected")
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (db *DB) DriverName() string {
	return db.driverName
}

func (db *DB) setConnectionPool() {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return
	}

	if db.config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(db.config.MaxOpenConns)
	}
	if db.config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(db.config.MaxIdleConns)
	}
	if db.config.ConnMaxLifetimeSeconds > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(db.config.ConnMaxLifetimeSeconds) * time.Second)
	}
}

// Migrate creates or updates the customer tables
func (db *DB) Migrate() error {
	if err := db.AutoMigrate(&models.Customer{}, &models.Subscription{}); err != nil {
		return fmt.Errorf("failed to migrate customer tables: %w", err)
	}
	return nil
}

func New(config models.DatabaseConfig) (*DB, error) {
	var (
		dialector  gorm.Dialector
		driverName string
		err        error
	)
	switch config.Type {
	case models.PostgreSQL:
		dialector, driverName = postgresDialector(config), "postgres"
	case models.MySQL:
		dialector, driverName = mysqlDialector(config), "mysql"
	case models.SQLite:
		dialector, err = sqliteDialector(config)
		driverName = "sqlite3"
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", config.Type, err)
	}

	db := &DB{
		DB:         gormDB,
		config:     config,
		driverName: driverName,
	}
	db.setConnectionPool()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", config.Type, err)
	}

	fiberlog.Infof("Database: connected (%s)", driverName)
	return db, nil
}
