package builder

import "github.com/Egham-7/support-resilience/internal/models"

// WithDatabase sets the system of record holding customers and subscriptions
func (b *Builder) WithDatabase(cfg models.DatabaseConfig) *Builder {
	b.cfg.Database = &cfg
	return b
}

// WithDatabaseDurableCache keeps the last cache tier in a table. A nil cfg
// shares the system of record's connection.
func (b *Builder) WithDatabaseDurableCache(cfg *models.DatabaseConfig) *Builder {
	b.cfg.Cache.Durable.Backend = models.DurableBackendDatabase
	b.cfg.Cache.Durable.Database = cfg
	return b
}
