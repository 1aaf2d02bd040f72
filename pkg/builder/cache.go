package builder

import "github.com/Egham-7/support-resilience/internal/models"

// WithTieredCache replaces the whole cache section. Zero fields take their
// defaults at Build.
func (b *Builder) WithTieredCache(cfg models.TieredCacheConfig) *Builder {
	b.cfg.Cache = cfg
	return b
}

func (b *Builder) WithRemoteCache(url, token string) *Builder {
	b.cfg.Cache.Remote.URL = url
	b.cfg.Cache.Remote.Token = token
	return b
}

func (b *Builder) WithFileDurableCache(dir string) *Builder {
	b.cfg.Cache.Durable.Backend = models.DurableBackendFile
	b.cfg.Cache.Durable.Directory = dir
	return b
}

func (b *Builder) WithoutDurableCache() *Builder {
	b.cfg.Cache.Durable.Backend = models.DurableBackendNone
	return b
}

func (b *Builder) WithResponseCache(cfg models.ResponseCacheConfig) *Builder {
	b.cfg.ResponseCache = cfg
	return b
}

// WithEmbeddings turns on the embedding tier of the response cache
func (b *Builder) WithEmbeddings(cfg models.EmbeddingConfig) *Builder {
	cfg.Enabled = true
	if cfg.Backend == "" {
		cfg.Backend = models.CacheBackendMemory
	}
	b.cfg.ResponseCache.Embedding = cfg
	return b
}

func (b *Builder) WithConversation(cfg models.ConversationConfig) *Builder {
	b.cfg.Conversation = cfg
	return b
}
