package authfront

import (
	"errors"

	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. Configure it during initialization and call
// Build exactly once; construction is allocation-only and performs no I/O.
type Builder struct {
	config    Config
	redis     *redis.Client
	flagStore FlagStore
	backend   Backend
	auditSink AuditSink

	built bool
}

// New returns a Builder loaded with defaults.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the default configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the redis client backing the default flag store.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithFlagStore overrides the flag store entirely. Takes precedence over
// WithRedis.
func (b *Builder) WithFlagStore(store FlagStore) *Builder {
	b.flagStore = store
	return b
}

// WithBackend supplies the auth backend adapter.
func (b *Builder) WithBackend(backend Backend) *Builder {
	b.backend = backend
	return b
}

// WithAuditSink supplies the audit sink. Ignored unless audit is enabled in
// the config.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the counter set.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration, wires the stores, and returns the
// Engine. The Engine is not usable for guard decisions until
// [Engine.Initialize] has run.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.backend == nil {
		return nil, errors.New("backend adapter required")
	}

	flags := b.flagStore
	if flags == nil {
		if b.redis == nil {
			return nil, errors.New("redis client or flag store required")
		}
		flags = NewRedisFlagStore(b.redis, cfg.Flags.RedisPrefix, cfg.Flags.TabTTL)
	}

	engine := &Engine{
		config:   cfg,
		flags:    flags,
		backend:  b.backend,
		attempts: newLinkingAttemptStore(flags),
		sessions: newSessionCache(flags),
		audit:    newAuditDispatcher(cfg.Audit, b.auditSink),
	}
	if cfg.Metrics.Enabled {
		engine.metrics = newMetrics()
	}

	b.built = true
	return engine, nil
}
