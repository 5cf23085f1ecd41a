package authstate

import (
	"context"
	"fmt"
	"net/http"

	"github.com/MrEthical07/authstate/credential"
	"github.com/MrEthical07/authstate/guard"
	"github.com/MrEthical07/authstate/internal/audit"
	"github.com/MrEthical07/authstate/session"
	"github.com/MrEthical07/authstate/state"
	"github.com/MrEthical07/authstate/transport"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an Engine. A Builder is single use.
type Builder struct {
	config     Config
	redis      redis.UniversalClient
	backend    credential.Backend
	logger     *zap.Logger
	auditSink  AuditSink
	navigator  Navigator
	httpClient *http.Client
	origin     string

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis shares credentials through client. The caller keeps ownership of client.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithBackend overrides the configured backend entirely. Engines built over the same
// backend behave as contexts of one application.
func (b *Builder) WithBackend(backend credential.Backend) *Builder {
	b.backend = backend
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithNavigator receives forced navigations (guard redirects and logout after an
// authorization failure).
func (b *Builder) WithNavigator(nav Navigator) *Builder {
	b.navigator = nav
	return b
}

func (b *Builder) WithHTTPClient(client *http.Client) *Builder {
	b.httpClient = client
	return b
}

// WithOrigin fixes the execution context id instead of generating one.
func (b *Builder) WithOrigin(origin string) *Builder {
	b.origin = origin
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build is BuildContext with a background context.
func (b *Builder) Build() (*Engine, error) {
	return b.BuildContext(context.Background())
}

// BuildContext validates the configuration, wires every component and loads the initial
// session state using ctx.
func (b *Builder) BuildContext(ctx context.Context) (*Engine, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil && b.backend == nil && cfg.Store.Backend == "redis" && cfg.Store.RedisAddr == "" {
		return nil, fmt.Errorf("%w: redis backend needs Store RedisAddr or WithRedis", ErrInvalidConfig)
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		config:    cfg,
		logger:    logger,
		navigator: b.navigator,
		metrics:   NewMetrics(cfg.Metrics),
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
	}

	switch {
	case b.backend != nil:
		e.backend = b.backend
	case b.redis != nil:
		e.backend = credential.NewRedisBackend(b.redis, cfg.Store.KeyPrefix, logger)
	case cfg.Store.Backend == "memory":
		e.backend = credential.NewMemoryHub()
	default:
		e.ownedRedis = redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		e.backend = credential.NewRedisBackend(e.ownedRedis, cfg.Store.KeyPrefix, logger)
	}

	storeOpts := []credential.Option{
		credential.WithLogger(logger),
		credential.WithMalformedProfileHook(func(error) {
			e.metricInc(MetricProfileDecodeFailure)
		}),
	}
	if b.origin != "" {
		storeOpts = append(storeOpts, credential.WithOrigin(b.origin))
	}
	e.store = credential.NewStore(e.backend, storeOpts...)
	logger = logger.With(zap.String("origin", e.store.Origin()))
	e.logger = logger

	e.session = session.NewService(e.store, logger, session.Hooks{
		OnLogin:      e.onLogin,
		OnLogout:     e.onLogout,
		OnStoreError: e.onStoreError,
	})

	stateOpts := state.Options{
		PollInterval: cfg.Sync.PollInterval,
		WatchedKeys:  cfg.Sync.WatchedKeys,
		Logger:       logger,
		Hooks:        state.Hooks{OnRefresh: e.onRefresh},
	}
	if !cfg.Sync.DisableNotifications {
		stateOpts.Notifier = e.store
	}
	e.state = state.New(ctx, e.session, stateOpts)

	// Decisions read the store on every navigation, so they never depend on a running Watch.
	e.guard = guard.New(e.session, guard.Options{
		Paths:      cfg.Routes.Paths,
		Rules:      cfg.Routes.Rules,
		Logger:     logger,
		OnDecision: e.onDecision,
	})

	e.client = transport.NewClient(transport.Options{
		BaseURL:              cfg.Transport.BaseURL,
		HTTPClient:           b.httpClient,
		Timeout:              cfg.Transport.Timeout,
		InvalidTokenMessages: cfg.Transport.InvalidTokenMessages,
		Tokens:               e.session,
		OnAuthFailure:        e.onAuthFailure,
		Logger:               logger,
	})

	b.built = true
	logger.Info("session engine ready",
		zap.String("backend", backendKind(e.backend)),
		zap.Duration("poll_interval", cfg.Sync.PollInterval),
		zap.Bool("notifications", !cfg.Sync.DisableNotifications),
	)
	return e, nil
}
