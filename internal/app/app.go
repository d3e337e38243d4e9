package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/predizer/predictx-client/internal/api"
	"github.com/predizer/predictx-client/internal/auth"
	"github.com/predizer/predictx-client/internal/config"
	"github.com/predizer/predictx-client/internal/session"
	"github.com/predizer/predictx-client/pkg/httpclient"
	"github.com/predizer/predictx-client/pkg/tracing"
)

// Version is reported as the tracing service version.
const Version = "0.1.0"

// App wires together the session store, transport and auth facade.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	Auth           *auth.Client
	Store          *session.Store
	redisClient    *redis.Client
	tracerShutdown func(context.Context) error
	unsubscribe    func()
}

// NewApp builds every dependency from cfg. Close releases them.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "predictx-client",
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	a := &App{
		cfg:            cfg,
		logger:         logger,
		tracerShutdown: tracerShutdown,
	}

	backend, err := a.newBackend(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Store = session.NewStore(backend, cfg.SessionKeyPrefix, logger.With(slog.String("component", "session")))
	a.unsubscribe = a.Store.Subscribe(func(s session.Session) {
		logger.Debug("auth changed",
			slog.Bool("authenticated", s.Authenticated()),
			slog.String("user_id", s.User.ID()),
		)
	})

	apiClient := api.New(cfg.APIBaseURL, newTransport(cfg, logger), logger.With(slog.String("component", "api")))
	a.Auth = auth.NewClient(apiClient, a.Store, logger.With(slog.String("component", "auth")))
	return a, nil
}

func (a *App) newBackend(ctx context.Context) (session.Backend, error) {
	switch a.cfg.SessionBackend {
	case config.BackendMemory:
		return session.NewMemoryBackend(), nil

	case config.BackendRedis:
		client, err := session.NewRedisClient(ctx, session.RedisConfig{
			Host:     a.cfg.RedisHost,
			Port:     a.cfg.RedisPort,
			Password: a.cfg.RedisPassword,
			DB:       a.cfg.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("connect session redis: %w", err)
		}
		a.redisClient = client
		return session.NewRedisBackend(client, a.cfg.SessionTTL), nil

	default:
		path := a.cfg.SessionFile
		if path == "" {
			p, err := session.DefaultFilePath()
			if err != nil {
				return nil, err
			}
			path = p
		}
		a.logger.Debug("using session file", slog.String("path", path))
		return session.NewFileBackend(path), nil
	}
}

func newTransport(cfg *config.Config, logger *slog.Logger) httpclient.Doer {
	hcfg := httpclient.DefaultConfig()
	hcfg.Timeout = cfg.HTTPTimeout
	hcfg.MaxRetries = cfg.HTTPMaxRetries
	hcfg.RateLimit = cfg.RateLimitRPS
	hcfg.RateBurst = cfg.RateLimitBurst

	client := httpclient.New(hcfg)
	if !cfg.CircuitBreakerEnabled {
		return client
	}
	return httpclient.NewCircuitBreakerClient(client, httpclient.DefaultCircuitBreakerConfig("predictx-api"), logger)
}

// Close releases resources in reverse order of creation: the Redis connection,
// then the tracer, so spans covering the last requests are flushed.
func (a *App) Close() error {
	var errs []error

	if a.unsubscribe != nil {
		a.unsubscribe()
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}

	if a.tracerShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
