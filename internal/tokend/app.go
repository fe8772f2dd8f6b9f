package tokend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/ShinyNito/wechatkit/core"
	"github.com/ShinyNito/wechatkit/events"
	"github.com/ShinyNito/wechatkit/metrics"
	"github.com/ShinyNito/wechatkit/rediscache"
)

// ServiceName NATS 事件头中的服务名
const ServiceName = "wechat-tokend"

// App 装配完成的服务
type App struct {
	Config   *Config
	Logger   *zap.Logger
	Registry *Registry
	Metrics  *metrics.Metrics
	Bus      *events.Bus
	Server   *echo.Echo
	Warmer   *Warmer

	closers []func() error
}

// Overrides 测试或嵌入时替换外部依赖；零值表示按配置创建
type Overrides struct {
	Cache      core.Cache
	NATS       events.MsgPublisher
	Secrets    SecretResolver
	HTTPClient *http.Client
	Clock      func() time.Time
}

// NewApp 按配置连接 Redis、NATS、AWS 并构建租户与 HTTP 服务
func NewApp(ctx context.Context, cfg *Config, logger *zap.Logger, ov Overrides) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{Config: cfg, Logger: logger}
	ok := false
	defer func() {
		if !ok {
			_ = app.Close()
		}
	}()

	sdkLogger := SlogFor(logger)

	cache := ov.Cache
	if cache == nil {
		if cfg.Redis.Addr != "" {
			rc, err := rediscache.Dial(ctx, rediscache.Config{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
				Prefix:   cfg.Redis.Prefix,
			}, rediscache.WithLogger(sdkLogger))
			if err != nil {
				return nil, err
			}
			app.closers = append(app.closers, rc.Close)
			cache = rc
			logger.Info("using redis credential cache", zap.String("addr", cfg.Redis.Addr))
		} else {
			logger.Warn("redis not configured, credentials are cached in process only")
			cache = core.NewMemoryCache()
		}
	}

	publisher := ov.NATS
	if publisher == nil && cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name(ServiceName))
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		app.closers = append(app.closers, nc.Drain)
		publisher = nc
	}

	secrets := ov.Secrets
	if secrets == nil && cfg.AWS.Region != "" {
		sm, err := NewAWSSecrets(ctx, cfg.AWS.Region)
		if err != nil {
			return nil, err
		}
		secrets = sm
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.Metrics = metrics.New(reg)

	app.Bus = events.NewBus()
	if err := app.Bus.Subscribe(func(_ context.Context, update core.CredentialUpdate) {
		logger.Debug("credential updated",
			zap.String("tenant", update.Tenant),
			zap.String("name", update.Name),
			zap.Time("expires_at", update.ExpiresAt),
		)
	}); err != nil {
		return nil, fmt.Errorf("subscribe bus: %w", err)
	}

	hooks := []core.UpdateHook{app.Metrics.Hook(), app.Bus.Hook()}
	if publisher != nil {
		opts := []events.NATSOption{
			events.WithSubject(cfg.NATS.Subject),
			events.WithService(ServiceName),
			events.WithLogger(sdkLogger),
		}
		if cfg.NATS.IncludeValue {
			opts = append(opts, events.WithValue())
		}
		if ov.Clock != nil {
			opts = append(opts, events.WithClock(ov.Clock))
		}
		hooks = append(hooks, events.NewNATSPublisher(publisher, opts...).Hook())
	}

	registry, err := NewRegistry(ctx, cfg.Tenants, Deps{
		Cache:      cache,
		Recorder:   app.Metrics,
		OnUpdate:   core.ChainUpdateHooks(hooks...),
		Secrets:    secrets,
		HTTPClient: ov.HTTPClient,
		Logger:     sdkLogger,
		Clock:      ov.Clock,
	})
	if err != nil {
		return nil, err
	}
	app.Registry = registry

	app.Server = NewServer(registry, ServerOptions{
		APIKeys:  cfg.APIKeys,
		Gatherer: reg,
		Logger:   logger.Named("http"),
		Clock:    ov.Clock,
	})

	if cfg.Warmup.Schedule != "" {
		app.Warmer, err = NewWarmer(registry, WarmerConfig{
			Schedule: cfg.Warmup.Schedule,
			Margin:   cfg.Warmup.Margin,
			Logger:   logger,
			Clock:    ov.Clock,
		})
		if err != nil {
			return nil, err
		}
	}

	ok = true
	return app, nil
}

// Run 启动预热与 HTTP 服务，ctx 结束后优雅退出
func (a *App) Run(ctx context.Context) error {
	if a.Warmer != nil {
		a.Warmer.Start()
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("listening", zap.String("addr", a.Config.Listen), zap.Int("tenants", len(a.Registry.Tenants())))
		if err := a.Server.Start(a.Config.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.Logger.Info("shutdown signal received")
	case err := <-errCh:
		runErr = fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if a.Warmer != nil {
		a.Warmer.Stop(shutdownCtx)
	}
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Logger.Warn("http shutdown failed", zap.Error(err))
	}
	a.Bus.WaitAsync()
	return errors.Join(runErr, a.Close())
}

// Close 释放外部连接
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
