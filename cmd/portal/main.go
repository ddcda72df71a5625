package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/platinummonkey/portalauth/pkg/audit"
	"github.com/platinummonkey/portalauth/pkg/config"
	"github.com/platinummonkey/portalauth/pkg/credentials"
	"github.com/platinummonkey/portalauth/pkg/directory"
	"github.com/platinummonkey/portalauth/pkg/httputil"
	"github.com/platinummonkey/portalauth/pkg/identity"
	"github.com/platinummonkey/portalauth/pkg/middleware"
	"github.com/platinummonkey/portalauth/pkg/observability"
	"github.com/platinummonkey/portalauth/pkg/password"
	"github.com/platinummonkey/portalauth/pkg/portal"
	"github.com/platinummonkey/portalauth/pkg/secrets"
	"github.com/platinummonkey/portalauth/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

var version = "dev"

func main() {
	encrypt := flag.String("encrypt", "", "Encrypt a value with the master key and print it")
	flag.Parse()

	if *encrypt != "" {
		if err := encryptValue(*encrypt); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.ParseLevel(cfg.Observability.LogLevel), os.Stdout)
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("Portal stopped")
	}
}

func encryptValue(plaintext string) error {
	sc := config.LoadSecretsConfig()
	enc, err := secrets.NewAESDecrypter(sc.MasterKey, sc.Salt)
	if err != nil {
		return err
	}
	out, err := enc.Encrypt(plaintext)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.WithField("version", version).Info("Starting portal")

	decrypter, err := secrets.NewAESDecrypter(cfg.Secrets.MasterKey, cfg.Secrets.Salt)
	if err != nil {
		return err
	}
	sessionSecret, err := decrypter.Decrypt(cfg.Session.EncSecret)
	if err != nil {
		return fmt.Errorf("decrypt session secret: %w", err)
	}

	var metrics *observability.Metrics
	registry := prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = observability.NewMetrics(registry)
	}

	// Redis backs sessions and rate limits when configured
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = session.NewRedisClient(ctx, cfg.Redis.URL, cfg.Redis.PoolSize,
			cfg.Redis.DialTimeout, cfg.Redis.ReadTimeout, cfg.Redis.WriteTimeout)
		if err != nil {
			return err
		}
		logger.Info("Connected to redis")
	}

	var store session.Store
	switch cfg.Session.Store {
	case "redis":
		store = session.NewRedisStore(redisClient, "")
	default:
		store = session.NewMemoryStore(cfg.Session.MaxEntries, cfg.Session.TTL)
	}
	sessions, err := session.NewManager(store, session.Options{
		CookieName: cfg.Session.CookieName,
		Secret:     []byte(sessionSecret),
		Secure:     cfg.Session.Secure,
		TTL:        cfg.Session.TTL,
		Logger:     logger,
		Metrics:    metrics,
	})
	if err != nil {
		return err
	}

	db, err := directory.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	repo := directory.NewSQLRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		return err
	}
	logger.WithField("driver", cfg.Database.Driver).Info("User directory ready")

	hasher := password.NewArgon2Hasher(password.DefaultParams)

	var users *credentials.Store
	if cfg.LocalAuthEnabled() {
		users, err = credentials.Load(cfg.Auth.LocalUsersPath, logger)
		if err != nil {
			return err
		}
		if cfg.Auth.WatchLocalUsers {
			go func() {
				if err := users.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.WithError(err).Error("Local users watcher stopped")
				}
			}()
		}
	}

	factory := &identity.Factory{Decrypter: decrypter, Store: users, Hasher: hasher, Logger: logger}
	resolvers, err := factory.Build(ctx, cfg.Auth)
	if err != nil {
		return err
	}
	logger.WithField("providers", resolvers.Names()).Info("Identity providers configured")

	var limiter middleware.RateLimiter
	limitCfg := &middleware.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimit.RequestsPerMinute,
		WindowDuration:    time.Minute,
		BurstSize:         cfg.RateLimit.Burst,
	}
	if cfg.RateLimit.Enabled {
		if redisClient != nil {
			limiter = middleware.NewRedisRateLimiter(redisClient, limitCfg, "")
		} else {
			local := middleware.NewLocalRateLimiter(limitCfg)
			local.StartCleanup(ctx)
			limiter = local
		}
	}

	proxies, err := httputil.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return err
	}

	auditor, err := newAuditor(cfg.Audit, logger)
	if err != nil {
		return err
	}

	opts := portal.Options{
		Sessions:       sessions,
		Registry:       resolvers,
		Bridge:         directory.NewBridge(repo, logger, metrics),
		Credentials:    users,
		Hasher:         hasher,
		Limiter:        limiter,
		RateLimit:      limitCfg,
		Health:         observability.NewHealthChecker(db, redisClient, version),
		Metrics:        metrics,
		Logger:         logger,
		Audit:          auditor,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		TrustedProxies: proxies,
		PostLoginPath:  cfg.Auth.PostLoginPath,
		MainPagePath:   cfg.Pages.MainPagePath,
	}
	if cfg.Observability.MetricsEnabled {
		opts.Gatherer = registry
	}
	handler, err := portal.NewServer(opts)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, srv, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		cancel()
		return nil
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		return auditor.Close()
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		return db.Close()
	})
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error {
			return redisClient.Close()
		})
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", srv.Addr).Info("Portal listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// a listener failure triggers the same shutdown path as a signal
	waitCtx, stopWait := context.WithCancel(ctx)
	defer stopWait()
	failed := make(chan error, 1)
	go func() {
		select {
		case err := <-errCh:
			failed <- err
			stopWait()
		case <-waitCtx.Done():
		}
	}()

	shutdownErr := shutdown.WaitForShutdown(waitCtx)
	select {
	case err := <-failed:
		return fmt.Errorf("http server: %w", err)
	default:
		return shutdownErr
	}
}

// newAuditor sends audit events to the application log and, when a path is
// configured, to a rotating JSON-lines file.
func newAuditor(cfg config.AuditConfig, logger *logrus.Logger) (*audit.MultiLogger, error) {
	loggers := []audit.Logger{audit.NewLogrusLogger(logger)}
	if cfg.LogPath != "" {
		file, err := audit.NewFileLogger(audit.FileLoggerConfig{
			BasePath: cfg.LogPath,
			Rotate:   cfg.Rotate,
			MaxSize:  cfg.MaxSize,
			MaxFiles: cfg.MaxFiles,
		})
		if err != nil {
			return nil, err
		}
		loggers = append(loggers, file)
		logger.WithField("path", cfg.LogPath).Info("Audit file enabled")
	}
	return audit.NewMultiLogger(loggers...), nil
}
