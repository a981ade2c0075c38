package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/sundayezeilo/shortlink/internal/cache"
	"github.com/sundayezeilo/shortlink/internal/config"
	"github.com/sundayezeilo/shortlink/internal/events"
	"github.com/sundayezeilo/shortlink/internal/migrations"
	"github.com/sundayezeilo/shortlink/internal/server"
	"github.com/sundayezeilo/shortlink/internal/shortener"
	"github.com/sundayezeilo/shortlink/internal/store/memory"
	"github.com/sundayezeilo/shortlink/internal/store/postgres"
	"github.com/sundayezeilo/shortlink/internal/store/sqlite"
	"github.com/sundayezeilo/shortlink/sluggen"
)

// App holds the application dependencies and configuration.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Store   shortener.Store
	Server  *server.Server
	Handler *shortener.Handler

	dbPool  *pgxpool.Pool
	sqlite  *sqlite.Store
	redis   *redis.Client
	nats    *nats.Conn
	purgeWG sync.WaitGroup
	stop    context.CancelFunc
}

// New initializes and returns a new App instance with all dependencies wired up.
func New(ctx context.Context) (*App, error) {
	if err := loadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := setupLogger(cfg.App.LogLevel)

	logger.Info("starting application",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"store", cfg.Database.Driver,
		"cache", cfg.Cache.Backend,
	)

	a := &App{Config: cfg, Logger: logger}

	if a.Store, err = a.openStore(ctx); err != nil {
		_ = a.Shutdown()
		return nil, fmt.Errorf("failed to open link store: %w", err)
	}

	linkCache, err := a.openCache(ctx)
	if err != nil {
		_ = a.Shutdown()
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	publisher, err := a.openPublisher()
	if err != nil {
		_ = a.Shutdown()
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	svc := shortener.NewService(a.Store, &shortener.ServiceConfig{
		SlugSource:      sluggen.NewBase62(),
		SlugLength:      cfg.Links.SlugLength,
		SlugMaxAttempts: cfg.Links.SlugMaxAttempts,
		Cache:           linkCache,
		CacheTTL:        cfg.Cache.TTL,
		DefaultTTL:      cfg.Links.DefaultTTL,
		AnonymousTTL:    cfg.Links.AnonymousTTL,
		BaseURL:         cfg.Server.BaseURL,
		Publisher:       publisher,
		Logger:          logger,
	})
	a.Handler = shortener.NewHandler(shortener.HandlerConfig{
		Service: svc,
		Logger:  logger,
		BaseURL: cfg.Server.BaseURL,
	})

	a.Server = server.New(cfg, logger, a.Handler)

	logger.Info("application initialized",
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
	)

	return a, nil
}

// Start runs the expired-link purger and the HTTP server. It blocks until the
// server stops.
func (a *App) Start(ctx context.Context) error {
	ctx, a.stop = context.WithCancel(ctx)

	if p, ok := a.Store.(shortener.Purger); ok && a.Config.Links.PurgeInterval > 0 {
		a.purgeWG.Add(1)
		go func() {
			defer a.purgeWG.Done()
			shortener.RunPurger(ctx, p, a.Config.Links.PurgeInterval, nil, a.Logger)
		}()
	}

	a.Logger.Info("server starting",
		"port", a.Config.Server.Port,
		"base_url", a.Config.Server.BaseURL,
	)

	if err := a.Server.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown stops background work and releases connections. It is safe to
// call on a partially initialized App.
func (a *App) Shutdown() error {
	a.Logger.Info("shutting down application")

	if a.stop != nil {
		a.stop()
		a.purgeWG.Wait()
	}

	var errs []error
	if a.nats != nil {
		if err := a.nats.Drain(); err != nil {
			errs = append(errs, fmt.Errorf("drain nats: %w", err))
		}
		a.Logger.Info("nats connection drained")
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
		a.Logger.Info("redis connection closed")
	}
	if a.dbPool != nil {
		a.dbPool.Close()
		a.Logger.Info("database connection closed")
	}
	if a.sqlite != nil {
		if err := a.sqlite.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sqlite: %w", err))
		}
		a.Logger.Info("sqlite database closed")
	}

	return errors.Join(errs...)
}

func (a *App) openStore(ctx context.Context) (shortener.Store, error) {
	cfg := a.Config.Database

	switch cfg.Driver {
	case config.DriverPostgres:
		if cfg.AutoMigrate {
			if err := migratePostgres(cfg.URL(), a.Logger); err != nil {
				return nil, err
			}
		}
		pool, err := connectDatabase(ctx, a.Config, a.Logger)
		if err != nil {
			return nil, err
		}
		a.dbPool = pool
		return postgres.New(pool), nil

	case config.DriverSQLite:
		st, err := sqlite.Open(ctx, cfg.SQLiteDSN, sqlite.Options{
			AutoMigrate: cfg.AutoMigrate,
			Logger:      a.Logger,
		})
		if err != nil {
			return nil, err
		}
		a.sqlite = st
		a.Logger.Info("sqlite database opened", "driver", sqlite.DriverName(cfg.SQLiteDSN))
		return st, nil

	case config.DriverMemory:
		a.Logger.Warn("using in-memory link store, links are lost on restart")
		return memory.New(), nil

	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
	}
}

// migratePostgres applies migrations over a short-lived database/sql handle;
// the migrate driver closes it when done.
func migratePostgres(dsn string, logger *slog.Logger) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}

	m, err := migrations.New(db, migrations.Postgres, logger)
	if err != nil {
		_ = db.Close()
		return err
	}
	defer m.Close()

	return m.Up()
}

func (a *App) openCache(ctx context.Context) (shortener.Cache, error) {
	cfg := a.Config.Cache

	switch cfg.Backend {
	case config.CacheNone:
		return nil, nil
	case config.CacheMemory:
		return cache.NewMemory(cache.DefaultCleanupInterval), nil
	case config.CacheLRU:
		return cache.NewLRU(cfg.Capacity)
	case config.CacheRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		a.redis = client
		a.Logger.Info("redis connection established", "addr", opts.Addr)
		return cache.NewRedis(client, cfg.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("unsupported cache backend %q", cfg.Backend)
	}
}

func (a *App) openPublisher() (shortener.ClickPublisher, error) {
	cfg := a.Config.Events
	if cfg.NATSURL == "" {
		return events.Noop{}, nil
	}

	nc, err := events.Connect(cfg.NATSURL, a.Config.App.Name, a.Logger)
	if err != nil {
		return nil, err
	}
	a.nats = nc
	a.Logger.Info("publishing click events", "subject", cfg.Subject)
	return events.NewNATSPublisher(nc, cfg.Subject), nil
}

// loadEnv loads .env file only in non-production environments.
func loadEnv() error {
	env := os.Getenv("APP_ENV")
	if env == "development" || env == "test" {
		if err := godotenv.Load(".env", "../.env"); err != nil {
			log.Println("no .env file found.")
		}
	}
	return nil
}

// setupLogger creates a structured logger based on the log level.
func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	return slog.New(handler)
}

// connectDatabase establishes a connection to the PostgreSQL database.
func connectDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = cfg.Database.MaxConns
	poolConfig.MinConns = cfg.Database.MinConns

	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established")

	return pool, nil
}
