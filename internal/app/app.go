// Package app wires configuration, storage, ingestion, and the HTTP
// surface into one runnable unit.
package app

import (
	"context"
	"fmt"

	"github.com/feverd/feverd/internal/auth"
	"github.com/feverd/feverd/internal/cache"
	"github.com/feverd/feverd/internal/config"
	"github.com/feverd/feverd/internal/database"
	"github.com/feverd/feverd/internal/fever"
	"github.com/feverd/feverd/internal/httpapi"
	"github.com/feverd/feverd/internal/ingest"
	"github.com/feverd/feverd/internal/logging"
	"github.com/feverd/feverd/internal/ratelimit"
)

// App holds all application dependencies
type App struct {
	Config         *config.Config
	Logger         *logging.Logger
	Cache          cache.Cache
	Ingestor       *ingest.Service
	AuthService    *auth.Service
	AuthMiddleware *auth.Middleware
	FeverHandler   *fever.Handler
	HTTPServer     *httpapi.Server

	db           *database.DB
	userStore    *database.UserStore
	feedStore    *database.FeedStore
	groupStore   *database.GroupStore
	itemStore    *database.ItemStore
	faviconStore *database.FaviconStore
	linkStore    *database.LinkStore
}

// New creates and initializes a new App instance
func New(cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}

	app.Logger = logging.New(logging.ParseLevel(cfg.Logging.Level))
	app.Cache = app.initCache()

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	limiter := ratelimit.New(cfg.Ingest.RateLimitDur)
	parser := ingest.NewParser(cfg.Ingest.FetchTimeout)
	app.Ingestor = ingest.NewService(app.feedStore, app.itemStore, app.linkStore, parser, limiter, app.Logger)

	app.AuthService = auth.NewService(app.userStore, cfg.Auth, app.Logger)
	app.AuthMiddleware = auth.NewMiddleware(app.AuthService)

	app.FeverHandler = fever.NewHandler(
		app.userStore,
		app.feedStore,
		app.groupStore,
		app.itemStore,
		app.faviconStore,
		app.linkStore,
		app.Ingestor,
		app.Cache,
		app.Logger,
	)

	adminAPI := httpapi.NewAdminAPI(
		app.AuthService,
		app.AuthMiddleware,
		app.feedStore,
		app.groupStore,
		app.faviconStore,
		app.Ingestor,
		app.Cache,
		app.Logger,
	)
	app.HTTPServer = httpapi.New(app.FeverHandler, adminAPI, app.Logger)

	return app, nil
}

// Run starts the HTTP server and blocks until it stops
func (a *App) Run(ctx context.Context) error {
	a.Logger.Info("Starting HTTP server", logging.WithField("addr", a.Config.Server.HTTPAddr))
	return a.HTTPServer.Start(a.Config.Server.HTTPAddr)
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown(ctx context.Context) error {
	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error("HTTP server shutdown error", logging.WithField("error", err.Error()))
		}
	}

	if closer, ok := a.Cache.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			a.Logger.Error("Cache close error", logging.WithField("error", err.Error()))
		}
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.Logger.Error("Database close error", logging.WithField("error", err.Error()))
		}
	}

	return nil
}

func (a *App) initCache() cache.Cache {
	switch a.Config.Cache.Backend {
	case "redis":
		a.Logger.Info("Using Redis cache backend", logging.WithField("addr", a.Config.Cache.RedisAddr))
		redisCache, err := cache.NewRedis(cache.RedisConfig{
			Addr: a.Config.Cache.RedisAddr,
		}, a.Config.Cache.TTL)
		if err != nil {
			a.Logger.Error("Failed to connect to Redis, falling back to memory cache", logging.WithField("error", err.Error()))
			return cache.NewMemory(a.Config.Cache.TTL)
		}
		return redisCache
	default:
		a.Logger.Info("Using in-memory cache backend")
		return cache.NewMemory(a.Config.Cache.TTL)
	}
}

func (a *App) initDatabase() error {
	db, err := database.New(database.Config{
		Host:     a.Config.Database.Host,
		Port:     a.Config.Database.Port,
		User:     a.Config.Database.User,
		Password: a.Config.Database.Password,
		Database: a.Config.Database.Database,
		SSLMode:  a.Config.Database.SSLMode,
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}

	if err := db.Migrate(context.Background()); err != nil {
		db.Close()
		return fmt.Errorf("run migrations: %w", err)
	}

	a.Logger.Info("Connected to PostgreSQL")

	a.db = db
	a.userStore = database.NewUserStore(db)
	a.feedStore = database.NewFeedStore(db)
	a.groupStore = database.NewGroupStore(db)
	a.itemStore = database.NewItemStore(db)
	a.faviconStore = database.NewFaviconStore(db)
	a.linkStore = database.NewLinkStore(db)

	return nil
}
