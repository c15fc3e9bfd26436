package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"breakdown-api/api"
	"breakdown-api/completion"
	"breakdown-api/domain"
	"breakdown-api/storage"
	"breakdown-api/web"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	logger := newLogger(cfg)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	base, err := openStore(cfg)
	if err != nil {
		logger.Fatalf("storage: %v", err)
	}

	var rc *redis.Client
	var deduper api.Deduper
	if cfg.RedisConn != "" {
		opts, err := redisOptions(cfg.RedisConn)
		if err != nil {
			logger.Fatalf("redis: %v", err)
		}
		rc = redis.NewClient(opts)
		defer rc.Close()
		deduper = api.NewRedisDeduper(rc, cfg.IdempotencyTTL)
	} else {
		logger.Warn("REDIS_CONNECTION_STRING not set; task cache and idempotency keys disabled")
	}
	store := storage.NewCache(base, rc, cfg.TasksCacheTTL)

	completer, err := completion.New(cfg.Completion)
	if err != nil {
		logger.Fatalf("completion: %v", err)
	}

	auth, err := newAuth(cfg)
	if err != nil {
		logger.Fatalf("auth: %v", err)
	}

	var events *api.EventDispatcher
	if cfg.EventsQueue != "" {
		pub, err := storage.NewQueuePublisher(cfg.StorageConn, cfg.EventsQueue)
		if err != nil {
			logger.Fatalf("events queue: %v", err)
		}
		events = api.NewEventDispatcher(pub, logger, cfg.Dispatcher)
	}

	e := echo.New()
	e.HideBanner = true
	e.JSONSerializer = api.SonicSerializer{}
	e.HTTPErrorHandler = api.HTTPErrorHandler(logger)
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderContentEncoding, "Idempotency-Key"},
	}))
	e.Use(middleware.BodyLimit(maxBodyLimit))
	e.Use(echoprometheus.NewMiddleware("breakdown_api"))
	e.Use(api.GzipRequestMiddleware(api.MaxBodySize))
	e.GET("/metrics", echoprometheus.NewHandler())

	api.Register(e, api.Deps{
		Store:   store,
		Creator: domain.NewCreator(api.InstrumentCompleter(completer), store),
		Auth:    auth,
		Deduper: deduper,
		Events:  events,
		Log:     logger,
	})
	web.Register(e)

	go func() {
		logger.WithFields(log.Fields{"port": cfg.Port, "backend": cfg.Backend, "provider": cfg.Completion.Provider}).Info("breakdown api listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
	events.Close()
	if closer, ok := base.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Errorf("close storage: %v", err)
		}
	}
	logger.Info("breakdown api stopped")
}

// maxBodyLimit is api.MaxBodySize in echo's size notation.
const maxBodyLimit = "64K"

func newLogger(cfg config) *log.Logger {
	logger := log.New()
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&log.JSONFormatter{})
	}
	// Package level logging in domain shares the same settings.
	log.SetLevel(logger.GetLevel())
	log.SetFormatter(logger.Formatter)
	return logger
}

func openStore(cfg config) (storage.Backend, error) {
	switch cfg.Backend {
	case backendTables:
		return storage.NewTableStore(cfg.StorageConn, cfg.TasksTable, cfg.SubtasksTable)
	default:
		return storage.OpenSQLite(cfg.DatabasePath)
	}
}

func newAuth(cfg config) (*api.Auth, error) {
	if cfg.TestSecret != "" {
		return api.NewAuth(api.AuthConfig{
			Audience:   cfg.Auth0Audience,
			TestSecret: []byte(cfg.TestSecret),
		})
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Auth0Domain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshInterval:   time.Hour,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			log.Errorf("jwks refresh: %v", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("jwks: %w", err)
	}
	return api.NewAuth(api.AuthConfig{
		JWKS:        jwks,
		Audience:    cfg.Auth0Audience,
		Issuer:      "https://" + cfg.Auth0Domain + "/",
		KeyCacheTTL: cfg.JWKSCacheTTL,
	})
}
