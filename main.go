package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"board-api/accounts"
	"board-api/api"
	"board-api/boards"
	"board-api/realtime"
	"board-api/storage"
)

type backend interface {
	boards.Store
	accounts.UserStore
}

func main() {
	cfg := loadConfig()
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	cfg.validate()
	logger := log.StandardLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store backend
	switch cfg.Store {
	case storeMongo:
		m, err := storage.NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			log.Fatalf("mongo: %v", err)
		}
		defer func() {
			if err := m.Close(context.Background()); err != nil {
				log.WithError(err).Warn("mongo close")
			}
		}()
		store = m
	default:
		t, err := storage.NewTables(cfg.ConnStr, cfg.BoardsTable, cfg.UsersTable)
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		store = t
	}

	rc := redis.NewClient(redisOptions(cfg.RedisConn))
	defer rc.Close()

	opts := []boards.Option{}
	if cfg.EventsQueue != "" && cfg.ConnStr != "" {
		feed, err := storage.NewEventFeed(cfg.ConnStr, cfg.EventsQueue)
		if err != nil {
			log.Fatalf("event feed: %v", err)
		}
		opts = append(opts, boards.WithEvents(feed))
	}
	svc := boards.New(storage.NewCache(store, rc, cfg.BoardCacheTTL), logger, opts...)

	hub := realtime.NewHub(logger)
	hub.SetAuthorizer(svc)
	relay := realtime.NewRelay(rc, cfg.UpdatesChannel, logger)
	hub.SetPublisher(relay)
	svc.SetNotifier(hub)
	svc.SetPresence(hub)
	go relay.Run(ctx, hub.Deliver)

	var tokens *accounts.TokenIssuer
	if cfg.LocalSecret != "" {
		tokens = accounts.NewTokenIssuer([]byte(cfg.LocalSecret), cfg.TokenTTL, cfg.LocalIssuer, "")
	} else {
		log.Warn("LOCAL_AUTH_SHARED_SECRET not set; login will not issue tokens")
		tokens = accounts.NewTokenIssuer(nil, cfg.TokenTTL, cfg.LocalIssuer, "")
	}

	var jwks *keyfunc.JWKS
	issuer := ""
	if cfg.Auth0Domain != "" {
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Auth0Domain)
		var err error
		jwks, err = keyfunc.Get(jwksURL, keyfunc.Options{RefreshInterval: time.Hour})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		defer jwks.EndBackground()
		issuer = "https://" + cfg.Auth0Domain + "/"
	}
	auth := api.NewAuth(jwks, cfg.Auth0Audience, issuer, []byte(cfg.LocalSecret), cfg.LocalIssuer, 0)

	e := echo.New()
	e.HideBanner = true
	corsOrigins := cfg.AllowedOrigins
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     corsOrigins,
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Idempotency-Key"},
		AllowCredentials: len(cfg.AllowedOrigins) > 0,
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(echoprometheus.NewMiddleware("board_api"))
	e.Use(api.GzipRequestMiddleware())
	e.GET("/metrics", echoprometheus.NewHandler())

	api.Register(e, api.Deps{
		Boards:         svc,
		Accounts:       accounts.NewService(store, logger),
		Tokens:         tokens,
		Auth:           auth,
		Deduper:        api.NewRedisDeduper(rc, cfg.DeduperTTL),
		Sockets:        hub,
		Logger:         logger,
		SecureCookie:   cfg.SecureCookie,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	go func() {
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
}
