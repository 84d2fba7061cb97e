package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	trustapi "go.pilab.hu/trustgate/api/echo"
	"go.pilab.hu/trustgate/cache"
	"go.pilab.hu/trustgate/config"
	"go.pilab.hu/trustgate/cookies"
	"go.pilab.hu/trustgate/internal/metrics"
	"go.pilab.hu/trustgate/middleware"
	"go.pilab.hu/trustgate/mongodb"
	"go.pilab.hu/trustgate/provider"
	"go.pilab.hu/trustgate/services"
	"go.pilab.hu/trustgate/signalbus"
	"go.pilab.hu/trustgate/tracing"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Logger setup.
	level, parseErr := zerolog.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.LogPretty {
		zlog.Logger = zlog.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	zlog.Info().
		Str("http_port", cfg.HTTPPort).
		Str("mongo_db", cfg.MongoDBName).
		Str("log_level", level.String()).
		Msg("Starting trustgate server")

	tp, err := tracing.InitTracerProvider(cfg.OtelServiceName)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize TracerProvider")
	}

	ctx := context.Background()
	if err := mongodb.InitMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize MongoDB connection")
	}
	db := mongodb.GetDB()

	deviceRepo, err := mongodb.NewDeviceRepositoryMongo(ctx, db)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize DeviceRepository")
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	bus := signalbus.NewRedisBus(redisClient, cfg.RedisPrefix)

	metrics.Register(prometheus.DefaultRegisterer)

	idp := provider.NewHTTPProvider(cfg.ProviderBaseURL, cfg.ProviderAPIKey, nil)
	codec := cookies.Codec{Secure: cfg.CookieSecure, Domain: cfg.CookieDomain}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.OAuthClientID,
		ClientSecret: cfg.OAuthClientSecret,
		RedirectURL:  cfg.OAuthRedirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.OAuthAuthURL,
			TokenURL: cfg.OAuthTokenURL,
		},
		Scopes: []string{"openid", "profile", "email"},
	}

	sessionService := services.NewSessionService(idp, codec)
	handoffService := services.NewHandoffService(oauthCfg, idp, codec)
	factorCache := cache.NewFactorCache(cache.DefaultFactorTTL)
	mfaService := services.NewMFAService(idp, factorCache)

	guard := middleware.NewGuard(cfg.ProtectedPrefixes, cfg.LoginPath)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(guard.Middleware())

	api := trustapi.NewTrustAPI(sessionService, handoffService, mfaService, deviceRepo, idp, bus, codec, cfg.LoginPath)
	api.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	go func() {
		if err := e.Start(":" + cfg.HTTPPort); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down trustgate server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	factorCache.Stop()
	if err := tp.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Err(err).Msg("TracerProvider shutdown failed")
	}
	if err := redisClient.Close(); err != nil {
		zlog.Error().Err(err).Msg("Redis client close failed")
	}
	if err := mongodb.Disconnect(shutdownCtx); err != nil {
		zlog.Error().Err(err).Msg("MongoDB disconnect failed")
	}
}
