package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	sessionapi "github.com/veggydawson/frappe/api/echo"
	redisstore "github.com/veggydawson/frappe/cache/redis"
	"github.com/veggydawson/frappe/config"
	"github.com/veggydawson/frappe/internal/metrics"
	"github.com/veggydawson/frappe/mongodb"
	"github.com/veggydawson/frappe/session"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "frappe-sessions",
		Short: "Session store server: volatile cache over a durable store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Server exited with error")
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	initLogger(cfg)
	log.Info().
		Str("http_port", cfg.HTTPPort).
		Str("mongo_uri", cfg.MongoURI).
		Str("redis_addr", cfg.RedisAddr).
		Str("session_expiry", cfg.SessionExpiry).
		Msg("Starting session store server")

	if err := mongodb.Init(ctx, cfg.MongoURI, cfg.MongoDBName); err != nil {
		return err
	}
	defer mongodb.Disconnect(context.Background())
	db := mongodb.GetDB()

	sessionRepo, err := mongodb.NewSessionRepositoryMongo(ctx, db)
	if err != nil {
		return err
	}
	userRepo, err := mongodb.NewUserRepositoryMongo(ctx, db)
	if err != nil {
		return err
	}

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	store := redisstore.NewStore(redisClient, cfg.CachePrefix)

	if err := store.Ping(ctx); err != nil {
		// degraded but serviceable: resolution falls back to the durable store
		log.Warn().Err(err).Msg("Redis unreachable at startup, running in degraded mode")
	}

	deps := session.Deps{
		Cache:    store,
		Sessions: sessionRepo,
		Users:    userRepo,
		Geo:      session.NewGeoResolver(cfg.GeoIPDBPath),
		Expiry:   cfg.SessionExpiry,
	}

	inv := session.NewInvalidator(store, sessionRepo, userRepo, cfg.SessionExpiry, cfg.AdminUser)
	boot := session.NewBootService(store, &session.StaticBootInfoBuilder{Users: userRepo}, inv, cfg.DisableSessionCache)

	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	// recurring eviction of durable rows past expiry
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.SweepSchedule, func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, serr := inv.SweepExpired(sweepCtx); serr != nil {
			log.Error().Err(serr).Msg("Expired session sweep failed")
		}
	}); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	e := echo.New()
	e.HideBanner = true
	sessionapi.NewSessionAPI(deps, boot, inv).RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	go func() {
		if err := e.Start(":" + cfg.HTTPPort); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func initLogger(cfg *config.ServerConfig) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
