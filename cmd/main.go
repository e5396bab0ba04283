package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voicechat/backend/internal/api/handler"
	"voicechat/backend/internal/auth"
	"voicechat/backend/internal/chathub"
	"voicechat/backend/internal/config"
	"voicechat/backend/internal/logging"
	"voicechat/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupDependencies(cfg config.Config) (*gorm.DB, *redis.Client) {
	var db *gorm.DB
	if cfg.DatabaseDSN != "" {
		var err error
		db, err = gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect PostgreSQL")
		}
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			log.Fatal().Err(err).Msg("failed to connect Redis")
		}
	}

	log.Info().Bool("postgres", db != nil).Bool("redis", rdb != nil).Msg("dependencies ready")
	return db, rdb
}

func selectValidator(cfg config.Config, s *storage.Service) auth.Validator {
	if cfg.BypassVerification {
		log.Warn().Msg("phone verification bypassed, every connection is admitted")
		return auth.Bypass
	}

	var v auth.Validator
	switch cfg.SessionBackend {
	case config.SessionBackendJWT:
		if cfg.JWTSecret == "" {
			log.Fatal().Msg("JWT_SECRET is required for SESSION_BACKEND=jwt")
		}
		v = auth.NewJWTValidator(cfg.JWTSecret, cfg.JWTIssuer)
	case config.SessionBackendDB:
		if s.DB == nil {
			log.Fatal().Msg("DATABASE_DSN is required for SESSION_BACKEND=db")
		}
		v = s
	default:
		log.Fatal().Str("backend", cfg.SessionBackend).Msg("unknown SESSION_BACKEND")
	}

	if s.Redis != nil {
		v = storage.NewCachedValidator(s.Redis, v, config.SessionCacheTTL)
	}
	return v
}

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFormat)
	log.Info().Str("addr", cfg.Addr).Msg("starting voicechat gateway")

	db, rdb := setupDependencies(cfg)
	s := storage.NewStorageService(db, rdb)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var reporter chathub.StatsReporter
	if rdb != nil {
		reporter = s
	}
	hub := chathub.NewManagerService(reporter)
	go hub.Run(ctx)

	h := handler.NewHandler(hub, selectValidator(cfg, s), cfg.FrontendURL)
	h.ValidateTimeout = config.SessionValidateTimeout
	if cfg.DevTokens {
		if cfg.JWTSecret == "" {
			log.Fatal().Msg("JWT_SECRET is required for DEV_TOKENS=true")
		}
		h.Issuer = auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTIssuer, config.DevTokenTTL)
		log.Warn().Msg("development token endpoint enabled at /dev/token")
	}

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	server := &http.Server{
		Addr:           cfg.Addr,
		Handler:        handler.NewRouter(h),
		ReadTimeout:    10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()
	log.Info().Str("addr", cfg.Addr).Msg("gateway listening")

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	<-hub.Done()
	if rdb != nil {
		rdb.Close()
	}
}
