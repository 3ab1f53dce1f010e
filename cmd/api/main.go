package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"matchcall/internal/audit"
	"matchcall/internal/auth"
	"matchcall/internal/calls"
	"matchcall/internal/config"
	"matchcall/internal/directory"
	"matchcall/internal/httpapi"
	"matchcall/internal/realtime"
	"matchcall/internal/reporting"
	"matchcall/internal/signaling"
	"matchcall/pkg/logger"
	"matchcall/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, "matchcall-api")
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	sessions := calls.NewPostgresRepo(db)
	events := audit.NewService(audit.NewPostgresRepo(db))
	callService := calls.NewService(sessions, events, log)
	profiles := directory.NewCached(directory.NewPostgresDirectory(db), cfg.Profile.CacheSize, cfg.Profile.CacheTTL)

	h := httpapi.Handlers{
		Auth:     authManager,
		Calls:    callService,
		Audit:    events,
		Reports:  reporting.NewService(sessions),
		Profiles: profiles,
	}
	gateway := realtime.NewGateway(signaling.NewRedisTransport(rdb), callService, log)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerPublicRoutes(r, db, rdb)
	registerAuthRoutes(r, h, cfg.IsProduction())
	registerProtectedRoutes(r, auth.RequireAccessToken(authManager), h, gateway)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown; they close with the process.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
