package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"workhub/access"
	"workhub/audit"
	"workhub/config"
	"workhub/database"
	"workhub/handlers"
	"workhub/identity"
	"workhub/logger"
	"workhub/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.New("workhub", "development").Fatal("invalid configuration", "error", err)
	}

	log := logger.New("workhub", cfg.Env)
	defer log.Sync()

	// Initialize database
	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseURL, !cfg.IsProduction())
	if err != nil {
		log.Fatal("failed to open database", "error", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("failed to migrate database", "error", err)
	}
	if err := database.SeedAdmin(db, cfg.SeedAdminPassword, log); err != nil {
		log.Fatal("failed to seed admin user", "error", err)
	}

	tokens := identity.NewTokens(cfg.JWTSecret, cfg.JWTExpiration)
	deps := handlers.Deps{
		Config:   cfg,
		DB:       db,
		Resolver: access.NewResolver(db),
		Members:  access.NewMembers(db),
		Audit:    audit.NewLog(db, cfg.AuditFailureMode, log),
		Identity: identity.NewService(db, cfg, identity.LogMailer{Log: log}, log),
		Tokens:   tokens,
		Log:      log,
	}
	router := handlers.NewRouter(deps, middleware.NewGuard(tokens, db, log), log)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("server starting", "port", cfg.ServerPort, "audit_mode", cfg.AuditFailureMode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	log.Info("server stopped")
}
