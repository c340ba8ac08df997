package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/hirewise/qa-backoffice/api/internal/agent"
	"github.com/hirewise/qa-backoffice/api/internal/config"
	"github.com/hirewise/qa-backoffice/api/internal/db"
	"github.com/hirewise/qa-backoffice/api/internal/handlers"
	"github.com/hirewise/qa-backoffice/api/internal/jobs"
	"github.com/hirewise/qa-backoffice/api/internal/judge"
	"github.com/hirewise/qa-backoffice/api/internal/logging"
	"github.com/hirewise/qa-backoffice/api/internal/middleware"
	"github.com/hirewise/qa-backoffice/api/internal/runner"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	logger.Info("starting qa-backoffice api", map[string]interface{}{
		"port":         cfg.Server.Port,
		"environments": len(cfg.Environments),
	})

	if len(cfg.Environments) == 0 {
		logger.Warn("no agent environments configured, runs cannot be started", nil)
	}

	database, err := sql.Open("pgx", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to open database", err, nil)
		os.Exit(1)
	}
	defer database.Close()

	database.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	database.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	database.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := database.PingContext(ctx); err != nil {
		cancel()
		logger.Error("failed to ping database", err, nil)
		os.Exit(1)
	}
	cancel()

	if err := db.EnsureSchema(context.Background(), database); err != nil {
		logger.Error("failed to ensure schema", err, nil)
		os.Exit(1)
	}

	queries := db.NewQueries(database)
	registry := jobs.NewRegistry()

	agents := make(map[string]runner.AgentCaller, len(cfg.Environments))
	environments := make([]string, 0, len(cfg.Environments))
	for name, env := range cfg.Environments {
		agents[name] = agent.NewClient(env.AgentEndpoint, env.AgentAPIKey)
		environments = append(environments, name)
	}

	var judgeClient runner.JudgeCaller
	if cfg.Judge.APIKey != "" {
		judgeClient = judge.NewClient(cfg.Judge.APIKey, cfg.Judge.BaseURL, cfg.Judge.Model, cfg.Judge.MaxAttempts)
	} else {
		logger.Warn("no judge API key configured, LLM evaluation will be skipped", nil)
	}

	executor := runner.NewExecutor(queries, agents, logger)
	orchestrator := runner.NewOrchestrator(queries, judgeClient, logger)

	handler := handlers.NewHandler(queries, registry, executor, orchestrator, environments, logger)

	router := mux.NewRouter()
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	handler.RegisterRoutes(router, middleware.TokenMiddleware(cfg.Auth.Token))

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("listening", map[string]interface{}{"addr": server.Addr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", err, nil)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down", nil)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", err, nil)
	}

	logger.Info("stopped", nil)
}
