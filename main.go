package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"goalchat/config"
	"goalchat/controllers"
	"goalchat/routes"
	"goalchat/services"
)

func main() {
	cfg := config.Load()
	logger, err := config.NewLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := services.NewRepository(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open repository", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	defer func() {
		if err := closeRepo(); err != nil {
			logger.Warn("Failed to close repository", zap.Error(err))
		}
	}()

	gen, err := services.NewGenerator(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create AI generator", zap.String("provider", cfg.AIProvider), zap.Error(err))
	}
	boundary := services.NewAssistantService(gen, services.SystemClock{}, services.NewID, logger)

	router := routes.SetupRouter(controllers.NewChatController(repo, boundary, logger), logger)
	srv := &http.Server{Addr: cfg.Addr(), Handler: router}

	go func() {
		logger.Info("Server starting",
			zap.String("addr", srv.Addr),
			zap.String("provider", cfg.AIProvider),
			zap.String("backend", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
}
