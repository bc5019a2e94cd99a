package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"epf-data/internal/api"
	"epf-data/internal/config"
	"epf-data/internal/logging"
	"epf-data/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	// Get configuration from environment
	port := os.Getenv("API_PORT")
	if port == "" {
		port = "8080"
	}
	cfg := config.Default()
	if path := os.Getenv("EPF_CONFIG"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(2)
		}
		cfg = loaded
	}
	cfg.Merge(config.Overrides{
		RawDataRoot:          os.Getenv("EPF_RAW_ROOT"),
		PreprocessedDataRoot: os.Getenv("EPF_OUT_ROOT"),
	})
	if lvl := os.Getenv("EPF_LOG_LEVEL"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	production := os.Getenv("API_ENV") == "production"
	logger, err := logging.New(cfg.LogLevel, !production)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync()

	if production {
		gin.SetMode(gin.ReleaseMode)
	}
	var origins []string
	if s := os.Getenv("API_ALLOWED_ORIGINS"); s != "" {
		origins = strings.Split(s, ",")
	}
	router := api.NewRouter(cfg, api.ServerOptions{
		Logger:         logger,
		Metrics:        metrics.New(),
		AllowedOrigins: origins,
	})

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting API server",
			zap.String("addr", srv.Addr),
			zap.String("raw_data_root", cfg.RawDataRoot),
			zap.String("preprocessed_data_root", cfg.PreprocessedDataRoot),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}
