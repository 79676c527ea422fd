package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"careerhub/internal/app"
	"careerhub/internal/config"
	pkgconfig "careerhub/pkg/config"
	"careerhub/pkg/logger"
	"careerhub/pkg/otel"
)

func main() {
	configDir := pkgconfig.GetEnv("CONFIG_DIR", "config")
	// secrets.env 中的网关密钥作为环境变量兜底，已有的环境变量优先
	_ = godotenv.Load(filepath.Join(configDir, "secrets.env"))

	cfg, err := config.Load(configDir)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl := logger.New(cfg.Log.Mode, cfg.Log.Level)
	defer zl.Sync()

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	shutdownOTel, err := otel.Init(cfg.OTel, zl)
	if err != nil {
		zl.Warn("OpenTelemetry init failed, tracing disabled", zap.Error(err))
		shutdownOTel = func() {}
	}
	defer shutdownOTel()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zl.Info("Starting careerhub api",
		zap.String("env", pkgconfig.GetConfigEnv()),
		zap.String("storage", cfg.Storage.Driver),
		zap.Bool("mq_enabled", cfg.MQ.Enabled),
		zap.Bool("redis_enabled", cfg.Redis.Enabled),
		zap.Bool("fake_payments", cfg.Payments.Fake),
	)

	a, err := app.New(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("Failed to initialize", zap.Error(err))
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		zl.Error("Server exited with error", zap.Error(err))
		return
	}
	zl.Info("Server stopped")
}
