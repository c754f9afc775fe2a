package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frankss230/AFE-PLUS.2-sub001/common/logger"
	"github.com/frankss230/AFE-PLUS.2-sub001/internal/config"
	httpapi "github.com/frankss230/AFE-PLUS.2-sub001/internal/http"
	"github.com/frankss230/AFE-PLUS.2-sub001/internal/service"

	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "afe-alarm")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	// 3. 创建服务
	guardian, err := service.NewGuardianService(cfg, log)
	if err != nil {
		log.Fatal("Failed to create guardian service",
			zap.Error(err),
		)
	}
	defer guardian.Stop()

	// 4. HTTP 路由
	router := httpapi.NewRouter(log)
	router.RegisterDeviceRoutes(httpapi.NewDeviceHandler(guardian.Ingest, log))
	router.RegisterCaseRoutes(httpapi.NewCaseHandler(guardian.Cases, log))
	router.RegisterMonitorRoutes(httpapi.NewMonitorHandler(guardian.Monitor, log))
	router.RegisterOpsRoutes(func(req *http.Request) error {
		return guardian.DB().PingContext(req.Context())
	})

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	// 5. 创建上下文（支持优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		if err := guardian.Start(ctx); err != nil {
			errCh <- err
		}
	}()

	// 6. 等待信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received signal, shutting down",
			zap.String("signal", sig.String()),
		)
	case err := <-errCh:
		log.Error("Service error",
			zap.Error(err),
		)
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("Guardian alarm service stopped")
}
