package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/koopa0/system-design/game-relay/internal"
	"github.com/koopa0/system-design/game-relay/pkg/logger"
)

func main() {
	// 解析命令行參數（只覆蓋有明確指定的值）
	var (
		configPath = flag.String("config", "config.yaml", "配置檔路徑")
		port       = flag.Int("port", 0, "服務器端口（覆蓋配置與 PORT）")
		logLevel   = flag.String("log-level", "", "日誌級別 (debug, info, warn, error)")
		logFormat  = flag.String("log-format", "", "日誌格式 (text, json)")
	)
	flag.Parse()

	cfg, err := internal.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Server.Port = *port
		case "log-level":
			cfg.Log.Level = *logLevel
		case "log-format":
			cfg.Log.Format = *logFormat
		}
	})

	log := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(cfg *internal.Config, log *slog.Logger) error {
	registry := internal.NewRegistry(cfg.Relay.Capacity, nil, log)
	router := internal.NewRouter(registry, nil, log)
	gateway := internal.NewGateway(router, cfg, log)
	handler := internal.NewHandler(router, gateway, log)

	monitor := internal.NewLivenessMonitor(router, cfg.Relay.ProbeInterval, log)
	reaper := internal.NewRoomReaper(router, cfg.Relay.ReapInterval, cfg.Relay.RoomTTL, nil, log)

	// 監聽失敗是唯一的致命錯誤
	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr(), err)
	}

	srv := &http.Server{
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("relay server listening",
			"addr", ln.Addr().String(),
			"capacity", cfg.Relay.Capacity,
			"room_ttl", cfg.Relay.RoomTTL)
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error { return monitor.Run(gctx) })
	g.Go(func() error { return reaper.Run(gctx) })

	// 優雅關閉：通知所有連接 → 關閉通道 → 關閉 HTTP 服務器
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, closing connections")

		router.Shutdown()
		if !gateway.Wait(cfg.Server.ShutdownTimeout) {
			log.Warn("timed out waiting for connections to close")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http server shutdown failed", "error", err)
			return srv.Close()
		}
		return nil
	})

	return g.Wait()
}
