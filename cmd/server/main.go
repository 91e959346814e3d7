// SMS spool admin gateway
//
// Features:
// - Admin login issuing signed bearer tokens
// - Spool folder listing, search, and file reads
// - Signed public send-sms endpoint writing to the outgoing spool
// - Realtime WebSocket stream of spool directory changes
// - Prometheus metrics & structured logging (zap)
package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/sonpython/sms-api/internal/api"
	"github.com/sonpython/sms-api/internal/auth"
	"github.com/sonpython/sms-api/internal/config"
	"github.com/sonpython/sms-api/internal/logging"
	"github.com/sonpython/sms-api/internal/metrics"
	"github.com/sonpython/sms-api/internal/send"
	"github.com/sonpython/sms-api/internal/spool"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	// Initialize structured logging
	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("SMS gateway starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.String("spool", cfg.BaseDir))

	// Wire services
	authHandler := auth.New(cfg.SecretKey, cfg.AdminKey)
	reader := spool.NewReader(cfg.BaseDir)
	gateway := send.NewGateway(reader, cfg.SecretKey, cfg.ValidateVNPhone)
	srv := api.NewServer(authHandler, reader, gateway, cfg.PollInterval)

	// Start metrics server
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()

	// Start HTTP server
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Handler(),
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")
		httpServer.Close()
		metricsServer.Close()
	}()

	logging.Info("server listening", zap.String("addr", cfg.ListenAddr))
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		logging.Fatal("server error", zap.Error(err))
	}
}
