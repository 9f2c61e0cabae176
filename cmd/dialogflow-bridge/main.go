package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	dfcxBridge "github.com/dfcx-bridge/go-bridge"
	"github.com/dfcx-bridge/go-bridge/auth"
	"github.com/dfcx-bridge/go-bridge/logging"
	"github.com/dfcx-bridge/go-bridge/server"
)

func main() {

	configPath := flag.String("config", "", "path to an ini configuration file")
	flag.Parse()

	sdkClient, err := dfcxBridge.CreateClient(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := sdkClient.Config

	logger := logging.CreateLogger(cfg.LogLevel, cfg.AppName)
	logger.Info("starting",
		"version", cfg.AppVersion,
		"configFile", cfg.LoadedFile(),
		"listenAddress", cfg.ListenAddress)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !auth.InitDefaultCredentials(ctx) && cfg.Credentials == "" {
		logger.Warn("no default credentials; every call must set " + auth.CredentialsEnvVar)
	}

	mediaHandler := server.NewMediaHandler(sdkClient)

	var metricsHandler http.Handler
	var metricsServer *http.Server
	if cfg.EnableMetrics {
		if cfg.MetricsAddress == "" || cfg.MetricsAddress == cfg.ListenAddress {
			metricsHandler = promhttp.Handler()
		} else {
			metricsServer = &http.Server{
				Addr:              cfg.MetricsAddress,
				Handler:           server.NewServeMux(http.NotFoundHandler(), promhttp.Handler()),
				ReadHeaderTimeout: 10 * time.Second,
			}
		}
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.NewServeMux(mediaHandler, metricsHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErrors := make(chan error, 2)
	go func() {
		serveErrors <- httpServer.ListenAndServe()
	}()
	if metricsServer != nil {
		go func() {
			logger.Info("serving metrics", "metricsAddress", metricsServer.Addr)
			serveErrors <- metricsServer.ListenAndServe()
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err = <-serveErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err = httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("error stopping server", "error", err)
	}
	if metricsServer != nil {
		if err = metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("error stopping metrics server", "error", err)
		}
	}

	logger.Info("stopped")
}
