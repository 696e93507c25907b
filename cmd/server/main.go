// Command server serves a directory tree, from disk or an S3 bucket, over
// the read-only file API.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kanha321/mnnit-dark-web-reborn/internal/api"
	"github.com/kanha321/mnnit-dark-web-reborn/internal/config"
	"github.com/kanha321/mnnit-dark-web-reborn/internal/events"
	"github.com/kanha321/mnnit-dark-web-reborn/internal/logging"
	"github.com/kanha321/mnnit-dark-web-reborn/internal/metrics"
	"github.com/kanha321/mnnit-dark-web-reborn/internal/storage"
	"github.com/kanha321/mnnit-dark-web-reborn/internal/storage/local"
	s3storage "github.com/kanha321/mnnit-dark-web-reborn/internal/storage/s3"
	"github.com/kanha321/mnnit-dark-web-reborn/internal/watcher"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		panic("configuration error: " + err.Error())
	}

	if err := logging.Init(logging.Config{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: "explorer-server",
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("file server starting",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.String("storage", cfg.StorageBackend))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := newBackend(ctx, cfg)
	if err != nil {
		logging.Fatal("storage init failed", zap.Error(err))
	}
	defer backend.Close()

	broadcaster := events.NewBroadcaster()
	defer broadcaster.Close()

	if cfg.Watch {
		w, err := watcher.New(cfg.LocalStoragePath, broadcaster, logging.Named("watcher"))
		if err != nil {
			logging.Fatal("watcher init failed", zap.Error(err))
		}
		defer w.Close()
		go w.Run(ctx)
		logging.Info("watching for changes", zap.String("root", cfg.LocalStoragePath))
	}

	srv := api.NewServer(storage.WithMetrics(backend), broadcaster)

	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	useTLS := cfg.TLSCertFile != "" && cfg.TLSKeyFile != ""
	if useTLS {
		httpServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")
		cancel()

		// Event streams only end when their subscription closes.
		broadcaster.Close()

		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		httpServer.Shutdown(shutdownCtx)
		metricsServer.Shutdown(shutdownCtx)
	}()

	if useTLS {
		logging.Info("server listening (TLS)", zap.String("addr", cfg.ListenAddr))
		err = httpServer.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
	} else {
		logging.Info("server listening", zap.String("addr", cfg.ListenAddr))
		err = httpServer.ListenAndServe()
	}
	if !errors.Is(err, http.ErrServerClosed) {
		logging.Fatal("server error", zap.Error(err))
	}
	logging.Info("server stopped")
}

func newBackend(ctx context.Context, cfg *config.ServerConfig) (storage.Backend, error) {
	switch cfg.StorageBackend {
	case "s3":
		return s3storage.New(ctx, s3storage.Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
		})
	case "local":
		return local.New(local.Config{
			RootPath:   cfg.LocalStoragePath,
			CreateDirs: true,
		})
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.StorageBackend)
	}
}
