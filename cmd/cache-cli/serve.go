package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kanha321/mnnit-dark-web-reborn/internal/cacheapi"
	"github.com/kanha321/mnnit-dark-web-reborn/internal/logging"
	"github.com/kanha321/mnnit-dark-web-reborn/internal/metrics"
	"github.com/kanha321/mnnit-dark-web-reborn/internal/preview"
	"github.com/kanha321/mnnit-dark-web-reborn/pkg/client"
	"github.com/kanha321/mnnit-dark-web-reborn/pkg/prefetch"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Cache in the background and serve the session over HTTP",
	Long: `serve starts caching from the root path and exposes the session on a local
HTTP facade (see /cache/stats). SIGUSR1 marks the session hidden and
SIGUSR2 visible again.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "facade listen address (FACADE_ADDR)")
	serveCmd.Flags().Bool("live", false, "drop cached content on server change events (LIVE_INVALIDATION)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, mgr := newSession(cfg)
	defer mgr.Close()

	prometheus.MustRegister(metrics.NewStatsCollector(mgr.GetCacheStats))

	renderer, err := preview.New("")
	if err != nil {
		return err
	}

	life := mgr.Lifecycle()
	c.OnStatusChange(life.SetOnline)

	httpServer := &http.Server{
		Addr:              cfg.FacadeAddr,
		Handler:           cacheapi.NewServer(mgr, renderer, cfg.RootPath).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logging.Info("facade listening", zap.String("addr", cfg.FacadeAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return life.MonitorConnectivity(gctx, c, cfg.ProbeInterval)
	})

	g.Go(func() error {
		followVisibility(gctx, life)
		return nil
	})

	if cfg.LiveInvalidation {
		sse := client.NewSSEClient(cfg.ServerURL, logging.Named("events"))
		g.Go(func() error {
			cacheapi.FollowEvents(gctx, mgr, sse.Subscribe(gctx), logging.Named("invalidate"))
			return nil
		})
	}

	logging.Info("session starting",
		zap.String("server", cfg.ServerURL), zap.String("root", cfg.RootPath),
		zap.Bool("live", cfg.LiveInvalidation))
	mgr.StartBackgroundCaching(cfg.RootPath)

	err = g.Wait()
	logging.Info("session stopped", zap.Any("stats", mgr.GetCacheStats()))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// followVisibility maps visibility signals onto the lifecycle until ctx is done.
func followVisibility(ctx context.Context, life *prefetch.Lifecycle) {
	sigCh := make(chan os.Signal, 1)
	if !notifyVisibility(sigCh) {
		<-ctx.Done()
		return
	}
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigCh:
			life.SetHidden(isHideSignal(sig))
		}
	}
}
