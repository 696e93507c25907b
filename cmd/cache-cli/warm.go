package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Cache the whole tree once and report",
	RunE:  runWarm,
}

func init() {
	warmCmd.Flags().Duration("timeout", 0, "give up after this long (0 waits forever)")
}

func runWarm(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	_, mgr := newSession(cfg)
	defer mgr.Close()

	bar := progressbar.Default(-1, "Caching")
	start := time.Now()
	mgr.StartBackgroundCaching(cfg.RootPath)

	done := make(chan error, 1)
	go func() { done <- mgr.Wait(ctx) }()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	var last int64
	for {
		select {
		case err := <-done:
			st := mgr.GetCacheStats()
			_ = bar.Add64(st.TotalFetched - last)
			_ = bar.Finish()
			fmt.Fprintf(cmd.OutOrStdout(), "\ncached %d files (%d bytes) from %d directories in %s, %d errors\n",
				st.CacheSize, st.CacheBytes, st.VisitedCount, time.Since(start).Round(time.Millisecond), st.Errors)
			return err
		case <-ticker.C:
			fetched := mgr.GetCacheStats().TotalFetched
			_ = bar.Add64(fetched - last)
			last = fetched
		}
	}
}
