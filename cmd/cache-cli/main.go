// Command cache-cli runs a background caching session against a file
// server: it serves the session over a local HTTP facade, warms the cache
// once, or reports on a running session.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/kanha321/mnnit-dark-web-reborn/internal/config"
	"github.com/kanha321/mnnit-dark-web-reborn/internal/logging"
	"github.com/kanha321/mnnit-dark-web-reborn/internal/metrics"
	"github.com/kanha321/mnnit-dark-web-reborn/pkg/client"
	"github.com/kanha321/mnnit-dark-web-reborn/pkg/prefetch"
	"github.com/kanha321/mnnit-dark-web-reborn/pkg/retry"
)

var rootCmd = &cobra.Command{
	Use:   "cache-cli",
	Short: "Background content cache for the file explorer",
	Long: `cache-cli walks a file server breadth-first and keeps the text content of
every file it finds in memory, pausing while the session is hidden or the
server is unreachable.`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("server", "", "file server URL (SERVER_URL)")
	pf.String("root", "", "directory to start caching from (ROOT_PATH)")
	pf.String("log-level", "", "log level: debug, info, warn, error (LOG_LEVEL)")
	pf.Duration("dir-yield", 0, "pause between directories (DIR_YIELD)")
	pf.Duration("level-delay", 0, "pause between tree levels (LEVEL_DELAY)")
	pf.Int("max-fetches", 0, "concurrent content fetches (MAX_CONCURRENT_FETCHES)")
	pf.Float64("rps", 0, "request rate limit, 0 for none (REQUESTS_PER_SECOND)")

	rootCmd.AddCommand(serveCmd, warmCmd, statsCmd, getCmd)
}

// loadConfig reads the client configuration with command-line overrides.
func loadConfig(cmd *cobra.Command) (*config.ClientConfig, error) {
	flags := cmd.Flags()
	cfg, err := config.LoadClient(map[string]*pflag.Flag{
		"SERVER_URL":             flags.Lookup("server"),
		"ROOT_PATH":              flags.Lookup("root"),
		"LOG_LEVEL":              flags.Lookup("log-level"),
		"DIR_YIELD":              flags.Lookup("dir-yield"),
		"LEVEL_DELAY":            flags.Lookup("level-delay"),
		"MAX_CONCURRENT_FETCHES": flags.Lookup("max-fetches"),
		"REQUESTS_PER_SECOND":    flags.Lookup("rps"),
		"FACADE_ADDR":            flags.Lookup("addr"),
		"LIVE_INVALIDATION":      flags.Lookup("live"),
	})
	if err != nil {
		return nil, err
	}

	if err := logging.Init(logging.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		OutputPath: "stderr",
		Service:    "cache-cli",
	}); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	return cfg, nil
}

// newSession builds the remote client and a freshly initialized session.
func newSession(cfg *config.ClientConfig) (*client.Client, *prefetch.Manager) {
	c := client.New(client.Config{
		BaseURL:           cfg.ServerURL,
		Timeout:           cfg.RequestTimeout,
		RetryConfig:       retry.DefaultConfig(),
		RequestsPerSecond: cfg.RequestsPerSecond,
		Logger:            logging.Named("client"),
	})

	mgr := prefetch.InitCacheManager(c, prefetch.Options{
		StartDelay:           cfg.StartDelay,
		DirYield:             cfg.DirYield,
		LevelDelay:           cfg.LevelDelay,
		ErrorBackoff:         cfg.ErrorBackoff,
		MaxConcurrentFetches: cfg.MaxConcurrentFetches,
		Observer:             metrics.TraversalObserver{},
		Logger:               logging.Named("prefetch"),
	})

	logging.Debug("session created",
		zap.String("server", cfg.ServerURL),
		zap.Int("max_fetches", cfg.MaxConcurrentFetches))
	return c, mgr
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
	logging.Sync()
}
