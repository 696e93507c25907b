package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kanha321/mnnit-dark-web-reborn/internal/cacheapi"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show statistics of a running serve session",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().String("facade", "http://localhost:8081", "facade URL of the serve session")
	statsCmd.Flags().Bool("watch", false, "refresh every second")
}

func runStats(cmd *cobra.Command, args []string) error {
	facade, _ := cmd.Flags().GetString("facade")
	watch, _ := cmd.Flags().GetBool("watch")
	c := cacheapi.NewClient(facade)

	for {
		st, err := c.Stats(cmd.Context())
		if err != nil {
			return err
		}
		printStats(cmd.OutOrStdout(), st)
		if !watch {
			return nil
		}

		select {
		case <-cmd.Context().Done():
			return nil
		case <-time.After(time.Second):
		}
	}
}

func printStats(w io.Writer, st *cacheapi.StatsResponse) {
	state := st.StateName
	if len(st.Reasons) > 0 {
		state += " (" + strings.Join(st.Reasons, ", ") + ")"
	}
	fmt.Fprintf(w, "state:     %s\n", state)
	fmt.Fprintf(w, "cached:    %d files, %d bytes\n", st.CacheSize, st.CacheBytes)
	fmt.Fprintf(w, "hits:      %d  misses: %d  hit rate: %.1f%%\n", st.Hits, st.Misses, st.HitRate*100)
	fmt.Fprintf(w, "fetched:   %d of %d requested, %d errors, %d pending\n",
		st.TotalFetched, st.TotalRequested, st.Errors, st.PendingCount)
	fmt.Fprintf(w, "traversal: %d directories visited, %d queued\n", st.VisitedCount, st.QueueSize)
}
