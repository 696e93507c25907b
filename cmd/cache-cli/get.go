package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kanha321/mnnit-dark-web-reborn/internal/preview"
)

var getCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Print the text content of a remote file",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func init() {
	getCmd.Flags().Bool("html", false, "render a highlighted HTML preview instead of raw text")
	getCmd.Flags().String("style", "github", "highlight style for --html")
}

func runGet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	_, mgr := newSession(cfg)
	defer mgr.Close()

	content, err := mgr.GetContentWithCache(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if asHTML, _ := cmd.Flags().GetBool("html"); asHTML {
		style, _ := cmd.Flags().GetString("style")
		r, err := preview.New(style)
		if err != nil {
			return err
		}
		return r.Page(cmd.OutOrStdout(), args[0], content)
	}

	_, err = fmt.Fprint(cmd.OutOrStdout(), content)
	return err
}
