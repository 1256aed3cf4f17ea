package cmd

import (
	"fmt"
	"net/http"
	"os"

	"github.com/njaaron/articlesearch/internal/update"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	flagRefresh bool
	flagConfig  string
	flagCheck   bool
)

var rootCmd = &cobra.Command{
	Use:   "artsearch",
	Short: "Terminal reader for the NYT Article Search API",
	Long:  "artsearch fetches articles from the NYT Article Search API, caches them locally and shows them in a scrollable list.",
	RunE:  runTUI,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file")
	rootCmd.Flags().BoolVar(&flagRefresh, "refresh", false, "force a refresh on launch")
	versionCmd.Flags().BoolVar(&flagCheck, "check", false, "check for a newer release")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(watchCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "artsearch %s (commit: %s, built: %s)\n", version, commit, date)
		if !flagCheck {
			return nil
		}
		res, err := update.Check(cmd.Context(), http.DefaultClient, version)
		if err != nil {
			return err
		}
		if res.Newer {
			fmt.Fprintf(out, "Update available: %s\n", res.LatestVersion)
		} else {
			fmt.Fprintln(out, "Up to date.")
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}
