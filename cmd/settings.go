package cmd

import (
	"fmt"

	"github.com/njaaron/articlesearch/internal/config"
	"github.com/njaaron/articlesearch/internal/prefs"
	"github.com/spf13/cobra"
)

var settingsPath = config.SettingsPath

var settingsCmd = &cobra.Command{
	Use:   "settings [cache on|off]",
	Short: "Show or change user preferences",
	Long: `Show the current preferences, or change one.

  artsearch settings            print preferences
  artsearch settings cache off  stop persisting fetched articles`,
	Args: cobra.MatchAll(cobra.RangeArgs(0, 2), func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return fmt.Errorf("missing value for %q", args[0])
		}
		return nil
	}),
	RunE: func(cmd *cobra.Command, args []string) error {
		gate, err := prefs.Load(settingsPath())
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}

		if len(args) == 2 {
			if args[0] != "cache" {
				return fmt.Errorf("unknown setting %q (valid: cache)", args[0])
			}
			enabled, err := parseToggle(args[1])
			if err != nil {
				return err
			}
			if err := gate.Set(enabled); err != nil {
				return fmt.Errorf("saving settings: %w", err)
			}
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "# %s\n", gate.Path())
		fmt.Fprintf(out, "cache_enabled: %t\n", gate.CacheEnabled())
		return nil
	},
}

func parseToggle(s string) (bool, error) {
	switch s {
	case "on", "true", "yes", "1", "enable", "enabled":
		return true, nil
	case "off", "false", "no", "0", "disable", "disabled":
		return false, nil
	}
	return false, fmt.Errorf("invalid value %q (use on or off)", s)
}
