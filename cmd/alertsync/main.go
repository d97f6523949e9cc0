package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/commodity-alerts/internal/logging"
	"github.com/nhle/commodity-alerts/internal/model"
)

var (
	// Global flags
	cfgPath string
	verbose bool

	cfg    *model.AppConfig
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "alertsync",
	Short: "Commodity notification sync client",
	Long: `alertsync keeps a local cache of commodity notifications and market alerts
in step with the backend.

Use "alertsync sync" to poll continuously, or "alertsync refresh" for a single
cycle. Read commands work offline from the cache.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = model.LoadConfig(cfgPath)
		if err != nil {
			return err
		}

		level := cfg.Log.Level
		if verbose {
			level = "debug"
		}
		logger, err = logging.New(level, cfg.Log.Format)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", model.DefaultConfigPath(), "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	listCmd.Flags().Bool("unread", false, "Only show unread notifications")
	alertsCmd.Flags().Bool("refresh", false, "Fetch alerts from the backend first")

	prefsSetCmd.Flags().StringSlice("commodities", nil, "Commodities to follow (e.g. XAU,WTI)")
	prefsSetCmd.Flags().StringSlice("regions", nil, "Regions to follow")
	prefsSetCmd.Flags().StringSlice("currencies", nil, "ISO currency codes")
	prefsSetCmd.Flags().String("frequency", "", "realtime, daily or weekly")
	prefsSetCmd.Flags().String("threshold", "", "low, medium or high")
	prefsSetCmd.Flags().Bool("push", true, "Enable push delivery")
	prefsSetCmd.Flags().Bool("email", false, "Enable email delivery")

	configInitCmd.Flags().Bool("force", false, "Overwrite an existing config file")

	prefsCmd.AddCommand(prefsGetCmd)
	prefsCmd.AddCommand(prefsSetCmd)
	tokenCmd.AddCommand(tokenSetCmd)
	tokenCmd.AddCommand(tokenDeleteCmd)
	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(alertsCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(prefsCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
