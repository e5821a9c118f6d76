package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/regionstat/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "regionstat",
	Short: "Polygon sampling and aggregation engine",
	Long:  "Samples user-drawn regions on an interior grid, fetches hourly forecast values per point, and aggregates them into one robust, color-classified value per region.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
