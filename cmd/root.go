package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tagyourcity/backend/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "tagyourcity",
	Short: "Collection backend for the TagYourCity urban tagging tool",
	Long:  "Receives tagging sessions (voxel clusters, ground polygons, tags, comments) from the browser client, stores them relationally, and serves GeoJSON and CSV exports.",
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
