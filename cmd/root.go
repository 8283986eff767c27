package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Hennedk/leasingborsen-sub012/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "leasing-cli",
	Short: "Lease-offer reconciliation engine",
	Long:  "Extracts vehicle offers from dealer price lists via AI providers under a cost budget, reconciles them against the listing inventory, and applies reviewed change sets.",
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
