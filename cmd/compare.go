package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Hennedk/leasingborsen-sub012/internal/report"
)

var (
	compareDealer   string
	compareFile     string
	compareStrategy string
	compareReport   string
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Extract a document and reconcile it against the dealer's listings",
	Long:  "Runs extraction, diffs the result against current inventory, and persists the proposed change set as a pending session for review.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		content, err := os.ReadFile(compareFile)
		if err != nil {
			return eris.Wrap(err, "read document")
		}

		out, err := reconcile(ctx, env, compareDealer, compareFile, string(content), compareStrategy)
		if err != nil {
			if out != nil && out.Extraction != nil && out.Extraction.Error != nil {
				return eris.New(out.Extraction.Error.UserMessage)
			}
			return err
		}

		if compareReport != "" {
			changes, err := env.Store.ChangesBySession(ctx, out.Session.ID)
			if err != nil {
				return eris.Wrap(err, "load changes")
			}
			if err := report.WriteSession(compareReport, out.Session, changes); err != nil {
				return err
			}
			zap.L().Info("review workbook written", zap.String("path", compareReport))
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	compareCmd.Flags().StringVar(&compareDealer, "dealer", "", "dealer ID (required)")
	compareCmd.Flags().StringVar(&compareFile, "file", "", "document text file (required)")
	compareCmd.Flags().StringVar(&compareStrategy, "strategy", "", "provider strategy (default from config)")
	compareCmd.Flags().StringVar(&compareReport, "report", "", "write an xlsx review workbook to this path")
	_ = compareCmd.MarkFlagRequired("dealer")
	_ = compareCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(compareCmd)
}
