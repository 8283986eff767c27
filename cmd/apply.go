package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Hennedk/leasingborsen-sub012/internal/model"
)

var (
	applySession string
	applyApprove []string
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a session's pending change records to the inventory",
	Long:  "Applies a reviewed change set in CREATE, UPDATE, DELETE order. With --approve only the listed change records are applied; the remaining pending records are marked skipped.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Applier.Apply(ctx, applySession, applyApprove)
		if err != nil {
			return eris.Wrap(err, "apply session")
		}

		zap.L().Info("apply finished",
			zap.String("session_id", result.SessionID),
			zap.String("status", string(result.Status)),
			zap.Int("applied", result.Applied),
			zap.Int("failed", result.Failed),
			zap.Int("skipped", result.Skipped),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return eris.Wrap(err, "encode result")
		}
		if result.Status == model.SessionFailed {
			return eris.New("no change records could be applied")
		}
		return nil
	},
}

func init() {
	applyCmd.Flags().StringVar(&applySession, "session", "", "session ID (required)")
	applyCmd.Flags().StringSliceVar(&applyApprove, "approve", nil, "change record IDs to apply (default all pending)")
	_ = applyCmd.MarkFlagRequired("session")
	rootCmd.AddCommand(applyCmd)
}
