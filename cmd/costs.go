package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Hennedk/leasingborsen-sub012/internal/ledger"
	"github.com/Hennedk/leasingborsen-sub012/internal/model"
)

var costsDealer string

// costsReport adds the projection and configured ceilings to the raw summary.
type costsReport struct {
	model.CostSummary
	ProjectedMonthlyCents int64 `json:"projected_monthly_cents"`
	DailyLimitCents       int64 `json:"daily_limit_cents,omitempty"`
	MonthlyLimitCents     int64 `json:"monthly_limit_cents,omitempty"`
}

var costsCmd = &cobra.Command{
	Use:   "costs",
	Short: "Show extraction spend for the current day and month",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := env.Ledger.Summary(ctx, costsDealer)
		if err != nil {
			return eris.Wrap(err, "load cost summary")
		}

		out := costsReport{
			CostSummary:           summary,
			ProjectedMonthlyCents: ledger.ProjectedMonthlyCents(summary.DailyCents),
			DailyLimitCents:       cfg.Budget.DailyLimitCents,
			MonthlyLimitCents:     cfg.Budget.MonthlyLimitCents,
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	costsCmd.Flags().StringVar(&costsDealer, "dealer", "", "restrict to one dealer")
	rootCmd.AddCommand(costsCmd)
}
