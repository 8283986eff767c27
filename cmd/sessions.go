package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Hennedk/leasingborsen-sub012/internal/report"
)

var (
	sessionsDealer string
	sessionsLimit  int
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List reconciliation sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		sessions, err := env.Store.ListSessions(ctx, sessionsDealer, sessionsLimit)
		if err != nil {
			return eris.Wrap(err, "list sessions")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sessions)
	},
}

var sessionsChangesCmd = &cobra.Command{
	Use:   "changes <session-id>",
	Short: "Show a session's change records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		changes, err := env.Store.ChangesBySession(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "load changes")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(changes)
	},
}

var sessionsCancelCmd = &cobra.Command{
	Use:   "cancel <session-id>",
	Short: "Discard a pending session, marking its change records skipped",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.CancelSession(ctx, args[0]); err != nil {
			return eris.Wrap(err, "cancel session")
		}

		session, err := env.Store.GetSession(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "load session")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(session)
	},
}

var sessionsReportOut string

var sessionsReportCmd = &cobra.Command{
	Use:   "report <session-id>",
	Short: "Export a session's change set as an xlsx review workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		session, err := env.Store.GetSession(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "load session")
		}
		changes, err := env.Store.ChangesBySession(ctx, session.ID)
		if err != nil {
			return eris.Wrap(err, "load changes")
		}

		return report.WriteSession(sessionsReportOut, session, changes)
	},
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsDealer, "dealer", "", "filter by dealer ID")
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "max sessions to list")
	sessionsReportCmd.Flags().StringVar(&sessionsReportOut, "out", "session.xlsx", "output workbook path")
	sessionsCmd.AddCommand(sessionsChangesCmd)
	sessionsCmd.AddCommand(sessionsCancelCmd)
	sessionsCmd.AddCommand(sessionsReportCmd)
	rootCmd.AddCommand(sessionsCmd)
}
