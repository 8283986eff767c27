package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Hennedk/leasingborsen-sub012/internal/extractor"
	"github.com/Hennedk/leasingborsen-sub012/internal/model"
	"github.com/Hennedk/leasingborsen-sub012/internal/validator"
)

var (
	extractDealer   string
	extractFile     string
	extractStrategy string
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract vehicle offers from a price-list document",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		content, err := os.ReadFile(extractFile)
		if err != nil {
			return eris.Wrap(err, "read document")
		}

		res := env.Orchestrator.Extract(ctx, extractor.Request{
			Content:      string(content),
			DealerID:     extractDealer,
			DocumentName: extractFile,
			Strategy:     extractStrategy,
		})

		zap.L().Info("extraction finished",
			zap.String("correlation_id", res.Metadata.CorrelationID),
			zap.String("provider", res.Metadata.Provider),
			zap.Int("vehicles", len(res.Vehicles)),
			zap.Int64("cost_cents", res.Metadata.CostCents),
			zap.Duration("duration", res.Metadata.Duration),
		)

		out := struct {
			*model.ExtractionResult
			Validation     []validator.Result `json:"validation,omitempty"`
			MeanConfidence float64            `json:"mean_confidence,omitempty"`
		}{ExtractionResult: res}
		if res.Error == nil {
			out.Validation, out.MeanConfidence = env.Validator.ValidateAll(res.Vehicles)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return eris.Wrap(err, "encode result")
		}
		if res.Error != nil {
			return eris.New(res.Error.UserMessage)
		}
		return nil
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractDealer, "dealer", "", "dealer ID (required)")
	extractCmd.Flags().StringVar(&extractFile, "file", "", "document text file (required)")
	extractCmd.Flags().StringVar(&extractStrategy, "strategy", "", "provider strategy (default from config)")
	_ = extractCmd.MarkFlagRequired("dealer")
	_ = extractCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(extractCmd)
}
