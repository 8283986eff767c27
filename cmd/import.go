package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Hennedk/leasingborsen-sub012/internal/inventory"
	"github.com/Hennedk/leasingborsen-sub012/internal/model"
)

var (
	importDealer     string
	importDealerName string
	importFile       string
	importTransInKey bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import listings for a dealer from a JSON or xlsx file",
	Long:  "Registers the dealer and bulk-loads listings with their pricing tiers. The file holds either a JSON array of listings or an xlsx workbook with a header row; IDs are assigned on import.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		listings, err := readListings(importFile, importDealer)
		if err != nil {
			return err
		}

		name := importDealerName
		if name == "" {
			name = importDealer
		}
		if err := env.Store.UpsertDealer(ctx, importDealer, name, importTransInKey); err != nil {
			return eris.Wrap(err, "upsert dealer")
		}

		n, err := env.Store.ImportListings(ctx, listings)
		if err != nil {
			return eris.Wrap(err, "import listings")
		}

		zap.L().Info("listings imported",
			zap.String("dealer_id", importDealer),
			zap.Int64("listings", n),
		)
		return nil
	},
}

func readListings(path, dealerID string) ([]model.Listing, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return inventory.ReadListingsXLSX(path, dealerID)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "read listings file")
	}
	var listings []model.Listing
	if err := json.Unmarshal(data, &listings); err != nil {
		return nil, eris.Wrap(err, "parse listings file")
	}
	for i := range listings {
		listings[i].DealerID = dealerID
	}
	return listings, nil
}

func init() {
	importCmd.Flags().StringVar(&importDealer, "dealer", "", "dealer ID (required)")
	importCmd.Flags().StringVar(&importDealerName, "name", "", "dealer display name (default: dealer ID)")
	importCmd.Flags().StringVar(&importFile, "file", "", "JSON listings file (required)")
	importCmd.Flags().BoolVar(&importTransInKey, "transmission-in-key", false, "treat transmission as part of the matching identity")
	_ = importCmd.MarkFlagRequired("dealer")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
