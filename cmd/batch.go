package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	batchDealer      string
	batchDir         string
	batchStrategy    string
	batchConcurrency int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Reconcile every document in a directory",
	Long:  "Runs extract and compare for each .txt document in the directory, bounded by --concurrency. Each document gets its own session; one failing document does not stop the rest.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		paths, err := filepath.Glob(filepath.Join(batchDir, "*.txt"))
		if err != nil {
			return eris.Wrap(err, "list documents")
		}
		if len(paths) == 0 {
			return eris.Errorf("no .txt documents in %s", batchDir)
		}

		var succeeded, failed atomic.Int64

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(batchConcurrency)
		for _, path := range paths {
			g.Go(func() error {
				if err := processDocument(gctx, env, path); err != nil {
					failed.Add(1)
					zap.L().Error("document failed",
						zap.String("path", path),
						zap.Error(err),
					)
					// Per-document failures are tallied, not propagated.
					return nil
				}
				succeeded.Add(1)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		zap.L().Info("batch finished",
			zap.String("dealer_id", batchDealer),
			zap.Int("documents", len(paths)),
			zap.Int64("succeeded", succeeded.Load()),
			zap.Int64("failed", failed.Load()),
		)
		if succeeded.Load() == 0 {
			return eris.New("all documents failed")
		}
		return nil
	},
}

func processDocument(ctx context.Context, e *env, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrap(err, "read document")
	}
	_, err = reconcile(ctx, e, batchDealer, filepath.Base(path), string(content), batchStrategy)
	return err
}

func init() {
	batchCmd.Flags().StringVar(&batchDealer, "dealer", "", "dealer ID (required)")
	batchCmd.Flags().StringVar(&batchDir, "dir", "", "directory of .txt documents (required)")
	batchCmd.Flags().StringVar(&batchStrategy, "strategy", "", "provider strategy (default from config)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 2, "max documents processed in parallel")
	_ = batchCmd.MarkFlagRequired("dealer")
	_ = batchCmd.MarkFlagRequired("dir")
	rootCmd.AddCommand(batchCmd)
}
