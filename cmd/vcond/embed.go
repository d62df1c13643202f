package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vcond/internal/embeddings"
)

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Compute embeddings for every stored record",
	Long: `Walks the store and (re)computes embeddings for each record's
subject, inline dialog bodies, and analysis bodies. Run it after bulk
imports, after deletes left orphaned work behind, or after switching
embedding models.`,
	RunE: runEmbed,
}

func runEmbed(cmd *cobra.Command, args []string) error {
	d, err := buildDeps()
	if err != nil {
		return err
	}
	defer d.close()

	if d.vectors == nil {
		return fmt.Errorf("vector store is disabled in config")
	}
	if d.embedder == nil {
		return fmt.Errorf("embedding model is unavailable")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ix := embeddings.NewIndexer(d.backend, d.vectors, d.embedder, d.logger)
	res, err := ix.IndexAll(ctx)
	if err != nil {
		return fmt.Errorf("index run failed: %w", err)
	}

	d.logger.Info("index run finished",
		zap.Int("records", res.Records),
		zap.Int("documents", res.Documents),
		zap.Int("errors", res.Errors),
	)
	fmt.Printf("indexed %d records (%d documents, %d errors)\n", res.Records, res.Documents, res.Errors)
	return nil
}
