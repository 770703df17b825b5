package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/receiptvault/internal/config"
	"github.com/dmitrijs2005/receiptvault/internal/logging"
	"github.com/dmitrijs2005/receiptvault/internal/references"
	"github.com/dmitrijs2005/receiptvault/internal/storage"
	"github.com/dmitrijs2005/receiptvault/internal/storage/local"
	"github.com/dmitrijs2005/receiptvault/internal/storage/s3"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "receiptvault",
		Short:         "Receipt attachment storage maintenance",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.AddCommand(
		newCleanupCommand(),
		newRotateKeysCommand(),
		newMigrateCommand(),
	)
	return cmd
}

func loadConfig() *config.Config {
	return config.Load()
}

func newLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
}

// openBackend selects the object backend from configuration: a remote
// bucket when one is configured, the local media root otherwise.
func openBackend(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	if cfg.UseRemoteBackend() {
		return s3.New(ctx, s3.Config{
			Bucket:             cfg.S3Bucket,
			Region:             cfg.S3Region,
			Endpoint:           cfg.S3Endpoint,
			AccessKey:          cfg.S3AccessKey,
			SecretKey:          cfg.S3SecretKey,
			KMSKeyID:           cfg.S3KMSKeyID,
			EnvelopeEncryption: cfg.S3EnvelopeEncryption,
			ForcePathStyle:     cfg.S3ForcePathStyle,
		})
	}
	return local.New(cfg.MediaRoot, cfg.MediaBaseURL)
}

func openRefStore(cfg *config.Config) (*sql.DB, *references.PostgresStore, error) {
	db, err := references.Open(cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, err
	}
	return db, references.NewPostgresStore(db), nil
}
