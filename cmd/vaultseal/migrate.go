package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/vaultseal/internal/config"
	"github.com/TheMichaelB/vaultseal/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy every envelope to another store backend",
	Long: `Migrate copies the sealed envelopes from the configured store into a
second store. Nothing is decrypted. Existing names in the target are replaced.`,
	Example: `  vaultseal migrate --to sqlite --to-path secrets.db
  vaultseal migrate --to s3 --to-bucket team-secrets --to-prefix prod`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

var migrateTo config.StoreConfig

func init() {
	rootCmd.AddCommand(migrateCmd)

	f := migrateCmd.Flags()
	f.StringVar(&migrateTo.Backend, "to", "", "Target backend (memory, file, sqlite, s3)")
	f.StringVar(&migrateTo.Dir, "to-dir", "", "Target directory for the file backend")
	f.StringVar(&migrateTo.Path, "to-path", "", "Target database for the sqlite backend")
	f.StringVar(&migrateTo.S3Bucket, "to-bucket", "", "Target bucket for the s3 backend")
	f.StringVar(&migrateTo.S3Prefix, "to-prefix", "", "Target key prefix for the s3 backend")
	f.StringVar(&migrateTo.S3Region, "to-region", "", "Target region for the s3 backend")
	_ = migrateCmd.MarkFlagRequired("to")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	target := cfg.Store
	target.Backend = migrateTo.Backend
	overrideString(&target.Dir, migrateTo.Dir)
	overrideString(&target.Path, migrateTo.Path)
	overrideString(&target.S3Bucket, migrateTo.S3Bucket)
	overrideString(&target.S3Prefix, migrateTo.S3Prefix)
	overrideString(&target.S3Region, migrateTo.S3Region)

	check := *cfg
	check.Store = target
	if err := check.Validate(); err != nil {
		return fmt.Errorf("target store: %w", err)
	}
	if target == cfg.Store {
		return errors.New("target store is the configured store")
	}
	if err := check.EnsureDirectories(); err != nil {
		return err
	}

	src, err := store.New(ctx, cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("open source store: %w", err)
	}
	defer src.Close()

	dst, err := store.New(ctx, target, logger)
	if err != nil {
		return fmt.Errorf("open target store: %w", err)
	}
	defer dst.Close()

	var copied int
	err = withSpinner("Copying envelopes...", func() error {
		var err error
		copied, err = store.Copy(ctx, src, dst)
		return err
	})
	if err != nil {
		return fmt.Errorf("migrate after %d secrets: %w", copied, err)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "copied": copied, "backend": target.Backend})
		return nil
	}
	printSuccess("Copied %d secrets from %s to %s", copied, cfg.Store.Backend, target.Backend)
	return nil
}

func overrideString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
