package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/cuemby/ember/pkg/config"
	"github.com/cuemby/ember/pkg/storage"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy the scheduler snapshot between storage drivers",
	Long: `Copy the saved scheduler snapshot from one storage driver to another.

Locations are written driver:location, where location is a file path for
bolt and sqlite and a connection URL for redis.

Examples:
  # Move from bolt to sqlite
  ember migrate --from bolt:./data/ember.db --to sqlite:./data/ember.sqlite

  # Check what would be copied
  ember migrate --from bolt:./data/ember.db --to redis:redis://localhost:6379/0 --dry-run`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().String("from", "", "Source driver:location (required)")
	migrateCmd.Flags().String("to", "", "Target driver:location (required)")
	migrateCmd.Flags().String("key", "ember", "Snapshot key in both stores")
	migrateCmd.Flags().Bool("dry-run", false, "Show what would be migrated without making changes")
	migrateCmd.Flags().Bool("overwrite", false, "Replace a snapshot already in the target")
	migrateCmd.Flags().String("backup", "", "Where to back up a file target before overwriting (default: <path>.backup)")
	_ = migrateCmd.MarkFlagRequired("from")
	_ = migrateCmd.MarkFlagRequired("to")

	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	fromSpec, _ := cmd.Flags().GetString("from")
	toSpec, _ := cmd.Flags().GetString("to")
	key, _ := cmd.Flags().GetString("key")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	overwrite, _ := cmd.Flags().GetBool("overwrite")
	backupPath, _ := cmd.Flags().GetString("backup")

	fromCfg, err := parseLocation(fromSpec, key)
	if err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	toCfg, err := parseLocation(toSpec, key)
	if err != nil {
		return fmt.Errorf("--to: %w", err)
	}

	fmt.Println("Ember snapshot migration")
	fmt.Printf("  From: %s\n", fromSpec)
	fmt.Printf("  To: %s\n", toSpec)
	fmt.Printf("  Dry run: %t\n", dryRun)
	fmt.Println()

	if !dryRun && overwrite && toCfg.Path != "" {
		if _, err := os.Stat(toCfg.Path); err == nil {
			if backupPath == "" {
				backupPath = toCfg.Path + ".backup"
			}
			if err := copyFile(toCfg.Path, backupPath); err != nil {
				return fmt.Errorf("failed to create backup: %w", err)
			}
			fmt.Printf("✓ Backup created: %s\n", backupPath)
		}
	}

	ctx := cmd.Context()
	from, err := storage.Open(ctx, fromCfg)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer from.Close()

	to, err := storage.Open(ctx, toCfg)
	if err != nil {
		return fmt.Errorf("failed to open target: %w", err)
	}
	defer to.Close()

	report, err := storage.Migrate(ctx, from, to, storage.MigrateOptions{
		DryRun:    dryRun,
		Overwrite: overwrite,
	})
	if err != nil {
		return err
	}

	fmt.Printf("  Workers: %d\n", report.Workers)
	fmt.Printf("  Queued tasks: %d\n", report.Tasks)
	fmt.Printf("  History records: %d\n", report.History)
	fmt.Println()

	if dryRun {
		fmt.Println("Dry run completed. No changes made.")
		fmt.Println("Run without --dry-run to perform the migration.")
		return nil
	}
	fmt.Println("✓ Migration completed successfully!")
	if report.Overwritten {
		fmt.Println("  The previous target snapshot was replaced.")
	}
	return nil
}

// parseLocation turns driver:location into a storage config
func parseLocation(spec, key string) (config.StorageConfig, error) {
	driver, location, ok := strings.Cut(spec, ":")
	if !ok || location == "" {
		return config.StorageConfig{}, fmt.Errorf("expected driver:location, got %q", spec)
	}

	cfg := config.StorageConfig{Driver: driver, Key: key}
	switch driver {
	case config.DriverBolt, config.DriverSQLite:
		cfg.Path = location
	case config.DriverRedis:
		cfg.URL = location
	default:
		return config.StorageConfig{}, fmt.Errorf("unknown storage driver %q", driver)
	}
	return cfg, nil
}

func copyFile(src, dst string) error {
	input, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, input, 0600)
}
