// ABOUTME: Migration utility that moves a local SQLite sync store onto another database, usually Postgres.
// ABOUTME: Provides dry-run and backup capabilities for safe store migration.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/harperreed/crmsync/db"
)

func main() {
	from := flag.String("from", "", "Path to the source SQLite database (required)")
	toDriver := flag.String("to-driver", "postgres", "Destination driver: postgres or sqlite3")
	to := flag.String("to", "", "Destination DSN or SQLite path (required)")
	dryRun := flag.Bool("dry-run", false, "Show what would happen without making changes")
	backup := flag.Bool("backup", true, "Back up a SQLite destination before writing")
	flag.Parse()

	if *from == "" || *to == "" {
		log.Fatal("Error: -from and -to are required")
	}

	if err := migrate(context.Background(), *from, *toDriver, *to, *dryRun, *backup); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Info("Migration completed successfully")
}

func migrate(ctx context.Context, from, toDriver, to string, dryRun, createBackup bool) error {
	if _, err := os.Stat(from); os.IsNotExist(err) {
		return fmt.Errorf("database file does not exist: %s", from)
	}

	src, err := db.Open(string(db.DialectSQLite), from)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer func() { _ = src.Close() }()

	if dryRun {
		results, err := src.CopyTo(ctx, nil, true)
		if err != nil {
			return err
		}
		log.Info("[DRY RUN] Would copy the following rows:")
		for _, r := range results {
			log.Infof("[DRY RUN] - %s: %d rows", r.Table, r.Source)
		}
		return nil
	}

	if createBackup && toDriver != string(db.DialectPostgres) {
		if err := backupFile(to); err != nil {
			return err
		}
	}

	dst, err := db.Open(toDriver, to)
	if err != nil {
		return fmt.Errorf("failed to open destination: %w", err)
	}
	defer func() { _ = dst.Close() }()

	results, err := src.CopyTo(ctx, dst, false)
	if err != nil {
		return err
	}
	for _, r := range results {
		log.WithFields(log.Fields{
			"table":   r.Table,
			"source":  r.Source,
			"copied":  r.Copied,
			"skipped": r.Source - r.Copied,
		}).Info("table copied")
	}
	return nil
}

func backupFile(path string) error {
	input, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read database: %w", err)
	}

	backupPath := fmt.Sprintf("%s.backup.%s", path, time.Now().Format("20060102-150405"))
	log.Infof("Creating backup: %s", backupPath)
	if err := os.WriteFile(backupPath, input, 0644); err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}
	log.Info("Backup created successfully")
	return nil
}
