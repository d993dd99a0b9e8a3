package commands

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/market-sync/internal/database"
	"github.com/spf13/cobra"
)

const migrationsTable = "schema_migrations"

var (
	migrationPath string
	dryRun        bool
	rollback      bool
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration management",
	Long: `Manage the portfolio database schema.

Examples:
  market-sync migrate up                       # Run all pending migrations
  market-sync migrate down --rollback          # Rollback last migration
  market-sync migrate status                   # Show migration status
  market-sync migrate create add_stock_sector  # Create new migration file`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Run pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrations(cmd.Context(), func(m *migrator, migrations []Migration) error {
			return m.apply(cmd.Context(), migrations)
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Rollback the last applied migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrations(cmd.Context(), func(m *migrator, migrations []Migration) error {
			return m.rollback(cmd.Context(), migrations)
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrations(cmd.Context(), func(m *migrator, migrations []Migration) error {
			printMigrationStatus(m.out, migrations)
			return nil
		})
	},
}

var migrateCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a new migration file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := createMigration(migrationPath, args[0], time.Now())
		if err != nil {
			return err
		}
		fmt.Printf("Created migration file: %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
	migrateCmd.AddCommand(migrateCreateCmd)

	migrateCmd.PersistentFlags().StringVarP(&migrationPath, "path", "p", "./migrations", "Path to migration files")
	migrateCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Show what would be executed without running")

	migrateDownCmd.Flags().BoolVar(&rollback, "rollback", false, "Confirm rollback operation")
}

// Migration is one versioned schema change
type Migration struct {
	Version   string
	Name      string
	UpSQL     string
	DownSQL   string
	Applied   bool
	AppliedAt *time.Time
}

type migrator struct {
	db      *database.MySQLClient
	out     io.Writer
	dryRun  bool
	confirm bool
}

// withMigrations connects, loads migration files and marks applied ones
func withMigrations(ctx context.Context, fn func(*migrator, []Migration) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	mysqlClient, err := connectStore()
	if err != nil {
		return err
	}
	defer mysqlClient.Close()

	m := &migrator{db: mysqlClient, out: os.Stdout, dryRun: dryRun, confirm: rollback}

	migrations, err := m.load(ctx, migrationPath)
	if err != nil {
		return err
	}

	return fn(m, migrations)
}

func (m *migrator) load(ctx context.Context, dir string) ([]Migration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	migrations, err := loadMigrations(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}

	applied, err := m.applied(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for i := range migrations {
		if appliedAt, ok := applied[migrations[i].Version]; ok {
			migrations[i].Applied = true
			migrations[i].AppliedAt = appliedAt
		}
	}

	return migrations, nil
}

func (m *migrator) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+migrationsTable+` (
			version VARCHAR(14) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		) ENGINE=InnoDB`)
	return err
}

func (m *migrator) applied(ctx context.Context) (map[string]*time.Time, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT version, applied_at FROM "+migrationsTable+" ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]*time.Time)
	for rows.Next() {
		var version string
		var appliedAt time.Time
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, err
		}
		applied[version] = &appliedAt
	}

	return applied, rows.Err()
}

func (m *migrator) apply(ctx context.Context, migrations []Migration) error {
	pending := 0
	for _, migration := range migrations {
		if !migration.Applied {
			pending++
		}
	}

	if pending == 0 {
		fmt.Fprintln(m.out, "No pending migrations")
		return nil
	}

	fmt.Fprintf(m.out, "Found %d pending migration(s)\n\n", pending)

	for _, migration := range migrations {
		if migration.Applied {
			continue
		}

		fmt.Fprintf(m.out, "Applying migration: %s - %s\n", migration.Version, migration.Name)

		if migration.UpSQL == "" {
			return fmt.Errorf("migration %s has no Up statements", migration.Version)
		}

		if m.dryRun {
			fmt.Fprintf(m.out, "  [DRY RUN] Would execute:\n%s\n\n", migration.UpSQL)
			continue
		}

		err := m.db.ExecTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, migration.UpSQL); err != nil {
				return fmt.Errorf("failed to execute migration %s: %w", migration.Version, err)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO "+migrationsTable+" (version, name, applied_at) VALUES (?, ?, ?)",
				migration.Version, migration.Name, time.Now().UTC(),
			); err != nil {
				return fmt.Errorf("failed to record migration %s: %w", migration.Version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(m.out, "  Applied successfully\n\n")
	}

	return nil
}

func (m *migrator) rollback(ctx context.Context, migrations []Migration) error {
	var last *Migration
	for i := len(migrations) - 1; i >= 0; i-- {
		if migrations[i].Applied {
			last = &migrations[i]
			break
		}
	}

	if last == nil {
		fmt.Fprintln(m.out, "No migrations to rollback")
		return nil
	}

	fmt.Fprintf(m.out, "Rolling back migration: %s - %s\n", last.Version, last.Name)

	if m.dryRun {
		fmt.Fprintf(m.out, "  [DRY RUN] Would execute:\n%s\n", last.DownSQL)
		return nil
	}

	if !m.confirm {
		return fmt.Errorf("rollback requires the --rollback flag for confirmation")
	}

	err := m.db.ExecTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, last.DownSQL); err != nil {
			return fmt.Errorf("failed to rollback migration %s: %w", last.Version, err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+migrationsTable+" WHERE version = ?", last.Version); err != nil {
			return fmt.Errorf("failed to remove migration record %s: %w", last.Version, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(m.out, "  Rolled back successfully")
	return nil
}

func printMigrationStatus(w io.Writer, migrations []Migration) {
	fmt.Fprintf(w, "%-16s %-40s %-8s %s\n", "Version", "Name", "Status", "Applied At")
	fmt.Fprintln(w, strings.Repeat("-", 90))

	for _, migration := range migrations {
		status := "pending"
		appliedAt := "-"
		if migration.Applied {
			status = "applied"
			if migration.AppliedAt != nil {
				appliedAt = migration.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-16s %-40s %-8s %s\n", migration.Version, migration.Name, status, appliedAt)
	}
}

func createMigration(dir, name string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create migrations directory: %w", err)
	}

	cleanName := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", now.Format("20060102150405"), cleanName))

	template := fmt.Sprintf(`-- Migration: %s
-- Created: %s

-- +migrate Up


-- +migrate Down

`, name, now.Format("2006-01-02 15:04:05"))

	if err := os.WriteFile(path, []byte(template), 0644); err != nil {
		return "", fmt.Errorf("failed to create migration file: %w", err)
	}

	return path, nil
}

func loadMigrations(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Migration{}, nil
		}
		return nil, err
	}

	migrations := make([]Migration, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}

		migration, err := parseMigration(entry.Name(), string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse migration %s: %w", entry.Name(), err)
		}
		migrations = append(migrations, migration)
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// parseMigration splits a migration file into its Up and Down sections.
// The file name is <version>_<name>.sql.
func parseMigration(filename, content string) (Migration, error) {
	parts := strings.SplitN(filename, "_", 2)
	if len(parts) != 2 || parts[0] == "" {
		return Migration{}, fmt.Errorf("invalid migration filename format: %s", filename)
	}

	var upSQL, downSQL strings.Builder
	var section string

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, "-- +migrate Up"):
			section = "up"
			continue
		case strings.HasPrefix(trimmed, "-- +migrate Down"):
			section = "down"
			continue
		case strings.HasPrefix(trimmed, "--") || trimmed == "":
			continue
		}

		switch section {
		case "up":
			upSQL.WriteString(line + "\n")
		case "down":
			downSQL.WriteString(line + "\n")
		}
	}

	return Migration{
		Version: parts[0],
		Name:    strings.TrimSuffix(parts[1], ".sql"),
		UpSQL:   strings.TrimSpace(upSQL.String()),
		DownSQL: strings.TrimSpace(downSQL.String()),
	}, nil
}
