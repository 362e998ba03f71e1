package db

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"
)

// ErrAborted is returned when the operator declines a force migration.
var ErrAborted = errors.New("aborted")

// RunMigrateCommand handles the 'migrate' subcommand. Output goes to out;
// confirmation prompts read from in.
func RunMigrateCommand(args []string, dbPath string, in io.Reader, out io.Writer) error {
	if len(args) < 1 {
		PrintMigrateHelp(out)
		return errors.New("missing migrate action")
	}
	action := args[0]
	if action == "help" {
		PrintMigrateHelp(out)
		return nil
	}

	migrationsFS, err := getMigrationsFS()
	if err != nil {
		return fmt.Errorf("failed to get migrations filesystem: %w", err)
	}
	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	switch action {
	case "up":
		if err := database.MigrateUp(migrationsFS); err != nil {
			return err
		}
		fmt.Fprintln(out, "All migrations applied")
		return printVersion(database, migrationsFS, out)

	case "down":
		if err := database.MigrateDown(migrationsFS); err != nil {
			return err
		}
		fmt.Fprintln(out, "Rolled back one migration")
		return printVersion(database, migrationsFS, out)

	case "status":
		status, err := database.GetMigrationStatus(migrationsFS)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "=== Migration Status ===")
		fmt.Fprintf(out, "Current version: %d\n", status.CurrentVersion)
		fmt.Fprintf(out, "Latest version: %d\n", status.LatestVersion)
		fmt.Fprintf(out, "Dirty: %v\n", status.Dirty)
		fmt.Fprintf(out, "Schema migrations table exists: %v\n", status.SchemaMigrationsExists)
		if status.Dirty {
			fmt.Fprintln(out, "\nWARNING: a migration failed mid-execution.")
			fmt.Fprintln(out, "Inspect the database, then run: rover-autopilot migrate force <version>")
		}
		return nil

	case "version":
		if len(args) < 2 {
			return errors.New("usage: migrate version <version_number>")
		}
		target, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version number %q", args[1])
		}
		if err := database.MigrateTo(migrationsFS, uint(target)); err != nil {
			return err
		}
		fmt.Fprintf(out, "Migrated to version %d\n", target)
		return nil

	case "force":
		if len(args) < 2 {
			return errors.New("usage: migrate force <version_number>")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version number %q", args[1])
		}
		fmt.Fprintf(out, "WARNING: forcing migration version to %d\n", version)
		fmt.Fprint(out, "Continue? [y/N]: ")
		response, _ := bufio.NewReader(in).ReadString('\n')
		if r := strings.TrimSpace(response); r != "y" && r != "Y" {
			return ErrAborted
		}
		if err := database.MigrateForce(migrationsFS, version); err != nil {
			return err
		}
		fmt.Fprintf(out, "Migration version forced to %d\n", version)
		return nil

	default:
		fmt.Fprintf(out, "Unknown migrate action: %s\n\n", action)
		PrintMigrateHelp(out)
		return fmt.Errorf("unknown migrate action %q", action)
	}
}

func printVersion(database *DB, migrationsFS fs.FS, out io.Writer) error {
	version, dirty, err := database.MigrateVersion(migrationsFS)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Current version: %d (dirty: %v)\n", version, dirty)
	return nil
}

func PrintMigrateHelp(out io.Writer) {
	fmt.Fprintln(out, "Database Migration Commands")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Usage: rover-autopilot migrate <command> [options]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  up              Apply all pending migrations")
	fmt.Fprintln(out, "  down            Rollback one migration")
	fmt.Fprintln(out, "  status          Show current migration status and version")
	fmt.Fprintln(out, "  version <N>     Migrate to specific version N")
	fmt.Fprintln(out, "  force <N>       Force migration version to N (recovery only)")
	fmt.Fprintln(out, "  help            Show this help message")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Options:")
	fmt.Fprintln(out, "  --db-path <path>    Path to database file (default: mission.db)")
}
