package db

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/banshee-data/rover.autopilot/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DevMode reads migrations from internal/db/migrations on disk instead of
// the embedded copy, so schema edits apply without a rebuild.
var DevMode = false

func getMigrationsFS() (fs.FS, error) {
	if DevMode {
		dir := filepath.Join("internal", "db", "migrations")
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("dev migrations dir: %w", err)
		}
		return os.DirFS(dir), nil
	}
	return fs.Sub(migrationsFS, "migrations")
}

// migrateOp runs op against a fresh migrate instance. ErrNoChange counts as
// success. The instance is not closed: that would close the shared *sql.DB.
func (db *DB) migrateOp(migrations fs.FS, what string, op func(*migrate.Migrate) error) error {
	m, err := db.newMigrate(migrations)
	if err != nil {
		return err
	}
	if err := op(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%s failed: %w", what, err)
	}
	return nil
}

// MigrateUp applies every pending migration.
func (db *DB) MigrateUp(migrations fs.FS) error {
	return db.migrateOp(migrations, "migration up", (*migrate.Migrate).Up)
}

// MigrateDown rolls back one migration.
func (db *DB) MigrateDown(migrations fs.FS) error {
	return db.migrateOp(migrations, "migration down", func(m *migrate.Migrate) error { return m.Steps(-1) })
}

func (db *DB) MigrateTo(migrations fs.FS, version uint) error {
	return db.migrateOp(migrations, fmt.Sprintf("migration to version %d", version),
		func(m *migrate.Migrate) error { return m.Migrate(version) })
}

// MigrateForce records version as applied without running it, to recover
// from a dirty schema.
func (db *DB) MigrateForce(migrations fs.FS, version int) error {
	return db.migrateOp(migrations, fmt.Sprintf("force migration to version %d", version),
		func(m *migrate.Migrate) error { return m.Force(version) })
}

// MigrateVersion returns 0, false, nil on a database with no migrations.
func (db *DB) MigrateVersion(migrations fs.FS) (version uint, dirty bool, err error) {
	m, err := db.newMigrate(migrations)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (db *DB) newMigrate(migrations fs.FS) (*migrate.Migrate, error) {
	source, err := iofs.New(migrations, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to open migrations source: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

// MigrationStatus summarises the schema state of a database.
type MigrationStatus struct {
	CurrentVersion         uint `json:"current_version"`
	LatestVersion          uint `json:"latest_version"`
	Dirty                  bool `json:"dirty"`
	SchemaMigrationsExists bool `json:"schema_migrations_exists"`
}

// Pending reports whether migrations remain to be applied.
func (s MigrationStatus) Pending() bool {
	return s.CurrentVersion < s.LatestVersion
}

// GetMigrationStatus reports the applied and available versions.
func (db *DB) GetMigrationStatus(migrations fs.FS) (MigrationStatus, error) {
	var status MigrationStatus
	err := db.QueryRow(`
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type='table' AND name='schema_migrations'
	`).Scan(&status.SchemaMigrationsExists)
	if err != nil {
		return status, fmt.Errorf("failed to check schema_migrations table: %w", err)
	}
	status.CurrentVersion, status.Dirty, err = db.MigrateVersion(migrations)
	if err != nil {
		return status, fmt.Errorf("failed to get migration version: %w", err)
	}
	status.LatestVersion, err = LatestMigrationVersion(migrations)
	if err != nil {
		return status, err
	}
	return status, nil
}

// LatestMigrationVersion scans migrations for the highest NNNNNN_*.up.sql.
func LatestMigrationVersion(migrations fs.FS) (uint, error) {
	entries, err := fs.Glob(migrations, "*.up.sql")
	if err != nil {
		return 0, fmt.Errorf("failed to read migrations: %w", err)
	}
	var maxVersion uint
	for _, entry := range entries {
		var version uint
		if _, err := fmt.Sscanf(filepath.Base(entry), "%d_", &version); err == nil && version > maxVersion {
			maxVersion = version
		}
	}
	if maxVersion == 0 {
		return 0, errors.New("no migration files found")
	}
	return maxVersion, nil
}

// migrateLogger routes golang-migrate's progress lines to the component log.
type migrateLogger struct{}

var migrateLogf = monitoring.Component("migrate")

func (migrateLogger) Printf(format string, v ...interface{}) { migrateLogf(format, v...) }
func (migrateLogger) Verbose() bool                          { return false }
