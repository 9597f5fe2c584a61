// Package migrate provides versioned schema migrations with pre-apply
// backups, dry-run previews, and backup-based rollback.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/metalagman/tm/internal/db"
	"github.com/metalagman/tm/internal/task"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

// Migrator evolves the task database schema. Apply and Rollback serialize
// across processes with a file lock; Status and DryRun are read-only.
type Migrator struct {
	stateDir string
	dbPath   string
	keepLast int
	keepDays int
}

// New creates a migrator for the database under stateDir.
func New(stateDir, dbPath string) *Migrator {
	return &Migrator{stateDir: stateDir, dbPath: dbPath}
}

// SetRetention bounds how many backups survive pruning. Zero values mean
// no limit on that axis.
func (m *Migrator) SetRetention(keepLast, keepDays int) {
	m.keepLast = keepLast
	m.keepDays = keepDays
}

// Migration describes one versioned migration.
type Migration struct {
	Version int64
	Source  string
}

// Report is the result of Status: what has and has not been applied.
type Report struct {
	Applied []Migration
	Pending []Migration
}

// Change describes what DryRun would apply.
type Change struct {
	Version int64
	Source  string
	SQL     string
}

// ApplyResult reports which versions Apply ran and the backup it captured.
type ApplyResult struct {
	Applied    []int64
	BackupPath string
}

func (m *Migrator) open() (*sql.DB, error) {
	handle, err := db.Open(m.dbPath)
	if err != nil {
		return nil, err
	}
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		_ = handle.Close()
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	return handle, nil
}

// Status enumerates applied and pending migrations. Idempotent and
// side-effect-free apart from creating the version marker table.
func (m *Migrator) Status(ctx context.Context) (Report, error) {
	handle, err := m.open()
	if err != nil {
		return Report{}, err
	}
	defer func() { _ = handle.Close() }()
	return status(ctx, handle)
}

func status(ctx context.Context, handle *sql.DB) (Report, error) {
	all, err := goose.CollectMigrations(migrationsDir, 0, math.MaxInt64)
	if err != nil {
		return Report{}, fmt.Errorf("collect migrations: %w", err)
	}
	if _, err := goose.EnsureDBVersion(handle); err != nil {
		return Report{}, fmt.Errorf("ensure version table: %w", err)
	}
	applied := make(map[int64]bool)
	rows, err := handle.QueryContext(ctx, `SELECT version_id FROM goose_db_version WHERE is_applied = 1 AND version_id > 0`)
	if err != nil {
		return Report{}, fmt.Errorf("read applied versions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return Report{}, fmt.Errorf("scan version: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return Report{}, fmt.Errorf("iterate versions: %w", err)
	}

	var report Report
	for _, mig := range all {
		entry := Migration{Version: mig.Version, Source: filepath.Base(mig.Source)}
		if applied[mig.Version] {
			report.Applied = append(report.Applied, entry)
		} else {
			report.Pending = append(report.Pending, entry)
		}
	}
	return report, nil
}

// DryRun returns the pending migrations and their SQL without mutating the
// store.
func (m *Migrator) DryRun(ctx context.Context) ([]Change, error) {
	handle, err := m.open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = handle.Close() }()

	report, err := status(ctx, handle)
	if err != nil {
		return nil, err
	}
	changes := make([]Change, 0, len(report.Pending))
	for _, pending := range report.Pending {
		raw, err := fs.ReadFile(migrationsFS, filepath.Join(migrationsDir, pending.Source))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", pending.Source, err)
		}
		changes = append(changes, Change{Version: pending.Version, Source: pending.Source, SQL: string(raw)})
	}
	return changes, nil
}

// Backup captures a crash-consistent, timestamped copy of the database under
// <stateDir>/backups using VACUUM INTO. A migration in flight holds the lock,
// in which case Backup reports ErrStoreBusy instead of copying a database
// that is changing shape.
func (m *Migrator) Backup(ctx context.Context) (string, error) {
	lock, ok, err := db.TryAcquireLock(m.stateDir, "migrate")
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("migration in progress: %w", task.ErrStoreBusy)
	}
	defer func() { _ = lock.Release() }()

	handle, err := m.open()
	if err != nil {
		return "", err
	}
	defer func() { _ = handle.Close() }()
	return m.backup(ctx, handle)
}

func (m *Migrator) backup(ctx context.Context, handle *sql.DB) (string, error) {
	backupsDir := filepath.Join(m.stateDir, "backups")
	if err := os.MkdirAll(backupsDir, 0o755); err != nil {
		return "", fmt.Errorf("create backups dir: %w", err)
	}
	stamp := time.Now().UTC().Format("20060102_150405")
	name := fmt.Sprintf("tasks_%s.db", stamp)
	// VACUUM INTO refuses to overwrite, so disambiguate same-second backups.
	for n := 1; ; n++ {
		if _, err := os.Stat(filepath.Join(backupsDir, name)); errors.Is(err, fs.ErrNotExist) {
			break
		}
		name = fmt.Sprintf("tasks_%s_%d.db", stamp, n)
	}
	path := filepath.Join(backupsDir, name)
	if _, err := handle.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return "", fmt.Errorf("backup database: %w", err)
	}
	if err := m.pruneBackups(backupsDir, name); err != nil {
		log.Warn().Err(err).Msg("backup retention pruning failed")
	}
	return path, nil
}

type backupEntry struct {
	name string
	mod  time.Time
}

// listBackups returns the .db files under dir ordered oldest first by
// modification time. Collision-suffixed names can sort before the plain
// form lexically, so name order alone cannot establish backup age; names
// only break mod-time ties.
func listBackups(dir string) ([]backupEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []backupEntry
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".db" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat backup %s: %w", entry.Name(), err)
		}
		out = append(out, backupEntry{name: entry.Name(), mod: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].mod.Equal(out[j].mod) {
			return out[i].name < out[j].name
		}
		return out[i].mod.Before(out[j].mod)
	})
	return out, nil
}

// pruneBackups trims old backups past the retention limits, oldest first.
// current names the backup just written; it is never a pruning candidate
// and occupies one keep_last slot.
func (m *Migrator) pruneBackups(backupsDir, current string) error {
	if m.keepLast <= 0 && m.keepDays <= 0 {
		return nil
	}
	all, err := listBackups(backupsDir)
	if err != nil {
		return fmt.Errorf("read backups dir: %w", err)
	}
	var rest []backupEntry
	for _, b := range all {
		if b.name != current {
			rest = append(rest, b)
		}
	}

	drop := make(map[string]bool)
	if m.keepLast > 0 {
		slots := m.keepLast - 1
		if len(rest) > slots {
			for _, b := range rest[:len(rest)-slots] {
				drop[b.name] = true
			}
		}
	}
	if m.keepDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -m.keepDays)
		for _, b := range rest {
			if b.mod.Before(cutoff) {
				drop[b.name] = true
			}
		}
	}
	for name := range drop {
		if err := os.Remove(filepath.Join(backupsDir, name)); err != nil {
			return fmt.Errorf("remove backup %s: %w", name, err)
		}
	}
	return nil
}

// Apply runs all pending migrations in ascending version order, each in its
// own transaction, after taking a backup. Nothing pending is a no-op, not an
// error; no migration proceeds without a successful backup.
func (m *Migrator) Apply(ctx context.Context) (ApplyResult, error) {
	lock, err := db.AcquireLock(m.stateDir, "migrate")
	if err != nil {
		return ApplyResult{}, err
	}
	defer func() { _ = lock.Release() }()

	handle, err := m.open()
	if err != nil {
		return ApplyResult{}, err
	}
	defer func() { _ = handle.Close() }()

	report, err := status(ctx, handle)
	if err != nil {
		return ApplyResult{}, err
	}
	if len(report.Pending) == 0 {
		return ApplyResult{}, nil
	}

	backupPath, err := m.backup(ctx, handle)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("abort migration: %w", err)
	}
	if err := goose.UpContext(ctx, handle, migrationsDir); err != nil {
		return ApplyResult{}, fmt.Errorf("apply migrations: %w", err)
	}

	result := ApplyResult{BackupPath: backupPath}
	for _, pending := range report.Pending {
		result.Applied = append(result.Applied, pending.Version)
	}
	log.Info().Ints64("versions", result.Applied).Str("backup", backupPath).Msg("migrations applied")
	return result, nil
}

// Rollback restores the most recent backup over the live database. With no
// backup on disk it reports task.ErrNoBackupAvailable.
func (m *Migrator) Rollback(ctx context.Context) (string, error) {
	lock, err := db.AcquireLock(m.stateDir, "migrate")
	if err != nil {
		return "", err
	}
	defer func() { _ = lock.Release() }()

	latest, err := m.latestBackup()
	if err != nil {
		return "", err
	}

	// Drop WAL sidecars so the restored file is read as-is.
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(m.dbPath + suffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("remove %s: %w", m.dbPath+suffix, err)
		}
	}
	data, err := os.ReadFile(latest)
	if err != nil {
		return "", fmt.Errorf("read backup: %w", err)
	}
	if err := os.WriteFile(m.dbPath, data, 0o644); err != nil {
		return "", fmt.Errorf("restore backup: %w", err)
	}
	log.Info().Str("backup", latest).Msg("backup restored")
	return latest, nil
}

func (m *Migrator) latestBackup() (string, error) {
	backupsDir := filepath.Join(m.stateDir, "backups")
	all, err := listBackups(backupsDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", task.ErrNoBackupAvailable
		}
		return "", fmt.Errorf("read backups dir: %w", err)
	}
	if len(all) == 0 {
		return "", task.ErrNoBackupAvailable
	}
	return filepath.Join(backupsDir, all[len(all)-1].name), nil
}
