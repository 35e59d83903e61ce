package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION SUPPORT
// ══════════════════════════════════════════════════════════════════════════════

// Migration represents a database migration.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator handles database migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a new migrator with embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{
		conn:       conn,
		migrations: GetMigrations(),
		tableName:  "schema_migrations",
	}
}

// EnsureMigrationTable creates the migration tracking table if it doesn't exist.
func (m *Migrator) EnsureMigrationTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`, m.tableName)

	if _, err := m.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// GetAppliedMigrations returns all applied migrations.
func (m *Migrator) GetAppliedMigrations(ctx context.Context) (map[int]time.Time, error) {
	query := fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version", m.tableName)

	rows, err := m.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var appliedAt time.Time
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = appliedAt
	}
	return applied, rows.Err()
}

// Migrate applies all pending migrations.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if _, isApplied := applied[mig.Version]; isApplied {
			continue
		}
		if mig.UpSQL == "" {
			return fmt.Errorf("%w: missing up SQL for migration %d", ErrMigrationFailed, mig.Version)
		}

		err := m.conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", mig.Version, err)
			}
			insertQuery := fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName)
			_, err := tx.Exec(ctx, insertQuery, mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
	}
	return nil
}

// Rollback rolls back the last applied migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	var lastVersion int
	for v := range applied {
		if v > lastVersion {
			lastVersion = v
		}
	}
	if lastVersion == 0 {
		return nil // Nothing to rollback
	}

	var migration *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == lastVersion {
			migration = &m.migrations[i]
			break
		}
	}
	if migration == nil || migration.DownSQL == "" {
		return fmt.Errorf("%w: missing down SQL for migration %d", ErrMigrationFailed, lastVersion)
	}

	return m.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, migration.DownSQL); err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", lastVersion, err)
		}
		deleteQuery := fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName)
		_, err := tx.Exec(ctx, deleteQuery, lastVersion)
		return err
	})
}

// Status returns the migration status.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return nil, err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]Migration, len(m.migrations))
	copy(result, m.migrations)
	for i := range result {
		if appliedAt, ok := applied[result[i].Version]; ok {
			result[i].IsApplied = true
			result[i].AppliedAt = appliedAt
		}
	}
	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_students",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_activity_records",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
		{
			Version: 3,
			Name:    "create_daily_statistics",
			UpSQL:   migration003Up,
			DownSQL: migration003Down,
		},
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Migration 001: students
// ──────────────────────────────────────────────────────────────────────────────

const migration001Up = `
-- Migration: Create students table
-- Version: 001

CREATE TABLE IF NOT EXISTS students (
    student_id VARCHAR(20) PRIMARY KEY,
    name VARCHAR(100) NOT NULL,
    college VARCHAR(30) NOT NULL,
    major VARCHAR(30) NOT NULL,
    grade INTEGER NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_grade CHECK (grade >= 1990 AND grade <= 2100)
);

CREATE INDEX IF NOT EXISTS idx_students_college ON students(college);
CREATE INDEX IF NOT EXISTS idx_students_grade ON students(grade);
CREATE INDEX IF NOT EXISTS idx_students_college_major ON students(college, major);
`

const migration001Down = `
DROP TABLE IF EXISTS students;
`

// ──────────────────────────────────────────────────────────────────────────────
// Migration 002: raw activity records
// ──────────────────────────────────────────────────────────────────────────────

const migration002Up = `
-- Migration: Create raw activity record tables
-- Version: 002

-- Monthly canteen spend, one row per (student, month).
CREATE TABLE IF NOT EXISTS canteen_records (
    id BIGSERIAL PRIMARY KEY,
    student_id VARCHAR(20) NOT NULL REFERENCES students(student_id) ON DELETE CASCADE,
    month CHAR(7) NOT NULL,
    amount DECIMAL(10,2) NOT NULL,

    CONSTRAINT valid_amount CHECK (amount >= 0),
    UNIQUE(student_id, month)
);

CREATE INDEX IF NOT EXISTS idx_canteen_student_month ON canteen_records(student_id, month);
CREATE INDEX IF NOT EXISTS idx_canteen_month ON canteen_records(month);

-- Campus gate swipes, append only.
CREATE TABLE IF NOT EXISTS gate_records (
    id BIGSERIAL PRIMARY KEY,
    student_id VARCHAR(20) NOT NULL REFERENCES students(student_id) ON DELETE CASCADE,
    ts TIMESTAMP WITH TIME ZONE NOT NULL,
    location VARCHAR(100) NOT NULL DEFAULT '',
    direction VARCHAR(3) NOT NULL,

    CONSTRAINT valid_gate_direction CHECK (direction IN ('in', 'out'))
);

CREATE INDEX IF NOT EXISTS idx_gate_student_ts ON gate_records(student_id, ts);
CREATE INDEX IF NOT EXISTS idx_gate_ts ON gate_records(ts);

-- Dormitory door swipes, append only.
CREATE TABLE IF NOT EXISTS dorm_records (
    id BIGSERIAL PRIMARY KEY,
    student_id VARCHAR(20) NOT NULL REFERENCES students(student_id) ON DELETE CASCADE,
    ts TIMESTAMP WITH TIME ZONE NOT NULL,
    building VARCHAR(100) NOT NULL DEFAULT '',
    direction VARCHAR(3) NOT NULL,

    CONSTRAINT valid_dorm_direction CHECK (direction IN ('in', 'out'))
);

CREATE INDEX IF NOT EXISTS idx_dorm_student_ts ON dorm_records(student_id, ts);
CREATE INDEX IF NOT EXISTS idx_dorm_ts ON dorm_records(ts);

-- Campus network sessions, append only.
CREATE TABLE IF NOT EXISTS network_records (
    id BIGSERIAL PRIMARY KEY,
    student_id VARCHAR(20) NOT NULL REFERENCES students(student_id) ON DELETE CASCADE,
    start_time TIMESTAMP WITH TIME ZONE NOT NULL,
    end_time TIMESTAMP WITH TIME ZONE NOT NULL,
    domain VARCHAR(255) NOT NULL DEFAULT '',
    used_vpn BOOLEAN NOT NULL DEFAULT FALSE,

    CONSTRAINT valid_session CHECK (end_time >= start_time)
);

CREATE INDEX IF NOT EXISTS idx_network_student_start ON network_records(student_id, start_time);
CREATE INDEX IF NOT EXISTS idx_network_start ON network_records(start_time);
CREATE INDEX IF NOT EXISTS idx_network_vpn ON network_records(student_id) WHERE used_vpn;

-- Monthly academic averages, one row per (student, month).
CREATE TABLE IF NOT EXISTS academic_records (
    id BIGSERIAL PRIMARY KEY,
    student_id VARCHAR(20) NOT NULL REFERENCES students(student_id) ON DELETE CASCADE,
    month CHAR(7) NOT NULL,
    score DECIMAL(5,2) NOT NULL,

    CONSTRAINT valid_score CHECK (score >= 0),
    UNIQUE(student_id, month)
);

CREATE INDEX IF NOT EXISTS idx_academic_student_month ON academic_records(student_id, month);
CREATE INDEX IF NOT EXISTS idx_academic_month ON academic_records(month);
`

const migration002Down = `
DROP TABLE IF EXISTS academic_records;
DROP TABLE IF EXISTS network_records;
DROP TABLE IF EXISTS dorm_records;
DROP TABLE IF EXISTS gate_records;
DROP TABLE IF EXISTS canteen_records;
`

// ──────────────────────────────────────────────────────────────────────────────
// Migration 003: precomputed daily statistics
// ──────────────────────────────────────────────────────────────────────────────

const migration003Up = `
-- Migration: Create daily statistics table
-- Version: 003

CREATE TABLE IF NOT EXISTS daily_statistics (
    id BIGSERIAL PRIMARY KEY,
    student_id VARCHAR(20) NOT NULL REFERENCES students(student_id) ON DELETE CASCADE,
    source VARCHAR(20) NOT NULL,
    stat_date DATE NOT NULL,
    stat_values JSONB NOT NULL DEFAULT '{}'::jsonb,

    CONSTRAINT valid_stat_source CHECK (source IN ('canteen', 'school_gate', 'dormitory', 'network', 'academic')),
    UNIQUE(student_id, source, stat_date)
);

CREATE INDEX IF NOT EXISTS idx_daily_stats_student ON daily_statistics(student_id, source, stat_date);
CREATE INDEX IF NOT EXISTS idx_daily_stats_date ON daily_statistics(source, stat_date);
`

const migration003Down = `
DROP TABLE IF EXISTS daily_statistics;
`
