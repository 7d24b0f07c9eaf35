package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lox/snowseason/internal/log"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Daily observations",
		SQL: `
CREATE TABLE IF NOT EXISTS obs_daily (
    obs_date TEXT PRIMARY KEY,
    temp_avg REAL,
    temp_hgh REAL,
    temp_low REAL,
    temp_amp REAL,
    wind_avg_speed REAL,
    wind_max_speed REAL,
    wind_max_dir REAL,
    wind_gust_speed REAL,
    wind_gust_dir REAL,
    wind_avg_dir REAL,
    wind_speed_amp REAL,
    sunshine REAL,
    snowfall REAL,
    snowdepth REAL,
    prec_total REAL,
    prec_max_1x REAL,
    prec_max_10m REAL,
    hum_avg REAL,
    hum_min REAL,
    quality_flags TEXT,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`,
	},
	{
		Version:     2,
		Description: "Centered rolling temperature columns",
		SQL: `
ALTER TABLE obs_daily ADD COLUMN temp_avg_7dcra REAL;
ALTER TABLE obs_daily ADD COLUMN temp_avg_7dcra_std REAL;
ALTER TABLE obs_daily ADD COLUMN temp_hgh_7dcra REAL;
ALTER TABLE obs_daily ADD COLUMN temp_hgh_7dcra_std REAL;
ALTER TABLE obs_daily ADD COLUMN temp_low_7dcra REAL;
ALTER TABLE obs_daily ADD COLUMN temp_low_7dcra_std REAL;
`,
	},
	{
		Version:     3,
		Description: "Pipeline run bookkeeping",
		SQL: `
CREATE TABLE IF NOT EXISTS pipeline_runs (
    id TEXT PRIMARY KEY,
    command TEXT NOT NULL,
    started_at DATETIME NOT NULL,
    finished_at DATETIME,
    observations INTEGER,
    seasons INTEGER,
    success BOOLEAN NOT NULL DEFAULT FALSE,
    error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started ON pipeline_runs(started_at);
`,
	},
}

func (s *Store) Migrate() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		log.Infof("migrations: applying %d - %s", m.Version, m.Description)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		log.Infof("migrations: completed %d", m.Version)
	}

	return nil
}

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) MigrationVersion() (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
