package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lox/snowseason/internal/models"
)

type Store struct {
	db  *sql.DB
	loc *time.Location
}

func New(db *sql.DB, loc *time.Location) *Store {
	return &Store{db: db, loc: loc}
}

// Open opens the SQLite database at path with the pragmas the pipeline expects.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return db, nil
}

// Location is the zone calendar dates are interpreted in.
func (s *Store) Location() *time.Location {
	return s.loc
}

// IntegrityCheck runs SQLite's integrity check and fails unless it reports ok.
func (s *Store) IntegrityCheck() error {
	var result string
	if err := s.db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check: %s", result)
	}
	return nil
}

func observationColumns() string {
	names := make([]string, len(models.Columns))
	for i, c := range models.Columns {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

const rollingColumns = "temp_avg_7dcra, temp_avg_7dcra_std, temp_hgh_7dcra, temp_hgh_7dcra_std, temp_low_7dcra, temp_low_7dcra_std"

// UpsertObservations writes days keyed by date. Existing days are replaced,
// except for their rolling columns which are left for the next enrich run.
func (s *Store) UpsertObservations(days []models.DailyObservation) (int, error) {
	cols := observationColumns()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(models.Columns)+2), ", ")

	var updates []string
	for _, c := range models.Columns {
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", c, c))
	}
	updates = append(updates, "quality_flags = excluded.quality_flags", "updated_at = CURRENT_TIMESTAMP")

	query := fmt.Sprintf(`
		INSERT INTO obs_daily (obs_date, %s, quality_flags)
		VALUES (%s)
		ON CONFLICT(obs_date) DO UPDATE SET
			%s
	`, cols, placeholders, strings.Join(updates, ",\n\t\t\t"))

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(query)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, d := range days {
		args := make([]any, 0, len(models.Columns)+2)
		args = append(args, d.Date.In(s.loc).Format(models.DateLayout))
		for _, c := range models.Columns {
			args = append(args, d.Value(c))
		}
		args = append(args, sql.NullString{String: d.QualityFlags, Valid: d.QualityFlags != ""})
		if _, err := stmt.Exec(args...); err != nil {
			return 0, fmt.Errorf("upsert %s: %w", d.Date.Format(models.DateLayout), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upsert: %w", err)
	}
	return len(days), nil
}

func (s *Store) parseDate(v string) (time.Time, error) {
	d, err := time.ParseInLocation(models.DateLayout, v, s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse obs_date %q: %w", v, err)
	}
	return d, nil
}

// LoadObservations returns every stored day in ascending date order.
func (s *Store) LoadObservations() ([]models.DailyObservation, error) {
	rows, err := s.db.Query(fmt.Sprintf(`
		SELECT obs_date, %s, quality_flags
		FROM obs_daily
		ORDER BY obs_date
	`, observationColumns()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []models.DailyObservation
	for rows.Next() {
		var d models.DailyObservation
		var date string
		var flags sql.NullString
		dest := []any{&date}
		for _, c := range models.Columns {
			dest = append(dest, d.Field(c))
		}
		dest = append(dest, &flags)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if d.Date, err = s.parseDate(date); err != nil {
			return nil, err
		}
		d.QualityFlags = flags.String
		days = append(days, d)
	}
	return days, rows.Err()
}

// LoadDaily returns stored days in [start, end] with their rolling columns.
func (s *Store) LoadDaily(start, end time.Time) ([]models.EnrichedDay, error) {
	rows, err := s.db.Query(fmt.Sprintf(`
		SELECT obs_date, %s, quality_flags, %s
		FROM obs_daily
		WHERE obs_date BETWEEN ? AND ?
		ORDER BY obs_date
	`, observationColumns(), rollingColumns),
		start.In(s.loc).Format(models.DateLayout), end.In(s.loc).Format(models.DateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []models.EnrichedDay
	for rows.Next() {
		var d models.EnrichedDay
		var date string
		var flags sql.NullString
		dest := []any{&date}
		for _, c := range models.Columns {
			dest = append(dest, d.Field(c))
		}
		r := &d.Rolling
		dest = append(dest, &flags,
			&r.TempAvg, &r.TempAvgStd, &r.TempHgh, &r.TempHghStd, &r.TempLow, &r.TempLowStd)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if d.Date, err = s.parseDate(date); err != nil {
			return nil, err
		}
		d.Rolling.Date = d.Date
		d.QualityFlags = flags.String
		days = append(days, d)
	}
	return days, rows.Err()
}

// UpdateRollingStats writes rolling columns onto the days they belong to.
// Days not present in obs_daily are ignored.
func (s *Store) UpdateRollingStats(stats []models.DailyRollingStats) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin rolling update: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		UPDATE obs_daily SET
			temp_avg_7dcra = ?,
			temp_avg_7dcra_std = ?,
			temp_hgh_7dcra = ?,
			temp_hgh_7dcra_std = ?,
			temp_low_7dcra = ?,
			temp_low_7dcra_std = ?
		WHERE obs_date = ?
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare rolling update: %w", err)
	}
	defer stmt.Close()

	var updated int64
	for _, r := range stats {
		res, err := stmt.Exec(r.TempAvg, r.TempAvgStd, r.TempHgh, r.TempHghStd, r.TempLow, r.TempLowStd,
			r.Date.In(s.loc).Format(models.DateLayout))
		if err != nil {
			return 0, fmt.Errorf("update rolling %s: %w", r.Date.Format(models.DateLayout), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		updated += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit rolling update: %w", err)
	}
	return updated, nil
}

// ObservationRange returns the first and last stored dates. ok is false when
// the table is empty.
func (s *Store) ObservationRange() (first, last time.Time, ok bool, err error) {
	var lo, hi sql.NullString
	if err = s.db.QueryRow("SELECT MIN(obs_date), MAX(obs_date) FROM obs_daily").Scan(&lo, &hi); err != nil {
		return
	}
	if !lo.Valid || !hi.Valid {
		return
	}
	if first, err = s.parseDate(lo.String); err != nil {
		return
	}
	if last, err = s.parseDate(hi.String); err != nil {
		return
	}
	ok = true
	return
}
