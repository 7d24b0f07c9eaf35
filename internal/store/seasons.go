package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/lox/snowseason/internal/season"
)

// ReplaceSeasons drops and recreates the seasons table from flattened
// records. Columns follow the field order of the first record; a column's
// type comes from the first non-null value seen for it.
func (s *Store) ReplaceSeasons(records [][]season.Field) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin seasons: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DROP TABLE IF EXISTS seasons"); err != nil {
		return fmt.Errorf("drop seasons: %w", err)
	}
	if len(records) == 0 {
		return tx.Commit()
	}

	keys := make([]string, len(records[0]))
	for i, f := range records[0] {
		keys[i] = f.Key
	}

	defs := make([]string, len(keys))
	for i, k := range keys {
		typ := "TEXT"
		for _, rec := range records {
			if i < len(rec) && rec[i].Value != nil {
				typ = sqlType(rec[i].Value)
				break
			}
		}
		if k == "season" {
			typ += " PRIMARY KEY"
		}
		defs[i] = fmt.Sprintf("%q %s", k, typ)
	}
	if _, err := tx.Exec(fmt.Sprintf("CREATE TABLE seasons (%s)", strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("create seasons: %w", err)
	}

	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = fmt.Sprintf("%q", k)
	}
	stmt, err := tx.Prepare(fmt.Sprintf("INSERT INTO seasons (%s) VALUES (%s)",
		strings.Join(quoted, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(keys)), ", ")))
	if err != nil {
		return fmt.Errorf("prepare seasons insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if len(rec) != len(keys) {
			return fmt.Errorf("season %v: %d fields, want %d", rec[0].Value, len(rec), len(keys))
		}
		args := make([]any, len(rec))
		for i, f := range rec {
			if f.Key != keys[i] {
				return fmt.Errorf("season %v: field %d is %s, want %s", rec[0].Value, i, f.Key, keys[i])
			}
			args[i] = f.Value
		}
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("insert season %v: %w", rec[0].Value, err)
		}
	}
	return tx.Commit()
}

func sqlType(v any) string {
	switch v.(type) {
	case int, int64:
		return "INTEGER"
	case float64:
		return "REAL"
	}
	return "TEXT"
}

func (s *Store) hasSeasonsTable() (bool, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'seasons'").Scan(&n)
	return n > 0, err
}

// ListSeasons returns the stored season labels in order.
func (s *Store) ListSeasons() ([]string, error) {
	ok, err := s.hasSeasonsTable()
	if err != nil || !ok {
		return nil, err
	}
	rows, err := s.db.Query("SELECT season FROM seasons ORDER BY season")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, err
		}
		labels = append(labels, label)
	}
	return labels, rows.Err()
}

// GetSeason returns the flattened fields of one season in column order, or
// nil if it is not stored.
func (s *Store) GetSeason(label string) ([]season.Field, error) {
	ok, err := s.hasSeasonsTable()
	if err != nil || !ok {
		return nil, err
	}
	rows, err := s.db.Query("SELECT * FROM seasons WHERE season = ?", label)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if !rows.Next() {
		return nil, rows.Err()
	}

	vals := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range vals {
		dest[i] = &vals[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}

	fields := make([]season.Field, len(cols))
	for i, c := range cols {
		v := vals[i]
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		fields[i] = season.Field{Key: c, Value: v}
	}
	return fields, rows.Err()
}

// SeasonCount reports how many seasons are stored.
func (s *Store) SeasonCount() (int, error) {
	ok, err := s.hasSeasonsTable()
	if err != nil || !ok {
		return 0, err
	}
	var n int
	err = s.db.QueryRow("SELECT COUNT(*) FROM seasons").Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return n, err
}
