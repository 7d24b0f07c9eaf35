package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Run is one invocation of a pipeline command, kept for auditing.
type Run struct {
	ID           string
	Command      string // "import", "enrich", "process"
	StartedAt    time.Time
	FinishedAt   sql.NullTime
	Observations sql.NullInt64
	Seasons      sql.NullInt64
	Success      bool
	ErrorMessage sql.NullString
}

// StartRun records the start of a command and returns the run.
func (s *Store) StartRun(command string) (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		Command:   command,
		StartedAt: time.Now().UTC(),
	}

	_, err := s.db.Exec(`
		INSERT INTO pipeline_runs (id, command, started_at, success)
		VALUES (?, ?, ?, FALSE)
	`, run.ID, run.Command, run.StartedAt)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// CompleteRun stores the outcome of run. A nil run is ignored.
func (s *Store) CompleteRun(run *Run, runErr error) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	run.Success = runErr == nil
	if runErr != nil {
		run.ErrorMessage = sql.NullString{String: runErr.Error(), Valid: true}
	}

	_, err := s.db.Exec(`
		UPDATE pipeline_runs SET
			finished_at = ?,
			observations = ?,
			seasons = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.Observations, run.Seasons, run.Success, run.ErrorMessage, run.ID)
	return err
}

// RecentRuns returns the latest runs, newest first.
func (s *Store) RecentRuns(limit int) ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT id, command, started_at, finished_at, observations, seasons, success, error_message
		FROM pipeline_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Command, &r.StartedAt, &r.FinishedAt, &r.Observations,
			&r.Seasons, &r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
