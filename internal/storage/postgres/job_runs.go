package postgres

import (
	"context"
	"fmt"

	"navLedger/internal/model"
)

// SaveJobRun records scheduler run metadata.
func (s *Store) SaveJobRun(ctx context.Context, run model.JobRun) error {
	if run.ID == "" || run.Job == "" {
		return fmt.Errorf("job run id and name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO job_runs (id, job, started_at, finished_at, processed, failed, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET finished_at = EXCLUDED.finished_at,
			processed = EXCLUDED.processed,
			failed = EXCLUDED.failed,
			error = EXCLUDED.error
	`, run.ID, run.Job, run.StartedAt, run.FinishedAt, run.Processed, run.Failed, run.Error)
	return err
}

// LastJobRun returns the most recent run of a job.
func (s *Store) LastJobRun(ctx context.Context, job string) (model.JobRun, bool, error) {
	var run model.JobRun
	err := s.pool.QueryRow(ctx, `
		SELECT id, job, started_at, finished_at, processed, failed, error
		FROM job_runs
		WHERE job = $1
		ORDER BY started_at DESC
		LIMIT 1
	`, job).Scan(&run.ID, &run.Job, &run.StartedAt, &run.FinishedAt, &run.Processed, &run.Failed, &run.Error)
	if err != nil {
		if isNoRows(err) {
			return model.JobRun{}, false, nil
		}
		return model.JobRun{}, false, err
	}
	return run, true, nil
}
