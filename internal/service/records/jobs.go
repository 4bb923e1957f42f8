package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"taxfiler/internal/models"
)

// GetJob returns the pipeline job for an upload owned by the user.
func (s *Service) GetJob(ctx context.Context, userID, uploadID int64) (*models.FilingJob, error) {
	var (
		job      models.FilingJob
		filingID sql.NullInt64
		stage    string
		status   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT upload_id, user_id, filing_id, stage, status, attempts, last_error, updated_at
		 FROM filing_jobs WHERE upload_id = ? AND user_id = ?`, uploadID, userID,
	).Scan(&job.UploadID, &job.UserID, &filingID, &stage, &status, &job.Attempts, &job.LastError, &job.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	job.FilingID = filingID.Int64
	job.Stage = models.JobStage(stage)
	job.Status = models.JobStatus(status)
	return &job, nil
}

// StartAttempt flags a job as running again and counts the attempt.
func (s *Service) StartAttempt(ctx context.Context, uploadID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE filing_jobs SET status = ?, attempts = attempts + 1, updated_at = ? WHERE upload_id = ?`,
		string(models.JobRunning), s.now(), uploadID)
	if err != nil {
		return fmt.Errorf("start job attempt: %w", err)
	}
	return nil
}

// FailJob records a failure at stage without touching the upload.
func (s *Service) FailJob(ctx context.Context, uploadID int64, stage models.JobStage, cause string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.updateJob(ctx, tx, uploadID, stage, models.JobFailed, cause, 0)
	})
}

func (s *Service) updateJob(ctx context.Context, tx *sql.Tx, uploadID int64, stage models.JobStage, status models.JobStatus, cause string, filingID int64) error {
	var err error
	if filingID > 0 {
		_, err = tx.ExecContext(ctx,
			`UPDATE filing_jobs SET stage = ?, status = ?, last_error = ?, filing_id = ?, updated_at = ? WHERE upload_id = ?`,
			string(stage), string(status), cause, filingID, s.now(), uploadID)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE filing_jobs SET stage = ?, status = ?, last_error = ?, updated_at = ? WHERE upload_id = ?`,
			string(stage), string(status), cause, s.now(), uploadID)
	}
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}
