package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"taxfiler/internal/models"
)

const uploadColumns = `id, user_id, filename, file_type, file_size, file_path, status, ocr_text, created_at, updated_at`

// CreateUpload stores a new upload in status uploaded together with its job record.
func (s *Service) CreateUpload(ctx context.Context, upload *models.FileUpload) (*models.FileUpload, error) {
	if upload == nil || upload.UserID <= 0 {
		return nil, errors.New("upload with user_id is required")
	}
	now := s.now()
	out := *upload
	out.Status = models.UploadUploaded
	out.OCRText = ""
	out.CreatedAt = now
	out.UpdatedAt = now

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO file_uploads (user_id, filename, file_type, file_size, file_path, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			out.UserID, out.Filename, out.FileType, out.FileSize, out.FilePath, string(out.Status), now, now,
		)
		if err != nil {
			return fmt.Errorf("insert upload: %w", err)
		}
		if out.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("upload id: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO filing_jobs (upload_id, user_id, stage, status, attempts, last_error, updated_at)
			 VALUES (?, ?, ?, ?, 1, '', ?)`,
			out.ID, out.UserID, string(models.StageOCR), string(models.JobRunning), now,
		); err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetUpload returns one upload owned by the user.
func (s *Service) GetUpload(ctx context.Context, userID, uploadID int64) (*models.FileUpload, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+uploadColumns+` FROM file_uploads WHERE id = ? AND user_id = ?`, uploadID, userID)
	return s.scanUpload(row)
}

// ListUploads returns the user's uploads newest first.
func (s *Service) ListUploads(ctx context.Context, userID int64) ([]*models.FileUpload, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+uploadColumns+` FROM file_uploads WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	defer rows.Close()
	uploads := make([]*models.FileUpload, 0)
	for rows.Next() {
		u, err := s.scanUpload(rows)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}

// MarkUploadProcessing moves an upload from uploaded to processing.
func (s *Service) MarkUploadProcessing(ctx context.Context, uploadID int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.transitionUpload(ctx, tx, uploadID, models.UploadProcessing, nil)
	})
}

// CompleteUpload stores the OCR text, completes the upload and advances the job to extraction.
func (s *Service) CompleteUpload(ctx context.Context, uploadID int64, ocrText string) error {
	sealed, err := s.cipher.seal(ocrText)
	if err != nil {
		return fmt.Errorf("seal ocr text: %w", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.transitionUpload(ctx, tx, uploadID, models.UploadCompleted, &sealed); err != nil {
			return err
		}
		return s.updateJob(ctx, tx, uploadID, models.StageExtraction, models.JobRunning, "", 0)
	})
}

// FailUpload marks the upload failed and records the OCR failure on its job.
func (s *Service) FailUpload(ctx context.Context, uploadID int64, cause string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.transitionUpload(ctx, tx, uploadID, models.UploadFailed, nil); err != nil {
			return err
		}
		return s.updateJob(ctx, tx, uploadID, models.StageOCR, models.JobFailed, cause, 0)
	})
}

func (s *Service) transitionUpload(ctx context.Context, tx *sql.Tx, uploadID int64, next models.UploadStatus, ocrText *string) error {
	var current string
	if err := tx.QueryRowContext(ctx, `SELECT status FROM file_uploads WHERE id = ?`, uploadID).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("load upload status: %w", err)
	}
	if !models.UploadStatus(current).CanTransition(next) {
		return fmt.Errorf("upload %d %s -> %s: %w", uploadID, current, next, ErrInvalidTransition)
	}
	var err error
	if ocrText != nil {
		_, err = tx.ExecContext(ctx,
			`UPDATE file_uploads SET status = ?, ocr_text = ?, updated_at = ? WHERE id = ?`,
			string(next), *ocrText, s.now(), uploadID)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE file_uploads SET status = ?, updated_at = ? WHERE id = ?`,
			string(next), s.now(), uploadID)
	}
	if err != nil {
		return fmt.Errorf("update upload status: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Service) scanUpload(row rowScanner) (*models.FileUpload, error) {
	var (
		u       models.FileUpload
		status  string
		ocrText sql.NullString
	)
	if err := row.Scan(&u.ID, &u.UserID, &u.Filename, &u.FileType, &u.FileSize, &u.FilePath, &status, &ocrText, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan upload: %w", err)
	}
	u.Status = models.UploadStatus(status)
	if ocrText.Valid {
		plain, err := s.cipher.open(ocrText.String)
		if err != nil {
			return nil, fmt.Errorf("open ocr text: %w", err)
		}
		u.OCRText = plain
	}
	return &u, nil
}
