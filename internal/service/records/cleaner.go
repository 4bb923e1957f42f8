package records

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const DefaultRetentionCleanInterval = time.Hour

// FileRemover deletes stored upload bytes.
type FileRemover interface {
	Remove(ctx context.Context, location string) error
}

// StartRetentionCleaner periodically drops stored bytes of finished uploads older than
// retention. Rows are kept; only file_path is cleared. A zero retention disables it.
func (s *Service) StartRetentionCleaner(ctx context.Context, files FileRemover, interval, retention time.Duration) {
	if retention <= 0 || files == nil {
		return
	}
	if interval <= 0 {
		interval = DefaultRetentionCleanInterval
	}
	go s.cleanupLoop(ctx, files, interval, retention)
}

func (s *Service) cleanupLoop(ctx context.Context, files FileRemover, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.PurgeExpiredFiles(ctx, files, retention); err != nil {
				slog.Error("purge expired uploads failed", "error", err)
			} else if n > 0 {
				slog.Info("purged expired uploads", "count", n)
			}
		}
	}
}

// PurgeExpiredFiles removes stored bytes of completed or failed uploads last touched
// before now-retention and returns how many were purged.
func (s *Service) PurgeExpiredFiles(ctx context.Context, files FileRemover, retention time.Duration) (int, error) {
	cutoff := s.now().Add(-retention)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_path FROM file_uploads
		 WHERE status IN ('completed', 'failed') AND file_path <> '' AND updated_at <= ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("query expired uploads: %w", err)
	}
	type fileRow struct {
		id   int64
		path string
	}
	var expired []fileRow
	for rows.Next() {
		var fr fileRow
		if err := rows.Scan(&fr.id, &fr.path); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan expired upload: %w", err)
		}
		expired = append(expired, fr)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	purged := 0
	for _, f := range expired {
		if err := files.Remove(ctx, f.path); err != nil {
			slog.Warn("remove stored upload failed", "upload_id", f.id, "error", err)
			continue
		}
		if _, err := s.db.ExecContext(ctx, `UPDATE file_uploads SET file_path = '' WHERE id = ?`, f.id); err != nil {
			slog.Warn("clear upload path failed", "upload_id", f.id, "error", err)
			continue
		}
		purged++
	}
	return purged, nil
}
