package dashboard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"taxfiler/internal/models"
	"taxfiler/internal/redis"
)

const (
	cacheTTL = time.Minute

	StatusNotStarted = "not_started"
)

// ComputeStats summarizes a filing. A nil filing yields the not_started summary.
func ComputeStats(filing *models.TaxFiling) models.DashboardStats {
	if filing == nil {
		return models.DashboardStats{Status: StatusNotStarted}
	}
	var savings float64
	for _, s := range filing.TaxSuggestions {
		savings += s.PotentialSaving
	}
	return models.DashboardStats{
		HasFiling:        true,
		Status:           string(filing.Status),
		PotentialSavings: savings,
		EstimatedRefund:  max(0, filing.Fields.TDSDeducted-filing.Fields.TaxPayable),
		Progress:         progress(filing.Status),
	}
}

func progress(status models.FilingStatus) int {
	switch status {
	case models.FilingDraft:
		return 25
	case models.FilingProcessing:
		return 75
	case models.FilingCompleted:
		return 100
	default:
		return 0
	}
}

// FilingReader loads the filing for a financial year. *records.Service satisfies it.
type FilingReader interface {
	FilingForYear(ctx context.Context, userID int64, financialYear string) (*models.TaxFiling, error)
}

// Service serves dashboard stats for the current financial year.
type Service struct {
	filings FilingReader
	cache   *redis.Client
	year    func() string
	logger  *slog.Logger
}

// NewService builds the aggregator. cache may be nil, in which case every call hits the store.
func NewService(filings FilingReader, cache *redis.Client, year func() string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{filings: filings, cache: cache, year: year, logger: logger}
}

func cacheKey(userID int64) string {
	return redis.Key("dashboard", strconv.FormatInt(userID, 10))
}

func (s *Service) Stats(ctx context.Context, userID int64) (models.DashboardStats, error) {
	if s.cache != nil {
		var stats models.DashboardStats
		err := s.cache.GetJSON(ctx, cacheKey(userID), &stats)
		if err == nil {
			return stats, nil
		}
		if !errors.Is(err, redis.ErrCacheMiss) {
			s.logger.Warn("dashboard cache read failed", "user_id", userID, "error", err)
		}
	}

	filing, err := s.filings.FilingForYear(ctx, userID, s.year())
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return models.DashboardStats{}, fmt.Errorf("load filing: %w", err)
	}
	stats := ComputeStats(filing)

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, cacheKey(userID), stats, cacheTTL); err != nil {
			s.logger.Warn("dashboard cache write failed", "user_id", userID, "error", err)
		}
	}
	return stats, nil
}

// Invalidate drops the cached stats of a user.
func (s *Service) Invalidate(ctx context.Context, userID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(context.WithoutCancel(ctx), cacheKey(userID)); err != nil {
		s.logger.Warn("dashboard cache invalidate failed", "user_id", userID, "error", err)
	}
}
