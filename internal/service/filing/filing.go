package filing

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"taxfiler/internal/models"
	"taxfiler/internal/service/records"
)

// ErrNotResumable is returned by Resume for uploads whose OCR failed. The upload is terminal.
var ErrNotResumable = errors.New("upload cannot be resumed, please upload the document again")

// Store is the persistence the pipeline needs. *records.Service satisfies it.
type Store interface {
	CreateUpload(ctx context.Context, upload *models.FileUpload) (*models.FileUpload, error)
	GetUpload(ctx context.Context, userID, uploadID int64) (*models.FileUpload, error)
	MarkUploadProcessing(ctx context.Context, uploadID int64) error
	CompleteUpload(ctx context.Context, uploadID int64, ocrText string) error
	FailUpload(ctx context.Context, uploadID int64, cause string) error
	GetJob(ctx context.Context, userID, uploadID int64) (*models.FilingJob, error)
	StartAttempt(ctx context.Context, uploadID int64) error
	FailJob(ctx context.Context, uploadID int64, stage models.JobStage, cause string) error
	GetFiling(ctx context.Context, userID, filingID int64) (*models.TaxFiling, error)
	SaveExtraction(ctx context.Context, rec records.ExtractionRecord) (*models.TaxFiling, error)
	SaveSuggestions(ctx context.Context, userID, uploadID, filingID int64, suggestions []models.TaxSuggestion) (*models.TaxFiling, error)
}

type FileStore interface {
	Save(ctx context.Context, userID int64, filename string, r io.Reader, size int64, contentType string) (string, error)
	Materialize(ctx context.Context, location string) (string, func(), error)
	Remove(ctx context.Context, location string) error
}

type TextExtractor interface {
	ExtractText(ctx context.Context, filePath, mimeType string) (string, error)
}

type Extractor interface {
	ExtractStructuredData(ctx context.Context, rawText string) (models.Form16Fields, json.RawMessage, error)
}

type Suggester interface {
	GenerateSuggestions(ctx context.Context, fields models.Form16Fields, age int) ([]models.TaxSuggestion, error)
}

// Invalidator is notified whenever a user's filing changes.
type Invalidator interface {
	Invalidate(ctx context.Context, userID int64)
}

// Submission is one uploaded Form 16 waiting to be processed.
type Submission struct {
	UserID   int64
	Filename string
	MimeType string
	Size     int64
	Body     io.Reader
	Age      int
}

type Result struct {
	Upload      *models.FileUpload     `json:"fileUpload"`
	Filing      *models.TaxFiling      `json:"taxFiling"`
	Extracted   json.RawMessage        `json:"extractedData"`
	Suggestions []models.TaxSuggestion `json:"suggestions"`
}

type Options struct {
	FinancialYear string
	StageTimeout  time.Duration
	Invalidator   Invalidator
	Logger        *slog.Logger
}

// Orchestrator runs upload -> OCR -> extraction -> suggestions as one sequential chain.
type Orchestrator struct {
	store       Store
	files       FileStore
	ocr         TextExtractor
	extractor   Extractor
	suggester   Suggester
	year        string
	timeout     time.Duration
	invalidator Invalidator
	logger      *slog.Logger
	now         func() time.Time
}

func NewOrchestrator(store Store, files FileStore, ocr TextExtractor, extractor Extractor, suggester Suggester, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:       store,
		files:       files,
		ocr:         ocr,
		extractor:   extractor,
		suggester:   suggester,
		year:        opts.FinancialYear,
		timeout:     opts.StageTimeout,
		invalidator: opts.Invalidator,
		logger:      logger,
		now:         time.Now,
	}
}

// FinancialYear returns the Indian financial year (April to March) containing t, e.g. "2026-27".
func FinancialYear(t time.Time) string {
	start := t.Year()
	if t.Month() < time.April {
		start--
	}
	return fmt.Sprintf("%d-%02d", start, (start+1)%100)
}

// YearResolver returns configured when set, otherwise the financial year of the clock at call time.
func YearResolver(configured string) func() string {
	return func() string {
		if configured != "" {
			return configured
		}
		return FinancialYear(time.Now())
	}
}

// CurrentYear is the configured financial year, or the one containing now.
func (o *Orchestrator) CurrentYear() string {
	if o.year != "" {
		return o.year
	}
	return FinancialYear(o.now())
}

// Process stores the document and runs the whole chain. Committed stages are
// not rolled back when a later one fails; the job record allows Resume.
func (o *Orchestrator) Process(ctx context.Context, sub Submission) (*Result, error) {
	if sub.UserID <= 0 || sub.Body == nil {
		return nil, errors.New("submission with user and body is required")
	}
	location, err := o.files.Save(ctx, sub.UserID, sub.Filename, sub.Body, sub.Size, sub.MimeType)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	upload, err := o.store.CreateUpload(ctx, &models.FileUpload{
		UserID:   sub.UserID,
		Filename: sub.Filename,
		FileType: sub.MimeType,
		FileSize: sub.Size,
		FilePath: location,
	})
	if err != nil {
		if rmErr := o.files.Remove(ctx, location); rmErr != nil {
			o.logger.Warn("remove orphaned upload", "location", location, "error", rmErr)
		}
		return nil, fmt.Errorf("create upload: %w", err)
	}
	o.logger.Info("form16 upload stored", "user_id", sub.UserID, "upload_id", upload.ID, "file_type", sub.MimeType, "file_size", sub.Size)

	if err := o.store.MarkUploadProcessing(ctx, upload.ID); err != nil {
		return nil, fmt.Errorf("mark upload processing: %w", err)
	}
	text, err := o.runOCR(ctx, upload)
	if err != nil {
		return nil, err
	}
	return o.fromExtraction(ctx, upload, text, sub.Age)
}

// Resume continues a failed or interrupted chain from its stored stage.
func (o *Orchestrator) Resume(ctx context.Context, userID, uploadID int64) (*Result, error) {
	job, err := o.store.GetJob(ctx, userID, uploadID)
	if err != nil {
		return nil, err
	}
	upload, err := o.store.GetUpload(ctx, userID, uploadID)
	if err != nil {
		return nil, err
	}
	if job.Stage == models.StageDone && job.Status == models.JobCompleted {
		return o.storedResult(ctx, upload, job.FilingID)
	}
	if upload.Status == models.UploadFailed {
		return nil, ErrNotResumable
	}
	var filing *models.TaxFiling
	if job.Stage == models.StageSuggestion {
		if filing, err = o.store.GetFiling(ctx, userID, job.FilingID); err != nil {
			return nil, fmt.Errorf("load filing: %w", err)
		}
		// a later upload for the same year may have re-extracted into this filing
		if filing.Form16Data == nil || filing.Form16Data.UploadID != upload.ID {
			return nil, ErrNotResumable
		}
	}
	if err := o.store.StartAttempt(ctx, uploadID); err != nil {
		return nil, err
	}
	o.logger.Info("resuming filing job", "user_id", userID, "upload_id", uploadID, "stage", job.Stage, "attempt", job.Attempts+1)

	switch job.Stage {
	case models.StageOCR:
		if upload.Status == models.UploadUploaded {
			if err := o.store.MarkUploadProcessing(ctx, upload.ID); err != nil {
				return nil, fmt.Errorf("mark upload processing: %w", err)
			}
		}
		text, err := o.runOCR(ctx, upload)
		if err != nil {
			return nil, err
		}
		return o.fromExtraction(ctx, upload, text, 0)
	case models.StageExtraction:
		return o.fromExtraction(ctx, upload, upload.OCRText, 0)
	case models.StageSuggestion:
		return o.fromSuggestion(ctx, upload, filing, filing.Fields, filing.ExtractedData, 0)
	default:
		return nil, fmt.Errorf("job stage %q: %w", job.Stage, ErrNotResumable)
	}
}

func (o *Orchestrator) runOCR(ctx context.Context, upload *models.FileUpload) (string, error) {
	text, err := o.extractText(ctx, upload)
	if err != nil {
		if failErr := o.store.FailUpload(context.WithoutCancel(ctx), upload.ID, err.Error()); failErr != nil {
			o.logger.Error("mark upload failed", "upload_id", upload.ID, "error", failErr)
		}
		o.logger.Warn("ocr failed", "upload_id", upload.ID, "error", err)
		return "", err
	}
	if err := o.store.CompleteUpload(ctx, upload.ID, text); err != nil {
		return "", fmt.Errorf("complete upload: %w", err)
	}
	upload.Status = models.UploadCompleted
	upload.OCRText = text
	return text, nil
}

func (o *Orchestrator) extractText(ctx context.Context, upload *models.FileUpload) (string, error) {
	path, release, err := o.files.Materialize(ctx, upload.FilePath)
	if err != nil {
		return "", fmt.Errorf("load upload: %w", err)
	}
	defer release()
	return o.ocr.ExtractText(ctx, path, upload.FileType)
}

func (o *Orchestrator) fromExtraction(ctx context.Context, upload *models.FileUpload, text string, age int) (*Result, error) {
	stageCtx, cancel := o.stageContext(ctx)
	fields, raw, err := o.extractor.ExtractStructuredData(stageCtx, text)
	cancel()
	if err != nil {
		o.failJob(ctx, upload.ID, models.StageExtraction, err)
		return nil, err
	}
	filing, err := o.store.SaveExtraction(ctx, records.ExtractionRecord{
		UserID:        upload.UserID,
		UploadID:      upload.ID,
		FinancialYear: o.CurrentYear(),
		Fields:        fields,
		Raw:           raw,
		Metadata: models.Form16Metadata{
			UploadID:   upload.ID,
			Filename:   upload.Filename,
			FileType:   upload.FileType,
			FileSize:   upload.FileSize,
			UploadedAt: upload.CreatedAt,
		},
	})
	if err != nil {
		o.failJob(ctx, upload.ID, models.StageExtraction, err)
		return nil, fmt.Errorf("save extraction: %w", err)
	}
	o.invalidate(ctx, upload.UserID)
	return o.fromSuggestion(ctx, upload, filing, fields, raw, age)
}

func (o *Orchestrator) fromSuggestion(ctx context.Context, upload *models.FileUpload, filing *models.TaxFiling, fields models.Form16Fields, raw json.RawMessage, age int) (*Result, error) {
	stageCtx, cancel := o.stageContext(ctx)
	suggestions, err := o.suggester.GenerateSuggestions(stageCtx, fields, age)
	cancel()
	if err != nil {
		o.failJob(ctx, upload.ID, models.StageSuggestion, err)
		return nil, err
	}
	filing, err = o.store.SaveSuggestions(ctx, upload.UserID, upload.ID, filing.ID, suggestions)
	if err != nil {
		o.failJob(ctx, upload.ID, models.StageSuggestion, err)
		return nil, fmt.Errorf("save suggestions: %w", err)
	}
	o.invalidate(ctx, upload.UserID)
	o.logger.Info("filing processed", "user_id", upload.UserID, "upload_id", upload.ID, "filing_id", filing.ID, "suggestions", len(suggestions))
	return &Result{Upload: upload, Filing: filing, Extracted: raw, Suggestions: suggestions}, nil
}

func (o *Orchestrator) storedResult(ctx context.Context, upload *models.FileUpload, filingID int64) (*Result, error) {
	filing, err := o.store.GetFiling(ctx, upload.UserID, filingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("load filing: %w", err)
	}
	return &Result{
		Upload:      upload,
		Filing:      filing,
		Extracted:   filing.ExtractedData,
		Suggestions: filing.TaxSuggestions,
	}, nil
}

func (o *Orchestrator) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, o.timeout)
}

func (o *Orchestrator) failJob(ctx context.Context, uploadID int64, stage models.JobStage, cause error) {
	o.logger.Warn("filing stage failed", "upload_id", uploadID, "stage", stage, "error", cause)
	if err := o.store.FailJob(context.WithoutCancel(ctx), uploadID, stage, cause.Error()); err != nil {
		o.logger.Error("record job failure", "upload_id", uploadID, "error", err)
	}
}

func (o *Orchestrator) invalidate(ctx context.Context, userID int64) {
	if o.invalidator != nil {
		o.invalidator.Invalidate(ctx, userID)
	}
}
