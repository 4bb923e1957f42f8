package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

var (
	ErrPDFNotImplemented   = errors.New("PDF OCR not implemented yet. Please upload images for now.")
	ErrUnsupportedFileType = errors.New("unsupported file type for OCR processing")
)

// Engine creates recognition workers.
type Engine interface {
	NewWorker(ctx context.Context, lang string) (Worker, error)
}

// Worker recognizes text in images. Terminate must be called once the worker is done.
type Worker interface {
	Recognize(ctx context.Context, imagePath string) (string, error)
	Terminate() error
}

// Adapter turns a stored upload into raw text.
type Adapter struct {
	engine Engine
	lang   string
	logger *slog.Logger
}

func NewAdapter(engine Engine, lang string, logger *slog.Logger) *Adapter {
	if lang == "" {
		lang = "eng"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{engine: engine, lang: lang, logger: logger}
}

// ExtractText dispatches on mimeType. Images go through one OCR worker,
// PDFs fail with ErrPDFNotImplemented, anything else with ErrUnsupportedFileType.
func (a *Adapter) ExtractText(ctx context.Context, filePath, mimeType string) (string, error) {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return a.extractImage(ctx, filePath)
	case mimeType == "application/pdf":
		return "", fmt.Errorf("extract text from pdf: %w", ErrPDFNotImplemented)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFileType, mimeType)
	}
}

func (a *Adapter) extractImage(ctx context.Context, filePath string) (text string, err error) {
	worker, err := a.engine.NewWorker(ctx, a.lang)
	if err != nil {
		return "", fmt.Errorf("extract text from image: %w", err)
	}
	defer func() {
		if termErr := worker.Terminate(); termErr != nil {
			a.logger.Warn("terminate ocr worker failed", "error", termErr)
		}
	}()

	raw, err := worker.Recognize(ctx, filePath)
	if err != nil {
		return "", fmt.Errorf("extract text from image: %w", err)
	}
	text = Normalize(raw)
	a.logger.Debug("ocr done", "chars", len(text))
	return text, nil
}

var (
	reSpaces    = regexp.MustCompile(`[ \t\f\v]+`)
	reBlankRuns = regexp.MustCompile(`\n{3,}`)
)

// Normalize collapses horizontal whitespace and long blank runs.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(reSpaces.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	s = reBlankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
