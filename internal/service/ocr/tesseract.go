package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TesseractEngine hands out workers that shell out to the tesseract CLI.
type TesseractEngine struct {
	Binary      string
	TessdataDir string
	runner      Runner
}

func NewTesseractEngine(binary, tessdataDir string) *TesseractEngine {
	if binary == "" {
		binary = "tesseract"
	}
	return &TesseractEngine{Binary: binary, TessdataDir: tessdataDir, runner: execRunner{}}
}

// NewWorker allocates a scratch directory that Terminate removes.
func (e *TesseractEngine) NewWorker(_ context.Context, lang string) (Worker, error) {
	scratch, err := os.MkdirTemp("", "taxfiler-tess-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return &tesseractWorker{engine: e, lang: lang, scratch: scratch}, nil
}

type tesseractWorker struct {
	engine  *TesseractEngine
	lang    string
	scratch string
	pages   int
}

// Recognize runs `tesseract <image> <scratch>/page-N -l <lang>` and reads page-N.txt.
func (w *tesseractWorker) Recognize(ctx context.Context, imagePath string) (string, error) {
	if w.scratch == "" {
		return "", fmt.Errorf("worker terminated")
	}
	w.pages++
	base := filepath.Join(w.scratch, fmt.Sprintf("page-%d", w.pages))
	args := []string{imagePath, base, "-l", w.lang}
	if w.engine.TessdataDir != "" {
		args = append(args, "--tessdata-dir", w.engine.TessdataDir)
	}
	if _, errb, err := w.engine.runner.Run(ctx, w.engine.Binary, args...); err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(string(errb)))
	}
	out, err := os.ReadFile(base + ".txt")
	if err != nil {
		return "", fmt.Errorf("read tesseract output: %w", err)
	}
	return string(out), nil
}

func (w *tesseractWorker) Terminate() error {
	if w.scratch == "" {
		return nil
	}
	err := os.RemoveAll(w.scratch)
	w.scratch = ""
	return err
}
