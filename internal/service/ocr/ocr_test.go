package ocr

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeWorker struct {
	text       string
	err        error
	terminated int
}

func (w *fakeWorker) Recognize(context.Context, string) (string, error) { return w.text, w.err }
func (w *fakeWorker) Terminate() error {
	w.terminated++
	return nil
}

type fakeEngine struct {
	worker  *fakeWorker
	created int
	lang    string
}

func (e *fakeEngine) NewWorker(_ context.Context, lang string) (Worker, error) {
	e.created++
	e.lang = lang
	return e.worker, nil
}

func TestExtractTextImage(t *testing.T) {
	engine := &fakeEngine{worker: &fakeWorker{text: "  FORM   NO. 16 \r\n\n\n\nPAN:\tABCDE1234F  "}}
	adapter := NewAdapter(engine, "", nil)
	text, err := adapter.ExtractText(context.Background(), "/tmp/x.png", "image/png")
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if text != "FORM NO. 16\n\nPAN: ABCDE1234F" {
		t.Fatalf("unexpected normalized text %q", text)
	}
	if engine.lang != "eng" {
		t.Fatalf("expected default eng language, got %q", engine.lang)
	}
	if engine.worker.terminated != 1 {
		t.Fatalf("worker not terminated")
	}
}

func TestExtractTextTerminatesOnFailure(t *testing.T) {
	engine := &fakeEngine{worker: &fakeWorker{err: errors.New("boom")}}
	adapter := NewAdapter(engine, "eng", nil)
	_, err := adapter.ExtractText(context.Background(), "/tmp/x.jpg", "image/jpeg")
	if err == nil || !strings.Contains(err.Error(), "extract text from image") {
		t.Fatalf("expected wrapped image error, got %v", err)
	}
	if engine.worker.terminated != 1 {
		t.Fatalf("worker must be terminated on failure")
	}
}

func TestExtractTextPDFAndUnsupported(t *testing.T) {
	engine := &fakeEngine{worker: &fakeWorker{}}
	adapter := NewAdapter(engine, "eng", nil)

	_, err := adapter.ExtractText(context.Background(), "/tmp/x.pdf", "application/pdf")
	if !errors.Is(err, ErrPDFNotImplemented) {
		t.Fatalf("expected ErrPDFNotImplemented, got %v", err)
	}
	_, err = adapter.ExtractText(context.Background(), "/tmp/x.txt", "text/plain")
	if !errors.Is(err, ErrUnsupportedFileType) {
		t.Fatalf("expected ErrUnsupportedFileType, got %v", err)
	}
	if engine.created != 0 {
		t.Fatalf("no worker should be created for non-images")
	}
}

type fakeRunner struct {
	args []string
}

func (r *fakeRunner) Run(_ context.Context, _ string, args ...string) ([]byte, []byte, error) {
	r.args = args
	// tesseract writes <outbase>.txt
	return nil, nil, os.WriteFile(args[1]+".txt", []byte("Gross Salary 900000"), 0o600)
}

func TestTesseractWorkerLifecycle(t *testing.T) {
	runner := &fakeRunner{}
	engine := NewTesseractEngine("", "/opt/tessdata")
	engine.runner = runner

	w, err := engine.NewWorker(context.Background(), "eng")
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	tw := w.(*tesseractWorker)
	scratch := tw.scratch
	text, err := w.Recognize(context.Background(), "/data/form16.png")
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if text != "Gross Salary 900000" {
		t.Fatalf("unexpected text %q", text)
	}
	if runner.args[0] != "/data/form16.png" || runner.args[3] != "eng" || runner.args[5] != "/opt/tessdata" {
		t.Fatalf("unexpected args %v", runner.args)
	}
	if filepath.Dir(runner.args[1]) != scratch {
		t.Fatalf("output not written to scratch dir")
	}
	if err := w.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if _, err := os.Stat(scratch); !os.IsNotExist(err) {
		t.Fatalf("scratch dir not removed")
	}
	if _, err := w.Recognize(context.Background(), "/data/form16.png"); err == nil {
		t.Fatalf("terminated worker must refuse work")
	}
}
