package models

import "time"

type UploadStatus string

const (
	UploadUploaded   UploadStatus = "uploaded"
	UploadProcessing UploadStatus = "processing"
	UploadCompleted  UploadStatus = "completed"
	UploadFailed     UploadStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s UploadStatus) Terminal() bool {
	return s == UploadCompleted || s == UploadFailed
}

// CanTransition enforces uploaded -> processing -> completed, with failed
// reachable from any non-terminal state.
func (s UploadStatus) CanTransition(next UploadStatus) bool {
	if s.Terminal() {
		return false
	}
	switch next {
	case UploadFailed:
		return true
	case UploadProcessing:
		return s == UploadUploaded
	case UploadCompleted:
		return s == UploadProcessing
	default:
		return false
	}
}

// FileUpload records one submitted document and its OCR outcome.
type FileUpload struct {
	ID        int64        `json:"id"`
	UserID    int64        `json:"userId"`
	Filename  string       `json:"filename"`
	FileType  string       `json:"fileType"`
	FileSize  int64        `json:"fileSize"`
	FilePath  string       `json:"filePath"`
	Status    UploadStatus `json:"status"`
	OCRText   string       `json:"ocrText,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}
