package models

import "time"

// JobStage names the next pipeline stage a job has to run.
type JobStage string

const (
	StageOCR        JobStage = "ocr"
	StageExtraction JobStage = "extraction"
	StageSuggestion JobStage = "suggestion"
	StageDone       JobStage = "done"
)

type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobFailed    JobStatus = "failed"
	JobCompleted JobStatus = "completed"
)

// FilingJob tracks pipeline progress for one upload so a failed run can resume.
type FilingJob struct {
	UploadID  int64     `json:"uploadId"`
	UserID    int64     `json:"userId"`
	FilingID  int64     `json:"filingId,omitempty"`
	Stage     JobStage  `json:"stage"`
	Status    JobStatus `json:"status"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"lastError,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}
