package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusRejected   JobStatus = "REJECTED"
	JobStatusFailed     JobStatus = "FAILED"
)

// Job is a queued analysis request. It only lives for the duration of one delivery.
type Job struct {
	ID           uuid.UUID
	UserID       string
	MediaKey     string
	Filename     string
	Kind         MediaKind
	Mode         AnalysisMode
	Day          int
	Status       JobStatus
	Report       *ConcordanceReport
	ErrorKind    string
	ErrorMessage string
	Attempt      int
	MaxAttempts  int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

func NewJob(msg AnalysisRequestMessage, maxAttempts int) *Job {
	now := time.Now().UTC()
	id := msg.JobID
	if id == uuid.Nil {
		id = uuid.New()
	}
	return &Job{
		ID:          id,
		UserID:      msg.UserID,
		MediaKey:    msg.MediaKey,
		Filename:    msg.Filename,
		Day:         msg.Day,
		Status:      JobStatusPending,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// CanRetry reports whether another attempt is allowed after a transient failure.
func (j *Job) CanRetry() bool {
	return j.Attempt < j.MaxAttempts
}

func (j *Job) MarkProcessing() {
	j.Status = JobStatusProcessing
	j.Attempt++
	j.UpdatedAt = time.Now().UTC()
}

func (j *Job) MarkCompleted(report *ConcordanceReport) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.Report = report
	j.UpdatedAt = now
	j.CompletedAt = &now
}

// MarkRejected records a user-correctable failure (gate rejection, bad mode, ...).
func (j *Job) MarkRejected(kind, reason string) {
	j.finishWithError(JobStatusRejected, kind, reason)
}

func (j *Job) MarkFailed(kind, reason string) {
	j.finishWithError(JobStatusFailed, kind, reason)
}

func (j *Job) finishWithError(status JobStatus, kind, reason string) {
	now := time.Now().UTC()
	j.Status = status
	j.ErrorKind = kind
	j.ErrorMessage = reason
	j.UpdatedAt = now
	j.CompletedAt = &now
}
