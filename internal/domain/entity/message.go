package entity

import "github.com/google/uuid"

// AnalysisRequestMessage is the inbound message from the analysis.request queue.
type AnalysisRequestMessage struct {
	JobID     uuid.UUID `json:"job_id"`
	UserID    string    `json:"user_id"`
	MediaKey  string    `json:"media_key"`
	Filename  string    `json:"filename"`
	Kind      string    `json:"kind,omitempty"`
	Mode      string    `json:"analysis_type"`
	Day       int       `json:"day_of_development,omitempty"`
	UserEmail string    `json:"user_email,omitempty"`
}

// AnalysisResultMessage is the outbound message published to the analysis.result queue.
// Exactly one of Report or Error is set.
type AnalysisResultMessage struct {
	JobID        uuid.UUID          `json:"job_id"`
	UserID       string             `json:"user_id"`
	Status       JobStatus          `json:"status"`
	MediaKey     string             `json:"media_key"`
	Report       *ConcordanceReport `json:"report,omitempty"`
	ErrorKind    string             `json:"error_kind,omitempty"`
	ErrorMessage string             `json:"error_message,omitempty"`
	Attempt      int                `json:"attempt"`
	MaxAttempts  int                `json:"max_attempts"`
}

func NewResultMessage(job *Job) AnalysisResultMessage {
	return AnalysisResultMessage{
		JobID:        job.ID,
		UserID:       job.UserID,
		Status:       job.Status,
		MediaKey:     job.MediaKey,
		Report:       job.Report,
		ErrorKind:    job.ErrorKind,
		ErrorMessage: job.ErrorMessage,
		Attempt:      job.Attempt,
		MaxAttempts:  job.MaxAttempts,
	}
}
