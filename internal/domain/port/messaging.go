package port

import (
	"context"

	"github.com/vikrammonish02/EMprion/internal/domain/entity"
)

// ResultPublisher delivers the outcome of every job that reaches a terminal state.
type ResultPublisher interface {
	PublishResult(ctx context.Context, result entity.AnalysisResultMessage) error
}

// DeadLetter is an inbound message parked for manual inspection.
type DeadLetter struct {
	Body    []byte
	Reason  string
	JobID   string
	Attempt int
}

type DLQPublisher interface {
	PublishToDLQ(ctx context.Context, letter DeadLetter) error
}
