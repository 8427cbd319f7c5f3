package port

import "context"

// FailureNotice tells a person that a submission produced no clinical result.
type FailureNotice struct {
	To          string
	JobID       string
	MediaKey    string
	Mode        string
	Reason      string
	Attempt     int
	MaxAttempts int
}

type FailureNotifier interface {
	NotifyFailure(ctx context.Context, notice FailureNotice) error
}
