package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vikrammonish02/EMprion/internal/domain/entity"
	"github.com/vikrammonish02/EMprion/internal/domain/port"
	"github.com/vikrammonish02/EMprion/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Analyzer turns one request into a report.
type Analyzer interface {
	Analyze(ctx context.Context, req entity.AnalysisRequest) (*entity.ConcordanceReport, error)
}

type ProcessAnalysisUseCase struct {
	analyzer  Analyzer
	storage   port.MediaStorage
	publisher port.ResultPublisher
	dlq       port.DLQPublisher
	notifier  port.FailureNotifier
	attempts  *attemptTracker
	logger    *zap.Logger
	tempDir   string
	maxRetry  int
	maxBytes  int64
	labEmail  string
}

type ProcessAnalysisConfig struct {
	TempDir        string
	MaxRetries     int
	MaxUploadBytes int64
	// LabEmail receives failure notices for requests that carry no user e-mail.
	LabEmail       string
}

func NewProcessAnalysisUseCase(
	analyzer Analyzer,
	storage port.MediaStorage,
	publisher port.ResultPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg ProcessAnalysisConfig,
) *ProcessAnalysisUseCase {
	return &ProcessAnalysisUseCase{
		analyzer:  analyzer,
		storage:   storage,
		publisher: publisher,
		dlq:       dlq,
		notifier:  notifier,
		attempts:  newAttemptTracker(),
		logger:    logger,
		tempDir:   cfg.TempDir,
		maxRetry:  cfg.MaxRetries,
		maxBytes:  cfg.MaxUploadBytes,
		labEmail:  cfg.LabEmail,
	}
}

// Execute handles one delivery from the analysis queue. A nil return acks the message; an
// error asks the consumer to requeue it with backoff.
func (uc *ProcessAnalysisUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "ProcessAnalysisUseCase.Execute")
	defer span.End()

	var msg entity.AnalysisRequestMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, port.DeadLetter{Body: rawMsg, Reason: "unmarshal_error: " + err.Error()})
		return nil
	}

	job := entity.NewJob(msg, uc.maxRetry)
	job.Attempt = uc.attempts.get(job.ID)

	span.SetAttributes(
		attribute.String("job.id", job.ID.String()),
		attribute.String("job.media_key", msg.MediaKey),
		attribute.String("job.analysis_type", msg.Mode),
	)
	log := uc.logger.With(zap.String("job_id", job.ID.String()), zap.String("media_key", msg.MediaKey))

	if !job.CanRetry() {
		log.Warn("job exhausted retries, sending to DLQ")
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, entity.ErrServiceUnavailable, "max retries exceeded")
	}

	req, err := uc.parseRequest(job, msg)
	if err != nil {
		job.MarkProcessing()
		uc.reject(ctx, job, err, log)
		return nil
	}

	job.MarkProcessing()
	uc.attempts.set(job.ID, job.Attempt)

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	return uc.processAnalysisPipeline(ctx, job, msg, req, rawMsg, log)
}

func (uc *ProcessAnalysisUseCase) parseRequest(job *entity.Job, msg entity.AnalysisRequestMessage) (entity.AnalysisRequest, error) {
	if msg.MediaKey == "" {
		return entity.AnalysisRequest{}, entity.NewAnalysisError(entity.ErrInvalidRequest, "No media was attached to the request.", nil)
	}
	mode, err := entity.ParseAnalysisMode(msg.Mode)
	if err != nil {
		return entity.AnalysisRequest{}, entity.NewAnalysisError(entity.ErrInvalidRequest, fmt.Sprintf("Unknown analysis type %q.", msg.Mode), err)
	}
	job.Mode = mode

	name := msg.Filename
	if name == "" {
		name = filepath.Base(msg.MediaKey)
	}
	kind := entity.MediaKindFromFilename(name)
	if msg.Kind != "" {
		if kind, err = entity.ParseMediaKind(msg.Kind); err != nil {
			return entity.AnalysisRequest{}, entity.NewAnalysisError(entity.ErrInvalidRequest, fmt.Sprintf("Unknown media kind %q.", msg.Kind), err)
		}
	}
	job.Kind = kind

	return entity.AnalysisRequest{
		Media: entity.MediaInput{Kind: kind, Filename: name},
		Mode:  mode,
		Day:   msg.Day,
	}, nil
}

func (uc *ProcessAnalysisUseCase) processAnalysisPipeline(
	ctx context.Context,
	job *entity.Job,
	msg entity.AnalysisRequestMessage,
	req entity.AnalysisRequest,
	rawMsg []byte,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")

	// Download media from MinIO
	dlStart := time.Now()
	ctx2, spanDl := tracer.Start(ctx, "download_media")
	size, err := uc.storage.MediaSize(ctx2, msg.MediaKey)
	if err != nil {
		spanDl.End()
		log.Error("failed to stat media", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "stat_media: "+err.Error(), log)
	}
	if uc.maxBytes > 0 && size > uc.maxBytes {
		spanDl.End()
		uc.reject(ctx, job, entity.NewAnalysisError(entity.ErrInvalidRequest,
			fmt.Sprintf("Uploaded file is %d bytes, the limit is %d.", size, uc.maxBytes), nil), log)
		return nil
	}

	workDir := filepath.Join(uc.tempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		spanDl.End()
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	mediaPath := filepath.Join(workDir, "input"+filepath.Ext(req.Media.Filename))
	if err := uc.storage.DownloadMedia(ctx2, msg.MediaKey, mediaPath); err != nil {
		spanDl.End()
		log.Error("failed to download media", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "download_media: "+err.Error(), log)
	}
	data, err := os.ReadFile(mediaPath)
	spanDl.End()
	if err != nil {
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "read_media: "+err.Error(), log)
	}
	metrics.StageDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	req.Media.Data = data
	report, err := uc.analyzer.Analyze(ctx, req)
	switch {
	case err == nil:
	case entity.IsUserError(err):
		uc.reject(ctx, job, err, log)
		return nil
	default:
		// Model load failures are cached process state: an unavailable backend fails
		// the job at once.
		log.Error("analysis failed", zap.Error(err))
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, err, entity.ReasonOf(err))
	}

	job.MarkCompleted(report)
	uc.attempts.forget(job.ID)
	uc.publishResult(ctx, job, log)

	log.Info("job completed successfully",
		zap.String("report_id", report.ID),
		zap.String("status", string(report.Status)),
		zap.Int("frames_analyzed", report.FramesAnalyzed),
	)
	return nil
}

func (uc *ProcessAnalysisUseCase) reject(ctx context.Context, job *entity.Job, err error, log *zap.Logger) {
	reason := entity.ReasonOf(err)
	log.Info("analysis rejected", zap.String("kind", errorKind(err)), zap.String("reason", reason))
	job.MarkRejected(errorKind(err), reason)
	uc.attempts.forget(job.ID)
	uc.publishResult(ctx, job, log)
}

func (uc *ProcessAnalysisUseCase) handleRetryableFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.AnalysisRequestMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	if !job.CanRetry() {
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, entity.ErrServiceUnavailable, errMsg)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(job.Attempt)).Inc()
	log.Warn("retryable failure", zap.Int("attempt", job.Attempt), zap.Int("max_attempts", job.MaxAttempts), zap.String("reason", errMsg))

	return fmt.Errorf("retryable failure (attempt %d/%d): %s", job.Attempt, job.MaxAttempts, errMsg)
}

func (uc *ProcessAnalysisUseCase) handlePermanentFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.AnalysisRequestMessage,
	rawMsg []byte,
	cause error,
	errMsg string,
) error {
	job.MarkFailed(errorKind(cause), errMsg)
	uc.attempts.forget(job.ID)

	_ = uc.dlq.PublishToDLQ(ctx, port.DeadLetter{
		Body:    rawMsg,
		Reason:  errMsg,
		JobID:   job.ID.String(),
		Attempt: job.Attempt,
	})

	uc.publishResult(ctx, job, uc.logger)

	notice := port.FailureNotice{
		To:          msg.UserEmail,
		JobID:       job.ID.String(),
		MediaKey:    msg.MediaKey,
		Mode:        msg.Mode,
		Reason:      errMsg,
		Attempt:     job.Attempt,
		MaxAttempts: job.MaxAttempts,
	}
	if notice.To == "" {
		notice.To = uc.labEmail
	}
	if notice.To != "" {
		_ = uc.notifier.NotifyFailure(ctx, notice)
	}

	return nil
}

func (uc *ProcessAnalysisUseCase) publishResult(ctx context.Context, job *entity.Job, log *zap.Logger) {
	if err := uc.publisher.PublishResult(ctx, entity.NewResultMessage(job)); err != nil {
		log.Error("failed to publish result", zap.Error(err))
	}
}

// errorKind maps a pipeline error to the stable identifier published in result messages.
func errorKind(err error) string {
	switch {
	case errors.Is(err, entity.ErrGateRejected):
		return "gate_rejected"
	case errors.Is(err, entity.ErrEmptySequence):
		return "empty_sequence"
	case errors.Is(err, entity.ErrModeInputMismatch):
		return "mode_input_mismatch"
	case errors.Is(err, entity.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, entity.ErrDimensionMismatch):
		return "dimension_mismatch"
	case errors.Is(err, entity.ErrServiceUnavailable):
		return "service_unavailable"
	case errors.Is(err, entity.ErrInferenceFailure):
		return "inference_failure"
	}
	return "internal"
}

// attemptTracker counts deliveries per job across requeues.
type attemptTracker struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]int
}

func newAttemptTracker() *attemptTracker {
	return &attemptTracker{attempts: make(map[uuid.UUID]int)}
}

func (t *attemptTracker) get(id uuid.UUID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts[id]
}

func (t *attemptTracker) set(id uuid.UUID, attempt int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts[id] = attempt
}

func (t *attemptTracker) forget(id uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.attempts, id)
}
