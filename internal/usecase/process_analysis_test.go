package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vikrammonish02/EMprion/internal/domain/entity"
	"github.com/vikrammonish02/EMprion/internal/domain/port"
	"go.uber.org/zap"
)

type fakeStorage struct {
	objects   map[string][]byte
	statErr   error
	downloads int
}

func (s *fakeStorage) MediaSize(_ context.Context, key string) (int64, error) {
	if s.statErr != nil {
		return 0, s.statErr
	}
	data, ok := s.objects[key]
	if !ok {
		return 0, errors.New("object not found")
	}
	return int64(len(data)), nil
}

func (s *fakeStorage) DownloadMedia(_ context.Context, key, dest string) error {
	s.downloads++
	return os.WriteFile(dest, s.objects[key], 0o600)
}

type capturePublisher struct {
	results []entity.AnalysisResultMessage
}

func (p *capturePublisher) PublishResult(_ context.Context, result entity.AnalysisResultMessage) error {
	p.results = append(p.results, result)
	return nil
}

type captureDLQ struct {
	letters []port.DeadLetter
}

func (d *captureDLQ) PublishToDLQ(_ context.Context, letter port.DeadLetter) error {
	d.letters = append(d.letters, letter)
	return nil
}

type captureNotifier struct {
	notices []port.FailureNotice
}

func (n *captureNotifier) NotifyFailure(_ context.Context, notice port.FailureNotice) error {
	n.notices = append(n.notices, notice)
	return nil
}

func (n *captureNotifier) recipients() []string {
	var to []string
	for _, notice := range n.notices {
		to = append(to, notice.To)
	}
	return to
}

type stubAnalyzer struct {
	report   *entity.ConcordanceReport
	err      error
	requests []entity.AnalysisRequest
}

func (a *stubAnalyzer) Analyze(_ context.Context, req entity.AnalysisRequest) (*entity.ConcordanceReport, error) {
	a.requests = append(a.requests, req)
	return a.report, a.err
}

type processFixture struct {
	analyzer  *stubAnalyzer
	storage   *fakeStorage
	publisher *capturePublisher
	dlq       *captureDLQ
	notifier  *captureNotifier
	tempDir   string
	uc        *ProcessAnalysisUseCase
}

func newProcessFixture(t *testing.T, analyzer *stubAnalyzer) *processFixture {
	t.Helper()
	f := &processFixture{
		analyzer:  analyzer,
		storage:   &fakeStorage{objects: map[string][]byte{"user-1/embryo.png": []byte("png bytes")}},
		publisher: &capturePublisher{},
		dlq:       &captureDLQ{},
		notifier:  &captureNotifier{},
		tempDir:   t.TempDir(),
	}
	f.uc = NewProcessAnalysisUseCase(f.analyzer, f.storage, f.publisher, f.dlq, f.notifier, zap.NewNop(),
		ProcessAnalysisConfig{TempDir: f.tempDir, MaxRetries: 2, MaxUploadBytes: 1024})
	return f
}

func requestBody(t *testing.T, mutate func(*entity.AnalysisRequestMessage)) []byte {
	t.Helper()
	msg := entity.AnalysisRequestMessage{
		JobID:     uuid.New(),
		UserID:    "user-1",
		MediaKey:  "user-1/embryo.png",
		Filename:  "embryo.png",
		Mode:      "gardner",
		Day:       5,
		UserEmail: "lab@clinic.test",
	}
	if mutate != nil {
		mutate(&msg)
	}
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	return body
}

func TestProcessMalformedMessageGoesToDLQ(t *testing.T) {
	f := newProcessFixture(t, &stubAnalyzer{})

	err := f.uc.Execute(context.Background(), []byte(`{invalid json`))
	require.NoError(t, err)
	require.Len(t, f.dlq.letters, 1)
	assert.Equal(t, `{invalid json`, string(f.dlq.letters[0].Body))
	assert.Contains(t, f.dlq.letters[0].Reason, "unmarshal_error")
	assert.Empty(t, f.dlq.letters[0].JobID)
	assert.Empty(t, f.publisher.results)
	assert.Empty(t, f.analyzer.requests)
}

func TestProcessCompletedAnalysisPublishesReport(t *testing.T) {
	report := &entity.ConcordanceReport{ID: "r-1", Status: entity.ReportComplete, FramesAnalyzed: 1}
	f := newProcessFixture(t, &stubAnalyzer{report: report})

	err := f.uc.Execute(context.Background(), requestBody(t, nil))
	require.NoError(t, err)

	require.Len(t, f.analyzer.requests, 1)
	req := f.analyzer.requests[0]
	assert.Equal(t, entity.ModeMorphology, req.Mode)
	assert.Equal(t, entity.MediaKindImage, req.Media.Kind)
	assert.Equal(t, []byte("png bytes"), req.Media.Data)
	assert.Equal(t, 5, req.Day)

	require.Len(t, f.publisher.results, 1)
	res := f.publisher.results[0]
	assert.Equal(t, entity.JobStatusCompleted, res.Status)
	require.NotNil(t, res.Report)
	assert.Equal(t, "r-1", res.Report.ID)
	assert.Equal(t, entity.ReportComplete, res.Report.Status)
	assert.Equal(t, 1, res.Attempt)
	assert.Empty(t, f.dlq.letters)

	entries, err := os.ReadDir(f.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProcessRejectionIsAckedAndPublished(t *testing.T) {
	f := newProcessFixture(t, &stubAnalyzer{
		err: entity.NewAnalysisError(entity.ErrGateRejected, "Not an Embryo Image. Detected as: a photo of a person", nil),
	})

	err := f.uc.Execute(context.Background(), requestBody(t, nil))
	require.NoError(t, err)

	require.Len(t, f.publisher.results, 1)
	res := f.publisher.results[0]
	assert.Equal(t, entity.JobStatusRejected, res.Status)
	assert.Equal(t, "gate_rejected", res.ErrorKind)
	assert.Contains(t, res.ErrorMessage, "Not an Embryo Image")
	assert.Nil(t, res.Report)
	assert.Empty(t, f.dlq.letters)
	assert.Empty(t, f.notifier.notices)
}

func TestProcessUnknownModeIsRejected(t *testing.T) {
	f := newProcessFixture(t, &stubAnalyzer{})

	err := f.uc.Execute(context.Background(), requestBody(t, func(m *entity.AnalysisRequestMessage) {
		m.Mode = "histology"
	}))
	require.NoError(t, err)
	assert.Empty(t, f.analyzer.requests)
	require.Len(t, f.publisher.results, 1)
	assert.Equal(t, entity.JobStatusRejected, f.publisher.results[0].Status)
	assert.Equal(t, "invalid_request", f.publisher.results[0].ErrorKind)
}

func TestProcessOversizedUploadIsRejectedBeforeDownload(t *testing.T) {
	f := newProcessFixture(t, &stubAnalyzer{})
	f.storage.objects["user-1/embryo.png"] = make([]byte, 2048)

	err := f.uc.Execute(context.Background(), requestBody(t, nil))
	require.NoError(t, err)
	assert.Zero(t, f.storage.downloads)
	require.Len(t, f.publisher.results, 1)
	assert.Equal(t, entity.JobStatusRejected, f.publisher.results[0].Status)
	assert.Equal(t, "invalid_request", f.publisher.results[0].ErrorKind)
}

func TestProcessUnavailableFailsOnFirstAttempt(t *testing.T) {
	analyzer := &stubAnalyzer{
		err: entity.NewAnalysisError(entity.ErrServiceUnavailable, "Stage model is not loaded", nil),
	}
	f := newProcessFixture(t, analyzer)
	body := requestBody(t, nil)

	err := f.uc.Execute(context.Background(), body)
	require.NoError(t, err)
	assert.Len(t, analyzer.requests, 1)

	require.Len(t, f.dlq.letters, 1)
	letter := f.dlq.letters[0]
	assert.Equal(t, body, letter.Body)
	assert.Equal(t, 1, letter.Attempt)
	assert.NotEmpty(t, letter.JobID)

	require.Len(t, f.publisher.results, 1)
	res := f.publisher.results[0]
	assert.Equal(t, entity.JobStatusFailed, res.Status)
	assert.Equal(t, "service_unavailable", res.ErrorKind)
	assert.Equal(t, "Stage model is not loaded", res.ErrorMessage)
	assert.Equal(t, 1, res.Attempt)

	require.Len(t, f.notifier.notices, 1)
	notice := f.notifier.notices[0]
	assert.Equal(t, "lab@clinic.test", notice.To)
	assert.Equal(t, letter.JobID, notice.JobID)
	assert.Equal(t, "gardner", notice.Mode)
	assert.Equal(t, 1, notice.Attempt)
	assert.Equal(t, 2, notice.MaxAttempts)
}

func TestProcessGateUnavailableFailsOnFirstAttempt(t *testing.T) {
	f := newProcessFixture(t, &stubAnalyzer{
		err: entity.NewAnalysisError(entity.ErrServiceUnavailable, "Content gate is unavailable", nil),
	})

	err := f.uc.Execute(context.Background(), requestBody(t, nil))
	require.NoError(t, err)
	require.Len(t, f.publisher.results, 1)
	assert.Equal(t, entity.JobStatusFailed, f.publisher.results[0].Status)
	assert.Len(t, f.dlq.letters, 1)
}

func TestProcessStorageRetriesThenDeadLetters(t *testing.T) {
	f := newProcessFixture(t, &stubAnalyzer{})
	f.storage.statErr = errors.New("connection refused")
	body := requestBody(t, nil)

	err := f.uc.Execute(context.Background(), body)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "attempt 1/2")
	assert.Empty(t, f.publisher.results)
	assert.Empty(t, f.dlq.letters)

	err = f.uc.Execute(context.Background(), body)
	require.NoError(t, err)
	require.Len(t, f.dlq.letters, 1)
	assert.Equal(t, 2, f.dlq.letters[0].Attempt)
	require.Len(t, f.publisher.results, 1)
	assert.Equal(t, entity.JobStatusFailed, f.publisher.results[0].Status)
	assert.Equal(t, 2, f.publisher.results[0].Attempt)
}

func TestProcessStorageFailureIsRetryable(t *testing.T) {
	f := newProcessFixture(t, &stubAnalyzer{})
	f.storage.statErr = errors.New("connection refused")

	err := f.uc.Execute(context.Background(), requestBody(t, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stat_media")
	assert.Empty(t, f.analyzer.requests)
}

func TestProcessInternalFailureIsPermanent(t *testing.T) {
	f := newProcessFixture(t, &stubAnalyzer{
		err: entity.NewAnalysisError(entity.ErrDimensionMismatch, "stage output shape [1 40 12]", nil),
	})

	err := f.uc.Execute(context.Background(), requestBody(t, nil))
	require.NoError(t, err)
	require.Len(t, f.dlq.letters, 1)
	require.Len(t, f.publisher.results, 1)
	assert.Equal(t, entity.JobStatusFailed, f.publisher.results[0].Status)
	assert.Equal(t, "dimension_mismatch", f.publisher.results[0].ErrorKind)
	assert.Len(t, f.notifier.notices, 1)
}

func TestProcessFailureWithoutUserEmailNotifiesLab(t *testing.T) {
	f := newProcessFixture(t, &stubAnalyzer{err: errors.New("tensor arena exhausted")})
	f.uc.labEmail = "lab@clinic.test"

	err := f.uc.Execute(context.Background(), requestBody(t, func(m *entity.AnalysisRequestMessage) {
		m.UserEmail = ""
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"lab@clinic.test"}, f.notifier.recipients())
	assert.Equal(t, "internal", f.publisher.results[0].ErrorKind)
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "empty_sequence", errorKind(entity.NewAnalysisError(entity.ErrEmptySequence, "x", nil)))
	assert.Equal(t, "mode_input_mismatch", errorKind(entity.ErrModeInputMismatch))
	assert.Equal(t, "inference_failure", errorKind(entity.ErrInferenceFailure))
	assert.Equal(t, "internal", errorKind(errors.New("boom")))
}
