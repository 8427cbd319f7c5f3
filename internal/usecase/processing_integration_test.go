package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
	tcrabbitmq "github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/vikrammonish02/EMprion/internal/concordance"
	"github.com/vikrammonish02/EMprion/internal/domain/entity"
	"github.com/vikrammonish02/EMprion/internal/inference"
	"github.com/vikrammonish02/EMprion/internal/infra/email"
	"github.com/vikrammonish02/EMprion/internal/infra/ffmpeg"
	miniostorage "github.com/vikrammonish02/EMprion/internal/infra/minio"
	"github.com/vikrammonish02/EMprion/internal/infra/rabbitmq"
	"github.com/vikrammonish02/EMprion/internal/kpi"
	"github.com/vikrammonish02/EMprion/internal/sampler"
	"github.com/vikrammonish02/EMprion/pkg/logger"
)

const (
	itExchange    = "embryo"
	itQueue       = "embryo.analysis"
	itResultQueue = "embryo.results"
	itDLQ         = "embryo.analysis.dlq"
	itBucket      = "embryo-media"
)

type integrationEnv struct {
	rmqConn *amqp.Connection
	minio   *miniogo.Client
}

// startWorker brings up RabbitMQ and MinIO containers and a worker wired to the
// simulated backend. The worker stops when the test ends.
func startWorker(t *testing.T, ctx context.Context) *integrationEnv {
	t.Helper()

	rmqContainer, err := tcrabbitmq.Run(ctx, "rabbitmq:3.12-management-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = rmqContainer.Terminate(context.Background()) })

	rmqURL, err := rmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	minioContainer, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = minioContainer.Terminate(context.Background()) })

	minioEndpoint, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err)

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:    minioEndpoint,
		AccessKey:   "minioadmin",
		SecretKey:   "minioadmin",
		MediaBucket: itBucket,
	})
	require.NoError(t, err)
	require.NoError(t, storage.EnsureBucket(ctx))

	minioClient, err := miniogo.New(minioEndpoint, &miniogo.Options{
		Creds: credentials.NewStaticV4("minioadmin", "minioadmin", ""),
	})
	require.NoError(t, err)

	rmqConn, err := amqp.Dial(rmqURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rmqConn.Close() })

	pub, err := rabbitmq.NewPublisher(rmqConn, itExchange)
	require.NoError(t, err)

	log, _ := logger.New("debug")
	smp := sampler.New(ffmpeg.NewExtractor(log), ffmpeg.NewTranscoder(log), sampler.Config{TempDir: t.TempDir()}, log)
	analyze := NewAnalyzeEmbryoUseCase(
		inference.NewSimulatedBackend(),
		smp,
		kpi.NewDeriver(kpi.NewJitter()),
		concordance.NewSynthesizer(),
		log,
		AnalyzeEmbryoConfig{StructuralFallback: true, InferenceConcurrency: 1},
	)
	uc := NewProcessAnalysisUseCase(
		analyze, storage,
		rabbitmq.NewResultPublisher(pub, rabbitmq.ResultRoutingKey),
		rabbitmq.NewDLQPublisher(pub, itDLQ),
		email.NewSMTPNotifier("localhost", 1025, "test@test.local", log),
		log,
		ProcessAnalysisConfig{TempDir: t.TempDir(), MaxRetries: 3, MaxUploadBytes: 10 << 20},
	)

	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         rmqURL,
		Queue:       itQueue,
		Exchange:    itExchange,
		DLQ:         itDLQ,
		ResultQueue: itResultQueue,
		Prefetch:    1,
		WorkerCount: 1,
		BaseDelayMs: 100,
	}, uc.Execute, log)
	require.NoError(t, err)

	consumerCtx, consumerCancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = consumer.Start(consumerCtx)
	}()
	t.Cleanup(func() {
		consumerCancel()
		<-done
		_ = consumer.Close()
	})

	// Give consumer time to start
	time.Sleep(500 * time.Millisecond)

	return &integrationEnv{rmqConn: rmqConn, minio: minioClient}
}

func (env *integrationEnv) publish(t *testing.T, ctx context.Context, body []byte) {
	t.Helper()
	ch, err := env.rmqConn.Channel()
	require.NoError(t, err)
	defer ch.Close()
	err = ch.PublishWithContext(ctx, itExchange, rabbitmq.AnalysisRoutingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	require.NoError(t, err)
}

func TestProcessAnalysisEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	env := startWorker(t, ctx)

	mediaKey := "lab-1/embryo.png"
	img := encodePNG(ringImage(224, 60))
	_, err := env.minio.PutObject(ctx, itBucket, mediaKey, bytes.NewReader(img), int64(len(img)), miniogo.PutObjectOptions{
		ContentType: "image/png",
	})
	require.NoError(t, err)

	resultCh, err := env.rmqConn.Channel()
	require.NoError(t, err)
	defer resultCh.Close()
	results, err := resultCh.Consume(itResultQueue, "", true, false, false, false, nil)
	require.NoError(t, err)

	jobID := uuid.New()
	body, err := json.Marshal(entity.AnalysisRequestMessage{
		JobID:    jobID,
		UserID:   "lab-1",
		MediaKey: mediaKey,
		Filename: "embryo.png",
		Mode:     "morphology",
		Day:      5,
	})
	require.NoError(t, err)
	env.publish(t, ctx, body)

	var result struct {
		JobID  uuid.UUID        `json:"job_id"`
		Status entity.JobStatus `json:"status"`
		Report struct {
			Status      entity.ReportStatus `json:"status"`
			Backend     string              `json:"backend"`
			Concordance struct {
				Status entity.ConcordanceStatus `json:"status"`
			} `json:"concordance"`
		} `json:"report"`
	}
	select {
	case delivery := <-results:
		require.NoError(t, json.Unmarshal(delivery.Body, &result))
		assert.Equal(t, jobID.String(), delivery.CorrelationId)
		assert.Equal(t, string(entity.JobStatusCompleted), delivery.Type)
	case <-time.After(2 * time.Minute):
		t.Fatal("timeout waiting for result message")
	}

	assert.Equal(t, jobID, result.JobID)
	assert.Equal(t, entity.JobStatusCompleted, result.Status)
	assert.Equal(t, entity.ReportComplete, result.Report.Status)
	assert.Equal(t, "simulated", result.Report.Backend)
	assert.Equal(t, entity.ConcordanceMorphologyOnly, result.Report.Concordance.Status)
}

func TestProcessAnalysisMalformedMessage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	env := startWorker(t, ctx)
	env.publish(t, ctx, []byte(`{invalid json`))

	// Wait and verify message landed in DLQ
	time.Sleep(2 * time.Second)

	dlqCh, err := env.rmqConn.Channel()
	require.NoError(t, err)
	defer dlqCh.Close()

	dlqMsg, ok, err := dlqCh.Get(itDLQ, true)
	require.NoError(t, err)
	assert.True(t, ok, "malformed message should be in DLQ")
	assert.Equal(t, `{invalid json`, string(dlqMsg.Body))
	assert.Contains(t, dlqMsg.Headers["x-dlq-reason"], "unmarshal_error")
}
