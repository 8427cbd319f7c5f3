package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/vikrammonish02/EMprion/internal/concordance"
	"github.com/vikrammonish02/EMprion/internal/domain/port"
	"github.com/vikrammonish02/EMprion/internal/inference"
	"github.com/vikrammonish02/EMprion/internal/infra/config"
	"github.com/vikrammonish02/EMprion/internal/infra/email"
	"github.com/vikrammonish02/EMprion/internal/infra/ffmpeg"
	"github.com/vikrammonish02/EMprion/internal/infra/metrics"
	miniostorage "github.com/vikrammonish02/EMprion/internal/infra/minio"
	"github.com/vikrammonish02/EMprion/internal/infra/onnx"
	"github.com/vikrammonish02/EMprion/internal/infra/rabbitmq"
	"github.com/vikrammonish02/EMprion/internal/infra/tracing"
	"github.com/vikrammonish02/EMprion/internal/kpi"
	"github.com/vikrammonish02/EMprion/internal/sampler"
	"github.com/vikrammonish02/EMprion/internal/usecase"
	"github.com/vikrammonish02/EMprion/pkg/logger"
	"go.uber.org/zap"
)

const serviceName = "embryo-assessment-worker"

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting " + serviceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if Jaeger unavailable)
	tp, err := tracing.InitTracer(ctx, tracing.TracerConfig{
		Endpoint:    cfg.JaegerEndpoint,
		ServiceName: serviceName,
		SampleRatio: cfg.TraceSampleRatio,
	})
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(ctx)
	}

	// Inference backend, chosen once
	backend, models := newBackend(ctx, cfg, log)
	defer models.closeAll(log)

	// MinIO
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:    cfg.MinIOEndpoint,
		AccessKey:   cfg.MinIOAccessKey,
		SecretKey:   cfg.MinIOSecretKey,
		UseSSL:      cfg.MinIOUseSSL,
		MediaBucket: cfg.MinIOMediaBucket,
	})
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBucket(ctx), "ensure minio bucket")

	// RabbitMQ publisher connection
	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq for publisher")
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")
	defer pub.Close()

	resultPub := rabbitmq.NewResultPublisher(pub, rabbitmq.ResultRoutingKey)
	dlqPub := rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ)

	// Pipeline
	smp := sampler.New(ffmpeg.NewExtractor(log), ffmpeg.NewTranscoder(log), sampler.Config{
		MinFrames:     cfg.SamplerMinFrames,
		DefaultFrames: cfg.SamplerDefaultFrames,
		FrameSize:     cfg.FrameSize,
		TempDir:       cfg.TempDir,
	}, log)
	analyze := usecase.NewAnalyzeEmbryoUseCase(
		backend,
		smp,
		kpi.NewDeriver(kpi.NewJitter()),
		concordance.NewSynthesizer(),
		log,
		usecase.AnalyzeEmbryoConfig{
			StructuralFallback:   cfg.StructuralFallbackEnabled(),
			InferenceConcurrency: cfg.InferenceConcurrency,
		},
	)

	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)

	// Use case
	uc := usecase.NewProcessAnalysisUseCase(
		analyze, storage, resultPub, dlqPub, notifier,
		log,
		usecase.ProcessAnalysisConfig{
			TempDir:        cfg.TempDir,
			MaxRetries:     cfg.MaxRetries,
			MaxUploadBytes: cfg.MaxUploadBytes,
			LabEmail:       cfg.NotificationTo,
		},
	)

	// Metrics server
	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, backend.Available, log)

	// Consumer (worker pool)
	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Queue:       cfg.RabbitMQAnalysisQueue,
		Exchange:    cfg.RabbitMQExchange,
		DLQ:         cfg.RabbitMQDLQ,
		ResultQueue: cfg.RabbitMQResultQueue,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, uc.Execute, log)
	fatalOnErr(err, "create consumer")

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info(serviceName+" started, consuming messages", zap.String("backend", backend.Name()))

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	// Shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	consumer.Close()
	log.Info(serviceName + " stopped")
}

// newBackend picks the simulated backend when ALLOW_SIMULATION is set, otherwise opens
// the ONNX models. Model failures are not fatal: the backend reports them per request.
func newBackend(ctx context.Context, cfg *config.Config, log *zap.Logger) (port.InferenceBackend, *modelSet) {
	models := &modelSet{}
	if cfg.AllowSimulation {
		log.Warn("ALLOW_SIMULATION is set: reports come from the simulated backend and are not clinical output")
		return inference.NewSimulatedBackend(), models
	}

	fatalOnErr(onnx.InitEnvironment(cfg.ONNXRuntimeLib), "init onnx runtime")
	models.add(closerFunc(onnx.DestroyEnvironment))

	var loaders inference.Loaders
	if cfg.GateModelPath != "" {
		loaders.Semantic = func(context.Context) (port.SemanticModel, error) {
			m, err := onnx.NewClipScorer(cfg.GateModelPath, cfg.GatePromptsPath)
			if err != nil {
				return nil, err
			}
			models.add(m)
			return m, nil
		}
	}
	if cfg.StageModelPath != "" {
		loaders.Stage = func(context.Context) (port.StageModel, error) {
			m, err := onnx.NewStageSession(cfg.StageModelPath, cfg.StageModelMeta)
			if err != nil {
				return nil, err
			}
			models.add(m)
			return m, nil
		}
	}
	if cfg.MorphologyModelPath != "" {
		loaders.Morphology = func(context.Context) (port.MorphologyModel, error) {
			m, err := onnx.NewMorphologySession(cfg.MorphologyModelPath, cfg.MorphologyModelMeta)
			if err != nil {
				return nil, err
			}
			models.add(m)
			return m, nil
		}
	}

	registry := inference.NewModelRegistry(loaders, log)
	fatalOnErr(registry.Load(ctx), "load models")

	for name, err := range map[string]error{
		"semantic":   registry.SemanticErr(),
		"stage":      registry.StageErr(),
		"morphology": registry.MorphologyErr(),
	} {
		loaded := 0.0
		if err == nil {
			loaded = 1
		}
		metrics.ModelLoaded.WithLabelValues(name).Set(loaded)
	}

	backend := inference.NewRealBackend(registry)
	if err := backend.Available(); err != nil {
		log.Error("inference backend unavailable, every analysis will be refused", zap.Error(err))
	}
	return backend, models
}

// modelSet collects loaded sessions so they are released on shutdown. Sessions are added
// from concurrent loaders.
type modelSet struct {
	mu      sync.Mutex
	closers []io.Closer
}

func (m *modelSet) add(c io.Closer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closers = append(m.closers, c)
}

// closeAll releases sessions before the runtime environment, in reverse order of adding.
func (m *modelSet) closeAll(log *zap.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.closers) - 1; i >= 0; i-- {
		if err := m.closers[i].Close(); err != nil {
			log.Warn("failed to release model", zap.Error(err))
		}
	}
	m.closers = nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
