package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vikrammonish02/EMprion/internal/classifier"
	"github.com/vikrammonish02/EMprion/internal/concordance"
	"github.com/vikrammonish02/EMprion/internal/domain/entity"
	"github.com/vikrammonish02/EMprion/internal/domain/port"
	"github.com/vikrammonish02/EMprion/internal/gate"
	"github.com/vikrammonish02/EMprion/internal/infra/metrics"
	"github.com/vikrammonish02/EMprion/internal/kpi"
	"github.com/vikrammonish02/EMprion/internal/sampler"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

type AnalyzeEmbryoConfig struct {
	// StructuralFallback lets the structural gate stand in for a missing semantic model.
	StructuralFallback   bool
	// InferenceConcurrency bounds concurrent model forward passes across requests.
	InferenceConcurrency int
}

// AnalyzeEmbryoUseCase runs one upload through gating, sampling, classification, metric
// derivation and report synthesis.
type AnalyzeEmbryoUseCase struct {
	backend     port.InferenceBackend
	sampler     *sampler.Sampler
	structural  *gate.StructuralGate
	deriver     *kpi.Deriver
	synthesizer *concordance.Synthesizer
	slots       *semaphore.Weighted
	logger      *zap.Logger
}

func NewAnalyzeEmbryoUseCase(
	backend port.InferenceBackend,
	smp *sampler.Sampler,
	deriver *kpi.Deriver,
	synthesizer *concordance.Synthesizer,
	logger *zap.Logger,
	cfg AnalyzeEmbryoConfig,
) *AnalyzeEmbryoUseCase {
	uc := &AnalyzeEmbryoUseCase{
		backend:     backend,
		sampler:     smp,
		deriver:     deriver,
		synthesizer: synthesizer,
		slots:       semaphore.NewWeighted(int64(max(cfg.InferenceConcurrency, 1))),
		logger:      logger,
	}
	if cfg.StructuralFallback {
		uc.structural = gate.NewStructuralGate()
	}
	return uc
}

// analysisRun is the per-request state machine.
type analysisRun struct {
	id    string
	state entity.AnalysisState
	log   *zap.Logger
}

func (r *analysisRun) advance(next entity.AnalysisState) error {
	if !r.state.CanTransition(next) {
		return fmt.Errorf("invalid analysis transition %s -> %s", r.state, next)
	}
	r.log.Info("analysis state", zap.String("from", string(r.state)), zap.String("to", string(next)))
	r.state = next
	return nil
}

func (r *analysisRun) fail() {
	if r.state.Terminal() {
		return
	}
	r.log.Info("analysis state", zap.String("from", string(r.state)), zap.String("to", string(entity.AnalysisFailed)))
	r.state = entity.AnalysisFailed
}

// Analyze returns the report for req, or an *entity.AnalysisError. Rejections never come
// with a report. An inference failure after gating yields an ERROR report and a nil error.
func (uc *AnalyzeEmbryoUseCase) Analyze(ctx context.Context, req entity.AnalysisRequest) (*entity.ConcordanceReport, error) {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "AnalyzeEmbryoUseCase.Analyze")
	defer span.End()

	req, err := req.Normalize()
	if err != nil {
		return nil, uc.finish(span, string(req.Mode), err)
	}

	run := &analysisRun{id: uuid.NewString(), state: entity.AnalysisGating}
	run.log = uc.logger.With(
		zap.String("request_id", run.id),
		zap.String("mode", string(req.Mode)),
		zap.String("kind", string(req.Media.Kind)),
	)
	span.SetAttributes(
		attribute.String("analysis.id", run.id),
		attribute.String("analysis.mode", string(req.Mode)),
		attribute.String("analysis.kind", string(req.Media.Kind)),
		attribute.Int("analysis.day", req.Day),
	)

	report, err := uc.analyze(ctx, run, req)
	if err != nil {
		run.fail()
		return nil, uc.finish(span, string(req.Mode), err)
	}

	outcome := "completed"
	if report.Status == entity.ReportError {
		outcome = "error_report"
	}
	metrics.AnalysesTotal.WithLabelValues(string(req.Mode), outcome).Inc()
	run.log.Info("analysis finished",
		zap.String("status", string(report.Status)),
		zap.String("stage", report.Stage),
		zap.String("grade", report.Grade.Code()),
		zap.String("concordance", string(report.Concordance.Status)),
	)
	return report, nil
}

func (uc *AnalyzeEmbryoUseCase) analyze(ctx context.Context, run *analysisRun, req entity.AnalysisRequest) (*entity.ConcordanceReport, error) {
	if err := sampler.ValidateMode(req.Media, req.Mode); err != nil {
		return nil, err
	}
	if err := uc.backend.Available(); err != nil {
		run.log.Error("inference backend unavailable", zap.Error(err))
		return nil, err
	}

	src, err := uc.sampler.Open(ctx, req.Media)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := src.Close(); err != nil {
			run.log.Warn("failed to remove analysis workdir", zap.Error(err))
		}
	}()

	// Gate the representative frame
	err = uc.step(ctx, "gate", func(ctx context.Context) error {
		frame, err := src.Representative(ctx)
		if err != nil {
			return err
		}
		var decision entity.GateDecision
		if err := uc.withSlot(ctx, func() error {
			decision = gate.New(uc.backend.SemanticModel(), uc.structural, run.log).Validate(ctx, frame.Image)
			return nil
		}); err != nil {
			return err
		}
		return uc.checkGate(run, decision)
	})
	if err != nil {
		return nil, err
	}

	// Sample frames
	if err := run.advance(entity.AnalysisSampling); err != nil {
		return nil, err
	}
	var seq entity.FrameSequence
	err = uc.step(ctx, "sample", func(ctx context.Context) error {
		seq, err = src.Sample(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.FramesSampledTotal.Add(float64(seq.Len()))

	input := entity.SynthesisInput{
		ID:             run.id,
		Mode:           req.Mode,
		Stage:          entity.UnavailableStage(),
		Day:            req.Day,
		IsVideo:        seq.IsVideo,
		FramesAnalyzed: seq.Len(),
		Backend:        uc.backend.Name(),
	}

	// Classify
	if err := run.advance(entity.AnalysisClassifying); err != nil {
		return nil, err
	}
	err = uc.step(ctx, "classify", func(ctx context.Context) error {
		return uc.classify(ctx, run, req.Mode, seq, &input)
	})
	if errors.Is(err, entity.ErrInferenceFailure) {
		run.log.Error("stage inference failed", zap.Error(err))
		run.fail()
		return uc.synthesizer.ErrorReport(input, entity.ReasonOf(err)), nil
	}
	if err != nil {
		return nil, err
	}

	// Derive metrics and build the report
	if err := run.advance(entity.AnalysisDeriving); err != nil {
		return nil, err
	}
	var report *entity.ConcordanceReport
	_ = uc.step(ctx, "derive", func(context.Context) error {
		input.KPIs, input.Milestones = uc.deriver.Derive(input.Grade, input.Stage, req.Mode, seq.IsVideo)
		report = uc.synthesizer.Synthesize(input)
		return nil
	})

	if err := run.advance(entity.AnalysisDone); err != nil {
		return nil, err
	}
	return report, nil
}

func (uc *AnalyzeEmbryoUseCase) checkGate(run *analysisRun, d entity.GateDecision) error {
	verdict := "accepted"
	if !d.Accepted {
		verdict = "rejected"
	}
	metrics.GateDecisionsTotal.WithLabelValues(string(d.Method), verdict).Inc()

	if d.Accepted {
		run.log.Info("gate accepted input",
			zap.String("method", string(d.Method)),
			zap.Float64("confidence", d.Confidence),
		)
		return nil
	}
	run.log.Warn("gate rejected input",
		zap.String("method", string(d.Method)),
		zap.String("reason", d.Reason),
		zap.Float64("confidence", d.Confidence),
	)
	if d.Method == entity.GateMethodUnavailable {
		return entity.NewAnalysisError(entity.ErrServiceUnavailable, d.Reason, nil)
	}
	return entity.NewAnalysisError(entity.ErrGateRejected, d.Reason, nil)
}

// classify runs only the classifier the mode asks for and fills in the other half with
// its placeholder.
func (uc *AnalyzeEmbryoUseCase) classify(ctx context.Context, run *analysisRun, mode entity.AnalysisMode, seq entity.FrameSequence, input *entity.SynthesisInput) error {
	if mode == entity.ModeMorphology {
		c := classifier.NewMorphologyClassifier(uc.backend.MorphologyModel(), run.log)
		return uc.withSlot(ctx, func() error {
			input.Grade = c.Grade(ctx, seq)
			return nil
		})
	}

	input.Grade = entity.NotAssessedGrade()
	c := classifier.NewStageClassifier(uc.backend.StageModel(), run.log)
	return uc.withSlot(ctx, func() error {
		stage, err := c.Classify(ctx, seq)
		if err != nil {
			return err
		}
		input.Stage = stage
		return nil
	})
}

// withSlot runs fn while holding one inference slot.
func (uc *AnalyzeEmbryoUseCase) withSlot(ctx context.Context, fn func() error) error {
	if err := uc.slots.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("wait for inference slot: %w", err)
	}
	metrics.InferenceInFlight.Inc()
	defer func() {
		metrics.InferenceInFlight.Dec()
		uc.slots.Release(1)
	}()
	return fn()
}

// step traces and times one pipeline stage.
func (uc *AnalyzeEmbryoUseCase) step(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := otel.Tracer("usecase").Start(ctx, name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (uc *AnalyzeEmbryoUseCase) finish(span trace.Span, mode string, err error) error {
	outcome := "failed"
	if entity.IsUserError(err) {
		outcome = "rejected"
	}
	if mode == "" {
		mode = "unknown"
	}
	metrics.AnalysesTotal.WithLabelValues(mode, outcome).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, entity.ReasonOf(err))
	return err
}
