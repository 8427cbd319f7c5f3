// Package inference owns the process-wide models and exposes them to the pipeline as an
// InferenceBackend.
package inference

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vikrammonish02/EMprion/internal/domain/entity"
	"github.com/vikrammonish02/EMprion/internal/domain/port"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Loaders open each model. A nil loader means the model is not configured.
type Loaders struct {
	Semantic   func(ctx context.Context) (port.SemanticModel, error)
	Stage      func(ctx context.Context) (port.StageModel, error)
	Morphology func(ctx context.Context) (port.MorphologyModel, error)
}

var errNotConfigured = errors.New("model path not configured")

// ModelRegistry loads every model exactly once and hands out read-only references.
// Load failures are recorded per model and never retried.
type ModelRegistry struct {
	loaders Loaders
	logger  *zap.Logger

	once  sync.Once
	done  chan struct{}
	mu    sync.RWMutex
	state entity.RegistryState

	semantic   port.SemanticModel
	stage      port.StageModel
	morphology port.MorphologyModel

	semanticErr   error
	stageErr      error
	morphologyErr error
}

func NewModelRegistry(loaders Loaders, logger *zap.Logger) *ModelRegistry {
	return &ModelRegistry{
		loaders: loaders,
		logger:  logger,
		done:    make(chan struct{}),
		state:   entity.RegistryUninitialized,
	}
}

// Load opens all configured models in parallel. The first caller performs the load;
// concurrent and later callers wait for it and observe the same outcome. The returned
// error is nil even when individual models failed; see the *Err accessors.
func (r *ModelRegistry) Load(ctx context.Context) error {
	r.once.Do(func() {
		defer close(r.done)
		r.setState(entity.RegistryLoading)
		start := time.Now()

		g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
		g.Go(func() error {
			r.semantic, r.semanticErr = loadOne(gctx, r.loaders.Semantic)
			return nil
		})
		g.Go(func() error {
			r.stage, r.stageErr = loadOne(gctx, r.loaders.Stage)
			return nil
		})
		g.Go(func() error {
			r.morphology, r.morphologyErr = loadOne(gctx, r.loaders.Morphology)
			return nil
		})
		_ = g.Wait()

		r.logOutcome("semantic", r.semanticErr)
		r.logOutcome("stage", r.stageErr)
		r.logOutcome("morphology", r.morphologyErr)
		r.logger.Info("model registry ready", zap.Duration("duration", time.Since(start)))
		r.setState(entity.RegistryReady)
	})

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func loadOne[T any](ctx context.Context, load func(context.Context) (T, error)) (T, error) {
	var zero T
	if load == nil {
		return zero, errNotConfigured
	}
	m, err := load(ctx)
	if err != nil {
		return zero, err
	}
	return m, nil
}

func (r *ModelRegistry) logOutcome(name string, err error) {
	if err != nil {
		r.logger.Warn("model not loaded", zap.String("model", name), zap.Error(err))
		return
	}
	r.logger.Info("model loaded", zap.String("model", name))
}

func (r *ModelRegistry) setState(s entity.RegistryState) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *ModelRegistry) State() entity.RegistryState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *ModelRegistry) ready() bool { return r.State() == entity.RegistryReady }

// The accessors below return nil until Load has completed.

func (r *ModelRegistry) Semantic() port.SemanticModel {
	if !r.ready() {
		return nil
	}
	return r.semantic
}

func (r *ModelRegistry) Stage() port.StageModel {
	if !r.ready() {
		return nil
	}
	return r.stage
}

func (r *ModelRegistry) Morphology() port.MorphologyModel {
	if !r.ready() {
		return nil
	}
	return r.morphology
}

func (r *ModelRegistry) SemanticErr() error   { return r.errIfReady(r.semanticErr) }
func (r *ModelRegistry) StageErr() error      { return r.errIfReady(r.stageErr) }
func (r *ModelRegistry) MorphologyErr() error { return r.errIfReady(r.morphologyErr) }

func (r *ModelRegistry) errIfReady(err error) error {
	if !r.ready() {
		return errors.New("models not loaded yet")
	}
	return err
}
