package inference

import (
	"github.com/vikrammonish02/EMprion/internal/domain/entity"
	"github.com/vikrammonish02/EMprion/internal/domain/port"
)

// RealBackend serves the models held by a ModelRegistry. It never substitutes generated
// output for a missing model.
type RealBackend struct {
	registry *ModelRegistry
}

func NewRealBackend(registry *ModelRegistry) *RealBackend {
	return &RealBackend{registry: registry}
}

func (b *RealBackend) Name() string { return "onnx" }

// Available blocks clinical output until loading has finished and whenever the stage
// model, which every analysis depends on, failed to load.
func (b *RealBackend) Available() error {
	if b.registry.State() != entity.RegistryReady {
		return entity.NewAnalysisError(entity.ErrServiceUnavailable,
			"Clinical Safety Error: Models are still loading. Please retry shortly.", nil)
	}
	if err := b.registry.StageErr(); err != nil {
		return entity.NewAnalysisError(entity.ErrServiceUnavailable,
			"Clinical Safety Error: Stage classification model failed to load. Analysis blocked.", err)
	}
	return nil
}

func (b *RealBackend) SemanticModel() port.SemanticModel { return b.registry.Semantic() }

func (b *RealBackend) StageModel() port.StageModel { return b.registry.Stage() }

func (b *RealBackend) MorphologyModel() port.MorphologyModel { return b.registry.Morphology() }

var (
	_ port.InferenceBackend = (*RealBackend)(nil)
	_ port.InferenceBackend = (*SimulatedBackend)(nil)
)
