package port

import (
	"context"
	"image"

	"github.com/vikrammonish02/EMprion/internal/domain/entity"
)

// SemanticModel scores an image against the content gate's prompt list and returns one
// probability per prompt, in prompt order, summing to 1.
type SemanticModel interface {
	ScorePrompts(ctx context.Context, img image.Image, prompts []string) ([]float32, error)
}

// StageModel is the temporal developmental-stage network. Input is [N, T, C, H, W];
// output is per-timestep class scores [N, T, classes].
type StageModel interface {
	Forward(ctx context.Context, input entity.Tensor) (entity.Tensor, error)
}

// MorphologyOutput holds the raw scores of the three grading heads.
type MorphologyOutput struct {
	Expansion []float32
	ICM       []float32
	TE        []float32
}

// MorphologyModel is the single-frame multi-head grading network. Input is [1, C, H, W].
type MorphologyModel interface {
	Forward(ctx context.Context, input entity.Tensor) (MorphologyOutput, error)
}
