package classifier

import (
	"context"
	"fmt"

	"github.com/vikrammonish02/EMprion/internal/domain/entity"
	"github.com/vikrammonish02/EMprion/internal/domain/port"
	"go.uber.org/zap"
)

type StageClassifier struct {
	model  port.StageModel
	logger *zap.Logger
}

func NewStageClassifier(model port.StageModel, logger *zap.Logger) *StageClassifier {
	return &StageClassifier{model: model, logger: logger}
}

// Classify runs the stage network once over the whole sequence and reports the class with
// the highest score at the final timestep.
func (c *StageClassifier) Classify(ctx context.Context, seq entity.FrameSequence) (entity.StageResult, error) {
	if c.model == nil {
		return entity.StageResult{}, entity.NewAnalysisError(entity.ErrServiceUnavailable,
			"Clinical Safety Error: Stage model is not loaded.", nil)
	}

	stacked, err := StackSequence(seq)
	if err != nil {
		return entity.StageResult{}, err
	}
	input, err := ToStageInput(stacked)
	if err != nil {
		return entity.StageResult{}, err
	}

	out, err := c.model.Forward(ctx, input)
	if err != nil {
		return entity.StageResult{}, fmt.Errorf("%w: stage forward: %w", entity.ErrInferenceFailure, err)
	}

	steps, err := timesteps(out)
	if err != nil {
		return entity.StageResult{}, err
	}

	timeline := make([]int, len(steps))
	for i, row := range steps {
		timeline[i] = argmax(row)
	}
	last := steps[len(steps)-1]
	idx := timeline[len(timeline)-1]
	conf := softmaxAt(last, idx)

	c.logger.Debug("stage classified",
		zap.Int("timesteps", len(steps)),
		zap.Int("stage_index", idx),
		zap.Float64("confidence", conf),
	)
	return entity.NewStageResult(idx, conf, timeline), nil
}

// timesteps splits a [1, T, classes] or [T, classes] output into per-timestep rows.
func timesteps(out entity.Tensor) ([][]float32, error) {
	var t, classes int64
	switch {
	case out.Rank() == 3 && out.Shape[0] == 1:
		t, classes = out.Shape[1], out.Shape[2]
	case out.Rank() == 2:
		t, classes = out.Shape[0], out.Shape[1]
	default:
		return nil, fmt.Errorf("%w: stage output shape %v", entity.ErrDimensionMismatch, out.Shape)
	}
	if classes != entity.NumStages || t < 1 || int64(len(out.Data)) != t*classes {
		return nil, fmt.Errorf("%w: stage output shape %v with %d values", entity.ErrDimensionMismatch, out.Shape, len(out.Data))
	}

	rows := make([][]float32, t)
	for i := range rows {
		rows[i] = out.Data[int64(i)*classes : int64(i+1)*classes]
	}
	return rows, nil
}
