package classifier

import (
	"context"
	"fmt"

	"github.com/vikrammonish02/EMprion/internal/domain/entity"
	"github.com/vikrammonish02/EMprion/internal/domain/port"
	"go.uber.org/zap"
)

type MorphologyClassifier struct {
	model  port.MorphologyModel
	logger *zap.Logger
}

// NewMorphologyClassifier accepts a nil model; every Grade call then reports NO_MODEL.
func NewMorphologyClassifier(model port.MorphologyModel, logger *zap.Logger) *MorphologyClassifier {
	return &MorphologyClassifier{model: model, logger: logger}
}

// Grade scores the last frame of seq. It never returns an error: failures are reported as
// sentinel grades.
func (c *MorphologyClassifier) Grade(ctx context.Context, seq entity.FrameSequence) entity.GardnerGrade {
	if c.model == nil {
		return entity.NoModelGrade()
	}
	frame, ok := seq.Last()
	if !ok || len(frame.Tensor) == 0 {
		return entity.NoInputGrade()
	}

	size := int64(seq.Size)
	input, err := entity.NewTensor([]int64{1, 3, size, size}, frame.Tensor)
	if err != nil {
		c.logger.Error("morphology input malformed", zap.Error(err))
		return entity.ErrorGrade(err.Error())
	}

	out, err := c.model.Forward(ctx, input)
	if err != nil {
		c.logger.Error("morphology inference failed", zap.Error(err))
		return entity.ErrorGrade(err.Error())
	}

	grade, err := decodeGrade(out)
	if err != nil {
		c.logger.Error("morphology output malformed", zap.Error(err))
		return entity.ErrorGrade(err.Error())
	}
	return grade
}

func decodeGrade(out port.MorphologyOutput) (entity.GardnerGrade, error) {
	if len(out.Expansion) == 0 || len(out.ICM) == 0 || len(out.TE) == 0 {
		return entity.GardnerGrade{}, fmt.Errorf("%w: empty grading head", entity.ErrDimensionMismatch)
	}

	expIdx := argmax(out.Expansion)
	expansion := expIdx + 1
	if expansion > entity.MaxExpansion {
		return entity.GardnerGrade{}, fmt.Errorf("%w: expansion class %d out of range", entity.ErrDimensionMismatch, expIdx)
	}
	icmIdx := argmax(out.ICM)
	icm, ok := entity.GradeLetterAt(icmIdx)
	if !ok {
		return entity.GardnerGrade{}, fmt.Errorf("%w: ICM class %d out of range", entity.ErrDimensionMismatch, icmIdx)
	}
	teIdx := argmax(out.TE)
	te, ok := entity.GradeLetterAt(teIdx)
	if !ok {
		return entity.GardnerGrade{}, fmt.Errorf("%w: TE class %d out of range", entity.ErrDimensionMismatch, teIdx)
	}

	return entity.GardnerGrade{
		Status:              entity.GradeStatusGraded,
		Expansion:           expansion,
		ICM:                 icm,
		TE:                  te,
		ExpansionConfidence: softmaxAt(out.Expansion, expIdx),
		ICMConfidence:       softmaxAt(out.ICM, icmIdx),
		TEConfidence:        softmaxAt(out.TE, teIdx),
	}, nil
}
