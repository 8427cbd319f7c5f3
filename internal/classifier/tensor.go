// Package classifier adapts the frame sequence to the stage and morphology networks and
// turns their raw scores into typed results.
package classifier

import (
	"fmt"
	"math"

	"github.com/vikrammonish02/EMprion/internal/domain/entity"
)

// StackSequence packs every frame tensor of seq into a [T, C, H, W] tensor.
func StackSequence(seq entity.FrameSequence) (entity.Tensor, error) {
	if seq.Len() == 0 {
		return entity.Tensor{}, entity.ErrEmptySequence
	}
	size := int64(seq.Size)
	frameLen := 3 * size * size
	data := make([]float32, 0, int64(seq.Len())*frameLen)
	for _, f := range seq.Frames {
		if int64(len(f.Tensor)) != frameLen {
			return entity.Tensor{}, fmt.Errorf("%w: frame %d has %d values, want %d",
				entity.ErrDimensionMismatch, f.Index, len(f.Tensor), frameLen)
		}
		data = append(data, f.Tensor...)
	}
	return entity.NewTensor([]int64{int64(seq.Len()), 3, size, size}, data)
}

// ToStageInput brings t to the stage network's [N, T, C, H, W] layout:
//
//	rank 3 [C, H, W]          -> [1, 1, C, H, W]
//	rank 4 [T, C, H, W]       -> [1, T, C, H, W]
//	rank 5                    unchanged
//	rank 6 [N, T, 1, C, H, W] -> [N, T, C, H, W]
func ToStageInput(t entity.Tensor) (entity.Tensor, error) {
	s := t.Shape
	switch t.Rank() {
	case 3:
		return t.Reshape(1, 1, s[0], s[1], s[2])
	case 4:
		return t.Reshape(1, s[0], s[1], s[2], s[3])
	case 5:
		return t, nil
	case 6:
		if s[2] != 1 {
			return entity.Tensor{}, fmt.Errorf("%w: cannot fold patch dimension of size %d", entity.ErrDimensionMismatch, s[2])
		}
		return t.Reshape(s[0], s[1], s[3], s[4], s[5])
	}
	return entity.Tensor{}, fmt.Errorf("%w: unsupported input rank %d", entity.ErrDimensionMismatch, t.Rank())
}

func argmax(xs []float32) int {
	best := 0
	for i, v := range xs {
		if v > xs[best] {
			best = i
		}
	}
	return best
}

// softmaxAt returns the softmax probability of xs[i].
func softmaxAt(xs []float32, i int) float64 {
	maxV := float64(xs[argmax(xs)])
	var sum float64
	for _, v := range xs {
		sum += math.Exp(float64(v) - maxV)
	}
	return math.Exp(float64(xs[i])-maxV) / sum
}
