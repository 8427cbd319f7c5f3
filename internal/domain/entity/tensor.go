package entity

import "fmt"

// Tensor is a dense row-major float32 tensor.
type Tensor struct {
	Shape []int64
	Data  []float32
}

func NewTensor(shape []int64, data []float32) (Tensor, error) {
	n, err := elementCount(shape)
	if err != nil {
		return Tensor{}, err
	}
	if int64(len(data)) != n {
		return Tensor{}, fmt.Errorf("%w: shape %v needs %d values, got %d", ErrDimensionMismatch, shape, n, len(data))
	}
	return Tensor{Shape: append([]int64(nil), shape...), Data: data}, nil
}

func (t Tensor) Rank() int { return len(t.Shape) }

// Reshape returns a view of the same data under a new shape with the same element count.
func (t Tensor) Reshape(shape ...int64) (Tensor, error) {
	return NewTensor(shape, t.Data)
}

func elementCount(shape []int64) (int64, error) {
	if len(shape) == 0 {
		return 0, fmt.Errorf("%w: empty shape", ErrDimensionMismatch)
	}
	n := int64(1)
	for _, d := range shape {
		if d <= 0 {
			return 0, fmt.Errorf("%w: non-positive dimension in %v", ErrDimensionMismatch, shape)
		}
		n *= d
	}
	return n, nil
}
