package inference

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vikrammonish02/EMprion/internal/domain/entity"
	"github.com/vikrammonish02/EMprion/internal/domain/port"
	"go.uber.org/zap"
)

type nopStage struct{}

func (nopStage) Forward(context.Context, entity.Tensor) (entity.Tensor, error) {
	return entity.Tensor{}, nil
}

type nopMorphology struct{}

func (nopMorphology) Forward(context.Context, entity.Tensor) (port.MorphologyOutput, error) {
	return port.MorphologyOutput{}, nil
}

func TestRegistryLoadsOnce(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	reg := NewModelRegistry(Loaders{
		Stage: func(context.Context) (port.StageModel, error) {
			calls.Add(1)
			<-release
			return nopStage{}, nil
		},
	}, zap.NewNop())

	assert.Equal(t, entity.RegistryUninitialized, reg.State())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, reg.Load(context.Background()))
		}()
	}
	assert.Eventually(t, func() bool { return reg.State() == entity.RegistryLoading }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, entity.RegistryReady, reg.State())
	assert.NotNil(t, reg.Stage())
	assert.NoError(t, reg.StageErr())
	assert.Nil(t, reg.Semantic())
	assert.ErrorIs(t, reg.SemanticErr(), errNotConfigured)
}

func TestRegistryRecordsFailures(t *testing.T) {
	boom := errors.New("file not found")
	reg := NewModelRegistry(Loaders{
		Stage: func(context.Context) (port.StageModel, error) { return nil, boom },
		Morphology: func(context.Context) (port.MorphologyModel, error) {
			return nopMorphology{}, nil
		},
	}, zap.NewNop())

	require.NoError(t, reg.Load(context.Background()))
	require.NoError(t, reg.Load(context.Background()))

	assert.Nil(t, reg.Stage())
	assert.ErrorIs(t, reg.StageErr(), boom)
	assert.NotNil(t, reg.Morphology())
	assert.NoError(t, reg.MorphologyErr())
}

func TestRegistryAccessorsBeforeLoad(t *testing.T) {
	reg := NewModelRegistry(Loaders{
		Stage: func(context.Context) (port.StageModel, error) { return nopStage{}, nil },
	}, zap.NewNop())

	assert.Nil(t, reg.Stage())
	assert.Error(t, reg.StageErr())
}

func TestRealBackendStrictMode(t *testing.T) {
	reg := NewModelRegistry(Loaders{
		Stage: func(context.Context) (port.StageModel, error) { return nil, errors.New("missing weights") },
	}, zap.NewNop())
	b := NewRealBackend(reg)

	err := b.Available()
	assert.ErrorIs(t, err, entity.ErrServiceUnavailable)

	require.NoError(t, reg.Load(context.Background()))
	err = b.Available()
	assert.ErrorIs(t, err, entity.ErrServiceUnavailable)
	assert.Contains(t, entity.ReasonOf(err), "Stage classification model failed to load")
	assert.Nil(t, b.StageModel())
}

func TestRealBackendReady(t *testing.T) {
	reg := NewModelRegistry(Loaders{
		Stage: func(context.Context) (port.StageModel, error) { return nopStage{}, nil },
	}, zap.NewNop())
	require.NoError(t, reg.Load(context.Background()))
	b := NewRealBackend(reg)

	assert.NoError(t, b.Available())
	assert.Equal(t, "onnx", b.Name())
	assert.NotNil(t, b.StageModel())
	assert.Nil(t, b.MorphologyModel())
	assert.Nil(t, b.SemanticModel())
}

func tensor(t *testing.T, shape []int64, fill float32) entity.Tensor {
	t.Helper()
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	data := make([]float32, n)
	for i := range data {
		data[i] = fill + float32(i%7)
	}
	out, err := entity.NewTensor(shape, data)
	require.NoError(t, err)
	return out
}

func argmaxRow(row []float32) int {
	best := 0
	for i, v := range row {
		if v > row[best] {
			best = i
		}
	}
	return best
}

func TestSimulatedStageIsDeterministicAndMonotonic(t *testing.T) {
	b := NewSimulatedBackend()
	require.NoError(t, b.Available())
	assert.Nil(t, b.SemanticModel())

	in := tensor(t, []int64{1, 12, 3, 2, 2}, 0.25)
	first, err := b.StageModel().Forward(context.Background(), in)
	require.NoError(t, err)
	again, err := b.StageModel().Forward(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, []int64{1, 12, entity.NumStages}, first.Shape)

	prev := -1
	for step := 0; step < 12; step++ {
		s := argmaxRow(first.Data[step*entity.NumStages : (step+1)*entity.NumStages])
		assert.GreaterOrEqual(t, s, prev)
		prev = s
	}
	assert.GreaterOrEqual(t, prev, simulatedMinFinalStage)
}

func TestSimulatedStageRejectsBadRank(t *testing.T) {
	_, err := NewSimulatedBackend().StageModel().Forward(context.Background(), tensor(t, []int64{3, 2, 2}, 0))
	assert.ErrorIs(t, err, entity.ErrDimensionMismatch)
}

func TestSimulatedMorphologyIsDeterministic(t *testing.T) {
	m := NewSimulatedBackend().MorphologyModel()
	in := tensor(t, []int64{1, 3, 2, 2}, 1.5)

	a, err := m.Forward(context.Background(), in)
	require.NoError(t, err)
	b, err := m.Forward(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a.Expansion, entity.MaxExpansion)
	assert.Len(t, a.ICM, 3)
	assert.Len(t, a.TE, 3)
	assert.GreaterOrEqual(t, argmaxRow(a.Expansion), 2)
}
