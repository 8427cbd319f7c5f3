package inference

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"math"
	"math/rand/v2"

	"github.com/vikrammonish02/EMprion/internal/domain/entity"
	"github.com/vikrammonish02/EMprion/internal/domain/port"
)

// SimulatedBackend produces plausible scores without model weights, for development and
// demos. Scores are a pure function of the input tensor, so repeated requests with the
// same upload get the same verdict. It has no semantic model: gating relies on the
// structural check.
type SimulatedBackend struct {
	stage      simulatedStage
	morphology simulatedMorphology
}

func NewSimulatedBackend() *SimulatedBackend { return &SimulatedBackend{} }

func (b *SimulatedBackend) Name() string                          { return "simulated" }
func (b *SimulatedBackend) Available() error                      { return nil }
func (b *SimulatedBackend) SemanticModel() port.SemanticModel     { return nil }
func (b *SimulatedBackend) StageModel() port.StageModel           { return b.stage }
func (b *SimulatedBackend) MorphologyModel() port.MorphologyModel { return b.morphology }

// Simulated embryos are always past compaction.
const simulatedMinFinalStage = entity.StageT8 + 1

type simulatedStage struct{}

// Forward emits [1, T, 16] logits whose per-step argmax climbs monotonically to a final
// stage between t9+ and tHB.
func (simulatedStage) Forward(_ context.Context, in entity.Tensor) (entity.Tensor, error) {
	if in.Rank() != 5 {
		return entity.Tensor{}, entity.ErrDimensionMismatch
	}
	steps := int(in.Shape[1])
	rnd := seeded(in.Data)

	final := simulatedMinFinalStage + rnd.IntN(entity.NumStages-simulatedMinFinalStage)
	peak := 2 + 3*rnd.Float32()

	out := make([]float32, steps*entity.NumStages)
	for t := 0; t < steps; t++ {
		stage := final
		if steps > 1 {
			stage = final * t / (steps - 1)
		}
		row := out[t*entity.NumStages : (t+1)*entity.NumStages]
		for i := range row {
			row[i] = rnd.Float32() * 0.5
		}
		row[stage] = peak
	}
	return entity.NewTensor([]int64{1, int64(steps), entity.NumStages}, out)
}

type simulatedMorphology struct{}

func (simulatedMorphology) Forward(_ context.Context, in entity.Tensor) (port.MorphologyOutput, error) {
	rnd := seeded(in.Data)
	head := func(n int, bias int) []float32 {
		out := make([]float32, n)
		for i := range out {
			out[i] = rnd.Float32()
		}
		out[bias] += 1 + rnd.Float32()
		return out
	}
	return port.MorphologyOutput{
		Expansion: head(entity.MaxExpansion, 2+rnd.IntN(4)),
		ICM:       head(3, rnd.IntN(3)),
		TE:        head(3, rnd.IntN(3)),
	}, nil
}

// seeded derives a PRNG from an FNV-1a hash of the tensor contents.
func seeded(data []float32) *rand.Rand {
	h := fnv.New64a()
	var buf [4]byte
	for _, v := range data {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		h.Write(buf[:])
	}
	sum := h.Sum64()
	return rand.New(rand.NewPCG(sum, sum^0x9e3779b97f4a7c15))
}
