package onnx

import (
	"context"
	"fmt"
	"slices"

	"github.com/vikrammonish02/EMprion/internal/domain/entity"
	"github.com/vikrammonish02/EMprion/internal/domain/port"
	ort "github.com/yalue/onnxruntime_go"
)

// session is a shape-agnostic ONNX session whose tensors are allocated per call, so one
// session serves concurrent requests.
type session struct {
	name string
	meta Metadata
	sess *ort.DynamicAdvancedSession
}

func newSession(name, modelPath string, meta Metadata) (*session, error) {
	sess, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{meta.InputName}, meta.OutputNames, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s session: %w", name, err)
	}
	return &session{name: name, meta: meta, sess: sess}, nil
}

// run feeds in and returns a copy of every output, in metadata order. onnxruntime
// allocates the outputs; their shapes are checked against the metadata afterwards.
func (s *session) run(ctx context.Context, in entity.Tensor) ([]entity.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	input, err := ort.NewTensor(ort.NewShape(in.Shape...), in.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s input tensor: %w", s.name, err)
	}
	defer input.Destroy()

	outputs := make([]ort.ArbitraryTensor, len(s.meta.OutputNames))
	defer func() {
		for _, t := range outputs {
			if t != nil {
				t.Destroy()
			}
		}
	}()

	if err := s.sess.Run([]ort.ArbitraryTensor{input}, outputs); err != nil {
		return nil, fmt.Errorf("%s inference failed: %w", s.name, err)
	}

	floats := make([]floatTensor, len(outputs))
	for i, t := range outputs {
		f, ok := t.(floatTensor)
		if !ok {
			return nil, fmt.Errorf("%w: %s output %q is not a float32 tensor",
				entity.ErrDimensionMismatch, s.name, s.meta.OutputNames[i])
		}
		floats[i] = f
	}
	return checkOutputs(s.name, s.meta, in.Shape, floats)
}

// floatTensor is the read side of an onnxruntime float32 tensor.
type floatTensor interface {
	GetShape() ort.Shape
	GetData() []float32
}

// checkOutputs copies outputs out of onnxruntime memory, rejecting any whose shape
// differs from the declared one.
func checkOutputs(name string, meta Metadata, inShape []int64, outputs []floatTensor) ([]entity.Tensor, error) {
	results := make([]entity.Tensor, len(outputs))
	for i, t := range outputs {
		got := []int64(t.GetShape())
		if i < len(meta.OutputShapes) {
			want, err := resolveShape(meta.OutputShapes[i], inShape)
			if err != nil {
				return nil, fmt.Errorf("%s output %q: %w", name, meta.OutputNames[i], err)
			}
			if !slices.Equal(got, want) {
				return nil, fmt.Errorf("%w: %s output %q has shape %v, metadata declares %v",
					entity.ErrDimensionMismatch, name, meta.OutputNames[i], got, want)
			}
		}
		data := append([]float32(nil), t.GetData()...)
		res, err := entity.NewTensor(got, data)
		if err != nil {
			return nil, err
		}
		results[i] = res
	}
	return results, nil
}

func (s *session) Close() error {
	if s.sess == nil {
		return nil
	}
	return s.sess.Destroy()
}

// StageSession runs the temporal stage network: [1, T, C, H, W] in, [1, T, 16] out.
type StageSession struct {
	*session
}

func NewStageSession(modelPath, metadataPath string) (*StageSession, error) {
	meta, err := LoadMetadata(metadataPath, DefaultStageMetadata())
	if err != nil {
		return nil, err
	}
	if len(meta.OutputNames) != 1 {
		return nil, fmt.Errorf("stage model must have one output, metadata lists %d", len(meta.OutputNames))
	}
	s, err := newSession("stage", modelPath, meta)
	if err != nil {
		return nil, err
	}
	return &StageSession{session: s}, nil
}

func (s *StageSession) Forward(ctx context.Context, in entity.Tensor) (entity.Tensor, error) {
	out, err := s.run(ctx, in)
	if err != nil {
		return entity.Tensor{}, err
	}
	return out[0], nil
}

// MorphologySession runs the three-head Gardner network on a single [1, C, H, W] frame.
type MorphologySession struct {
	*session
}

func NewMorphologySession(modelPath, metadataPath string) (*MorphologySession, error) {
	meta, err := LoadMetadata(metadataPath, DefaultMorphologyMetadata())
	if err != nil {
		return nil, err
	}
	if len(meta.OutputNames) != 3 {
		return nil, fmt.Errorf("morphology model must have expansion, icm and te outputs, metadata lists %d", len(meta.OutputNames))
	}
	s, err := newSession("morphology", modelPath, meta)
	if err != nil {
		return nil, err
	}
	return &MorphologySession{session: s}, nil
}

func (s *MorphologySession) Forward(ctx context.Context, in entity.Tensor) (port.MorphologyOutput, error) {
	out, err := s.run(ctx, in)
	if err != nil {
		return port.MorphologyOutput{}, err
	}
	return port.MorphologyOutput{
		Expansion: out[0].Data,
		ICM:       out[1].Data,
		TE:        out[2].Data,
	}, nil
}
