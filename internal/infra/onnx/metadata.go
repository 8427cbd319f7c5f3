package onnx

import (
	"encoding/json"
	"fmt"
	"os"
)

// Metadata describes a model's tensor names and expected output shapes. A -1 output
// dimension takes the size of the input dimension at the same position.
type Metadata struct {
	InputName    string    `json:"input_name"`
	OutputNames  []string  `json:"output_names"`
	OutputShapes [][]int64 `json:"output_shapes"`
	Classes      []string  `json:"classes,omitempty"`
	ImageSize    int       `json:"image_size"`
}

func DefaultStageMetadata() Metadata {
	return Metadata{
		InputName:    "input",
		OutputNames:  []string{"pred"},
		OutputShapes: [][]int64{{1, -1, 16}},
		Classes: []string{"tPB2", "tPNa", "tPNf", "t2", "t3", "t4", "t5", "t6", "t7", "t8",
			"t9+", "tM", "tSB", "tB", "tEB", "tHB"},
		ImageSize: 224,
	}
}

func DefaultMorphologyMetadata() Metadata {
	return Metadata{
		InputName:    "input",
		OutputNames:  []string{"expansion", "icm", "te"},
		OutputShapes: [][]int64{{1, 5}, {1, 3}, {1, 3}},
		ImageSize:    224,
	}
}

func DefaultClipMetadata() Metadata {
	return Metadata{
		InputName:    "pixel_values",
		OutputNames:  []string{"image_embeds"},
		OutputShapes: [][]int64{{1, 512}},
		ImageSize:    224,
	}
}

// LoadMetadata reads path, filling unset fields from defaults. An empty path returns
// defaults unchanged.
func LoadMetadata(path string, defaults Metadata) (Metadata, error) {
	if path == "" {
		return defaults, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if meta.InputName == "" {
		meta.InputName = defaults.InputName
	}
	if len(meta.OutputNames) == 0 {
		meta.OutputNames = defaults.OutputNames
	}
	if len(meta.OutputShapes) == 0 {
		meta.OutputShapes = defaults.OutputShapes
	}
	if len(meta.Classes) == 0 {
		meta.Classes = defaults.Classes
	}
	if meta.ImageSize == 0 {
		meta.ImageSize = defaults.ImageSize
	}
	if len(meta.OutputNames) != len(meta.OutputShapes) {
		return Metadata{}, fmt.Errorf("metadata %s: %d output names but %d output shapes",
			path, len(meta.OutputNames), len(meta.OutputShapes))
	}
	return meta, nil
}

// resolveShape replaces -1 dimensions of out with the matching input dimension.
func resolveShape(out, in []int64) ([]int64, error) {
	shape := make([]int64, len(out))
	for i, d := range out {
		if d > 0 {
			shape[i] = d
			continue
		}
		if i >= len(in) {
			return nil, fmt.Errorf("cannot resolve dynamic output dimension %d from input shape %v", i, in)
		}
		shape[i] = in[i]
	}
	return shape, nil
}
