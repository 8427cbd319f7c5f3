package onnx

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"math"
	"os"

	"github.com/vikrammonish02/EMprion/internal/domain/entity"
	"golang.org/x/image/draw"
)

var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// PromptEmbeddings holds the precomputed CLIP text embeddings of the gate prompts.
type PromptEmbeddings struct {
	LogitScale float32              `json:"logit_scale"`
	Prompts    map[string][]float32 `json:"prompts"`
}

func LoadPromptEmbeddings(path string) (PromptEmbeddings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return PromptEmbeddings{}, fmt.Errorf("failed to read prompt embeddings: %w", err)
	}
	var pe PromptEmbeddings
	if err := json.Unmarshal(raw, &pe); err != nil {
		return PromptEmbeddings{}, fmt.Errorf("failed to parse prompt embeddings: %w", err)
	}
	if len(pe.Prompts) == 0 {
		return PromptEmbeddings{}, fmt.Errorf("prompt embeddings file %s lists no prompts", path)
	}
	if pe.LogitScale == 0 {
		pe.LogitScale = 100
	}
	for text, emb := range pe.Prompts {
		pe.Prompts[text] = normalize(emb)
	}
	return pe, nil
}

// ClipScorer is the semantic gate model: a CLIP image encoder scored against fixed text
// embeddings.
type ClipScorer struct {
	*session
	prompts PromptEmbeddings
}

func NewClipScorer(modelPath, promptsPath string) (*ClipScorer, error) {
	prompts, err := LoadPromptEmbeddings(promptsPath)
	if err != nil {
		return nil, err
	}
	s, err := newSession("clip", modelPath, DefaultClipMetadata())
	if err != nil {
		return nil, err
	}
	return &ClipScorer{session: s, prompts: prompts}, nil
}

// ScorePrompts returns the softmax over prompts of the scaled cosine similarity between
// img and each prompt embedding.
func (c *ClipScorer) ScorePrompts(ctx context.Context, img image.Image, prompts []string) ([]float32, error) {
	size := c.meta.ImageSize
	in, err := entity.NewTensor([]int64{1, 3, int64(size), int64(size)}, clipPixels(img, size))
	if err != nil {
		return nil, err
	}
	out, err := c.run(ctx, in)
	if err != nil {
		return nil, err
	}
	return c.prompts.score(out[0].Data, prompts)
}

func (pe PromptEmbeddings) score(imageEmb []float32, prompts []string) ([]float32, error) {
	imageEmb = normalize(imageEmb)
	logits := make([]float64, len(prompts))
	for i, p := range prompts {
		emb, ok := pe.Prompts[p]
		if !ok {
			return nil, fmt.Errorf("no embedding for prompt %q", p)
		}
		if len(emb) != len(imageEmb) {
			return nil, fmt.Errorf("%w: prompt %q embedding has %d dims, image has %d",
				entity.ErrDimensionMismatch, p, len(emb), len(imageEmb))
		}
		var dot float64
		for j := range emb {
			dot += float64(emb[j]) * float64(imageEmb[j])
		}
		logits[i] = float64(pe.LogitScale) * dot
	}
	return softmax(logits), nil
}

// clipPixels resizes the short side to size, center-crops a size×size square and returns
// it as CHW float32 with CLIP normalization.
func clipPixels(img image.Image, size int) []float32 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	scale := float64(size) / float64(min(w, h))
	rw := max(size, int(math.Round(float64(w)*scale)))
	rh := max(size, int(math.Round(float64(h)*scale)))

	resized := image.NewRGBA(image.Rect(0, 0, rw, rh))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, b, draw.Src, nil)

	x0, y0 := (rw-size)/2, (rh-size)/2
	plane := size * size
	out := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			off := resized.PixOffset(x0+x, y0+y)
			i := y*size + x
			for c := 0; c < 3; c++ {
				v := float32(resized.Pix[off+c]) / 255
				out[c*plane+i] = (v - clipMean[c]) / clipStd[c]
			}
		}
	}
	return out
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	n := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / n
	}
	return out
}

func softmax(logits []float64) []float32 {
	if len(logits) == 0 {
		return nil
	}
	maxV := logits[0]
	for _, l := range logits {
		maxV = max(maxV, l)
	}
	var sum float64
	exps := make([]float64, len(logits))
	for i, l := range logits {
		exps[i] = math.Exp(l - maxV)
		sum += exps[i]
	}
	out := make([]float32, len(logits))
	for i, e := range exps {
		out[i] = float32(e / sum)
	}
	return out
}
