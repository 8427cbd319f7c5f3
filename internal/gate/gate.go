// Package gate rejects uploads that are not microscope images of an embryo before any
// clinical model sees them.
package gate

import (
	"context"
	"fmt"
	"image"

	"github.com/vikrammonish02/EMprion/internal/domain/entity"
	"github.com/vikrammonish02/EMprion/internal/domain/port"
	"go.uber.org/zap"
)

var PositivePrompts = []string{
	"a microscope image of a human embryo",
	"a blastocyst under microscope",
	"an IVF embryo image",
	"a time-lapse image of embryo development",
	"a day 5 blastocyst",
}

var NegativePrompts = []string{
	"a photo of an office or room",
	"office chair and desk",
	"meeting room or interior",
	"corporate workspace",
	"a bookshelf or document",
	"a photo of a person",
	"a screen or monitor",
	"a product or household item",
	"a diagram or infographic",
}

// Prompts returns the full prompt list in scoring order: positives first.
func Prompts() []string {
	all := make([]string, 0, len(PositivePrompts)+len(NegativePrompts))
	all = append(all, PositivePrompts...)
	return append(all, NegativePrompts...)
}

const unavailableReason = "Clinical Safety Error: Embryo validation gate is unavailable. Analysis blocked."

type Gate struct {
	model    port.SemanticModel
	fallback *StructuralGate
	prompts  []string
	logger   *zap.Logger
}

// New builds the gate. model may be nil when the semantic model failed to load; in that
// case every frame is rejected unless fallback is non-nil.
func New(model port.SemanticModel, fallback *StructuralGate, logger *zap.Logger) *Gate {
	return &Gate{
		model:    model,
		fallback: fallback,
		prompts:  Prompts(),
		logger:   logger,
	}
}

func (g *Gate) Validate(ctx context.Context, img image.Image) entity.GateDecision {
	if img == nil || img.Bounds().Empty() {
		return reject("Input frame is empty", 1, entity.GateMethodStructural)
	}

	if g.model == nil {
		return g.degraded(img, "semantic model not loaded")
	}

	probs, err := g.model.ScorePrompts(ctx, img, g.prompts)
	if err != nil {
		g.logger.Error("semantic gate scoring failed", zap.Error(err))
		return g.degraded(img, err.Error())
	}
	if len(probs) != len(g.prompts) {
		g.logger.Error("semantic gate returned wrong score count",
			zap.Int("want", len(g.prompts)), zap.Int("got", len(probs)))
		return g.degraded(img, "malformed semantic scores")
	}

	return decide(probs, len(PositivePrompts), g.prompts)
}

func (g *Gate) degraded(img image.Image, cause string) entity.GateDecision {
	if g.fallback != nil {
		g.logger.Warn("semantic gate unavailable, using structural fallback", zap.String("cause", cause))
		return g.fallback.Validate(img)
	}
	return reject(unavailableReason, 0, entity.GateMethodUnavailable)
}

func decide(probs []float32, numPositive int, prompts []string) entity.GateDecision {
	var pos, neg float64
	best, bestIdx := -1.0, numPositive
	for i, p := range probs {
		if i < numPositive {
			pos += float64(p)
			continue
		}
		neg += float64(p)
		if float64(p) > best {
			best, bestIdx = float64(p), i
		}
	}

	if pos > neg {
		return entity.GateDecision{
			Accepted:   true,
			Reason:     fmt.Sprintf("Valid Embryo Image (confidence: %.1f%%)", pos*100),
			Confidence: clamp01(pos),
			Method:     entity.GateMethodSemantic,
		}
	}
	return reject("Not an Embryo Image. Detected as: "+prompts[bestIdx], clamp01(neg), entity.GateMethodSemantic)
}

func reject(reason string, confidence float64, method entity.GateMethod) entity.GateDecision {
	return entity.GateDecision{Accepted: false, Reason: reason, Confidence: confidence, Method: method}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
