package gate

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vikrammonish02/EMprion/internal/domain/entity"
)

func TestStructuralRejectsMidGray(t *testing.T) {
	d := NewStructuralGate().Validate(uniformImage(224, 128))

	assert.False(t, d.Accepted)
	assert.Contains(t, d.Reason, "lacks biological texture")
	assert.Equal(t, entity.GateMethodStructural, d.Method)
}

func TestStructuralRejectsSignalLoss(t *testing.T) {
	g := NewStructuralGate()

	d := g.Validate(uniformImage(224, 2))
	assert.False(t, d.Accepted)
	assert.Contains(t, d.Reason, "too dark")

	d = g.Validate(uniformImage(224, 254))
	assert.False(t, d.Accepted)
	assert.Contains(t, d.Reason, "saturated")
}

func TestStructuralRejectsSimplePalette(t *testing.T) {
	d := NewStructuralGate().Validate(twoToneImage(224))

	assert.False(t, d.Accepted)
	assert.Contains(t, d.Reason, "Color palette too simple")
}

func TestStructuralAcceptsRing(t *testing.T) {
	d := NewStructuralGate().Validate(ringImage(224, 60))

	assert.True(t, d.Accepted, d.Reason)
	assert.Equal(t, "Valid Embryo Structure (Zona Pellucida detected)", d.Reason)
	assert.Equal(t, 0.8, d.Confidence)
}

func TestStructuralFindsThinRingInLargeFrame(t *testing.T) {
	for _, tc := range []struct {
		size   int
		radius float64
	}{
		{512, 150},
		{1024, 300},
	} {
		d := NewStructuralGate().Validate(ringImage(tc.size, tc.radius))

		assert.True(t, d.Accepted, "size %d: %s", tc.size, d.Reason)
		assert.Contains(t, d.Reason, "Zona Pellucida detected", "size %d", tc.size)
	}
}

func TestStructuralAcceptsCentralMass(t *testing.T) {
	d := NewStructuralGate().Validate(blobImage(224, 60, 30))

	assert.True(t, d.Accepted, d.Reason)
	assert.Equal(t, "Valid Embryo Structure (Central Mass detected)", d.Reason)
	assert.Equal(t, 0.6, d.Confidence)
}

func TestFitWithin(t *testing.T) {
	img := fitWithin(uniformImage(1024, 90), 256)
	assert.Equal(t, image.Rect(0, 0, 256, 256), img.Bounds())

	small := uniformImage(200, 90)
	assert.Same(t, small, fitWithin(small, 256))
}

func TestStructuralDownscalesLargeFrames(t *testing.T) {
	d := NewStructuralGate().Validate(uniformImage(640, 128))

	assert.False(t, d.Accepted)
	assert.Contains(t, d.Reason, "lacks biological texture")
}

func TestStructuralRejectsEmptyFrame(t *testing.T) {
	d := NewStructuralGate().Validate(nil)
	assert.False(t, d.Accepted)
}
