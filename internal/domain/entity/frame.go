package entity

import "image"

// Frame is one decoded frame: the source pixels (for gating) and the normalized CHW
// tensor (for the classifiers).
type Frame struct {
	Index  int
	Image  image.Image
	Tensor []float32
}

// FrameSequence is the ordered, evenly spaced sample of a media input.
type FrameSequence struct {
	Frames       []Frame
	Indices      []int
	SourceFrames int
	IsVideo      bool
	// Size is the square spatial resolution of every frame tensor.
	Size int
}

func (s FrameSequence) Len() int { return len(s.Frames) }

// Last returns the final frame of the sequence, the representative frame for
// single-frame grading.
func (s FrameSequence) Last() (Frame, bool) {
	if len(s.Frames) == 0 {
		return Frame{}, false
	}
	return s.Frames[len(s.Frames)-1], true
}
