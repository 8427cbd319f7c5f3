package sampler

import (
	"image"

	"github.com/nfnt/resize"
)

// ImageNet channel statistics expected by both classifiers.
var (
	channelMean = [3]float32{0.485, 0.456, 0.406}
	channelStd  = [3]float32{0.229, 0.224, 0.225}
)

// ToTensor resizes img to size×size and returns it as RGB CHW float32 normalized with
// the ImageNet mean and standard deviation.
func ToTensor(img image.Image, size int) []float32 {
	resized := resize.Resize(uint(size), uint(size), img, resize.Bilinear)
	b := resized.Bounds()

	plane := size * size
	out := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, bl, _ := resized.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := y*size + x
			out[i] = (float32(r)/65535 - channelMean[0]) / channelStd[0]
			out[plane+i] = (float32(g)/65535 - channelMean[1]) / channelStd[1]
			out[2*plane+i] = (float32(bl)/65535 - channelMean[2]) / channelStd[2]
		}
	}
	return out
}
