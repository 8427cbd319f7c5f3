package gate

import (
	"image"
	"image/color"
	"math"
	"math/rand/v2"
)

func uniformImage(size int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, size, size))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

// ringImage draws a bright ring over mildly noisy background, a stand-in for the zona
// pellucida under brightfield optics.
func ringImage(size int, radius float64) *image.Gray {
	rng := rand.New(rand.NewPCG(7, 11))
	img := image.NewGray(image.Rect(0, 0, size, size))
	c := float64(size) / 2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			v := 120 + rng.IntN(25) - 12
			d := math.Hypot(float64(x)-c, float64(y)-c)
			if math.Abs(d-radius) <= 2 {
				v = 220
			}
			img.SetGray(x, y, color.Gray{Y: uint8(v)})
		}
	}
	return img
}

// blobImage draws a soft bright mass in the centre with no sharp boundary.
func blobImage(size int, amplitude, sigma float64) *image.Gray {
	rng := rand.New(rand.NewPCG(3, 5))
	img := image.NewGray(image.Rect(0, 0, size, size))
	c := float64(size) / 2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			d := math.Hypot(float64(x)-c, float64(y)-c)
			v := 110 + float64(rng.IntN(25)-12) + amplitude*math.Exp(-d*d/(2*sigma*sigma))
			img.SetGray(x, y, color.Gray{Y: uint8(math.Round(v))})
		}
	}
	return img
}

// twoToneImage is a flat left/right split: textured enough but with a two-bin histogram.
func twoToneImage(size int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			v := uint8(100)
			if x >= size/2 {
				v = 160
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}
