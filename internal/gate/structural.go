package gate

import (
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/vikrammonish02/EMprion/internal/domain/entity"
	"golang.org/x/image/draw"
)

// Thresholds of the structural heuristic, on 8-bit grayscale.
const (
	darkMeanLimit      = 5.0
	saturatedMeanLimit = 250.0
	minVariance        = 30.0
	maxMeanGradient    = 80.0
	significantBinFrac = 0.001
	minSignificantBins = 10
	houghEdgeThreshold = 80.0
	houghVoteThreshold = 25
	houghResolution    = 1.2
	houghMinRadiusFrac = 0.10
	houghMaxRadiusFrac = 0.55
	houghMinArcFrac    = 0.2
	centralContrastMin = 15.0
)

// Pixel statistics run on frames up to defaultStatsSize; the circle search runs on the
// blurred frame reduced to defaultWorkSize.
const (
	defaultStatsSize = 1024
	defaultWorkSize  = 256
)

// StructuralGate is the non-semantic fallback: signal-loss, texture, edge-density and
// histogram checks followed by a search for the circular zona pellucida.
type StructuralGate struct {
	statsSize int
	workSize  int
}

func NewStructuralGate() *StructuralGate {
	return &StructuralGate{statsSize: defaultStatsSize, workSize: defaultWorkSize}
}

func (s *StructuralGate) Validate(img image.Image) entity.GateDecision {
	if img == nil || img.Bounds().Empty() {
		return reject("Input frame is empty", 1, entity.GateMethodStructural)
	}

	gray := grayPlane(fitWithin(img, s.statsSize))

	mean, variance := gray.meanVariance()
	switch {
	case mean < darkMeanLimit:
		return structuralReject("Input Rejected: Image is too dark (Signal Loss)", 0.95)
	case mean > saturatedMeanLimit:
		return structuralReject("Input Rejected: Image is saturated (Overexposed)", 0.95)
	case variance < minVariance:
		return structuralReject("Input Rejected: Image lacks biological texture (too flat)", 0.9)
	}

	_, _, mag := gray.sobel()
	if meanOf(mag) > maxMeanGradient {
		return structuralReject("Input Rejected: High-frequency content detected (Text/Diagram suspected)", 0.8)
	}

	if gray.significantBins(significantBinFrac) < minSignificantBins {
		return structuralReject("Input Rejected: Color palette too simple (Digital Art/Screenshot suspected)", 0.8)
	}

	// Blur before reducing so thin rings survive as smooth ridges.
	if detectCircle(gray.gaussianBlur(2, 9).fitWithin(s.workSize)) {
		return entity.GateDecision{
			Accepted:   true,
			Reason:     "Valid Embryo Structure (Zona Pellucida detected)",
			Confidence: 0.8,
			Method:     entity.GateMethodStructural,
		}
	}

	if gray.centralContrast() > centralContrastMin {
		return entity.GateDecision{
			Accepted:   true,
			Reason:     "Valid Embryo Structure (Central Mass detected)",
			Confidence: 0.6,
			Method:     entity.GateMethodStructural,
		}
	}

	return structuralReject("Input Rejected: No valid Zona Pellucida structure detected", 0.7)
}

func structuralReject(reason string, confidence float64) entity.GateDecision {
	return reject(reason, confidence, entity.GateMethodStructural)
}

// fitWithin reduces img with CatmullRom so its long side is at most size.
func fitWithin(img image.Image, size int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	long := max(w, h)
	if long <= size {
		return img
	}
	scale := float64(size) / float64(long)
	dst := image.NewGray(image.Rect(0, 0, max(1, int(float64(w)*scale)), max(1, int(float64(h)*scale))))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// grayPlane converts img to a luma plane.
func grayPlane(img image.Image) plane {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	p := newPlane(w, h)
	if g, ok := img.(*image.Gray); ok {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				p.pix[y*w+x] = float64(g.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
		return p
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
			p.pix[y*w+x] = float64(c.Y)
		}
	}
	return p
}

type plane struct {
	w, h int
	pix  []float64
}

func newPlane(w, h int) plane {
	return plane{w: w, h: h, pix: make([]float64, w*h)}
}

func (p plane) image() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, p.w, p.h))
	for i, v := range p.pix {
		img.Pix[i] = uint8(math.Round(math.Min(math.Max(v, 0), 255)))
	}
	return img
}

func (p plane) fitWithin(size int) plane {
	if max(p.w, p.h) <= size {
		return p
	}
	return grayPlane(fitWithin(p.image(), size))
}

// at reads with replicated borders.
func (p plane) at(x, y int) float64 {
	x = min(max(x, 0), p.w-1)
	y = min(max(y, 0), p.h-1)
	return p.pix[y*p.w+x]
}

func (p plane) meanVariance() (mean, variance float64) {
	mean = meanOf(p.pix)
	for _, v := range p.pix {
		d := v - mean
		variance += d * d
	}
	return mean, variance / float64(len(p.pix))
}

func (p plane) sobel() (gx, gy, mag []float64) {
	n := p.w * p.h
	gx, gy, mag = make([]float64, n), make([]float64, n), make([]float64, n)
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			dx := (p.at(x+1, y-1) + 2*p.at(x+1, y) + p.at(x+1, y+1)) -
				(p.at(x-1, y-1) + 2*p.at(x-1, y) + p.at(x-1, y+1))
			dy := (p.at(x-1, y+1) + 2*p.at(x, y+1) + p.at(x+1, y+1)) -
				(p.at(x-1, y-1) + 2*p.at(x, y-1) + p.at(x+1, y-1))
			i := y*p.w + x
			gx[i], gy[i] = dx, dy
			mag[i] = math.Hypot(dx, dy)
		}
	}
	return gx, gy, mag
}

func (p plane) significantBins(frac float64) int {
	var hist [256]int
	for _, v := range p.pix {
		hist[int(math.Round(math.Min(math.Max(v, 0), 255)))]++
	}
	limit := frac * float64(len(p.pix))
	bins := 0
	for _, c := range hist {
		if float64(c) > limit {
			bins++
		}
	}
	return bins
}

func (p plane) gaussianBlur(sigma float64, size int) plane {
	half := size / 2
	kernel := make([]float64, size)
	var sum float64
	for i := range kernel {
		d := float64(i - half)
		kernel[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}

	tmp := newPlane(p.w, p.h)
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			var acc float64
			for k, kv := range kernel {
				acc += kv * p.at(x+k-half, y)
			}
			tmp.pix[y*p.w+x] = acc
		}
	}
	out := newPlane(p.w, p.h)
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			var acc float64
			for k, kv := range kernel {
				acc += kv * tmp.at(x, y+k-half)
			}
			out.pix[y*p.w+x] = acc
		}
	}
	return out
}

// centralContrast compares the central half of the frame with the top and bottom bands.
func (p plane) centralContrast() float64 {
	cropW, cropH := p.w/4, p.h/4
	if cropW == 0 || cropH == 0 {
		return 0
	}
	cx, cy := p.w/2, p.h/2
	center := p.regionMean(cx-cropW, cy-cropH, cx+cropW, cy+cropH)
	edge := (p.regionMean(0, 0, p.w, cropH) + p.regionMean(0, p.h-cropH, p.w, p.h)) / 2
	return math.Abs(center - edge)
}

func (p plane) regionMean(x0, y0, x1, y1 int) float64 {
	var sum float64
	n := 0
	for y := max(y0, 0); y < min(y1, p.h); y++ {
		for x := max(x0, 0); x < min(x1, p.w); x++ {
			sum += p.pix[y*p.w+x]
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

type edgePoint struct {
	x, y int
}

// detectCircle is a two-stage Hough gradient search: edge pixels vote for centres
// along their gradient direction, then the strongest centres are checked for an arc of
// edge pixels at a common radius.
func detectCircle(p plane) bool {
	short := min(p.w, p.h)
	minR := max(2, int(float64(short)*houghMinRadiusFrac))
	maxR := int(float64(short) * houghMaxRadiusFrac)
	if maxR <= minR {
		return false
	}

	gx, gy, mag := p.sobel()
	accW := int(float64(p.w)/houghResolution) + 1
	accH := int(float64(p.h)/houghResolution) + 1
	acc := make([]int, accW*accH)

	var edges []edgePoint
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			i := y*p.w + x
			if mag[i] <= houghEdgeThreshold {
				continue
			}
			edges = append(edges, edgePoint{x, y})
			dx, dy := gx[i]/mag[i], gy[i]/mag[i]
			for r := minR; r <= maxR; r++ {
				for _, sign := range [2]float64{1, -1} {
					cx := float64(x) + sign*float64(r)*dx
					cy := float64(y) + sign*float64(r)*dy
					if cx < 0 || cy < 0 || cx >= float64(p.w) || cy >= float64(p.h) {
						continue
					}
					acc[int(cy/houghResolution)*accW+int(cx/houghResolution)]++
				}
			}
		}
	}
	if len(edges) == 0 {
		return false
	}

	type candidate struct{ idx, votes int }
	var candidates []candidate
	for i, v := range acc {
		if v >= houghVoteThreshold && isLocalMax(acc, accW, accH, i) {
			candidates = append(candidates, candidate{i, v})
		}
	}
	sort.Slice(candidates, func(a, b int) bool { return candidates[a].votes > candidates[b].votes })
	if len(candidates) > 10 {
		candidates = candidates[:10]
	}

	hist := make([]int, maxR+2)
	for _, c := range candidates {
		cx := (float64(c.idx%accW) + 0.5) * houghResolution
		cy := (float64(c.idx/accW) + 0.5) * houghResolution
		clear(hist)
		for _, e := range edges {
			d := int(math.Round(math.Hypot(float64(e.x)-cx, float64(e.y)-cy)))
			if d >= minR && d <= maxR {
				hist[d]++
			}
		}
		for r := minR; r <= maxR; r++ {
			support := hist[r-1] + hist[r] + hist[r+1]
			arc := houghMinArcFrac * 2 * math.Pi * float64(r)
			if support >= houghVoteThreshold && float64(support) >= arc {
				return true
			}
		}
	}
	return false
}

func isLocalMax(acc []int, w, h, i int) bool {
	x, y := i%w, i/w
	v := acc[i]
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			nx, ny := x+dx, y+dy
			if (dx == 0 && dy == 0) || nx < 0 || ny < 0 || nx >= w || ny >= h {
				continue
			}
			if acc[ny*w+nx] > v {
				return false
			}
		}
	}
	return true
}

func meanOf(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}
