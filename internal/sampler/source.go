package sampler

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"

	"github.com/vikrammonish02/EMprion/internal/domain/entity"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
)

// Source is an opened upload: a decoded still image, or a video staged on disk.
type Source struct {
	sampler *Sampler

	image image.Image

	workDir     string
	videoPath   string
	totalFrames int
}

func (src *Source) IsVideo() bool { return src.videoPath != "" }

// TotalFrames is the source frame count; 1 for images.
func (src *Source) TotalFrames() int {
	if !src.IsVideo() {
		return 1
	}
	return src.totalFrames
}

// Representative returns the frame the content gate inspects: the image itself, or the
// middle frame of a video.
func (src *Source) Representative(ctx context.Context) (entity.Frame, error) {
	if !src.IsVideo() {
		return entity.Frame{Index: 0, Image: src.image}, nil
	}

	mid := src.totalFrames / 2
	frames, err := src.decode(ctx, []int{mid}, "gate")
	if err != nil {
		return entity.Frame{}, err
	}
	return frames[0], nil
}

// Sample produces the normalized frame sequence handed to the classifiers.
func (src *Source) Sample(ctx context.Context) (entity.FrameSequence, error) {
	size := src.sampler.cfg.FrameSize
	if !src.IsVideo() {
		return entity.FrameSequence{
			Frames:       []entity.Frame{{Index: 0, Image: src.image, Tensor: ToTensor(src.image, size)}},
			Indices:      []int{0},
			SourceFrames: 1,
			Size:         size,
		}, nil
	}

	count := src.sampler.TargetCount(src.totalFrames)
	indices := SampleIndices(src.totalFrames, count)
	src.sampler.logger.Info("sampling video frames",
		zap.Int("total_frames", src.totalFrames),
		zap.Int("sample_count", count),
	)

	frames, err := src.decode(ctx, indices, "frames")
	if err != nil {
		return entity.FrameSequence{}, err
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range frames {
		g.Go(func() error {
			frames[i].Tensor = ToTensor(frames[i].Image, size)
			return nil
		})
	}
	_ = g.Wait()

	decoded := make([]int, len(frames))
	for i, f := range frames {
		decoded[i] = f.Index
	}
	if len(decoded) < len(indices) {
		src.sampler.logger.Warn("some sampled frames failed to decode",
			zap.Int("requested", len(indices)), zap.Int("decoded", len(decoded)))
	}

	return entity.FrameSequence{
		Frames:       frames,
		Indices:      decoded,
		SourceFrames: src.totalFrames,
		IsVideo:      true,
		Size:         size,
	}, nil
}

func (src *Source) decode(ctx context.Context, indices []int, subdir string) ([]entity.Frame, error) {
	outDir := filepath.Join(src.workDir, subdir)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create frames dir: %w", err)
	}

	extracted, err := src.sampler.decoder.ExtractFrames(ctx, src.videoPath, indices, outDir)
	if err != nil {
		return nil, entity.NewAnalysisError(entity.ErrEmptySequence, "Failed to extract frames from video.", err)
	}
	sort.Slice(extracted, func(a, b int) bool { return extracted[a].Index < extracted[b].Index })

	frames := make([]entity.Frame, 0, len(extracted))
	for _, e := range extracted {
		img, err := loadImage(e.Path)
		if err != nil {
			src.sampler.logger.Warn("skipping undecodable frame", zap.Int("index", e.Index), zap.Error(err))
			continue
		}
		frames = append(frames, entity.Frame{Index: e.Index, Image: img})
	}
	if len(frames) == 0 {
		return nil, entity.NewAnalysisError(entity.ErrEmptySequence, "No frames could be extracted from video.", nil)
	}
	return frames, nil
}

// Close removes every temporary artifact of the source. It is safe to call more than once.
func (src *Source) Close() error {
	if src.workDir == "" {
		return nil
	}
	dir := src.workDir
	src.workDir = ""
	return os.RemoveAll(dir)
}

func loadImage(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeImage(data)
}
