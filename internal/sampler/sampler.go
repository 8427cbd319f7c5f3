// Package sampler turns an upload into a bounded, evenly spaced sequence of normalized
// frames.
package sampler

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/vikrammonish02/EMprion/internal/domain/entity"
	"github.com/vikrammonish02/EMprion/internal/domain/port"
	"go.uber.org/zap"
)

const (
	DefaultMinFrames     = 50
	DefaultDefaultFrames = 10
	DefaultFrameSize     = 224
)

type Config struct {
	// MinFrames is the floor on sampled frames for temporal analysis.
	MinFrames int
	// DefaultFrames is the stage model's native sequence length.
	DefaultFrames int
	FrameSize     int
	TempDir       string
}

func (c Config) withDefaults() Config {
	if c.MinFrames <= 0 {
		c.MinFrames = DefaultMinFrames
	}
	if c.DefaultFrames <= 0 {
		c.DefaultFrames = DefaultDefaultFrames
	}
	if c.FrameSize <= 0 {
		c.FrameSize = DefaultFrameSize
	}
	return c
}

type Sampler struct {
	decoder    port.FrameDecoder
	transcoder port.Transcoder
	cfg        Config
	logger     *zap.Logger
}

// New builds a sampler. transcoder may be nil, in which case uploads are decoded as-is.
func New(decoder port.FrameDecoder, transcoder port.Transcoder, cfg Config, logger *zap.Logger) *Sampler {
	return &Sampler{
		decoder:    decoder,
		transcoder: transcoder,
		cfg:        cfg.withDefaults(),
		logger:     logger,
	}
}

func (s *Sampler) FrameSize() int { return s.cfg.FrameSize }

// TargetCount is the number of frames sampled from a video with total frames.
func (s *Sampler) TargetCount(total int) int {
	return min(max(s.cfg.MinFrames, s.cfg.DefaultFrames), total)
}

// SampleIndices returns count frame indices evenly spaced over [0, total-1], truncated
// towards zero. With count <= total the result is strictly increasing.
func SampleIndices(total, count int) []int {
	if total <= 0 || count <= 0 {
		return nil
	}
	count = min(count, total)
	if count == 1 {
		return []int{0}
	}
	indices := make([]int, count)
	for i := range indices {
		indices[i] = i * (total - 1) / (count - 1)
	}
	return indices
}

// ValidateMode fails fast when temporal analysis is requested for a still image.
func ValidateMode(media entity.MediaInput, mode entity.AnalysisMode) error {
	if mode == entity.ModeTemporal && !media.IsVideo() {
		return entity.NewAnalysisError(entity.ErrModeInputMismatch,
			"Clinical Error: Morphokinetic analysis requires a time-lapse video. Please rerun with morphology grading.", nil)
	}
	return nil
}

// Open prepares media for sampling. For video this writes the upload into a private
// work directory that the returned Source removes on Close; callers must always Close.
func (s *Sampler) Open(ctx context.Context, media entity.MediaInput) (*Source, error) {
	if !media.IsVideo() {
		img, err := decodeImage(media.Data)
		if err != nil {
			return nil, entity.NewAnalysisError(entity.ErrEmptySequence, "Invalid image data: the upload could not be decoded.", err)
		}
		return &Source{sampler: s, image: img}, nil
	}
	return s.openVideo(ctx, media)
}

func (s *Sampler) openVideo(ctx context.Context, media entity.MediaInput) (*Source, error) {
	if s.cfg.TempDir != "" {
		if err := os.MkdirAll(s.cfg.TempDir, 0o755); err != nil {
			return nil, fmt.Errorf("create temp dir: %w", err)
		}
	}
	workDir, err := os.MkdirTemp(s.cfg.TempDir, "embryo-*")
	if err != nil {
		return nil, fmt.Errorf("create workdir: %w", err)
	}
	src := &Source{sampler: s, workDir: workDir}

	ext := strings.ToLower(filepath.Ext(media.Filename))
	if ext == "" {
		ext = ".mp4"
	}
	inputPath := filepath.Join(workDir, "input"+ext)
	if err := os.WriteFile(inputPath, media.Data, 0o600); err != nil {
		src.Close()
		return nil, fmt.Errorf("write upload: %w", err)
	}
	src.videoPath = inputPath

	if s.transcoder != nil {
		normalized := filepath.Join(workDir, "normalized.mp4")
		if err := s.transcoder.Normalize(ctx, inputPath, normalized); err != nil {
			s.logger.Warn("video normalization failed, decoding original upload", zap.Error(err))
		} else {
			src.videoPath = normalized
		}
	}

	total, err := s.decoder.CountFrames(ctx, src.videoPath)
	if err != nil {
		src.Close()
		return nil, entity.NewAnalysisError(entity.ErrEmptySequence, "Failed to read frames from video.", err)
	}
	if total <= 0 {
		src.Close()
		return nil, entity.NewAnalysisError(entity.ErrEmptySequence, "Video contains no frames.", nil)
	}
	src.totalFrames = total
	return src, nil
}

func decodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("decode image: empty bounds")
	}
	return img, nil
}
