package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"

	"go.uber.org/zap"
)

// Transcoder re-encodes uploads to H.264 MP4 so containers and codecs the frame decoder
// cannot seek in are still analyzable.
type Transcoder struct {
	ffmpegBin string
	logger    *zap.Logger
}

func NewTranscoder(logger *zap.Logger) *Transcoder {
	return &Transcoder{ffmpegBin: "ffmpeg", logger: logger}
}

func (t *Transcoder) Normalize(ctx context.Context, srcPath string, dstPath string) error {
	cmd := exec.CommandContext(ctx, t.ffmpegBin, buildTranscodeArgs(srcPath, dstPath)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg transcode error: %w, output: %s", err, string(output))
	}
	t.logger.Debug("video normalized", zap.String("dst", dstPath))
	return nil
}

func buildTranscodeArgs(srcPath, dstPath string) []string {
	return []string{
		"-y",
		"-i", srcPath,
		"-c:v", "libx264",
		"-c:a", "aac",
		"-preset", "fast",
		"-crf", "23",
		dstPath,
	}
}
