package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/vikrammonish02/EMprion/internal/domain/port"
	"go.uber.org/zap"
)

const framePattern = "frame_%05d.png"

type Extractor struct {
	ffmpegBin  string
	ffprobeBin string
	logger     *zap.Logger
}

func NewExtractor(logger *zap.Logger) *Extractor {
	return &Extractor{ffmpegBin: "ffmpeg", ffprobeBin: "ffprobe", logger: logger}
}

// CountFrames returns the number of video packets in the first video stream, which
// matches the decodable frame count for the codecs we accept.
func (e *Extractor) CountFrames(ctx context.Context, videoPath string) (int, error) {
	cmd := exec.CommandContext(ctx, e.ffprobeBin,
		"-v", "error",
		"-select_streams", "v:0",
		"-count_packets",
		"-show_entries", "stream=nb_read_packets",
		"-of", "csv=p=0",
		videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	countStr := strings.TrimSpace(strings.Split(strings.TrimSpace(string(output)), "\n")[0])
	count, err := strconv.Atoi(strings.TrimSuffix(countStr, ","))
	if err != nil {
		return 0, fmt.Errorf("parse frame count %q: %w", countStr, err)
	}

	duration, err := e.getVideoDuration(ctx, videoPath)
	if err != nil {
		e.logger.Warn("could not get video duration", zap.Error(err))
	}
	e.logger.Info("video probed",
		zap.Int("frame_count", count),
		zap.Float64("video_duration", duration),
	)
	return count, nil
}

// ExtractFrames decodes only the frames at indices, writing one PNG per frame into
// outputDir.
func (e *Extractor) ExtractFrames(ctx context.Context, videoPath string, indices []int, outputDir string) ([]port.ExtractedFrame, error) {
	if len(indices) == 0 {
		return nil, nil
	}
	wanted := slices.Clone(indices)
	sort.Ints(wanted)
	wanted = slices.Compact(wanted)

	cmd := exec.CommandContext(ctx, e.ffmpegBin, buildExtractArgs(videoPath, wanted, filepath.Join(outputDir, framePattern))...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg error: %w, output: %s", err, string(output))
	}

	paths, err := filepath.Glob(filepath.Join(outputDir, "frame_*.png"))
	if err != nil {
		return nil, fmt.Errorf("glob frames: %w", err)
	}
	out, err := matchFrames(paths, wanted)
	if err != nil {
		e.logger.Warn("decoded frames differ from request",
			zap.Int("requested", len(wanted)),
			zap.Int("decoded", len(paths)),
			zap.Error(err),
		)
		return nil, err
	}
	e.logger.Debug("frames extracted", zap.Int("count", len(out)))
	return out, nil
}

// matchFrames pairs every wanted index with the file named after its frame number.
// A missing or unexpected frame is an error.
func matchFrames(paths []string, wanted []int) ([]port.ExtractedFrame, error) {
	byIndex := make(map[int]string, len(paths))
	for _, path := range paths {
		var idx int
		if _, err := fmt.Sscanf(filepath.Base(path), "frame_%d.png", &idx); err != nil {
			return nil, fmt.Errorf("unexpected frame file %q: %w", filepath.Base(path), err)
		}
		if !slices.Contains(wanted, idx) {
			return nil, fmt.Errorf("ffmpeg emitted unrequested frame %d", idx)
		}
		byIndex[idx] = path
	}

	out := make([]port.ExtractedFrame, 0, len(wanted))
	var missing []int
	for _, idx := range wanted {
		path, ok := byIndex[idx]
		if !ok {
			missing = append(missing, idx)
			continue
		}
		out = append(out, port.ExtractedFrame{Index: idx, Path: path})
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("ffmpeg did not decode frames %v", missing)
	}
	return out, nil
}

// buildExtractArgs stamps each frame with its decode number as a timestamp in seconds,
// then names the output files after that timestamp.
func buildExtractArgs(videoPath string, indices []int, outputPattern string) []string {
	terms := make([]string, len(indices))
	for i, idx := range indices {
		terms[i] = fmt.Sprintf(`eq(n\,%d)`, idx)
	}
	return []string{
		"-v", "error",
		"-i", videoPath,
		"-vf", "setpts=N/TB,select=" + strings.Join(terms, "+"),
		"-vsync", "vfr",
		"-enc_time_base", "1",
		"-frame_pts", "1",
		"-y",
		outputPattern,
	}
}

func (e *Extractor) getVideoDuration(ctx context.Context, videoPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, e.ffprobeBin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	durationStr := strings.TrimSpace(string(output))
	duration, err := strconv.ParseFloat(durationStr, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	return duration, nil
}
