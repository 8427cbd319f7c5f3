package port

import "context"

type ExtractedFrame struct {
	Index int
	Path  string
}

// FrameDecoder reads frames out of a video container on disk.
type FrameDecoder interface {
	CountFrames(ctx context.Context, videoPath string) (int, error)
	// ExtractFrames decodes only the requested frame indices into outputDir. Frames that
	// cannot be decoded are omitted from the result rather than failing the call.
	ExtractFrames(ctx context.Context, videoPath string, indices []int, outputDir string) ([]ExtractedFrame, error)
}

// Transcoder re-encodes an arbitrary video container into a decodable format.
type Transcoder interface {
	Normalize(ctx context.Context, srcPath string, dstPath string) error
}
