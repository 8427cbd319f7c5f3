package port

import "context"

type MediaStorage interface {
	MediaSize(ctx context.Context, objectKey string) (int64, error)
	DownloadMedia(ctx context.Context, objectKey string, destPath string) error
}
