package store

import (
	"context"
	"fmt"
	"io"

	"github.com/maraichr/datasetops/internal/config"
	minioclient "github.com/maraichr/datasetops/internal/store/minio"
	s3client "github.com/maraichr/datasetops/internal/store/s3"
)

// Blobs is an object store export files are written to.
type Blobs interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
}

// OpenExportBackend connects the backend named by cfg.Export.Backend. It
// returns nil when exports are disabled.
func OpenExportBackend(ctx context.Context, cfg *config.Config) (Blobs, error) {
	switch cfg.Export.Backend {
	case "minio":
		c, err := minioclient.NewClient(cfg.MinIO)
		if err != nil {
			return nil, err
		}
		if err := c.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("ensure bucket %s: %w", c.Bucket(), err)
		}
		return c, nil
	case "s3":
		c, err := s3client.NewClient(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, nil
	}
}
