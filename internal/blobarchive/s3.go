// Package blobarchive best-effort mirrors match replays to S3. It never
// blocks match completion: a mirror failure is logged and otherwise
// ignored, since the authoritative copy lives in the File Blob Store.
package blobarchive

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"fairplay/internal/logging"
)

// Archiver uploads blobs to a single S3 bucket via the SDK's multipart
// Uploader, which transparently handles objects larger than its part size.
type Archiver struct {
	bucket   string
	uploader *manager.Uploader
}

// New builds an Archiver from the default AWS credential chain. Returns
// (nil, nil) if bucket is empty, so callers can treat archiving as
// optional without littering nil checks everywhere.
func New(ctx context.Context, bucket string) (*Archiver, error) {
	if bucket == "" {
		return nil, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &Archiver{bucket: bucket, uploader: manager.NewUploader(client)}, nil
}

// MirrorAsync uploads key/content in a background goroutine; errors are
// logged, never returned, since the caller has already committed the
// authoritative copy elsewhere.
func (a *Archiver) MirrorAsync(key string, content []byte) {
	if a == nil {
		return
	}
	go func() {
		ctx := context.Background()
		_, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(key),
			Body:   bytes.NewReader(content),
		})
		if err != nil {
			logging.L().Warn("replay mirror to s3 failed", zap.String("key", key), zap.Error(err))
		}
	}()
}
