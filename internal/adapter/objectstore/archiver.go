// Package objectstore archives consolidated outputs to S3-compatible storage.
package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/victor-cakess/hometown/internal/config"
	"github.com/victor-cakess/hometown/internal/domain"
)

// keyPrefix is the object key prefix for consolidated archives.
const keyPrefix = "consolidated"

type bucketClient interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Archiver uploads each fresh consolidated CSV, gzip-compressed, plus a JSON
// summary next to it. It implements pipeline.Sink.
type Archiver struct {
	client bucketClient
	bucket string
	logger *slog.Logger

	mu          sync.Mutex
	bucketReady bool
}

// NewArchiver creates a MinIO client for the configured endpoint. No request
// is made until the first delivery.
func NewArchiver(cfg *config.Config, logger *slog.Logger) (*Archiver, error) {
	cli, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Archiver{client: cli, bucket: cfg.MinioBucket, logger: logger}, nil
}

func (a *Archiver) Name() string { return "minio" }

// ObjectKey returns the archive key for a consolidated file completed on day.
func ObjectKey(d domain.Delivery) string {
	return path.Join(keyPrefix, d.CompletedAt.UTC().Format("2006/01/02"), filepath.Base(d.Path)+".gz")
}

func (a *Archiver) ensureBucket(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bucketReady {
		return nil
	}
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("%w: check bucket %s: %v", domain.ErrConnection, a.bucket, err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("%w: create bucket %s: %v", domain.ErrConnection, a.bucket, err)
		}
		a.logger.Info("bucket created", "bucket", a.bucket)
	}
	a.bucketReady = true
	return nil
}

// Deliver uploads the CSV at d.Path and its summary.
func (a *Archiver) Deliver(ctx context.Context, d domain.Delivery) error {
	raw, err := os.ReadFile(d.Path)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", domain.ErrPersistence, d.Path, err)
	}
	if err := a.ensureBucket(ctx); err != nil {
		return err
	}

	key := ObjectKey(d)
	meta := map[string]string{
		"run-id":  d.RunID,
		"records": strconv.Itoa(d.Summary.Records),
	}
	if err := a.putGzip(ctx, key, raw, "text/csv", meta); err != nil {
		return err
	}

	summary, err := json.Marshal(d.Summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	summaryKey := strings.TrimSuffix(strings.TrimSuffix(key, ".gz"), ".csv") + ".summary.json"
	if _, err := a.client.PutObject(ctx, a.bucket, summaryKey, bytes.NewReader(summary), int64(len(summary)),
		minio.PutObjectOptions{ContentType: "application/json", UserMetadata: meta}); err != nil {
		return fmt.Errorf("%w: put %s: %v", domain.ErrConnection, summaryKey, err)
	}

	a.logger.Info("consolidated output archived", "bucket", a.bucket, "key", key, "bytes", len(raw))
	return nil
}

func (a *Archiver) putGzip(ctx context.Context, key string, raw []byte, contentType string, meta map[string]string) error {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw); err != nil {
		return fmt.Errorf("compress %s: %w", key, err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("compress %s: %w", key, err)
	}

	reader := bytes.NewReader(buf.Bytes())
	_, err := a.client.PutObject(ctx, a.bucket, key, reader, int64(reader.Len()), minio.PutObjectOptions{
		ContentType:     contentType,
		ContentEncoding: "gzip",
		UserMetadata:    meta,
	})
	if err != nil {
		return fmt.Errorf("%w: put %s: %v", domain.ErrConnection, key, err)
	}
	return nil
}
