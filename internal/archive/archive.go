// Package archive copies finalized result files to an S3-compatible bucket.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spboyer/stimseq/internal/models"
	"github.com/spboyer/stimseq/internal/projectconfig"
)

// Store is the subset of an object store the uploader needs.
type Store interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucket, key, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Uploader puts files under bucket/prefix.
type Uploader struct {
	store  Store
	bucket string
	prefix string
	region string
}

// New creates an Uploader from the archive section of the project config.
// The client is created lazily by minio; no request is made here.
func New(cfg projectconfig.ArchiveConfig) (*Uploader, error) {
	var problems []string
	if cfg.Endpoint == "" {
		problems = append(problems, "archive.endpoint is required")
	}
	if cfg.Bucket == "" {
		problems = append(problems, "archive.bucket is required")
	}
	if len(problems) > 0 {
		return nil, models.NewConfigError("archive", problems...)
	}

	secure := true
	if cfg.UseSSL != nil {
		secure = *cfg.UseSSL
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    secure,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, &models.ConfigError{Source: "archive", Err: err}
	}
	return NewWithStore(client, cfg.Bucket, cfg.Prefix, cfg.Region), nil
}

// NewWithStore creates an Uploader on an existing store.
func NewWithStore(store Store, bucket, prefix, region string) *Uploader {
	return &Uploader{
		store:  store,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		region: region,
	}
}

// Key returns the object key a local file is stored under.
func (u *Uploader) Key(file string) string {
	name := filepath.Base(file)
	if u.prefix == "" {
		return name
	}
	return path.Join(u.prefix, name)
}

// Upload creates the bucket if needed and uploads every file. It keeps going
// after a failed file and returns the keys that were written along with the
// joined errors.
func (u *Uploader) Upload(ctx context.Context, files ...string) ([]string, error) {
	if len(files) == 0 {
		return nil, nil
	}
	if err := u.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", u.bucket, err)
	}

	var keys []string
	var errs []error
	for _, f := range files {
		key := u.Key(f)
		info, err := u.store.FPutObject(ctx, u.bucket, key, f, minio.PutObjectOptions{ContentType: contentType(f)})
		if err != nil {
			errs = append(errs, fmt.Errorf("upload %s: %w", f, err))
			continue
		}
		slog.Debug("archived result", "file", f, "bucket", u.bucket, "key", key, "size", info.Size)
		keys = append(keys, key)
	}
	return keys, errors.Join(errs...)
}

func (u *Uploader) ensureBucket(ctx context.Context) error {
	exists, err := u.store.BucketExists(ctx, u.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return u.store.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{Region: u.region})
}

func contentType(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".csv":
		return "text/csv"
	case ".db", ".sqlite":
		return "application/vnd.sqlite3"
	case ".jsonl":
		return "application/jsonl"
	}
	if t := mime.TypeByExtension(filepath.Ext(file)); t != "" {
		return t
	}
	return "application/octet-stream"
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
