package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// PresignedURLTTL is how long download links stay valid.
const PresignedURLTTL = 15 * time.Minute

// MinIOStore implements FileStore on a single bucket.
type MinIOStore struct {
	client      *minio.Client
	bucket      string
	maxFileSize int64
}

func NewMinIOStore(cfg Config) (*MinIOStore, error) {
	if !cfg.IsMinIOEnabled() {
		return nil, fmt.Errorf("MinIO is not configured")
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &MinIOStore{
		client:      client,
		bucket:      cfg.GetMinioBucketDocuments(),
		maxFileSize: cfg.GetMinIOMaxFileSize(),
	}, nil
}

// EnsureBucket creates the documents bucket if it doesn't exist.
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	return nil
}

func (s *MinIOStore) Put(ctx context.Context, folder, fileName, contentType string, reader io.Reader, size int64) (StoredFile, error) {
	if err := ValidateContentType(contentType); err != nil {
		return StoredFile{}, err
	}
	if err := ValidateFileSize(size, s.maxFileSize); err != nil {
		return StoredFile{}, err
	}

	key := objectKey(folder, fileName)
	hash := sha256.New()
	info, err := s.client.PutObject(ctx, s.bucket, key, io.TeeReader(reader, hash), size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return StoredFile{}, fmt.Errorf("failed to upload file %s: %w", key, err)
	}

	return StoredFile{
		Key:      key,
		Size:     info.Size,
		Checksum: hex.EncodeToString(hash.Sum(nil)),
	}, nil
}

func (s *MinIOStore) PresignDownload(ctx context.Context, fileKey string) (PresignedURL, error) {
	expiresAt := time.Now().Add(PresignedURLTTL)
	u, err := s.client.PresignedGetObject(ctx, s.bucket, fileKey, PresignedURLTTL, url.Values{})
	if err != nil {
		return PresignedURL{}, fmt.Errorf("failed to generate presigned download URL: %w", err)
	}
	return PresignedURL{URL: u.String(), FileKey: fileKey, ExpiresAt: expiresAt}, nil
}

func (s *MinIOStore) Delete(ctx context.Context, fileKey string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, fileKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object %s: %w", fileKey, err)
	}
	return nil
}

// objectKey keeps the original base name and adds a short random suffix so
// re-uploads never overwrite each other.
func objectKey(folder, fileName string) string {
	base := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	ext := path.Ext(base)
	name := strings.TrimSuffix(base, ext)
	if name == "" || name == "." || name == "/" {
		name = "file"
	}
	return path.Join(folder, fmt.Sprintf("%s_%s%s", name, uuid.New().String()[:8], ext))
}

var _ FileStore = (*MinIOStore)(nil)
