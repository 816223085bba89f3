// Package storage stores document files in S3-compatible object storage.
package storage

import (
	"context"
	"io"
	"time"
)

// PresignedURL is a time-limited link to a stored object.
type PresignedURL struct {
	URL       string    `json:"url"`
	FileKey   string    `json:"fileKey"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// StoredFile describes an object after upload.
type StoredFile struct {
	Key      string
	Size     int64
	Checksum string
}

// FileStore is the port the documents module uploads through.
type FileStore interface {
	// Put stores the reader under folder with a unique name derived from
	// fileName and returns the key plus a sha256 checksum of the content.
	Put(ctx context.Context, folder, fileName, contentType string, reader io.Reader, size int64) (StoredFile, error)

	// PresignDownload returns a short-lived download URL.
	PresignDownload(ctx context.Context, fileKey string) (PresignedURL, error)

	Delete(ctx context.Context, fileKey string) error
}

// Config is satisfied by config.Config.
type Config interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinIOMaxFileSize() int64
	GetMinioBucketDocuments() string
	IsMinIOEnabled() bool
}
