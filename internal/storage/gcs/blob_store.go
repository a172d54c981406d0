// Package gcs provides a BlobStore backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"net/http"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/mkonefal2/clickbait-verifier/internal/crawler"
)

// Exports are small JSON documents read once by the scoring agent.
const cacheControl = "no-cache"

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Config names the bucket and an optional key prefix.
type Config struct {
	Bucket string
	Prefix string
}

// BlobStore writes exports to one bucket.
type BlobStore struct {
	bucket *storage.BucketHandle
	name   string
	prefix string
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{
		bucket: client.Bucket(bucket),
		name:   bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Key maps an object name onto its key in the bucket. Names that are empty or climb out of
// the prefix are rejected.
func (s *BlobStore) Key(name string) (string, error) {
	clean := path.Clean("/" + strings.TrimSpace(name))
	if clean == "/" || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid object name %q", name)
	}
	return path.Join(s.prefix, strings.TrimPrefix(clean, "/")), nil
}

// PutObject uploads data in one request and returns its gs:// URI. The upload only succeeds
// when no object of that name exists; otherwise crawler.ErrObjectExists is returned.
func (s *BlobStore) PutObject(ctx context.Context, name string, contentType string, data []byte) (string, error) {
	key, err := s.Key(name)
	if err != nil {
		return "", err
	}
	uri := fmt.Sprintf("gs://%s/%s", s.name, key)

	w := s.bucket.Object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ChunkSize = 0
	w.ContentType = contentType
	w.CacheControl = cacheControl
	w.CRC32C = crc32.Checksum(data, castagnoli)
	w.SendCRC32C = true

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload %s: %w", uri, err)
	}
	if err := w.Close(); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
			return "", fmt.Errorf("%s: %w", uri, crawler.ErrObjectExists)
		}
		return "", fmt.Errorf("upload %s: %w", uri, err)
	}
	return uri, nil
}
