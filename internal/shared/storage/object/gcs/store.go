package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"knowledge-hub/internal/shared/storage/object"
)

// Options configures the Google Cloud Storage backend. An empty
// CredentialsFile falls back to application default credentials.
type Options struct {
	Bucket          string
	Prefix          string
	CredentialsFile string
}

// Store implements object.Store on a GCS bucket.
type Store struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
	prefix string
	now    func() time.Time
}

// New creates a GCS-backed object store.
func New(ctx context.Context, opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &Store{
		client: client,
		bucket: client.Bucket(opts.Bucket),
		name:   opts.Bucket,
		prefix: strings.Trim(strings.TrimSpace(opts.Prefix), "/"),
		now:    time.Now,
	}, nil
}

// Put streams r into key, replacing any existing object.
func (s *Store) Put(ctx context.Context, key, contentType string, r io.Reader) (int64, error) {
	objectKey := object.JoinPrefix(s.prefix, key)
	w := s.bucket.Object(objectKey).NewWriter(ctx)
	w.ContentType = contentType
	n, err := io.Copy(w, r)
	if err != nil {
		w.Close()
		return 0, fmt.Errorf("gcs write bucket=%s key=%s: %w", s.name, objectKey, err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("gcs close bucket=%s key=%s: %w", s.name, objectKey, err)
	}
	return n, nil
}

// SignedURL returns a V4 signed GET URL for an existing object.
func (s *Store) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	objectKey := object.JoinPrefix(s.prefix, key)
	if _, err := s.bucket.Object(objectKey).Attrs(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return "", fmt.Errorf("signed url %s: %w", key, object.ErrNotFound)
		}
		return "", fmt.Errorf("gcs attrs bucket=%s key=%s: %w", s.name, objectKey, err)
	}
	signed, err := s.bucket.SignedURL(objectKey, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: s.now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("gcs sign bucket=%s key=%s: %w", s.name, objectKey, err)
	}
	return signed, nil
}

// Open downloads a stored object for reading.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	objectKey := object.JoinPrefix(s.prefix, key)
	rc, err := s.bucket.Object(objectKey).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("open %s: %w", key, object.ErrNotFound)
		}
		return nil, fmt.Errorf("gcs read bucket=%s key=%s: %w", s.name, objectKey, err)
	}
	return rc, nil
}

// Delete removes key. Missing objects are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	objectKey := object.JoinPrefix(s.prefix, key)
	if err := s.bucket.Object(objectKey).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete bucket=%s key=%s: %w", s.name, objectKey, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

var _ object.Store = (*Store)(nil)
