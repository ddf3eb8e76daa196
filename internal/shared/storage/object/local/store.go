package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"knowledge-hub/internal/shared/storage/object"
)

// DownloadAudience scopes signed download tokens so they cannot be used as sessions.
const DownloadAudience = "object-download"

// Signer mints and checks the short-lived tokens embedded in signed URLs.
type Signer interface {
	SignScoped(subject, audience string, ttl time.Duration) (string, time.Time, error)
	VerifyScoped(token, audience string) (string, error)
}

// Store implements object.Store on the local filesystem. Signed URLs point
// back at this service's download route.
type Store struct {
	baseDir string
	baseURL string
	signer  Signer
}

// New creates a local store rooted at baseDir. publicBaseURL is the externally
// reachable origin of the API.
func New(baseDir, publicBaseURL string, signer Signer) *Store {
	return &Store{
		baseDir: baseDir,
		baseURL: strings.TrimRight(publicBaseURL, "/"),
		signer:  signer,
	}
}

// Put writes r to key through a temp file and rename, replacing any prior object.
func (s *Store) Put(ctx context.Context, key, contentType string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	fullPath, err := s.resolve(key)
	if err != nil {
		return 0, err
	}
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	written, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tmpName)
		if copyErr != nil {
			return 0, fmt.Errorf("write body: %w", copyErr)
		}
		return 0, fmt.Errorf("close file: %w", closeErr)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("rename: %w", err)
	}
	return written, nil
}

// SignedURL checks the object exists and returns a download link valid for ttl.
func (s *Store) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fullPath, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(fullPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("signed url %s: %w", key, object.ErrNotFound)
		}
		return "", fmt.Errorf("stat: %w", err)
	}
	if s.signer == nil {
		return "", errors.New("local store has no signer")
	}
	token, _, err := s.signer.SignScoped(key, DownloadAudience, ttl)
	if err != nil {
		return "", fmt.Errorf("sign url: %w", err)
	}
	return s.baseURL + ObjectsPath + "/" + escapeKey(key) + "?token=" + url.QueryEscape(token), nil
}

// Open opens a stored object for reading.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open %s: %w", key, object.ErrNotFound)
		}
		return nil, err
	}
	return f, nil
}

// Delete removes key. Missing objects are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove: %w", err)
	}
	return nil
}

func (s *Store) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimSpace(key)))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.baseDir, clean), nil
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

var _ object.Store = (*Store)(nil)
