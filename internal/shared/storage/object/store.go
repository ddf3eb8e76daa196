package object

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"knowledge-hub/internal/shared/util"
)

// ErrNotFound is returned (wrapped) when a key has no stored object.
var ErrNotFound = errors.New("object not found")

// Store is the object storage gateway used for uploaded source bytes.
// Put overwrites an existing key, so retrying an upload is safe.
type Store interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) (int64, error)
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// BuildKey namespaces a sanitized file name under the user id with a
// millisecond timestamp and a random tag: "<userID>/<unixMillis>_<tag>_<name>".
// Two uploads of the same name in the same millisecond get distinct keys.
func BuildKey(userID string, now time.Time, fileName string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || strings.ContainsAny(userID, `/\`) {
		return "", fmt.Errorf("invalid user id for storage key")
	}
	name, err := util.SanitizeFileName(fileName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%d_%s_%s", userID, now.UnixMilli(), uuid.NewString()[:8], name), nil
}

// JoinPrefix places key under an optional bucket prefix.
func JoinPrefix(prefix, key string) string {
	cleanPrefix := strings.Trim(strings.TrimSpace(prefix), "/")
	cleanKey := strings.TrimLeft(key, "/")
	if cleanPrefix == "" {
		return cleanKey
	}
	if cleanKey == "" {
		return cleanPrefix
	}
	return cleanPrefix + "/" + cleanKey
}
