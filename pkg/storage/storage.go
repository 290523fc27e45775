package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// ImmutableCacheControl suits objects whose key changes on every upload.
const ImmutableCacheControl = "public, max-age=31536000, immutable"

type UploadInput struct {
	Key          string
	ContentType  string
	CacheControl string
	Metadata     map[string]string
	Body         io.Reader
	Size         int64
}

// Service stores public objects such as avatars. PutObject returns the URL
// clients use to fetch the object.
type Service interface {
	PutObject(ctx context.Context, in UploadInput) (string, error)
	DeleteObject(ctx context.Context, key string) error
}

// AvatarKey returns a fresh key under avatars/<user>/ so a new upload never
// overwrites a URL that memberships still reference.
func AvatarKey(userID, ext string) string {
	user := strings.Trim(strings.ReplaceAll(userID, "/", "_"), ".")
	if user == "" {
		user = "unknown"
	}
	return fmt.Sprintf("avatars/%s/%s.%s", user, uuid.NewString(), strings.TrimPrefix(ext, "."))
}
