package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/maltedev/priceguess-ingest/internal/fetcher"
	"github.com/maltedev/priceguess-ingest/internal/models"
)

const (
	DefaultKeyPrefix = "assets"
	defaultExtension = "jpg"
)

var (
	ErrAssetFetch    = errors.New("failed to fetch asset")
	ErrStorageProbe  = errors.New("failed to probe object store")
	ErrStorageUpload = errors.New("failed to upload asset")
)

// ContentStore keys images by the SHA-256 of their bytes, so byte-identical
// images from different URLs end up as one stored object.
type ContentStore struct {
	fetcher fetcher.Fetcher
	objects ObjectStore
	prefix  string
	group   singleflight.Group
	logger  *slog.Logger
}

func NewContentStore(f fetcher.Fetcher, objects ObjectStore, prefix string, logger *slog.Logger) *ContentStore {
	if prefix = strings.Trim(prefix, "/"); prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ContentStore{
		fetcher: f,
		objects: objects,
		prefix:  prefix,
		logger:  logger.With("component", "content_store"),
	}
}

// Store fetches imageURL and makes sure its bytes exist in the object store.
func (c *ContentStore) Store(ctx context.Context, imageURL string) (models.StoredAsset, error) {
	source := stripQuery(imageURL)

	resp, err := c.fetcher.FetchAsset(ctx, source)
	if err != nil {
		return models.StoredAsset{}, fmt.Errorf("%w %s: %w", ErrAssetFetch, source, err)
	}
	if !resp.OK {
		return models.StoredAsset{}, fmt.Errorf("%w %s: status %d", ErrAssetFetch, source, resp.StatusCode)
	}
	if len(resp.Body) == 0 {
		return models.StoredAsset{}, fmt.Errorf("%w %s: empty body", ErrAssetFetch, source)
	}

	sum := sha256.Sum256(resp.Body)
	hash := hex.EncodeToString(sum[:])
	ext := ExtensionFor(resp.ContentType)
	key := fmt.Sprintf("%s/%s.%s", c.prefix, hash, ext)

	// Callers that join an in-flight call must not claim its upload. The
	// shared result of Do is true for the executing caller too, so track it
	// locally.
	ran := false
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		ran = true
		return c.ensure(ctx, key, resp.Body, contentTypeFor(resp.ContentType, ext))
	})
	if err != nil {
		return models.StoredAsset{}, err
	}

	uploaded := v.(bool) && ran
	asset := models.StoredAsset{
		ContentHash: hash,
		Extension:   ext,
		Key:         key,
		PublicURL:   c.objects.PublicURL(key),
		Uploaded:    uploaded,
	}
	c.logger.Debug("stored asset", "source", source, "key", key, "uploaded", uploaded)
	return asset, nil
}

// ensure returns whether it had to upload.
func (c *ContentStore) ensure(ctx context.Context, key string, body []byte, contentType string) (bool, error) {
	err := c.objects.Head(ctx, key)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, ErrNotFound):
		return false, fmt.Errorf("%w %s: %w", ErrStorageProbe, key, err)
	}

	if err := c.objects.Put(ctx, key, body, contentType); err != nil {
		return false, fmt.Errorf("%w %s: %w", ErrStorageUpload, key, err)
	}
	return true, nil
}

// ExtensionFor maps an image content type to a file extension.
func ExtensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}

	switch mediaType {
	case "image/jpeg", "image/jpg", "image/pjpeg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return defaultExtension
	}
}

func contentTypeFor(contentType, ext string) string {
	if strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return contentType
	}
	if ext == "jpg" {
		return "image/jpeg"
	}
	return "image/" + ext
}

func stripQuery(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		if i := strings.IndexAny(raw, "?#"); i >= 0 {
			return raw[:i]
		}
		return raw
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	return u.String()
}
