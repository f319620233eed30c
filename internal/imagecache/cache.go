// Package imagecache resolves product image URLs to files in the local
// asset namespace, downloading each unique (title, url) identity at most
// once. Entries never expire: a later harvest with the same identity is
// assumed to reference the same asset.
package imagecache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"
	"resty.dev/v3"

	"discounthub/harvester/internal/metrics"
)

// Cache is safe for concurrent use across source pipelines: it is keyed by
// content identity and idempotent, so racing downloads of the same identity
// converge on the same file.
type Cache struct {
	root       string
	client     *resty.Client
	maxRetries int
	retryDelay time.Duration
	memo       *lru.Cache[string, string]
	metrics    *metrics.Metrics
}

// New builds a cache rooted at root. Downloads carry the given timeout and
// are attempted at most maxRetries times.
func New(root string, timeout time.Duration, maxRetries int, m *metrics.Metrics) (*Cache, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create image root %s: %w", root, err)
	}
	if maxRetries < 1 {
		maxRetries = 1
	}
	memo, err := lru.New[string, string](4096)
	if err != nil {
		return nil, err
	}
	return &Cache{
		root:       root,
		client:     resty.New().SetTimeout(timeout),
		maxRetries: maxRetries,
		retryDelay: time.Second,
		memo:       memo,
		metrics:    m,
	}, nil
}

// Identity derives the cache key for a (title, url) pair. Hashing both
// avoids filename collisions between distinct products that share a title.
func Identity(title, rawURL string) string {
	sum := md5.Sum([]byte(title + rawURL))
	return hex.EncodeToString(sum[:])
}

// Resolve maps an image URL to a relative path under the asset namespace,
// "/images/{source}/{identity}.{ext}". It returns "" on any failure; the
// owning product is kept without an image, never discarded for this reason.
func (c *Cache) Resolve(ctx context.Context, sourceDir, title, rawURL string) string {
	if !validImageURL(rawURL) {
		if rawURL != "" {
			log.Debugf("Skipping invalid image URL: %.80s", rawURL)
		}
		return ""
	}

	identity := Identity(title, rawURL)
	if ref, ok := c.memo.Get(identity); ok {
		c.metrics.ImageCacheHits.Inc()
		return ref
	}

	filename := identity + "." + extension(rawURL)
	dir := filepath.Join(c.root, sourceDir)
	filePath := filepath.Join(dir, filename)
	ref := "/images/" + sourceDir + "/" + filename

	// Existence short-circuits: no network call, no freshness check.
	if _, err := os.Stat(filePath); err == nil {
		c.memo.Add(identity, ref)
		c.metrics.ImageCacheHits.Inc()
		return ref
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warnf("Failed to create image dir %s: %v", dir, err)
		return ""
	}

	if err := c.download(ctx, rawURL, filePath); err != nil {
		c.metrics.ImageFailures.Inc()
		log.Warnf("Image download failed (%s): %v", rawURL, err)
		return ""
	}

	c.memo.Add(identity, ref)
	c.metrics.ImagesDownloaded.Inc()
	log.Debugf("Saved image %s", filePath)
	return ref
}

// download fetches the asset with a bounded number of attempts and a fixed
// delay between them.
func (c *Cache) download(ctx context.Context, rawURL, filePath string) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		resp, err := c.client.R().
			SetContext(ctx).
			Get(rawURL)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.IsError() {
			lastErr = fmt.Errorf("HTTP %d", resp.StatusCode())
			continue
		}

		if err := os.WriteFile(filePath, resp.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write image: %w", err)
		}
		return nil
	}
	return fmt.Errorf("giving up after %d attempts: %w", c.maxRetries, lastErr)
}

// validImageURL rejects anything we should not even try to fetch: empty
// strings, embedded data URIs, non-http schemes.
func validImageURL(rawURL string) bool {
	if rawURL == "" || strings.Contains(rawURL, "data:image") {
		return false
	}
	return strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://")
}

// extension pulls a usable file extension from the URL path, falling back to
// jpg when the suffix looks like junk ("webp?param=x" style).
func extension(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "jpg"
	}
	ext := strings.TrimPrefix(path.Ext(u.Path), ".")
	ext = strings.ToLower(ext)
	if ext == "" || len(ext) > 5 {
		return "jpg"
	}
	return ext
}
