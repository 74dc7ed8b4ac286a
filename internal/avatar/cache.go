// Package avatar caches avatar images on disk so the UI resolves an
// avatar reference to a local file once per session.
package avatar

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
)

// Cache stores fetched avatars under root, fanned out by the first two
// hex digits of the reference hash. Writes go through a temp file and
// an atomic rename so a crashed download never leaves a partial file.
type Cache struct {
	root    string
	http    *http.Client
	baseURL string
}

func NewCache(root string, httpClient *http.Client, baseURL string) (*Cache, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create avatar cache directory: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Cache{
		root:    root,
		http:    httpClient,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// Fetch resolves an avatar reference to a local file path, downloading
// on first use. The file extension comes from sniffing the payload,
// not from the reference: servers routinely serve avatars from
// extension-less URLs. Non-image payloads are rejected.
func (c *Cache) Fetch(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("empty avatar reference")
	}

	if path, ok := c.lookup(ref); ok {
		return path, nil
	}

	url := ref
	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		if !strings.HasPrefix(ref, "/") {
			url = c.baseURL + "/" + ref
		} else {
			url = c.baseURL + ref
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build avatar request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch avatar: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("avatar fetch returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read avatar body: %w", err)
	}

	if !filetype.IsImage(data) {
		return "", fmt.Errorf("avatar payload is not an image")
	}
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return "", fmt.Errorf("failed to determine avatar image type")
	}

	return c.store(ref, kind.Extension, data)
}

// lookup returns the cached path for a reference if it exists, trying
// the known image extensions.
func (c *Cache) lookup(ref string) (string, bool) {
	base := c.path(ref)
	matches, err := filepath.Glob(base + ".*")
	if err != nil || len(matches) == 0 {
		return "", false
	}
	return matches[0], true
}

func (c *Cache) store(ref, extension string, data []byte) (string, error) {
	path := c.path(ref) + "." + extension

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "avatar-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name()) // Clean up if rename fails
	}()

	if _, err := tmp.Write(data); err != nil {
		return "", fmt.Errorf("failed to write avatar data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to rename avatar file: %w", err)
	}
	return path, nil
}

func (c *Cache) path(ref string) string {
	sum := sha256.Sum256([]byte(ref))
	hash := hex.EncodeToString(sum[:])
	return filepath.Join(c.root, hash[:2], hash)
}
