// Package directory caches the roster of known user identities used
// for participant search and autocomplete. It is a read-through cache,
// never authoritative.
package directory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"parley/internal/models"
	"parley/internal/session"
	"parley/internal/transport"

	"github.com/c-pro/geche"
)

// Cache holds directory entries keyed by user ID plus the roster order
// the server returned them in. The current identity is excluded by
// invariant: a user cannot add itself as a participant.
type Cache struct {
	client  *transport.Client
	session *session.Store
	logger  *slog.Logger

	mu      sync.RWMutex
	entries geche.Geche[int64, models.DirectoryEntry]
	order   []int64
	errMsg  string
}

func NewCache(client *transport.Client, sess *session.Store, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		client:  client,
		session: sess,
		logger:  logger,
		entries: geche.NewMapCache[int64, models.DirectoryEntry](),
	}
}

// LoadAll fetches the full roster and replaces the cache, excluding
// the current identity. A fetch failure records an error message but
// leaves the cache at its last known state.
func (c *Cache) LoadAll(ctx context.Context) error {
	current := c.session.Identity()
	if current == nil {
		return nil
	}

	entries, err := c.client.ListDirectory(ctx)
	if err != nil {
		c.mu.Lock()
		c.errMsg = fmt.Sprintf("failed to load users: %v", err)
		c.mu.Unlock()
		return err
	}

	fresh := geche.NewMapCache[int64, models.DirectoryEntry]()
	order := make([]int64, 0, len(entries))
	for _, entry := range entries {
		if entry.ID == current.ID {
			continue
		}
		fresh.Set(entry.ID, entry)
		order = append(order, entry.ID)
	}

	c.mu.Lock()
	c.entries = fresh
	c.order = order
	c.mu.Unlock()
	return nil
}

// Search resolves a participant query. An empty query returns the full
// cache. A non-empty query first tries the server-side search; on any
// transport failure it degrades to a case-insensitive substring match
// over the cached usernames and emails. Callers cannot tell which path
// produced the result, by design.
func (c *Cache) Search(ctx context.Context, query string) []models.DirectoryEntry {
	current := c.session.Identity()
	if current == nil {
		return nil
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return c.All()
	}

	results, err := c.client.SearchDirectory(ctx, query)
	if err != nil {
		c.logger.Debug("server search failed, falling back to local match", "query", query, "error", err)
		return c.localSearch(query)
	}

	filtered := make([]models.DirectoryEntry, 0, len(results))
	for _, entry := range results {
		if entry.ID != current.ID {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

// All returns the cached roster in server order.
func (c *Cache) All() []models.DirectoryEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.DirectoryEntry, 0, len(c.order))
	for _, id := range c.order {
		if entry, err := c.entries.Get(id); err == nil {
			out = append(out, entry)
		}
	}
	return out
}

// Err returns the last cache-level error message, or "".
func (c *Cache) Err() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.errMsg
}

func (c *Cache) ClearError() {
	c.mu.Lock()
	c.errMsg = ""
	c.mu.Unlock()
}

func (c *Cache) localSearch(query string) []models.DirectoryEntry {
	needle := strings.ToLower(query)
	var out []models.DirectoryEntry
	for _, entry := range c.All() {
		if strings.Contains(strings.ToLower(entry.Username), needle) ||
			strings.Contains(strings.ToLower(entry.Email), needle) {
			out = append(out, entry)
		}
	}
	return out
}
