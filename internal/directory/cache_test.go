package directory

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"parley/internal/backendtest"
	"parley/internal/models"
	"parley/internal/session"
	"parley/internal/state"
	"parley/internal/transport"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, backend *backendtest.Server) *Cache {
	t.Helper()
	var sess *session.Store
	client, err := transport.New(transport.Config{
		BaseURL: backend.URL,
		Token:   func() string { return sess.Token() },
		Logger:  discardLogger(),
	})
	require.NoError(t, err)

	st, err := state.Open(filepath.Join(t.TempDir(), "session.db"), []byte("test-secret"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	sess = session.New(client, st, discardLogger())
	// The fixture login yields identity id 1.
	require.NoError(t, sess.Login(context.Background(), "alice@example.com", "pw"))
	return NewCache(client, sess, discardLogger())
}

func seedRoster(backend *backendtest.Server) {
	backend.SeedUser(models.DirectoryEntry{ID: 1, Email: "alice@example.com", Username: "tester"})
	backend.SeedUser(models.DirectoryEntry{ID: 2, Email: "bob@example.com", Username: "bob"})
	backend.SeedUser(models.DirectoryEntry{ID: 3, Email: "carol@example.com", Username: "carol"})
}

func TestLoadAllExcludesSelf(t *testing.T) {
	backend := backendtest.New()
	defer backend.Close()
	seedRoster(backend)

	cache := newFixture(t, backend)
	require.NoError(t, cache.LoadAll(context.Background()))

	entries := cache.All()
	require.Len(t, entries, 2)
	require.Equal(t, "bob", entries[0].Username)
	require.Equal(t, "carol", entries[1].Username)
}

func TestLoadAllFailurePreservesCache(t *testing.T) {
	backend := backendtest.New()
	defer backend.Close()
	seedRoster(backend)

	cache := newFixture(t, backend)
	require.NoError(t, cache.LoadAll(context.Background()))

	backend.FailListUsers = true
	require.Error(t, cache.LoadAll(context.Background()))
	require.NotEmpty(t, cache.Err())
	require.Len(t, cache.All(), 2)

	cache.ClearError()
	require.Empty(t, cache.Err())
}

func TestSearchEmptyQueryReturnsFullCache(t *testing.T) {
	backend := backendtest.New()
	defer backend.Close()
	seedRoster(backend)

	cache := newFixture(t, backend)
	require.NoError(t, cache.LoadAll(context.Background()))

	require.Equal(t, cache.All(), cache.Search(context.Background(), ""))
	require.Equal(t, cache.All(), cache.Search(context.Background(), "   "))
}

func TestSearchServerFiltersSelf(t *testing.T) {
	backend := backendtest.New()
	defer backend.Close()
	seedRoster(backend)

	cache := newFixture(t, backend)
	// "o" matches bob, carol and the tester's own email domain; the
	// current identity must never appear in results.
	results := cache.Search(context.Background(), "o")
	for _, entry := range results {
		require.NotEqual(t, int64(1), entry.ID)
	}
	require.Len(t, results, 2)
}

func TestSearchFallsBackToLocalOnFailure(t *testing.T) {
	backend := backendtest.New()
	defer backend.Close()
	seedRoster(backend)

	cache := newFixture(t, backend)
	require.NoError(t, cache.LoadAll(context.Background()))

	backend.FailSearch = true
	results := cache.Search(context.Background(), "CAROL")
	require.Len(t, results, 1)
	require.Equal(t, "carol", results[0].Username)
}

func TestSearchMissingEndpointYieldsEmpty(t *testing.T) {
	backend := backendtest.New()
	defer backend.Close()
	seedRoster(backend)

	cache := newFixture(t, backend)
	require.NoError(t, cache.LoadAll(context.Background()))

	// A 404 means the backend has no search; that is an empty result,
	// not a transport failure, so no local fallback fires.
	backend.DropSearch = true
	require.Empty(t, cache.Search(context.Background(), "carol"))
}

func TestSearchMatchesEmailLocally(t *testing.T) {
	backend := backendtest.New()
	defer backend.Close()
	seedRoster(backend)

	cache := newFixture(t, backend)
	require.NoError(t, cache.LoadAll(context.Background()))

	backend.FailSearch = true
	results := cache.Search(context.Background(), "bob@example")
	require.Len(t, results, 1)
	require.Equal(t, int64(2), results[0].ID)
}
