package state

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"parley/internal/models"
)

func openTestStore(t *testing.T, secret string) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.db")
	store, err := Open(path, []byte(secret))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func testIdentity() models.Identity {
	return models.Identity{
		ID:         42,
		Email:      "alice@example.com",
		Username:   "alice",
		AvatarRef:  "/avatars/alice.png",
		CreatedAt:  time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		LastSeenAt: time.Date(2025, 3, 2, 9, 30, 0, 0, time.UTC),
		IsActive:   true,
	}
}

func TestOpenRequiresSecret(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "s.db"), nil)
	require.Error(t, err)
}

func TestSessionRoundTrip(t *testing.T) {
	store, _ := openTestStore(t, "secret")
	identity := testIdentity()

	require.NoError(t, store.SaveSession(identity, "bearer-token"))

	loaded, token, err := store.LoadSession()
	require.NoError(t, err)
	require.Equal(t, identity, loaded)
	require.Equal(t, "bearer-token", token)

	initialized, err := store.Initialized()
	require.NoError(t, err)
	require.True(t, initialized)
}

func TestLoadSessionEmpty(t *testing.T) {
	store, _ := openTestStore(t, "secret")
	_, _, err := store.LoadSession()
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestTokenIsSealedAtRest(t *testing.T) {
	store, path := openTestStore(t, "secret")
	token := "very-recognizable-bearer-token-value"
	require.NoError(t, store.SaveSession(testIdentity(), token))
	require.NoError(t, store.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.False(t, bytes.Contains(raw, []byte(token)))
}

func TestSecretChangeInvalidatesSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")
	store, err := Open(path, []byte("old-secret"))
	require.NoError(t, err)
	require.NoError(t, store.SaveSession(testIdentity(), "tok"))
	require.NoError(t, store.Close())

	reopened, err := Open(path, []byte("new-secret"))
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	_, _, err = reopened.LoadSession()
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestMarkInitialized(t *testing.T) {
	store, _ := openTestStore(t, "secret")

	initialized, err := store.Initialized()
	require.NoError(t, err)
	require.False(t, initialized)

	require.NoError(t, store.MarkInitialized())

	initialized, err = store.Initialized()
	require.NoError(t, err)
	require.True(t, initialized)
}

func TestClear(t *testing.T) {
	store, _ := openTestStore(t, "secret")
	require.NoError(t, store.SaveSession(testIdentity(), "tok"))

	require.NoError(t, store.Clear())

	_, _, err := store.LoadSession()
	require.ErrorIs(t, err, models.ErrNotFound)
	initialized, err := store.Initialized()
	require.NoError(t, err)
	require.False(t, initialized)
}

func TestClearCredentialsKeepsMarker(t *testing.T) {
	store, _ := openTestStore(t, "secret")
	require.NoError(t, store.SaveSession(testIdentity(), "tok"))

	require.NoError(t, store.ClearCredentials())

	_, _, err := store.LoadSession()
	require.ErrorIs(t, err, models.ErrNotFound)
	initialized, err := store.Initialized()
	require.NoError(t, err)
	require.True(t, initialized)
}
