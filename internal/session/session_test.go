package session

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"parley/internal/backendtest"
	"parley/internal/state"
	"parley/internal/transport"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, baseURL string) (*Store, *state.Store) {
	t.Helper()
	st, err := state.Open(filepath.Join(t.TempDir(), "session.db"), []byte("test-secret"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return newStoreOn(t, baseURL, st), st
}

func newStoreOn(t *testing.T, baseURL string, st *state.Store) *Store {
	t.Helper()
	var store *Store
	client, err := transport.New(transport.Config{
		BaseURL: baseURL,
		Token:   func() string { return store.Token() },
		Logger:  discardLogger(),
	})
	require.NoError(t, err)
	store = New(client, st, discardLogger())
	return store
}

func TestInitFreshSession(t *testing.T) {
	backend := backendtest.New()
	defer backend.Close()

	store, st := newFixture(t, backend.URL)
	require.NoError(t, store.Init(context.Background()))
	require.Equal(t, StatusUnauthenticated, store.Status())
	require.Nil(t, store.Identity())

	// First run sets the continuity marker so the next Init may restore.
	initialized, err := st.Initialized()
	require.NoError(t, err)
	require.True(t, initialized)
}

func TestInitUnreachable(t *testing.T) {
	dead := httptest.NewServer(nil)
	dead.Close()

	store, _ := newFixture(t, dead.URL)
	err := store.Init(context.Background())
	require.Error(t, err)
	require.True(t, transport.IsKind(err, transport.KindUnreachable))
	require.Equal(t, StatusUnreachable, store.Status())
}

func TestLoginAdoptsSession(t *testing.T) {
	backend := backendtest.New()
	defer backend.Close()

	store, _ := newFixture(t, backend.URL)
	require.NoError(t, store.Login(context.Background(), "alice@example.com", "pw"))

	require.Equal(t, StatusAuthenticated, store.Status())
	require.Equal(t, backendtest.Token, store.Token())
	identity := store.Identity()
	require.NotNil(t, identity)
	require.Equal(t, "alice@example.com", identity.Email)
}

func TestLoginRejected(t *testing.T) {
	backend := backendtest.New()
	defer backend.Close()

	store, _ := newFixture(t, backend.URL)
	err := store.Login(context.Background(), "alice@example.com", "wrong")
	require.Error(t, err)
	require.True(t, transport.IsKind(err, transport.KindInvalidCredentials))
	require.Nil(t, store.Identity())
	require.Empty(t, store.Token())
}

func TestRestoreAcrossRestart(t *testing.T) {
	backend := backendtest.New()
	defer backend.Close()

	store, st := newFixture(t, backend.URL)
	require.NoError(t, store.Init(context.Background()))
	require.NoError(t, store.Login(context.Background(), "alice@example.com", "pw"))

	// Same state file, new in-memory store: a client restart.
	restarted := newStoreOn(t, backend.URL, st)
	require.NoError(t, restarted.Init(context.Background()))
	require.Equal(t, StatusAuthenticated, restarted.Status())
	require.Equal(t, backendtest.Token, restarted.Token())
	identity := restarted.Identity()
	require.NotNil(t, identity)
	require.Equal(t, "tester", identity.Username)
}

func TestFreshSessionDiscardsStaleCredential(t *testing.T) {
	backend := backendtest.New()
	defer backend.Close()

	store, st := newFixture(t, backend.URL)
	require.NoError(t, store.Init(context.Background()))
	require.NoError(t, store.Login(context.Background(), "alice@example.com", "pw"))

	// Dropping the marker simulates a reboot with a leftover state file.
	require.NoError(t, st.Clear())
	restarted := newStoreOn(t, backend.URL, st)
	require.NoError(t, restarted.Init(context.Background()))
	require.Equal(t, StatusUnauthenticated, restarted.Status())
	require.Nil(t, restarted.Identity())
}

func TestRegisterDoesNotAdoptSession(t *testing.T) {
	backend := backendtest.New()
	defer backend.Close()

	store, _ := newFixture(t, backend.URL)
	require.NoError(t, store.Register(context.Background(), "new@example.com", "newbie", "pw"))

	require.True(t, store.RegistrationSucceeded())
	require.Nil(t, store.Identity())
	require.Empty(t, store.Token())
	require.NotEqual(t, StatusAuthenticated, store.Status())

	store.ResetRegistrationSucceeded()
	require.False(t, store.RegistrationSucceeded())
}

func TestRegisterRejected(t *testing.T) {
	backend := backendtest.New()
	defer backend.Close()

	store, _ := newFixture(t, backend.URL)
	err := store.Register(context.Background(), "new@example.com", "taken", "pw")
	require.Error(t, err)
	require.True(t, transport.IsKind(err, transport.KindInvalidCredentials))
	require.False(t, store.RegistrationSucceeded())
}

func TestLogoutClearsEverything(t *testing.T) {
	backend := backendtest.New()
	defer backend.Close()

	store, st := newFixture(t, backend.URL)
	require.NoError(t, store.Login(context.Background(), "alice@example.com", "pw"))

	store.Logout()

	require.Equal(t, StatusUnauthenticated, store.Status())
	require.Nil(t, store.Identity())
	require.Empty(t, store.Token())
	initialized, err := st.Initialized()
	require.NoError(t, err)
	require.False(t, initialized)
}

func TestTokenExpiry(t *testing.T) {
	backend := backendtest.New()
	defer backend.Close()

	expiry := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1",
		"exp": expiry.Unix(),
	}).SignedString([]byte("server-side-key"))
	require.NoError(t, err)
	backend.LoginBody = map[string]any{
		"user":  map[string]any{"id": 1, "email": "a@x.com", "username": "a"},
		"token": signed,
	}

	store, _ := newFixture(t, backend.URL)
	require.NoError(t, store.Login(context.Background(), "a@x.com", "pw"))
	require.True(t, store.TokenExpiry().Equal(expiry))
}

func TestTokenExpiryOpaqueToken(t *testing.T) {
	backend := backendtest.New()
	defer backend.Close()

	store, _ := newFixture(t, backend.URL)
	require.True(t, store.TokenExpiry().IsZero())

	require.NoError(t, store.Login(context.Background(), "a@x.com", "pw"))
	// The fixture token is not a JWT; it stays opaque.
	require.True(t, store.TokenExpiry().IsZero())
}
