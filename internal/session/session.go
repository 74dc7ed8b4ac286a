// Package session owns the authenticated identity and its bearer
// credential for the lifetime of one client session.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"parley/internal/models"
	"parley/internal/state"
	"parley/internal/transport"

	"github.com/golang-jwt/jwt/v5"
)

type Status string

const (
	StatusUnauthenticated Status = "unauthenticated"
	StatusChecking        Status = "checking"
	StatusAuthenticated   Status = "authenticated"
	StatusUnreachable     Status = "unreachable"
)

// Store holds the current identity and credential and mediates
// login, registration and logout. It is the single owner of credential
// persistence: the transport only returns data and never touches
// storage.
type Store struct {
	client *transport.Client
	state  *state.Store
	logger *slog.Logger

	mu       sync.RWMutex
	status   Status
	identity *models.Identity
	token    string
	// registrationSucceeded gates the post-registration flow: a new
	// account must log in explicitly instead of being adopted as the
	// active session.
	registrationSucceeded bool
	probed                bool
}

func New(client *transport.Client, st *state.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client: client,
		state:  st,
		logger: logger,
		status: StatusUnauthenticated,
	}
}

// Init probes backend availability and, when reachable, restores a
// prior session. Restoration only happens if the continuity marker is
// present; a fresh session clears any stale credential instead of
// silently reusing it.
func (s *Store) Init(ctx context.Context) error {
	s.setStatus(StatusChecking)

	if err := s.client.ProbeAvailability(ctx); err != nil {
		s.setStatus(StatusUnreachable)
		return err
	}
	s.mu.Lock()
	s.probed = true
	s.mu.Unlock()

	initialized, err := s.state.Initialized()
	if err != nil {
		s.setStatus(StatusUnauthenticated)
		return err
	}

	if !initialized {
		s.logger.Info("fresh session, discarding stale credentials")
		if err := s.state.ClearCredentials(); err != nil {
			s.setStatus(StatusUnauthenticated)
			return err
		}
		if err := s.state.MarkInitialized(); err != nil {
			s.setStatus(StatusUnauthenticated)
			return err
		}
		s.setStatus(StatusUnauthenticated)
		return nil
	}

	identity, token, err := s.state.LoadSession()
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Warn("failed to restore session", "error", err)
		}
		s.setStatus(StatusUnauthenticated)
		return nil
	}

	s.mu.Lock()
	s.identity = &identity
	s.token = token
	s.status = StatusAuthenticated
	s.mu.Unlock()
	s.logger.Info("session restored", "user_id", identity.ID, "username", identity.Username)
	return nil
}

// Login authenticates and adopts the resulting identity and credential.
// Errors propagate untouched. Concurrent calls are not coalesced: the
// last completed call wins, which is acceptable because the UI disables
// the control while a login is pending.
func (s *Store) Login(ctx context.Context, email, password string) error {
	if err := s.ensureReachable(ctx); err != nil {
		return err
	}

	result, err := s.client.Authenticate(ctx, email, password)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.identity = &result.Identity
	s.token = result.Token
	s.status = StatusAuthenticated
	s.mu.Unlock()

	if err := s.state.SaveSession(result.Identity, result.Token); err != nil {
		// The in-memory session stays valid; only restore-after-restart
		// is affected.
		s.logger.Warn("failed to persist session", "error", err)
	}
	return nil
}

// Register creates an account but deliberately does not adopt the
// returned identity or token: account creation is separated from
// session creation so the caller can force a confirm-by-login step.
func (s *Store) Register(ctx context.Context, email, username, password string) error {
	if err := s.ensureReachable(ctx); err != nil {
		return err
	}

	if _, err := s.client.Register(ctx, email, username, password); err != nil {
		return err
	}

	s.mu.Lock()
	s.registrationSucceeded = true
	s.mu.Unlock()
	return nil
}

// Logout clears the identity, credential, continuity marker and the
// registration flag synchronously. It has no network side effect.
func (s *Store) Logout() {
	s.mu.Lock()
	s.identity = nil
	s.token = ""
	s.registrationSucceeded = false
	s.status = StatusUnauthenticated
	s.mu.Unlock()

	if err := s.state.Clear(); err != nil {
		s.logger.Warn("failed to clear persisted session", "error", err)
	}
}

// Token implements transport.TokenSource.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Identity returns a copy of the current identity, or nil when
// unauthenticated.
func (s *Store) Identity() *models.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return nil
	}
	identity := *s.identity
	return &identity
}

func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Store) RegistrationSucceeded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registrationSucceeded
}

func (s *Store) ResetRegistrationSucceeded() {
	s.mu.Lock()
	s.registrationSucceeded = false
	s.mu.Unlock()
}

// TokenExpiry returns the expiry claim of the current credential when
// it happens to be a JWT. The token is treated as opaque otherwise and
// the zero time is returned. The parse is unverified: the client has
// no signing key and only wants the timestamp for display.
func (s *Store) TokenExpiry() time.Time {
	token := s.Token()
	if token == "" {
		return time.Time{}
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}
	}
	expiry, err := parsed.Claims.GetExpirationTime()
	if err != nil || expiry == nil {
		return time.Time{}
	}
	return expiry.Time
}

// ensureReachable performs an on-demand probe if none succeeded yet.
func (s *Store) ensureReachable(ctx context.Context) error {
	s.mu.RLock()
	probed := s.probed
	s.mu.RUnlock()
	if probed {
		return nil
	}

	if err := s.client.ProbeAvailability(ctx); err != nil {
		s.setStatus(StatusUnreachable)
		return err
	}
	s.mu.Lock()
	s.probed = true
	s.mu.Unlock()
	return nil
}

func (s *Store) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}
