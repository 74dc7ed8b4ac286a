// Package state persists the session-scoped client state: the bearer
// credential, the serialized identity, and the session-continuity
// marker. It is the Go analogue of browser sessionStorage: the file
// lives under the OS temp directory by default, so a reboot starts a
// fresh session rather than silently reusing a stale credential.
//
// The credential is sealed with an AEAD before it touches disk; the
// identity and marker are stored in the clear.
package state

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"parley/internal/models"

	"go.etcd.io/bbolt"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	bucketSession = []byte("session")

	keyToken       = []byte("token")
	keyIdentity    = []byte("identity")
	keyInitialized = []byte("initialized")
)

// Store is the on-disk session state. All methods are safe for use
// from the single-writer stores; bbolt serializes the transactions.
type Store struct {
	db   *bbolt.DB
	aead cipher.AEAD
}

// Open opens (or creates) the session file at path. The secret seals
// the credential at rest; any byte string works, a 32-byte key is
// derived from it with SHA-256.
func Open(path string, secret []byte) (*Store, error) {
	if len(secret) == 0 {
		return nil, errors.New("state secret must not be empty")
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open session state: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSession)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create session bucket: %w", err)
	}

	key := sha256.Sum256(secret)
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, aead: aead}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSession stores the identity and sealed token and sets the
// continuity marker in one transaction.
func (s *Store) SaveSession(identity models.Identity, token string) error {
	sealed, err := s.seal(token)
	if err != nil {
		return err
	}

	dbIdentity := &DBIdentity{
		ID:          identity.ID,
		Email:       identity.Email,
		Username:    identity.Username,
		AvatarRef:   identity.AvatarRef,
		PrivacyMode: identity.PrivacyMode,
		CreatedAt:   unixOrZero(identity.CreatedAt),
		LastSeenAt:  unixOrZero(identity.LastSeenAt),
		IsActive:    identity.IsActive,
	}
	data, err := dbIdentity.MarshalBinary()
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSession)
		if err := b.Put(keyToken, sealed); err != nil {
			return err
		}
		if err := b.Put(keyIdentity, data); err != nil {
			return err
		}
		return b.Put(keyInitialized, []byte{1})
	})
}

// LoadSession restores the persisted identity and token. Returns
// models.ErrNotFound when no session is stored or the token cannot be
// unsealed (a secret change invalidates the session).
func (s *Store) LoadSession() (models.Identity, string, error) {
	var (
		sealed       []byte
		identityData []byte
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSession)
		if v := b.Get(keyToken); v != nil {
			sealed = append([]byte(nil), v...)
		}
		if v := b.Get(keyIdentity); v != nil {
			identityData = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return models.Identity{}, "", err
	}
	if sealed == nil || identityData == nil {
		return models.Identity{}, "", models.ErrNotFound
	}

	token, err := s.unseal(sealed)
	if err != nil {
		return models.Identity{}, "", models.ErrNotFound
	}

	var dbIdentity DBIdentity
	if err := dbIdentity.UnmarshalBinary(identityData); err != nil {
		return models.Identity{}, "", fmt.Errorf("corrupt identity record: %w", err)
	}

	return models.Identity{
		ID:          dbIdentity.ID,
		Email:       dbIdentity.Email,
		Username:    dbIdentity.Username,
		AvatarRef:   dbIdentity.AvatarRef,
		PrivacyMode: dbIdentity.PrivacyMode,
		CreatedAt:   timeOrZero(dbIdentity.CreatedAt),
		LastSeenAt:  timeOrZero(dbIdentity.LastSeenAt),
		IsActive:    dbIdentity.IsActive,
	}, token, nil
}

// Initialized reports whether the session-continuity marker is set. A
// fresh session (marker absent) must clear any stale credential
// instead of reusing it.
func (s *Store) Initialized() (bool, error) {
	var initialized bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		initialized = tx.Bucket(bucketSession).Get(keyInitialized) != nil
		return nil
	})
	return initialized, err
}

// MarkInitialized sets the continuity marker without storing a session.
func (s *Store) MarkInitialized() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSession).Put(keyInitialized, []byte{1})
	})
}

// Clear removes the credential, identity and continuity marker.
func (s *Store) Clear() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSession)
		for _, key := range [][]byte{keyToken, keyIdentity, keyInitialized} {
			if err := b.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// ClearCredentials drops the token and identity but keeps the
// continuity marker, used when a fresh session discards stale data.
func (s *Store) ClearCredentials() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSession)
		if err := b.Delete(keyToken); err != nil {
			return err
		}
		return b.Delete(keyIdentity)
	})
}

func (s *Store) seal(token string) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, []byte(token), nil), nil
}

func (s *Store) unseal(sealed []byte) (string, error) {
	if len(sealed) < s.aead.NonceSize() {
		return "", errors.New("sealed token too short")
	}
	nonce := sealed[:s.aead.NonceSize()]
	plain, err := s.aead.Open(nil, nonce, sealed[s.aead.NonceSize():], nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
