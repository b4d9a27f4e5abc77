// Package session holds the client's auth state: the bearer token and what
// little the client can read out of it. It is constructed explicitly and
// injected, never ambient: Load pulls the persisted token at startup and
// Logout tears it down.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// TokenStore persists the bearer token between runs.
type TokenStore interface {
	Token() (string, error)
	SetToken(token string) error
	Clear() error
}

// FileStore keeps the token in a single file with owner-only permissions.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Token() (string, error) {
	const op = "session.FileStore.Token"

	b, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return string(b), nil
}

func (s *FileStore) SetToken(token string) error {
	const op = "session.FileStore.SetToken"

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := os.WriteFile(s.path, []byte(token), 0o600); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *FileStore) Clear() error {
	const op = "session.FileStore.Clear"

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Session is the injected auth state. Safe for concurrent use.
type Session struct {
	store TokenStore

	mu    sync.RWMutex
	token string
}

// Load builds a session from whatever token the store has persisted. A store
// with no token yields an unauthenticated session, not an error.
func Load(store TokenStore) (*Session, error) {
	token, err := store.Token()
	if err != nil {
		return nil, err
	}
	return &Session{store: store, token: token}, nil
}

// Token returns the current bearer token, empty when logged out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Authed reports whether a token is present.
func (s *Session) Authed() bool {
	return s.Token() != ""
}

// SaveToken persists and adopts a freshly issued token.
func (s *Session) SaveToken(token string) error {
	if err := s.store.SetToken(token); err != nil {
		return err
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

// Logout clears the persisted token and the in-memory state.
func (s *Session) Logout() error {
	if err := s.store.Clear(); err != nil {
		return err
	}
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	return nil
}

// Username reads the username claim without verifying the signature. The
// client has no key material; verification is the server's job. Empty when
// logged out or when the token is not a JWT.
func (s *Session) Username() string {
	claims := s.claims()
	if claims == nil {
		return ""
	}
	name, _ := claims["username"].(string)
	return name
}

// Expired reports whether the token carries an exp claim in the past.
// Tokens without a readable exp claim are not considered expired.
func (s *Session) Expired() bool {
	claims := s.claims()
	if claims == nil {
		return false
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return false
	}
	return time.Now().After(time.Unix(int64(exp), 0))
}

func (s *Session) claims() jwt.MapClaims {
	token := s.Token()
	if token == "" {
		return nil
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil
	}
	return claims
}
