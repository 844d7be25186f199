package client

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ecoquote/internal/model"

	"gopkg.in/yaml.v3"
)

// SessionEnv overrides the default session file location
const SessionEnv = "ECOQUOTE_SESSION_FILE"

// Session is the locally persisted staff login. The server stays the
// authority on expiry; Valid only avoids calls that are bound to fail.
type Session struct {
	Token     string      `yaml:"token"`
	User      model.Staff `yaml:"user"`
	LoginAt   time.Time   `yaml:"login_at"`
	ExpiresAt time.Time   `yaml:"expires_at"`

	path string
}

// DefaultSessionPath returns $ECOQUOTE_SESSION_FILE or ~/.ecoquote/session.yaml
func DefaultSessionPath() string {
	if p := os.Getenv(SessionEnv); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".ecoquote", "session.yaml")
	}
	return filepath.Join(home, ".ecoquote", "session.yaml")
}

// LoadSession reads the session at path. A missing file yields an empty
// session; an expired one is removed and also yields an empty session.
func LoadSession(path string) (*Session, error) {
	s := &Session{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}
	s.path = path

	if !s.Valid(time.Now()) {
		if err := s.Clear(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Start fills the session from a successful login
func (s *Session) Start(token string, user model.Staff, expiresAt time.Time) {
	s.Token = token
	s.User = user
	s.LoginAt = time.Now().UTC()
	s.ExpiresAt = expiresAt
}

// Valid reports whether the session holds an unexpired token
func (s *Session) Valid(now time.Time) bool {
	return s.Token != "" && now.Before(s.ExpiresAt)
}

// Save writes the session with owner-only permissions
func (s *Session) Save() error {
	if s.path == "" {
		return errors.New("session has no path")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

// Clear forgets the session in memory and on disk
func (s *Session) Clear() error {
	path := s.path
	*s = Session{path: path}
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}

// Path returns where the session is stored
func (s *Session) Path() string {
	return s.path
}
