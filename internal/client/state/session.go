package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/splax/teamroster/internal/domain"
)

// Session is the signed-in identity the client keeps between runs.
type Session struct {
	Profile      domain.Profile `json:"user"`
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
}

// Valid reports whether the session carries an identity and a token.
func (s Session) Valid() bool {
	return s.Profile.ID != "" && s.AccessToken != ""
}

// SessionStore persists the auth slice.
type SessionStore interface {
	// Load returns nil when nothing is stored.
	Load() (*Session, error)
	Save(Session) error
	Clear() error
}

// FileSessionStore keeps the session as JSON on disk.
type FileSessionStore struct {
	path string
}

// NewFileSessionStore stores the session at path.
func NewFileSessionStore(path string) *FileSessionStore {
	return &FileSessionStore{path: path}
}

// DefaultSessionPath is session.json under the user config directory.
func DefaultSessionPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "teamroster", "session.json"), nil
}

// Path reports where the session is stored.
func (f *FileSessionStore) Path() string {
	return f.path
}

func (f *FileSessionStore) Load() (*Session, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}
	return &s, nil
}

func (f *FileSessionStore) Save(s Session) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, data, 0o600)
}

func (f *FileSessionStore) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
