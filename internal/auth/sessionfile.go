package auth

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jerrors "trade-journal/internal/errors"
)

// SessionFile persists the CLI's session token between invocations.
type SessionFile struct {
	path string
}

// NewSessionFile returns a session file stored at path.
func NewSessionFile(path string) *SessionFile {
	return &SessionFile{path: path}
}

// Path returns the file location.
func (f *SessionFile) Path() string {
	return f.path
}

// Save writes token with owner-only permissions.
func (f *SessionFile) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}
	if err := os.WriteFile(f.path, []byte(token+"\n"), 0600); err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}
	return nil
}

// Load returns the stored token, or ErrNotAuthenticated if there is none.
func (f *SessionFile) Load() (string, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return "", jerrors.ErrNotAuthenticated
	}
	if err != nil {
		return "", fmt.Errorf("reading session file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", jerrors.ErrNotAuthenticated
	}
	return token, nil
}

// Clear removes the stored token. A missing file is not an error.
func (f *SessionFile) Clear() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing session file: %w", err)
	}
	return nil
}
